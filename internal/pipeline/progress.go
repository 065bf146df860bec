package pipeline

import (
	"context"

	"github.com/555Russich/18.fl-auto-response/internal/process"
	"github.com/555Russich/18.fl-auto-response/internal/types"
)

// Progress categories.
const (
	CategorySession = "session"
	CategoryRecord  = "record"
)

// ProgressEvent represents a progress update during a session
type ProgressEvent struct {
	Step      string `json:"step"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	Content   any    `json:"content,omitempty"`
}

// ProgressCallback is called when session progress occurs
type ProgressCallback func(event ProgressEvent)

func (o *Options) emit(sessionID, step, category, message string, content any) {
	if o.OnProgress != nil {
		o.OnProgress(ProgressEvent{
			Step:      step,
			Category:  category,
			Message:   message,
			SessionID: sessionID,
			Content:   content,
		})
	}
}

// reportingProcessor emits a progress event for every processed record.
type reportingProcessor struct {
	inner     *process.Processor
	opts      *Options
	sessionID string
}

func (r *reportingProcessor) Process(ctx context.Context, rec types.Record) (process.Outcome, error) {
	out, err := r.inner.Process(ctx, rec)
	if err == nil {
		r.opts.emit(r.sessionID, out.Status.String(), CategoryRecord, out.Reason, out)
	}
	return out, err
}

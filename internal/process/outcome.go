package process

import "github.com/555Russich/18.fl-auto-response/internal/types"

// Status is the terminal result of processing one record.
type Status int

const (
	// Acted means the reply was sent and the record persisted.
	Acted Status = iota
	// Skipped means the record was persisted without acting, or was already processed.
	Skipped
	// Deferred means the record is too fresh; it stays unseen.
	Deferred
	// Failed means processing did not complete. Persisted tells whether the record is
	// still considered handled.
	Failed
)

func (s Status) String() string {
	switch s {
	case Acted:
		return "acted"
	case Skipped:
		return "skipped"
	case Deferred:
		return "deferred"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome describes what happened to a record.
type Outcome struct {
	ID        types.RecordID
	Status    Status
	Persisted bool
	Reason    string
}

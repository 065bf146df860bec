// Package process runs a single record through detail fetch, eligibility window,
// classification and the response action.
package process

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/555Russich/18.fl-auto-response/internal/classify"
	"github.com/555Russich/18.fl-auto-response/internal/clock"
	"github.com/555Russich/18.fl-auto-response/internal/discover"
	"github.com/555Russich/18.fl-auto-response/internal/driver"
	"github.com/555Russich/18.fl-auto-response/internal/site"
	"github.com/555Russich/18.fl-auto-response/internal/store"
	"github.com/555Russich/18.fl-auto-response/internal/types"
	"github.com/555Russich/18.fl-auto-response/internal/window"
)

// Default timings.
const (
	DefaultSettle   = time.Second
	DefaultRetry    = 5 * time.Second
	DefaultAttempts = 3
)

// Reasons reported in Outcome.Reason.
const (
	ReasonAlreadyProcessed = "already processed"
	ReasonExcludedKind     = "excluded kind"
	ReasonTooFresh         = "too fresh"
	ReasonStale            = "stale"
)

// DetailFinder fetches the detail of the record open in the current tab.
type DetailFinder interface {
	FindDetail(ctx context.Context, id types.RecordID) (*types.RecordDetail, error)
}

// Classifier decides whether a record should get a reply.
type Classifier interface {
	Classify(ctx context.Context, subject, aim string) (classify.Decision, error)
}

// Sender sends the reply to the record open in the current tab.
type Sender interface {
	Send(ctx context.Context, name string) error
}

// Options configures a Processor.
type Options struct {
	// RecordURL returns the detail view of a record.
	RecordURL func(id string) string
	Window    window.Policy
	// Settle is the wait after navigating to a detail view.
	Settle time.Duration
	// Retry is the wait after the first detail miss; it doubles with every further miss.
	Retry    time.Duration
	Attempts int
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Processor handles records one at a time.
type Processor struct {
	drv        driver.Driver
	store      store.Store
	finder     DetailFinder
	classifier Classifier
	sender     Sender
	opts       Options
	clock      clock.Clock
	log        *zap.Logger
}

// New creates a Processor.
func New(drv driver.Driver, st store.Store, finder DetailFinder, classifier Classifier, sender Sender, opts Options) *Processor {
	if opts.RecordURL == nil {
		opts.RecordURL = site.Default().RecordURL
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	if opts.Retry <= 0 {
		opts.Retry = DefaultRetry
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	p := &Processor{
		drv:        drv,
		store:      st,
		finder:     finder,
		classifier: classifier,
		sender:     sender,
		opts:       opts,
		clock:      opts.Clock,
		log:        opts.Logger,
	}
	if p.clock == nil {
		p.clock = clock.Real()
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	return p
}

// Process brings rec to a terminal outcome. The record is persisted only after the
// decision is made, and always once the response action has been invoked. A returned
// error means the session is unusable (store failure, driver failure or cancellation);
// the outcome is final only when Persisted is set.
func (p *Processor) Process(ctx context.Context, rec types.Record) (Outcome, error) {
	out := Outcome{ID: rec.ID, Status: Failed}
	log := p.log.With(zap.String("record_id", rec.ID.String()))

	seen, err := p.store.Has(ctx, rec.ID)
	if err != nil {
		return out, fmt.Errorf("failed to check record %s: %w", rec.ID, err)
	}
	if seen {
		out.Status, out.Reason = Skipped, ReasonAlreadyProcessed
		return out, nil
	}

	if rec.Kind.AlwaysExcluded() {
		log.Debug("excluded kind", zap.String("kind", string(rec.Kind)))
		return p.finish(ctx, out, Skipped, ReasonExcludedKind)
	}

	detail, err := p.fetchDetail(ctx, rec.ID, log)
	if err != nil {
		if errors.Is(err, discover.ErrNotFound) {
			out.Reason = err.Error()
			return out, nil
		}
		return out, err
	}

	verdict := p.opts.Window.Evaluate(p.clock.Now(), detail.ReceivedAt)
	log.Debug("window verdict", zap.Stringer("verdict", verdict), zap.Time("received_at", detail.ReceivedAt))
	switch verdict {
	case window.TooFresh:
		out.Status, out.Reason = Deferred, ReasonTooFresh
		return out, nil
	case window.Stale:
		return p.finish(ctx, out, Skipped, ReasonStale)
	}

	decision, err := p.classifier.Classify(ctx, detail.Subject, detail.Aim)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		log.Error("classification failed", zap.Error(err))
		out.Reason = err.Error()
		return out, nil
	}
	log.Info("classified",
		zap.Bool("eligible", decision.Eligible),
		zap.String("reason", decision.Reason),
	)
	if !decision.Eligible {
		return p.finish(ctx, out, Skipped, decision.Reason)
	}

	// Once the action starts the reply may already be out, so the id is stored even
	// when ctx is done.
	sendErr := p.sender.Send(ctx, detail.DisplayName)
	status, reason := Acted, ""
	if sendErr != nil {
		log.Error("response action failed", zap.Error(sendErr))
		status, reason = Failed, sendErr.Error()
	}
	out, err = p.finish(context.WithoutCancel(ctx), out, status, reason)
	if err != nil {
		return out, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, ctxErr
	}
	return out, nil
}

// finish persists the record and records the terminal status.
func (p *Processor) finish(ctx context.Context, out Outcome, status Status, reason string) (Outcome, error) {
	out.Reason = reason
	if err := p.store.Add(ctx, out.ID); err != nil {
		return out, fmt.Errorf("failed to persist record %s: %w", out.ID, err)
	}
	out.Status = status
	out.Persisted = true
	return out, nil
}

// fetchDetail opens the record and waits for its detail response, up to opts.Attempts times
// with doubling waits between misses. The capture buffer is emptied before every
// navigation so a detail of a previously opened record cannot be picked up.
func (p *Processor) fetchDetail(ctx context.Context, id types.RecordID, log *zap.Logger) (*types.RecordDetail, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.opts.Retry
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = p.opts.Retry << p.opts.Attempts

	url := p.opts.RecordURL(id.String())
	attempt := 0
	open := func() (*types.RecordDetail, error) {
		attempt++
		p.drv.ClearCapturedTraffic()
		if err := p.drv.Navigate(ctx, url); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to open record %s: %w", id, err))
		}
		if err := p.clock.Sleep(ctx, p.opts.Settle); err != nil {
			return nil, backoff.Permanent(err)
		}

		detail, err := p.finder.FindDetail(ctx, id)
		if err != nil && !errors.Is(err, discover.ErrNotFound) {
			return nil, backoff.Permanent(err)
		}
		return detail, err
	}

	detail, err := backoff.Retry(ctx, open,
		backoff.WithBackOff(clock.BackOff(ctx, p.clock, exp)),
		backoff.WithMaxTries(uint(p.opts.Attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, _ time.Duration) {
			log.Warn("detail not found, trying again", zap.Int("attempt", attempt), zap.Error(err))
		}),
	)
	if err == nil {
		return detail, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if !errors.Is(err, discover.ErrNotFound) {
		return nil, err
	}

	log.Error("detail not found", zap.Int("attempts", attempt), zap.Error(err))
	return nil, fmt.Errorf("detail of %s unavailable after %d attempts: %w", id, attempt, err)
}

// Package poll drives discovery cycles over the search view.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/555Russich/18.fl-auto-response/internal/clock"
	"github.com/555Russich/18.fl-auto-response/internal/discover"
	"github.com/555Russich/18.fl-auto-response/internal/driver"
	"github.com/555Russich/18.fl-auto-response/internal/process"
	"github.com/555Russich/18.fl-auto-response/internal/store"
	"github.com/555Russich/18.fl-auto-response/internal/types"
)

// Defaults of the loop pacing.
const (
	DefaultMaxMisses       = 3
	DefaultScrollThreshold = 3
	DefaultScrollPause     = time.Second
	DefaultIdleSleep       = 30 * time.Second
)

// ErrDiscoveryExhausted is returned when consecutive discovery cycles found no batch.
// The session is considered unusable.
var ErrDiscoveryExhausted = errors.New("record discovery exhausted")

// Mode is the phase of the loop.
type Mode int

const (
	// ModeStart drains the backlog already loaded in the search view.
	ModeStart Mode = iota
	// ModeUpdates refreshes the search view and waits for new records.
	ModeUpdates
)

func (m Mode) String() string {
	switch m {
	case ModeStart:
		return "start"
	case ModeUpdates:
		return "updates"
	default:
		return "unknown"
	}
}

// BatchFinder returns the latest discovery batch.
type BatchFinder interface {
	FindBatch(ctx context.Context) (*types.Batch, error)
}

// RecordProcessor handles a single new record.
type RecordProcessor interface {
	Process(ctx context.Context, rec types.Record) (process.Outcome, error)
}

// Options configures a Loop.
type Options struct {
	// MainTab shows the search view; TrafficTab is where discovery and detail views run.
	MainTab    driver.TabID
	TrafficTab driver.TabID

	MaxMisses       int
	ScrollThreshold int
	ScrollPause     time.Duration
	IdleSleep       time.Duration
	Clock           clock.Clock
	Logger          *zap.Logger
}

// Result summarises one cycle.
type Result struct {
	Mode      Mode
	Found     bool
	Attempted int
	Outcomes  []process.Outcome
}

// Loop alternates discovery and processing. It is not safe for concurrent use.
type Loop struct {
	drv       driver.Driver
	finder    BatchFinder
	processor RecordProcessor
	store     store.Store
	opts      Options
	clock     clock.Clock
	log       *zap.Logger

	mode   Mode
	misses int
}

// New creates a Loop in ModeStart.
func New(drv driver.Driver, finder BatchFinder, processor RecordProcessor, st store.Store, opts Options) *Loop {
	if opts.MaxMisses <= 0 {
		opts.MaxMisses = DefaultMaxMisses
	}
	if opts.ScrollThreshold <= 0 {
		opts.ScrollThreshold = DefaultScrollThreshold
	}
	if opts.ScrollPause <= 0 {
		opts.ScrollPause = DefaultScrollPause
	}
	if opts.IdleSleep <= 0 {
		opts.IdleSleep = DefaultIdleSleep
	}
	l := &Loop{
		drv:       drv,
		finder:    finder,
		processor: processor,
		store:     st,
		opts:      opts,
		clock:     opts.Clock,
		log:       opts.Logger,
		mode:      ModeStart,
	}
	if l.clock == nil {
		l.clock = clock.Real()
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	return l
}

// Mode returns the current phase.
func (l *Loop) Mode() Mode {
	return l.mode
}

// Run repeats cycles until ctx is done or a cycle fails.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := l.Cycle(ctx); err != nil {
			return err
		}
	}
}

// Cycle runs one discovery cycle and the pacing that follows it.
func (l *Loop) Cycle(ctx context.Context) (Result, error) {
	res := Result{Mode: l.mode}
	log := l.log.With(zap.Stringer("mode", l.mode))

	if l.mode == ModeUpdates {
		if err := l.drv.Refresh(ctx); err != nil {
			return res, fmt.Errorf("failed to refresh search view: %w", err)
		}
	}

	if err := l.drv.SwitchTab(ctx, l.opts.TrafficTab); err != nil {
		return res, err
	}
	batch, err := l.finder.FindBatch(ctx)
	switch {
	case errors.Is(err, discover.ErrNotFound):
		if err := l.drv.SwitchTab(ctx, l.opts.MainTab); err != nil {
			return res, err
		}
		l.misses++
		if l.misses >= l.opts.MaxMisses {
			log.Error("discovery failed, giving up on session", zap.Int("misses", l.misses), zap.Error(err))
			return res, fmt.Errorf("%w after %d cycles: %w", ErrDiscoveryExhausted, l.misses, err)
		}
		log.Warn("discovery failed", zap.Int("misses", l.misses), zap.Error(err))
		return res, nil
	case err != nil:
		return res, err
	}
	l.misses = 0
	res.Found = true

	for _, rec := range batch.Records {
		if rec.Kind.AlwaysExcluded() {
			continue
		}
		seen, err := l.store.Has(ctx, rec.ID)
		if err != nil {
			return res, fmt.Errorf("failed to check record %s: %w", rec.ID, err)
		}
		if seen {
			continue
		}

		res.Attempted++
		out, err := l.processor.Process(ctx, rec)
		if err != nil {
			return res, err
		}
		res.Outcomes = append(res.Outcomes, out)
		log.Info("record processed",
			zap.String("record_id", rec.ID.String()),
			zap.Stringer("status", out.Status),
			zap.Bool("persisted", out.Persisted),
			zap.String("reason", out.Reason),
		)
	}

	if err := l.drv.SwitchTab(ctx, l.opts.MainTab); err != nil {
		return res, err
	}

	switch {
	case res.Attempted >= l.opts.ScrollThreshold:
		log.Debug("loading more records", zap.Int("attempted", res.Attempted))
		if err := l.drv.ScrollToBottom(ctx); err != nil {
			return res, err
		}
		return res, l.clock.Sleep(ctx, l.opts.ScrollPause)
	case l.mode == ModeStart:
		log.Info("initial records processed, watching for updates")
		l.mode = ModeUpdates
		return res, nil
	default:
		log.Info("no new records, sleeping", zap.Duration("sleep", l.opts.IdleSleep))
		return res, l.clock.Sleep(ctx, l.opts.IdleSleep)
	}
}

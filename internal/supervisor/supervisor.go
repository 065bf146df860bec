// Package supervisor keeps a session running, replacing it with a fresh one after any failure.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/555Russich/18.fl-auto-response/internal/clock"
)

// DefaultRestartDelay is the pause before a new session is built.
const DefaultRestartDelay = 5 * time.Second

// Session is one disposable run of the engine.
type Session interface {
	Run(ctx context.Context) error
	Close() error
}

// Factory builds a brand-new session.
type Factory func(ctx context.Context) (Session, error)

// PanicError is a recovered panic from inside a session.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("session panicked: %v\n%s", e.Value, e.Stack)
}

// Options configures a Supervisor.
type Options struct {
	RestartDelay time.Duration
	// MaxRestarts stops the supervisor after that many failed sessions. Zero restarts forever.
	MaxRestarts int
	Clock       clock.Clock
	Logger      *zap.Logger
}

// Supervisor owns the process lifetime.
type Supervisor struct {
	factory Factory
	opts    Options
	clock   clock.Clock
	log     *zap.Logger
}

// New creates a Supervisor.
func New(factory Factory, opts Options) *Supervisor {
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	s := &Supervisor{factory: factory, opts: opts, clock: opts.Clock, log: opts.Logger}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Run builds and runs sessions until ctx is cancelled, which is the only error it returns
// unless MaxRestarts is reached.
func (s *Supervisor) Run(ctx context.Context) error {
	for failures := 0; ; {
		err := s.runOnce(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.log.Info("stopping", zap.Error(ctxErr))
			return ctxErr
		}
		failures++
		if err == nil {
			err = errors.New("session ended unexpectedly")
		}
		s.log.Error("session failed",
			zap.Error(err),
			zap.Int("failures", failures),
			zap.Duration("restart_delay", s.opts.RestartDelay),
		)

		if s.opts.MaxRestarts > 0 && failures > s.opts.MaxRestarts {
			return fmt.Errorf("giving up after %d failed sessions: %w", failures, err)
		}
		if err := s.clock.Sleep(ctx, s.opts.RestartDelay); err != nil {
			s.log.Info("stopping", zap.Error(err))
			return err
		}
		s.log.Info("restarting session", zap.Int("restart", failures))
	}
}

// runOnce builds one session, runs it and tears it down. Panics become *PanicError.
func (s *Supervisor) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	sess, err := s.factory(ctx)
	if err != nil {
		return fmt.Errorf("failed to build session: %w", err)
	}
	defer func() {
		if closeErr := s.closeSession(sess); closeErr != nil {
			s.log.Warn("session teardown failed", zap.Error(closeErr))
		}
	}()

	return sess.Run(ctx)
}

func (s *Supervisor) closeSession(sess Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("close panicked: %v", r)
		}
	}()
	if err := sess.Close(); err != nil {
		return err
	}
	s.log.Info("session torn down")
	return nil
}

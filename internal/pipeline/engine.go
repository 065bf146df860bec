// Package pipeline wires one browser session and every engine component together.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/555Russich/18.fl-auto-response/internal/classify"
	"github.com/555Russich/18.fl-auto-response/internal/clock"
	"github.com/555Russich/18.fl-auto-response/internal/discover"
	"github.com/555Russich/18.fl-auto-response/internal/driver"
	"github.com/555Russich/18.fl-auto-response/internal/poll"
	"github.com/555Russich/18.fl-auto-response/internal/process"
	"github.com/555Russich/18.fl-auto-response/internal/respond"
	"github.com/555Russich/18.fl-auto-response/internal/session"
	"github.com/555Russich/18.fl-auto-response/internal/site"
	"github.com/555Russich/18.fl-auto-response/internal/store"
	"github.com/555Russich/18.fl-auto-response/internal/window"
)

// Timings holds every wait of the engine. Zero values fall back to the package defaults.
type Timings struct {
	DiscoveryPoll     time.Duration
	DiscoveryAttempts int
	DetailSettle      time.Duration
	DetailRetry       time.Duration
	DetailAttempts    int
	ActionStep        time.Duration
	ScrollPause       time.Duration
	IdleSleep         time.Duration
	AuthSettle        time.Duration
}

// Options configures a Builder.
type Options struct {
	Site        site.Site
	Credentials session.Credentials
	CookieFile  string
	StoreDSN    string
	// CacheTTL enables the positive-membership cache in front of the store.
	CacheTTL    time.Duration
	PatternFile string
	Window      window.Policy
	Timings     Timings
	Browser     *driver.Options
	Clock       clock.Clock
	Logger      *zap.Logger
	OnProgress  ProgressCallback

	// NewDriver starts the browser. Defaults to a Chrome driver.
	NewDriver func(ctx context.Context, opts *driver.Options, log *zap.Logger) (driver.Driver, error)
	// OpenStore opens the record store. Defaults to store.Open on StoreDSN.
	OpenStore func(ctx context.Context, dsn string) (store.Store, error)
}

// Builder creates a fresh Engine per session.
type Builder struct {
	opts Options
}

// NewBuilder returns a Builder.
func NewBuilder(opts Options) *Builder {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewDriver == nil {
		opts.NewDriver = func(ctx context.Context, o *driver.Options, log *zap.Logger) (driver.Driver, error) {
			c, err := driver.NewChrome(ctx, o, log)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	if opts.OpenStore == nil {
		opts.OpenStore = store.Open
	}
	return &Builder{opts: opts}
}

// Engine is one running session: the browser, the store and the poll loop over them.
type Engine struct {
	Session *session.Session
	Store   store.Store
	Loop    *poll.Loop

	log *zap.Logger
}

// Build starts a browser, opens the session and the store and assembles the engine.
// Everything opened so far is released when a step fails.
func (b *Builder) Build(ctx context.Context) (eng *Engine, err error) {
	o := b.opts
	log := o.Logger

	loc, err := o.Site.Location()
	if err != nil {
		return nil, err
	}

	st, err := o.OpenStore(ctx, o.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	if o.CacheTTL > 0 {
		st = store.NewCached(st, o.CacheTTL)
	}
	defer func() {
		if err != nil {
			_ = st.Close()
		}
	}()

	browser := driver.DefaultOptions()
	if o.Browser != nil {
		copied := *o.Browser
		browser = &copied
	}
	if browser.CaptureURL == "" {
		browser.CaptureURL = o.Site.APIPattern
	}
	drv, err := o.NewDriver(ctx, browser, log.Named("driver"))
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if err != nil {
			_ = drv.Close()
		}
	}()

	sess, err := session.Open(ctx, drv, session.Options{
		Site:        o.Site,
		Credentials: o.Credentials,
		CookieFile:  o.CookieFile,
		AuthSettle:  o.Timings.AuthSettle,
		Clock:       o.Clock,
		Logger:      log.Named("session"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	log = log.With(zap.String("session_id", sess.ID))
	if sess.Authorized {
		o.emit(sess.ID, "authorized", CategorySession, "login form submitted", nil)
	}

	finder, err := discover.New(drv, discover.Options{
		APIPattern:   o.Site.APIPattern,
		FindMethod:   o.Site.FindMethod,
		GetMethod:    o.Site.GetMethod,
		Location:     loc,
		PollInterval: o.Timings.DiscoveryPoll,
		Attempts:     o.Timings.DiscoveryAttempts,
		Clock:        o.Clock,
		Logger:       log.Named("discover"),
	})
	if err != nil {
		return nil, err
	}

	sender := respond.New(drv, respond.Options{
		Controls:      o.Site.Response,
		EmptyGreeting: o.Site.EmptyGreeting,
		Greeting:      o.Site.Greeting,
		StepPause:     o.Timings.ActionStep,
		Clock:         o.Clock,
		Logger:        log.Named("respond"),
	})

	processor := process.New(drv, st, finder, classify.New(classify.FilePatternSource{Path: o.PatternFile}), sender, process.Options{
		RecordURL: o.Site.RecordURL,
		Window:    o.Window,
		Settle:    o.Timings.DetailSettle,
		Retry:     o.Timings.DetailRetry,
		Attempts:  o.Timings.DetailAttempts,
		Clock:     o.Clock,
		Logger:    log.Named("process"),
	})

	loop := poll.New(drv, finder, &reportingProcessor{inner: processor, opts: &b.opts, sessionID: sess.ID}, st, poll.Options{
		MainTab:     sess.MainTab,
		TrafficTab:  sess.TrafficTab,
		ScrollPause: o.Timings.ScrollPause,
		IdleSleep:   o.Timings.IdleSleep,
		Clock:       o.Clock,
		Logger:      log.Named("poll"),
	})

	o.emit(sess.ID, "started", CategorySession, "session started", nil)
	return &Engine{Session: sess, Store: st, Loop: loop, log: log}, nil
}

// Run drives the poll loop until it fails or ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	return e.Loop.Run(ctx)
}

// Close tears down the browser and closes the store.
func (e *Engine) Close() error {
	var errs []error
	if err := e.Session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close session: %w", err))
	}
	if err := e.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}
	e.log.Info("session closed")
	return errors.Join(errs...)
}

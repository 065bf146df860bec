// Package session opens an authenticated backoffice session on a driver.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/555Russich/18.fl-auto-response/internal/clock"
	"github.com/555Russich/18.fl-auto-response/internal/driver"
	"github.com/555Russich/18.fl-auto-response/internal/site"
)

// DefaultAuthSettle is the wait after submitting the login form.
const DefaultAuthSettle = 3 * time.Second

// ErrMissingCredentials is returned when a login is required but no credentials are set.
var ErrMissingCredentials = errors.New("missing credentials")

// Credentials authenticate the account.
type Credentials struct {
	Login    string
	Password string
}

// Empty reports whether either secret is unset.
func (c Credentials) Empty() bool {
	return c.Login == "" || c.Password == ""
}

// Options configures Open.
type Options struct {
	Site        site.Site
	Credentials Credentials
	// CookieFile persists cookies between sessions. Empty disables persistence.
	CookieFile string
	AuthSettle time.Duration
	Clock      clock.Clock
	Logger     *zap.Logger
}

// Session is an authenticated browser with the search view in MainTab and a second
// tab for record detail views.
type Session struct {
	ID         string
	Driver     driver.Driver
	MainTab    driver.TabID
	TrafficTab driver.TabID
	// Authorized reports whether the login form had to be submitted.
	Authorized bool

	log *zap.Logger
}

// Open restores cookies, loads the search view, logs in when the login form is shown
// and opens the traffic tab.
func Open(ctx context.Context, drv driver.Driver, opts Options) (*Session, error) {
	if opts.AuthSettle <= 0 {
		opts.AuthSettle = DefaultAuthSettle
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Session{ID: uuid.NewString(), Driver: drv}
	s.log = opts.Logger.With(zap.String("session_id", s.ID))

	s.importCookies(ctx, opts.CookieFile)

	if err := drv.Navigate(ctx, opts.Site.SearchURL); err != nil {
		return nil, fmt.Errorf("failed to open search view: %w", err)
	}

	_, err := drv.Locate(ctx, opts.Site.Login.Heading)
	switch {
	case driver.IsNotFound(err):
		s.log.Debug("already logged in")
	case err != nil:
		return nil, fmt.Errorf("failed to check login state: %w", err)
	default:
		if err := s.authorize(ctx, opts); err != nil {
			return nil, err
		}
		s.Authorized = true
	}

	s.MainTab = drv.CurrentTab()
	traffic, err := drv.OpenTab(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open traffic tab: %w", err)
	}
	s.TrafficTab = traffic

	s.log.Info("session started",
		zap.String("main_tab", string(s.MainTab)),
		zap.String("traffic_tab", string(s.TrafficTab)),
		zap.Bool("authorized", s.Authorized),
	)
	return s, nil
}

func (s *Session) authorize(ctx context.Context, opts Options) error {
	if opts.Credentials.Empty() {
		return ErrMissingCredentials
	}
	s.log.Info("start authorizing")

	form := opts.Site.Login
	for _, field := range []struct {
		selector string
		value    string
	}{
		{form.Login, opts.Credentials.Login},
		{form.Password, opts.Credentials.Password},
	} {
		el, err := s.Driver.Locate(ctx, field.selector)
		if err != nil {
			return fmt.Errorf("login form: %w", err)
		}
		if err := el.Type(ctx, field.value); err != nil {
			return fmt.Errorf("login form: %w", err)
		}
	}

	submit, err := s.Driver.Locate(ctx, form.Submit)
	if err != nil {
		return fmt.Errorf("login form: %w", err)
	}
	if err := submit.Click(ctx); err != nil {
		return fmt.Errorf("login form: %w", err)
	}
	if err := opts.Clock.Sleep(ctx, opts.AuthSettle); err != nil {
		return err
	}

	s.exportCookies(ctx, opts.CookieFile)
	return nil
}

func (s *Session) importCookies(ctx context.Context, path string) {
	if path == "" {
		return
	}
	cookies, err := LoadCookies(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Debug("no saved cookies", zap.String("file", path))
		return
	}
	if err != nil {
		s.log.Warn("ignoring saved cookies", zap.String("file", path), zap.Error(err))
		return
	}
	if err := s.Driver.SetCookies(ctx, cookies); err != nil {
		s.log.Warn("failed to restore cookies", zap.Error(err))
		return
	}
	s.log.Info("cookies imported", zap.Int("count", len(cookies)))
}

func (s *Session) exportCookies(ctx context.Context, path string) {
	if path == "" {
		return
	}
	cookies, err := s.Driver.Cookies(ctx)
	if err != nil {
		s.log.Warn("failed to read cookies", zap.Error(err))
		return
	}
	if err := SaveCookies(path, cookies); err != nil {
		s.log.Warn("failed to save cookies", zap.Error(err))
		return
	}
	s.log.Info("cookies exported", zap.Int("count", len(cookies)), zap.String("file", path))
}

// Close ends the browser session.
func (s *Session) Close() error {
	s.log.Info("closing session")
	return s.Driver.Close()
}

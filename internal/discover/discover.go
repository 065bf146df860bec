// Package discover extracts backoffice API responses from the captured browser traffic.
package discover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gobwas/glob"
	"go.uber.org/zap"

	"github.com/555Russich/18.fl-auto-response/internal/clock"
	"github.com/555Russich/18.fl-auto-response/internal/driver"
	"github.com/555Russich/18.fl-auto-response/internal/schemas"
	"github.com/555Russich/18.fl-auto-response/internal/types"
)

// Defaults for the traffic polling.
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultAttempts     = 3
)

var (
	// ErrNotFound is returned when no usable response for the operation was captured.
	ErrNotFound = errors.New("response not found")
	// ErrUnauthorized is joined with ErrNotFound when the session stayed unauthorized after a refresh.
	ErrUnauthorized = errors.New("session unauthorized")
)

// errMiss marks a scan that found nothing yet.
var errMiss = errors.New("no matching response captured")

// Options configures a Discoverer.
type Options struct {
	// APIPattern is a glob matched against captured request URLs.
	APIPattern string
	FindMethod string
	GetMethod  string
	// Location is the timezone of service timestamps. Nil means UTC.
	Location     *time.Location
	PollInterval time.Duration
	Attempts     int
	Clock        clock.Clock
	Logger       *zap.Logger
}

// Discoverer finds "find records" and "get record detail" responses in the captured traffic.
type Discoverer struct {
	drv        driver.Driver
	api        glob.Glob
	findMethod string
	getMethod  string
	loc        *time.Location
	interval   time.Duration
	attempts   int
	clock      clock.Clock
	log        *zap.Logger
}

// New creates a Discoverer reading traffic from drv.
func New(drv driver.Driver, opts Options) (*Discoverer, error) {
	if opts.APIPattern == "" || opts.FindMethod == "" || opts.GetMethod == "" {
		return nil, errors.New("api pattern and method names are required")
	}
	api, err := glob.Compile(opts.APIPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid api pattern %q: %w", opts.APIPattern, err)
	}

	d := &Discoverer{
		drv:        drv,
		api:        api,
		findMethod: opts.FindMethod,
		getMethod:  opts.GetMethod,
		loc:        opts.Location,
		interval:   opts.PollInterval,
		attempts:   opts.Attempts,
		clock:      opts.Clock,
		log:        opts.Logger,
	}
	if d.clock == nil {
		d.clock = clock.Real()
	}
	if d.loc == nil {
		d.loc = time.UTC
	}
	if d.interval <= 0 {
		d.interval = DefaultPollInterval
	}
	if d.attempts <= 0 {
		d.attempts = DefaultAttempts
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	return d, nil
}

// FindBatch returns the records of the latest "find records" response.
func (d *Discoverer) FindBatch(ctx context.Context) (*types.Batch, error) {
	env, err := d.find(ctx, d.findMethod)
	if err != nil {
		return nil, err
	}
	batch, err := env.DecodeBatch()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return batch, nil
}

// FindDetail returns the detail of record id. The caller navigates to the record first.
func (d *Discoverer) FindDetail(ctx context.Context, id types.RecordID) (*types.RecordDetail, error) {
	env, err := d.find(ctx, d.getMethod)
	if err != nil {
		return nil, err
	}
	detail, err := env.DecodeDetail(id, d.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return detail, nil
}

// find waits for a successful response of method. An unauthorized answer refreshes the
// page and scans exactly once more.
func (d *Discoverer) find(ctx context.Context, method string) (*types.Envelope, error) {
	log := d.log.With(zap.String("method", method))

	for refreshed := false; ; refreshed = true {
		env, err := d.poll(ctx, method)
		if err != nil {
			return nil, err
		}

		if env.Unauthorized() {
			if refreshed {
				log.Warn("still unauthorized after refresh")
				return nil, fmt.Errorf("%w: %w", ErrNotFound, ErrUnauthorized)
			}
			log.Info("unauthorized user, refreshing page")
			if err := d.drv.Refresh(ctx); err != nil {
				return nil, fmt.Errorf("failed to refresh after unauthorized response: %w", err)
			}
			continue
		}

		if apiErr := env.Err(); apiErr != nil {
			log.Warn("api reported an error", zap.Error(apiErr))
			return nil, fmt.Errorf("%w: %w", ErrNotFound, apiErr)
		}
		return env, nil
	}
}

// poll scans the captured traffic up to d.attempts times, waiting d.interval on the clock
// between scans. The buffer is cleared once a response of method has been consumed and
// after the last failed scan, so later calls only observe new traffic.
func (d *Discoverer) poll(ctx context.Context, method string) (*types.Envelope, error) {
	scan := func() (*types.Envelope, error) {
		env, err := d.scan(method)
		if err != nil {
			return nil, err
		}
		if env == nil {
			return nil, errMiss
		}
		return env, nil
	}

	env, err := backoff.Retry(ctx, scan,
		backoff.WithBackOff(clock.BackOff(ctx, d.clock, backoff.NewConstantBackOff(d.interval))),
		backoff.WithMaxTries(uint(d.attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, _ time.Duration) {
			d.log.Debug("response not captured yet",
				zap.String("method", method), zap.Duration("waited", d.interval))
		}),
	)
	if err == nil {
		d.drv.ClearCapturedTraffic()
		return env, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	d.drv.ClearCapturedTraffic()
	if errors.Is(err, errMiss) {
		d.log.Warn("response not found",
			zap.String("method", method), zap.Int("attempts", d.attempts))
		return nil, fmt.Errorf("%w: no %s response after %d attempts", ErrNotFound, method, d.attempts)
	}
	return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
}

// scan returns the oldest captured response of method, or nil. A response with an
// unexpected shape ends the polling.
func (d *Discoverer) scan(method string) (*types.Envelope, error) {
	for _, ex := range d.drv.CapturedTraffic() {
		if len(ex.Body) == 0 || !d.api.Match(ex.URL) {
			continue
		}
		env, err := types.DecodeEnvelope(ex.Body)
		if err != nil {
			d.log.Debug("skipping undecodable response", zap.String("url", ex.URL), zap.Error(err))
			continue
		}
		if env.Meta.Method != method {
			continue
		}
		if err := schemas.ValidateEnvelope(method, ex.Body); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("unexpected %s response: %w", method, err))
		}
		return env, nil
	}
	return nil, nil
}

package clock

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// BackOff waits out every interval of inner on c and reports a zero delay, so
// backoff.Retry keeps counting attempts while the waiting goes through the clock.
// A wait interrupted by ctx stops the retries.
func BackOff(ctx context.Context, c Clock, inner backoff.BackOff) backoff.BackOff {
	return &clockBackOff{ctx: ctx, clock: c, inner: inner}
}

type clockBackOff struct {
	ctx   context.Context
	clock Clock
	inner backoff.BackOff
}

func (b *clockBackOff) Reset() { b.inner.Reset() }

func (b *clockBackOff) NextBackOff() time.Duration {
	wait := b.inner.NextBackOff()
	if wait == backoff.Stop {
		return backoff.Stop
	}
	if err := b.clock.Sleep(b.ctx, wait); err != nil {
		return backoff.Stop
	}
	return 0
}

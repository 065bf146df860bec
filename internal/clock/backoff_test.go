package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackOff_RetryWaitsOnClock(t *testing.T) {
	fake := NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = time.Minute
	exp.Multiplier = 2
	exp.RandomizationFactor = 0

	calls := 0
	start := time.Now()
	_, err := backoff.Retry(context.Background(), func() (int, error) {
		calls++
		return 0, errors.New("miss")
	},
		backoff.WithBackOff(BackOff(context.Background(), fake, exp)),
		backoff.WithMaxTries(3),
		backoff.WithMaxElapsedTime(0),
	)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Minute, 2 * time.Minute}, fake.Sleeps())
	assert.Less(t, time.Since(start), time.Second)
}

func TestBackOff_CanceledWaitStops(t *testing.T) {
	fake := NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	fake.OnSleep = func(time.Duration) { cancel() }

	b := BackOff(ctx, fake, backoff.NewConstantBackOff(time.Second))
	assert.Equal(t, backoff.Stop, b.NextBackOff())
}

func TestBackOff_PassesStopThrough(t *testing.T) {
	fake := NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	b := BackOff(context.Background(), fake, &backoff.StopBackOff{})
	assert.Equal(t, backoff.Stop, b.NextBackOff())
	assert.Empty(t, fake.Sleeps())
}

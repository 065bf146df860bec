package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		receivedAt time.Time
		want       Verdict
	}{
		{"eight days old is stale", now.Add(-8 * 24 * time.Hour), Stale},
		{"two minutes old is too fresh", now.Add(-2 * time.Minute), TooFresh},
		{"one hour old is eligible", now.Add(-time.Hour), Eligible},
		{"exactly seven days is eligible", now.Add(-7 * 24 * time.Hour), Eligible},
		{"just past seven days is stale", now.Add(-7*24*time.Hour - time.Second), Stale},
		{"exactly three minutes is eligible", now.Add(-3 * time.Minute), Eligible},
		{"just under three minutes is too fresh", now.Add(-3*time.Minute + time.Second), TooFresh},
		{"future timestamp is too fresh", now.Add(time.Hour), TooFresh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(now, tt.receivedAt))
		})
	}
}

func TestEvaluate_TimeZones(t *testing.T) {
	moscow := time.FixedZone("MSK", 3*60*60)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	// 14:00 MSK is 11:00 UTC, one hour before now.
	receivedAt := time.Date(2024, 6, 1, 14, 0, 0, 0, moscow)

	assert.Equal(t, Eligible, Evaluate(now, receivedAt))
}

func TestPolicy_Custom(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	p := Policy{Lookback: time.Hour, Maturity: 10 * time.Minute}

	assert.Equal(t, Stale, p.Evaluate(now, now.Add(-2*time.Hour)))
	assert.Equal(t, TooFresh, p.Evaluate(now, now.Add(-5*time.Minute)))
	assert.Equal(t, Eligible, p.Evaluate(now, now.Add(-30*time.Minute)))
}

func TestPolicy_ZeroValueUsesDefaults(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var p Policy

	assert.Equal(t, Default().Evaluate(now, now.Add(-2*time.Minute)), p.Evaluate(now, now.Add(-2*time.Minute)))
	assert.Equal(t, Stale, p.Evaluate(now, now.Add(-8*24*time.Hour)))
}

func TestVerdict_String(t *testing.T) {
	assert.Equal(t, "eligible", Eligible.String())
	assert.Equal(t, "stale", Stale.String())
	assert.Equal(t, "too_fresh", TooFresh.String())
	assert.Equal(t, "unknown", Verdict(42).String())
}

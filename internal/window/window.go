// Package window decides whether a record is old enough, and young enough, to be acted upon.
package window

import "time"

const (
	// DefaultLookback is the age after which a record is never acted upon.
	DefaultLookback = 7 * 24 * time.Hour
	// DefaultMaturity is the minimum age before a record is acted upon.
	DefaultMaturity = 3 * time.Minute
)

// Verdict is the admission decision for a record.
type Verdict int

const (
	// Eligible records may be classified and acted upon.
	Eligible Verdict = iota
	// Stale records are never acted upon but are marked seen.
	Stale
	// TooFresh records are deferred to a later cycle and not marked seen.
	TooFresh
)

func (v Verdict) String() string {
	switch v {
	case Eligible:
		return "eligible"
	case Stale:
		return "stale"
	case TooFresh:
		return "too_fresh"
	default:
		return "unknown"
	}
}

// Policy holds the window thresholds. The zero value uses the defaults.
type Policy struct {
	Lookback time.Duration
	Maturity time.Duration
}

// Default returns the standard 7 day / 3 minute policy.
func Default() Policy {
	return Policy{Lookback: DefaultLookback, Maturity: DefaultMaturity}
}

// Evaluate classifies receivedAt relative to now.
// Stale iff receivedAt < now-lookback; TooFresh iff receivedAt > now-maturity.
func (p Policy) Evaluate(now, receivedAt time.Time) Verdict {
	lookback := p.Lookback
	if lookback == 0 {
		lookback = DefaultLookback
	}
	maturity := p.Maturity
	if maturity == 0 {
		maturity = DefaultMaturity
	}

	if receivedAt.Before(now.Add(-lookback)) {
		return Stale
	}
	if receivedAt.After(now.Add(-maturity)) {
		return TooFresh
	}
	return Eligible
}

// Evaluate applies the default policy.
func Evaluate(now, receivedAt time.Time) Verdict {
	return Default().Evaluate(now, receivedAt)
}

// Package classify decides whether a record's text is excluded by the operator's pattern.
//
// The exclusion pattern is owned by an external source and is re-read on every call, so it can
// be edited while the process runs. Patterns use the regexp2 engine, which supports the
// lookaround constructs commonly found in hand-written exclusion lists.
package classify

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

// DefaultMatchTimeout bounds a single pattern evaluation.
const DefaultMatchTimeout = time.Second

// emptyMatchReason is reported when the pattern matched a zero-length span.
const emptyMatchReason = "<empty match>"

// Decision is the outcome of classifying a record's text.
type Decision struct {
	Eligible bool
	// Reason is the matched substring when the text is excluded.
	Reason string
}

// PatternSource supplies the current exclusion pattern.
type PatternSource interface {
	Pattern(ctx context.Context) (string, error)
}

// FilePatternSource reads the pattern from a file on every call.
type FilePatternSource struct {
	Path string
}

// Pattern returns the file content without its trailing line break.
func (s FilePatternSource) Pattern(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", &PatternError{Source: s.Path, Message: "failed to read pattern file", Cause: err}
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// StaticPattern is a fixed pattern, mainly for tests and ad-hoc checks.
type StaticPattern string

// Pattern returns the pattern itself.
func (p StaticPattern) Pattern(_ context.Context) (string, error) {
	return string(p), nil
}

// Classifier evaluates text against the pattern provided by its source.
type Classifier struct {
	source  PatternSource
	timeout time.Duration

	mu       sync.Mutex
	lastExpr string
	lastRe   *regexp2.Regexp
}

// New creates a Classifier reading from source.
func New(source PatternSource) *Classifier {
	return &Classifier{source: source, timeout: DefaultMatchTimeout}
}

// Classify loads the current pattern and tests the lower-cased subject and aim against it.
func (c *Classifier) Classify(ctx context.Context, subject, aim string) (Decision, error) {
	return c.ClassifyText(ctx, strings.Join([]string{subject, aim}, "\n"))
}

// ClassifyText loads the current pattern and tests the lower-cased text against it.
func (c *Classifier) ClassifyText(ctx context.Context, text string) (Decision, error) {
	pattern, err := c.source.Pattern(ctx)
	if err != nil {
		return Decision{}, err
	}
	re, err := c.compile(pattern)
	if err != nil {
		return Decision{}, err
	}
	return matchCompiled(re, strings.ToLower(text))
}

// compile reuses the previous compilation while the pattern text is unchanged.
func (c *Classifier) compile(pattern string) (*regexp2.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastRe != nil && c.lastExpr == pattern {
		return c.lastRe, nil
	}
	re, err := compile(pattern, c.timeout)
	if err != nil {
		return nil, err
	}
	c.lastExpr, c.lastRe = pattern, re
	return re, nil
}

// Match is the pure core of classification: it tests text, as given, against pattern.
// The pattern is used verbatim, so an empty pattern matches, and excludes, every text.
func Match(text, pattern string) (Decision, error) {
	re, err := compile(pattern, DefaultMatchTimeout)
	if err != nil {
		return Decision{}, err
	}
	return matchCompiled(re, text)
}

func compile(pattern string, timeout time.Duration) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, &PatternError{Source: "pattern", Message: "invalid exclusion pattern", Cause: err}
	}
	re.MatchTimeout = timeout
	return re, nil
}

func matchCompiled(re *regexp2.Regexp, text string) (Decision, error) {
	m, err := re.FindStringMatch(text)
	if err != nil {
		return Decision{}, fmt.Errorf("pattern evaluation failed: %w", err)
	}
	if m == nil {
		return Decision{Eligible: true}, nil
	}
	reason := m.String()
	if reason == "" {
		reason = emptyMatchReason
	}
	return Decision{Eligible: false, Reason: reason}, nil
}

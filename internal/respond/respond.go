// Package respond sends the automated reply to a record.
package respond

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/555Russich/18.fl-auto-response/internal/clock"
	"github.com/555Russich/18.fl-auto-response/internal/driver"
	"github.com/555Russich/18.fl-auto-response/internal/site"
)

// DefaultStepPause is the pause between two steps of the action.
const DefaultStepPause = 500 * time.Millisecond

// Steps of the response action, as reported in ActionError.
const (
	StepCompose  = "compose"
	StepContinue = "continue"
	StepTemplate = "template"
	StepMessage  = "message"
	StepSubmit   = "submit"
)

// Options configures a Responder.
type Options struct {
	Controls      site.ResponseControls
	EmptyGreeting string
	Greeting      string
	StepPause     time.Duration
	Clock         clock.Clock
	Logger        *zap.Logger
}

// Responder drives the reply composer of a record's detail view.
type Responder struct {
	drv   driver.Driver
	opts  Options
	clock clock.Clock
	log   *zap.Logger
}

// New creates a Responder.
func New(drv driver.Driver, opts Options) *Responder {
	if opts.StepPause <= 0 {
		opts.StepPause = DefaultStepPause
	}
	r := &Responder{drv: drv, opts: opts, clock: opts.Clock, log: opts.Logger}
	if r.clock == nil {
		r.clock = clock.Real()
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

// Send replies to the record open in the current tab, greeting name.
// Every failure is an *ActionError naming the step.
func (r *Responder) Send(ctx context.Context, name string) error {
	c := r.opts.Controls

	compose, err := r.drv.Locate(ctx, c.Compose)
	if err != nil {
		return &ActionError{Step: StepCompose, Cause: err}
	}
	if err := compose.ScrollIntoView(ctx); err != nil {
		return &ActionError{Step: StepCompose, Cause: err}
	}
	if err := compose.Click(ctx); err != nil {
		return &ActionError{Step: StepCompose, Cause: err}
	}
	if err := r.pause(ctx, StepCompose); err != nil {
		return err
	}

	next, err := r.drv.Locate(ctx, c.Continue)
	switch {
	case driver.IsNotFound(err):
		r.log.Debug("no continue step")
	case err != nil:
		return &ActionError{Step: StepContinue, Cause: err}
	default:
		if err := next.Click(ctx); err != nil {
			return &ActionError{Step: StepContinue, Cause: err}
		}
		if err := r.pause(ctx, StepContinue); err != nil {
			return err
		}
	}

	suggested, err := r.drv.Locate(ctx, c.Suggested)
	if err != nil {
		return &ActionError{Step: StepTemplate, Cause: err}
	}
	html, err := suggested.HTML(ctx)
	if err != nil {
		return &ActionError{Step: StepTemplate, Cause: err}
	}
	template, err := ExtractTemplate(html)
	if err != nil {
		return &ActionError{Step: StepTemplate, Cause: err}
	}
	text := ComposeGreeting(template, r.opts.EmptyGreeting, r.opts.Greeting, name)

	field, err := r.drv.Locate(ctx, c.Message)
	if err != nil {
		return &ActionError{Step: StepMessage, Cause: err}
	}
	if err := field.Type(ctx, text); err != nil {
		return &ActionError{Step: StepMessage, Cause: err}
	}

	submit, err := r.drv.Locate(ctx, c.Submit)
	if err != nil {
		return &ActionError{Step: StepSubmit, Cause: err}
	}
	if err := submit.Click(ctx); err != nil {
		return &ActionError{Step: StepSubmit, Cause: err}
	}

	r.log.Info("reply sent", zap.String("name", name), zap.Int("length", len([]rune(text))))
	return nil
}

func (r *Responder) pause(ctx context.Context, step string) error {
	if err := r.clock.Sleep(ctx, r.opts.StepPause); err != nil {
		return &ActionError{Step: step, Cause: err}
	}
	return nil
}

// ExtractTemplate returns the visible text of a suggested-reply element, keeping line breaks.
func ExtractTemplate(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse suggested reply: %w", err)
	}
	doc.Find("br").ReplaceWithHtml("\n")

	text := strings.TrimSpace(doc.Text())
	if text == "" {
		return "", errors.New("suggested reply is empty")
	}
	return text, nil
}

// ComposeGreeting replaces every empty greeting in template with greeting, whose {{.Name}}
// placeholder is set to name.
func ComposeGreeting(template, emptyGreeting, greeting, name string) string {
	if emptyGreeting == "" {
		return template
	}
	filled := strings.ReplaceAll(greeting, "{{.Name}}", name)
	return strings.ReplaceAll(template, emptyGreeting, filled)
}

package respond

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/555Russich/18.fl-auto-response/internal/clock"
	"github.com/555Russich/18.fl-auto-response/internal/driver"
	"github.com/555Russich/18.fl-auto-response/internal/driver/drivertest"
	"github.com/555Russich/18.fl-auto-response/internal/site"
)

type controls struct {
	compose, next, suggested, message, submit *drivertest.FakeElement
}

func setup(t *testing.T) (*drivertest.Fake, controls, *Responder, *clock.Fake) {
	t.Helper()
	s := site.Default()
	fake := drivertest.New()
	c := controls{
		compose:   &drivertest.FakeElement{},
		next:      &drivertest.FakeElement{},
		suggested: &drivertest.FakeElement{HTMLValue: `<p size="m">Здравствуйте, !<br>Готов помочь с вашей задачей.</p>`},
		message:   &drivertest.FakeElement{},
		submit:    &drivertest.FakeElement{},
	}
	fake.SetElement(s.Response.Compose, c.compose)
	fake.SetElement(s.Response.Continue, c.next)
	fake.SetElement(s.Response.Suggested, c.suggested)
	fake.SetElement(s.Response.Message, c.message)
	fake.SetElement(s.Response.Submit, c.submit)

	clk := clock.NewFake(time.Now())
	r := New(fake, Options{
		Controls:      s.Response,
		EmptyGreeting: s.EmptyGreeting,
		Greeting:      s.Greeting,
		Clock:         clk,
	})
	return fake, c, r, clk
}

func TestSend(t *testing.T) {
	_, c, r, clk := setup(t)

	err := r.Send(context.Background(), "Мария")
	require.NoError(t, err)

	assert.Equal(t, 1, c.compose.Scrolled)
	assert.Equal(t, 1, c.compose.Clicks)
	assert.Equal(t, 1, c.next.Clicks)
	assert.Equal(t, []string{"Здравствуйте, Мария!\nГотов помочь с вашей задачей."}, c.message.Typed)
	assert.Equal(t, 1, c.submit.Clicks)
	assert.Equal(t, []time.Duration{DefaultStepPause, DefaultStepPause}, clk.Sleeps())
}

func TestSend_WithoutContinueStep(t *testing.T) {
	fake, c, r, _ := setup(t)
	fake.RemoveElement(site.Default().Response.Continue)

	require.NoError(t, r.Send(context.Background(), "Олег"))
	assert.Equal(t, 1, c.submit.Clicks)
}

func TestSend_MissingControls(t *testing.T) {
	s := site.Default().Response
	tests := []struct {
		name     string
		selector string
		wantStep string
	}{
		{name: "compose", selector: s.Compose, wantStep: StepCompose},
		{name: "suggested reply", selector: s.Suggested, wantStep: StepTemplate},
		{name: "message field", selector: s.Message, wantStep: StepMessage},
		{name: "submit", selector: s.Submit, wantStep: StepSubmit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, c, r, _ := setup(t)
			fake.RemoveElement(tt.selector)

			err := r.Send(context.Background(), "Анна")
			require.Error(t, err)

			var actionErr *ActionError
			require.ErrorAs(t, err, &actionErr)
			assert.Equal(t, tt.wantStep, actionErr.Step)
			assert.True(t, actionErr.ControlMissing())
			assert.ErrorIs(t, err, driver.ErrNotFound)
			if tt.selector != s.Submit {
				assert.Zero(t, c.submit.Clicks)
			}
		})
	}
}

func TestSend_TransportError(t *testing.T) {
	_, c, r, _ := setup(t)
	c.compose.ClickErr = &driver.Error{Op: "click", Cause: errors.New("websocket closed")}

	err := r.Send(context.Background(), "Анна")
	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, StepCompose, actionErr.Step)
	assert.False(t, actionErr.ControlMissing())
	assert.Empty(t, c.message.Typed)
}

func TestSend_CanceledDuringPause(t *testing.T) {
	_, c, r, clk := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	clk.OnSleep = func(time.Duration) { cancel() }

	err := r.Send(ctx, "Анна")
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, c.next.Clicks)
}

func TestExtractTemplate(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		want    string
		wantErr bool
	}{
		{name: "plain", html: `<p>Добрый день</p>`, want: "Добрый день"},
		{name: "line breaks", html: `<p>Здравствуйте, !<br/>Строка два<br>Строка три</p>`, want: "Здравствуйте, !\nСтрока два\nСтрока три"},
		{name: "nested markup", html: `<p size="s"><span>Цена</span> <b>договорная</b></p>`, want: "Цена договорная"},
		{name: "surrounding whitespace", html: "<p>\n  текст  \n</p>", want: "текст"},
		{name: "empty", html: `<p>   </p>`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractTemplate(tt.html)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComposeGreeting(t *testing.T) {
	tests := []struct {
		name     string
		template string
		empty    string
		greeting string
		who      string
		want     string
	}{
		{
			name:     "substitutes name",
			template: "Здравствуйте, !\nМогу помочь.",
			empty:    "Здравствуйте, !",
			greeting: "Здравствуйте, {{.Name}}!",
			who:      "Ирина",
			want:     "Здравствуйте, Ирина!\nМогу помочь.",
		},
		{
			name:     "no greeting in template",
			template: "Могу помочь.",
			empty:    "Здравствуйте, !",
			greeting: "Здравствуйте, {{.Name}}!",
			who:      "Ирина",
			want:     "Могу помочь.",
		},
		{
			name:     "custom greeting",
			template: "Hello, ! Ready.",
			empty:    "Hello, !",
			greeting: "Hi {{.Name}},",
			who:      "Bob",
			want:     "Hi Bob, Ready.",
		},
		{
			name:     "empty greeting disables substitution",
			template: "Здравствуйте, !",
			empty:    "",
			greeting: "Здравствуйте, {{.Name}}!",
			who:      "Ирина",
			want:     "Здравствуйте, !",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComposeGreeting(tt.template, tt.empty, tt.greeting, tt.who))
		})
	}
}

// Package site describes the remote backoffice the responder works against:
// its URLs, API operations, on-screen controls and reply greeting.
package site

import (
	"fmt"
	"strings"
	"time"
)

// Site holds everything that is specific to one remote service.
type Site struct {
	SearchURL  string `json:"search_url" yaml:"search_url" validate:"required,url"`
	DetailURL  string `json:"detail_url" yaml:"detail_url" validate:"required,contains=%s"`
	APIPattern string `json:"api_pattern" yaml:"api_pattern" validate:"required"`
	FindMethod string `json:"find_method" yaml:"find_method" validate:"required"`
	GetMethod  string `json:"get_method" yaml:"get_method" validate:"required"`
	Timezone   string `json:"timezone" yaml:"timezone" validate:"required"`

	Login    LoginControls    `json:"login" yaml:"login"`
	Response ResponseControls `json:"response" yaml:"response"`

	// EmptyGreeting is the greeting the suggested reply ships with.
	EmptyGreeting string `json:"empty_greeting" yaml:"empty_greeting" validate:"required"`
	// Greeting replaces EmptyGreeting; {{.Name}} is the recipient's display name.
	Greeting string `json:"greeting" yaml:"greeting" validate:"required"`
}

// LoginControls are the XPath selectors of the login form.
type LoginControls struct {
	Heading  string `json:"heading" yaml:"heading" validate:"required"`
	Login    string `json:"login" yaml:"login" validate:"required"`
	Password string `json:"password" yaml:"password" validate:"required"`
	Submit   string `json:"submit" yaml:"submit" validate:"required"`
}

// ResponseControls are the XPath selectors used to send a reply.
type ResponseControls struct {
	Compose   string `json:"compose" yaml:"compose" validate:"required"`
	Continue  string `json:"continue" yaml:"continue" validate:"required"`
	Suggested string `json:"suggested" yaml:"suggested" validate:"required"`
	Message   string `json:"message" yaml:"message" validate:"required"`
	Submit    string `json:"submit" yaml:"submit" validate:"required"`
}

// Default returns the profi.ru backoffice.
func Default() Site {
	return Site{
		SearchURL:  "https://profi.ru/backoffice/n.php",
		DetailURL:  "https://profi.ru/backoffice/n.php?o=%s",
		APIPattern: "https://profi.ru/backoffice/api/*",
		FindMethod: "findOrders",
		GetMethod:  "getOrder",
		Timezone:   "Europe/Moscow",
		Login: LoginControls{
			Heading:  `//h1[text()="Вход и регистрация для профи"]`,
			Login:    `//input[@type="text"][@required][@value]`,
			Password: `//input[@type="password"][@required][@value]`,
			Submit:   `//a[text()="Продолжить"]`,
		},
		Response: ResponseControls{
			Compose:   `//p[text()="Написать клиенту"]//ancestor::button`,
			Continue:  `//p[text()="Дальше"]//ancestor::button`,
			Suggested: `//div[@class="backoffice-common-list-item__text-container"]/p[@size]`,
			Message:   `//textarea[@placeholder="Уточните детали задачи или предложите свои условия"]`,
			Submit:    `//p[text()="Отправить сообщение"]//ancestor::a`,
		},
		EmptyGreeting: "Здравствуйте, !",
		Greeting:      "Здравствуйте, {{.Name}}!",
	}
}

// RecordURL returns the detail view of a record.
func (s Site) RecordURL(id string) string {
	return fmt.Sprintf(s.DetailURL, id)
}

// Location loads the timezone the service reports timestamps in.
func (s Site) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// MergeWithDefaults fills empty fields from Default.
func (s Site) MergeWithDefaults() Site {
	d := Default()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&s.SearchURL, d.SearchURL)
	fill(&s.DetailURL, d.DetailURL)
	fill(&s.APIPattern, d.APIPattern)
	fill(&s.FindMethod, d.FindMethod)
	fill(&s.GetMethod, d.GetMethod)
	fill(&s.Timezone, d.Timezone)
	fill(&s.Login.Heading, d.Login.Heading)
	fill(&s.Login.Login, d.Login.Login)
	fill(&s.Login.Password, d.Login.Password)
	fill(&s.Login.Submit, d.Login.Submit)
	fill(&s.Response.Compose, d.Response.Compose)
	fill(&s.Response.Continue, d.Response.Continue)
	fill(&s.Response.Suggested, d.Response.Suggested)
	fill(&s.Response.Message, d.Response.Message)
	fill(&s.Response.Submit, d.Response.Submit)
	fill(&s.EmptyGreeting, d.EmptyGreeting)
	fill(&s.Greeting, d.Greeting)
	return s
}

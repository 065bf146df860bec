// Package driver defines the browser capability the engine drives.
//
// The engine never touches browser internals: it navigates, reads the captured network
// traffic, and interacts with on-screen controls through this interface. Chrome is the
// chromedp implementation; drivertest provides a scriptable fake.
package driver

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a control is not present on the page.
// It is a normal, reportable condition and is distinct from session or transport errors.
var ErrNotFound = errors.New("control not found")

// TabID identifies a browser tab.
type TabID string

// Exchange is one captured request/response pair.
type Exchange struct {
	URL    string
	Method string
	Status int
	Body   []byte
}

// Cookie is a portable browser cookie, stored as JSON between sessions.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
}

// Element is a handle to a located control.
type Element interface {
	Click(ctx context.Context) error
	Type(ctx context.Context, text string) error
	ScrollIntoView(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
}

// Driver is the automation session capability.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Refresh(ctx context.Context) error

	// CapturedTraffic returns the responses captured since the last clear, oldest first.
	CapturedTraffic() []Exchange
	ClearCapturedTraffic()

	// Locate finds the first control matching selector. It returns an error wrapping
	// ErrNotFound when the control does not appear within the driver's locate timeout.
	Locate(ctx context.Context, selector string) (Element, error)

	OpenTab(ctx context.Context) (TabID, error)
	CurrentTab() TabID
	SwitchTab(ctx context.Context, id TabID) error
	ScrollToBottom(ctx context.Context) error

	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error

	Close() error
}

// Error wraps a failed driver operation.
type Error struct {
	Op    string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("driver %s: %v", e.Op, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsNotFound reports whether err means a control was absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// NotFound builds the error returned for a missing control.
func NotFound(selector string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, selector)
}

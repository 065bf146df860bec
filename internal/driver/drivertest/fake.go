// Package drivertest provides a scriptable in-memory driver.Driver for tests.
package drivertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/555Russich/18.fl-auto-response/internal/driver"
)

var _ driver.Driver = (*Fake)(nil)

// MainTab is the id of the tab a new Fake starts with.
const MainTab driver.TabID = "tab-1"

// Fake implements driver.Driver. Hooks let a test react to navigation and refreshes,
// typically by queueing traffic or making controls appear.
type Fake struct {
	mu sync.Mutex

	elements map[string]*FakeElement
	traffic  []driver.Exchange
	cookies  []driver.Cookie
	tabs     []driver.TabID
	current  driver.TabID

	OnNavigate func(f *Fake, url string) error
	OnRefresh  func(f *Fake) error

	NavigateErr error
	CookiesErr  error

	Navigations []string
	Refreshes   int
	Scrolls     int
	Clears      int
	Switches    []driver.TabID
	Closed      bool
}

// New returns a Fake with one open tab.
func New() *Fake {
	return &Fake{
		elements: make(map[string]*FakeElement),
		tabs:     []driver.TabID{MainTab},
		current:  MainTab,
	}
}

// AddTraffic appends captured exchanges.
func (f *Fake) AddTraffic(ex ...driver.Exchange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traffic = append(f.traffic, ex...)
}

// SetElement makes a control locatable under selector.
func (f *Fake) SetElement(selector string, el *FakeElement) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.elements[selector] = el
}

// RemoveElement makes a control disappear.
func (f *Fake) RemoveElement(selector string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.elements, selector)
}

// Element returns the control registered under selector, or nil.
func (f *Fake) Element(selector string) *FakeElement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elements[selector]
}

// StoredCookies returns the cookies set on the fake browser.
func (f *Fake) StoredCookies() []driver.Cookie {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]driver.Cookie(nil), f.cookies...)
}

func (f *Fake) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	f.Navigations = append(f.Navigations, url)
	err := f.NavigateErr
	hook := f.OnNavigate
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		return hook(f, url)
	}
	return nil
}

func (f *Fake) Refresh(_ context.Context) error {
	f.mu.Lock()
	f.Refreshes++
	hook := f.OnRefresh
	f.mu.Unlock()

	if hook != nil {
		return hook(f)
	}
	return nil
}

func (f *Fake) CapturedTraffic() []driver.Exchange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]driver.Exchange(nil), f.traffic...)
}

func (f *Fake) ClearCapturedTraffic() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Clears++
	f.traffic = nil
}

func (f *Fake) Locate(ctx context.Context, selector string) (driver.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	el, ok := f.elements[selector]
	if !ok {
		return nil, driver.NotFound(selector)
	}
	return el, nil
}

func (f *Fake) OpenTab(_ context.Context) (driver.TabID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := driver.TabID(fmt.Sprintf("tab-%d", len(f.tabs)+1))
	f.tabs = append(f.tabs, id)
	return id, nil
}

func (f *Fake) CurrentTab() driver.TabID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *Fake) SwitchTab(_ context.Context, id driver.TabID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tabs {
		if t == id {
			f.current = id
			f.Switches = append(f.Switches, id)
			return nil
		}
	}
	return &driver.Error{Op: "switch tab", Cause: fmt.Errorf("unknown tab %s", id)}
}

func (f *Fake) ScrollToBottom(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Scrolls++
	return nil
}

func (f *Fake) Cookies(_ context.Context) ([]driver.Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CookiesErr != nil {
		return nil, f.CookiesErr
	}
	return append([]driver.Cookie(nil), f.cookies...), nil
}

func (f *Fake) SetCookies(_ context.Context, cookies []driver.Cookie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies = append(f.cookies, cookies...)
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// FakeElement is a scriptable control.
type FakeElement struct {
	mu sync.Mutex

	TextValue string
	HTMLValue string
	ClickErr  error
	TypeErr   error
	OnClick   func()

	Clicks   int
	Typed    []string
	Scrolled int
}

func (e *FakeElement) Click(_ context.Context) error {
	e.mu.Lock()
	e.Clicks++
	err := e.ClickErr
	hook := e.OnClick
	e.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		hook()
	}
	return nil
}

func (e *FakeElement) Type(_ context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.TypeErr != nil {
		return e.TypeErr
	}
	e.Typed = append(e.Typed, text)
	return nil
}

func (e *FakeElement) ScrollIntoView(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Scrolled++
	return nil
}

func (e *FakeElement) Text(_ context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.TextValue, nil
}

func (e *FakeElement) HTML(_ context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.HTMLValue == "" {
		return "<p>" + e.TextValue + "</p>", nil
	}
	return e.HTMLValue, nil
}

// APIResponse builds a captured backoffice response with the given method, error titles and data.
func APIResponse(url, method string, errorTitles []string, data any) driver.Exchange {
	type apiError struct {
		Title string `json:"title"`
	}
	errs := make([]apiError, 0, len(errorTitles))
	for _, title := range errorTitles {
		errs = append(errs, apiError{Title: title})
	}
	body, err := json.Marshal(map[string]any{
		"meta":   map[string]string{"method": method},
		"errors": errs,
		"data":   data,
	})
	if err != nil {
		panic(fmt.Sprintf("drivertest: failed to encode response: %v", err))
	}
	return driver.Exchange{URL: url, Method: "POST", Status: 200, Body: body}
}

package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/gobwas/glob"
	"go.uber.org/zap"
)

// DefaultUserAgent is a desktop Chrome user agent; the headless default is easy to fingerprint.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/107.0.0.0 Safari/537.36"

// Options configures the Chrome driver.
type Options struct {
	Headless      bool
	UserAgent     string
	ExecPath      string
	ActionTimeout time.Duration
	LocateTimeout time.Duration
	// CaptureURL is a glob of request URLs whose responses are captured. Empty captures everything.
	CaptureURL string
	// CaptureLimit caps the number of buffered exchanges.
	CaptureLimit int
}

// DefaultOptions returns sensible defaults for a background session.
func DefaultOptions() *Options {
	return &Options{
		Headless:      true,
		UserAgent:     DefaultUserAgent,
		ActionTimeout: 30 * time.Second,
		LocateTimeout: 1500 * time.Millisecond,
		CaptureLimit:  500,
	}
}

var _ Driver = (*Chrome)(nil)

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Chrome drives a headless Chrome through chromedp.
// Network responses of every tab are captured into one shared buffer.
type Chrome struct {
	opts    Options
	capture glob.Glob
	traffic *trafficBuffer
	log     *zap.Logger

	allocCancel context.CancelFunc
	browserCtx  context.Context

	mu      sync.Mutex
	tabs    map[TabID]*tab
	current TabID
}

// NewChrome starts a browser with one open tab.
func NewChrome(ctx context.Context, opts *Options, log *zap.Logger) (*Chrome, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	defaults := DefaultOptions()
	if o.UserAgent == "" {
		o.UserAgent = defaults.UserAgent
	}
	if o.ActionTimeout == 0 {
		o.ActionTimeout = defaults.ActionTimeout
	}
	if o.LocateTimeout == 0 {
		o.LocateTimeout = defaults.LocateTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	var capture glob.Glob
	if o.CaptureURL != "" {
		g, err := glob.Compile(o.CaptureURL)
		if err != nil {
			return nil, &Error{Op: "compile capture pattern", Cause: err}
		}
		capture = g
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", o.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("start-maximized", true),
		chromedp.UserAgent(o.UserAgent),
	)
	if o.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(o.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	c := &Chrome{
		opts:        o,
		capture:     capture,
		traffic:     newTrafficBuffer(o.CaptureLimit),
		log:         log,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		tabs:        make(map[TabID]*tab),
	}

	id, err := c.attach(browserCtx, browserCancel)
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}
	c.current = id
	log.Info("browser started", zap.String("tab", string(id)), zap.Bool("headless", o.Headless))
	return c, nil
}

// attach starts the tab behind tabCtx, enables network capture and registers it.
// The first Run must use the tab context itself, otherwise the tab's lifetime is tied
// to a derived context.
func (c *Chrome) attach(tabCtx context.Context, cancel context.CancelFunc) (TabID, error) {
	c.listen(tabCtx)
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		return "", &Error{Op: "start tab", Cause: err}
	}
	target := chromedp.FromContext(tabCtx).Target
	if target == nil {
		return "", &Error{Op: "start tab", Cause: errors.New("tab has no target")}
	}
	id := TabID(target.TargetID)

	c.mu.Lock()
	c.tabs[id] = &tab{ctx: tabCtx, cancel: cancel}
	c.mu.Unlock()
	return id, nil
}

func (c *Chrome) captures(url string) bool {
	return c.capture == nil || c.capture.Match(url)
}

// listen records matching responses of one tab. Bodies are fetched once loading finishes.
func (c *Chrome) listen(tabCtx context.Context) {
	var mu sync.Mutex
	pending := make(map[network.RequestID]*Exchange)

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			if e.Request == nil || !c.captures(e.Request.URL) {
				return
			}
			mu.Lock()
			pending[e.RequestID] = &Exchange{URL: e.Request.URL, Method: e.Request.Method}
			mu.Unlock()

		case *network.EventResponseReceived:
			mu.Lock()
			if ex, ok := pending[e.RequestID]; ok && e.Response != nil {
				ex.Status = int(e.Response.Status)
			}
			mu.Unlock()

		case *network.EventLoadingFailed:
			mu.Lock()
			delete(pending, e.RequestID)
			mu.Unlock()

		case *network.EventLoadingFinished:
			mu.Lock()
			ex, ok := pending[e.RequestID]
			delete(pending, e.RequestID)
			mu.Unlock()
			if !ok {
				return
			}
			requestID := e.RequestID
			// Commands cannot be issued from inside the listener.
			go func() {
				err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
					body, err := network.GetResponseBody(requestID).Do(ctx)
					if err != nil {
						return err
					}
					ex.Body = body
					return nil
				}))
				if err != nil {
					c.log.Debug("response body unavailable", zap.String("url", ex.URL), zap.Error(err))
					return
				}
				c.traffic.append(*ex)
			}()
		}
	})
}

func (c *Chrome) lookupTab(id TabID) (*tab, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tabs[id]
	if !ok {
		return nil, &Error{Op: "switch tab", Cause: fmt.Errorf("unknown tab %s", id)}
	}
	return t, nil
}

func (c *Chrome) currentTab() *tab {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tabs[c.current]
}

// runOn executes actions in a tab, bounded by timeout and by the caller's ctx.
func (c *Chrome) runOn(ctx context.Context, t *tab, op string, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t == nil {
		return &Error{Op: op, Cause: errors.New("browser is closed")}
	}
	runCtx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &Error{Op: op, Cause: err}
	}
	return nil
}

func (c *Chrome) run(ctx context.Context, op string, actions ...chromedp.Action) error {
	return c.runOn(ctx, c.currentTab(), op, c.opts.ActionTimeout, actions...)
}

// Navigate loads url in the current tab.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, "navigate", chromedp.Navigate(url))
}

// Refresh reloads the current tab.
func (c *Chrome) Refresh(ctx context.Context) error {
	return c.run(ctx, "refresh", chromedp.Reload())
}

// CapturedTraffic returns a copy of the captured exchanges.
func (c *Chrome) CapturedTraffic() []Exchange {
	return c.traffic.snapshot()
}

// ClearCapturedTraffic drops all captured exchanges.
func (c *Chrome) ClearCapturedTraffic() {
	c.traffic.clear()
}

// Locate waits up to the locate timeout for an element matching selector.
// Selectors are resolved with DOM search, so XPath, CSS and plain text all work.
func (c *Chrome) Locate(ctx context.Context, selector string) (Element, error) {
	t := c.currentTab()
	var nodes []*cdp.Node
	err := c.runOn(ctx, t, "locate", c.opts.LocateTimeout, chromedp.Nodes(selector, &nodes, chromedp.BySearch))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NotFound(selector)
		}
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, NotFound(selector)
	}
	return &chromeElement{c: c, tab: t, node: nodes[0]}, nil
}

// OpenTab opens a blank tab without switching to it.
func (c *Chrome) OpenTab(_ context.Context) (TabID, error) {
	tabCtx, cancel := chromedp.NewContext(c.browserCtx)
	id, err := c.attach(tabCtx, cancel)
	if err != nil {
		cancel()
		return "", err
	}
	return id, nil
}

// CurrentTab returns the tab subsequent calls act on.
func (c *Chrome) CurrentTab() TabID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// SwitchTab makes id the current tab and brings it to the front.
func (c *Chrome) SwitchTab(ctx context.Context, id TabID) error {
	t, err := c.lookupTab(id)
	if err != nil {
		return err
	}
	if err := c.runOn(ctx, t, "switch tab", c.opts.ActionTimeout, page.BringToFront()); err != nil {
		return err
	}
	c.mu.Lock()
	c.current = id
	c.mu.Unlock()
	return nil
}

// ScrollToBottom scrolls the current page to the end of the document.
func (c *Chrome) ScrollToBottom(ctx context.Context) error {
	return c.run(ctx, "scroll", chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight);`, nil))
}

// Cookies exports the browser cookies.
func (c *Chrome) Cookies(ctx context.Context) ([]Cookie, error) {
	var raw []*network.Cookie
	err := c.run(ctx, "get cookies", chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, rc := range raw {
		cookies = append(cookies, Cookie{
			Name:     rc.Name,
			Value:    rc.Value,
			Domain:   rc.Domain,
			Path:     rc.Path,
			Expires:  rc.Expires,
			Secure:   rc.Secure,
			HTTPOnly: rc.HTTPOnly,
		})
	}
	return cookies, nil
}

// SetCookies imports cookies into the browser.
func (c *Chrome) SetCookies(ctx context.Context, cookies []Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, ck := range cookies {
		p := &network.CookieParam{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Secure:   ck.Secure,
			HTTPOnly: ck.HTTPOnly,
		}
		if ck.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(ck.Expires), 0))
			p.Expires = &exp
		}
		params = append(params, p)
	}
	return c.run(ctx, "set cookies", network.SetCookies(params))
}

// Close closes every tab and the browser.
func (c *Chrome) Close() error {
	c.mu.Lock()
	tabs := c.tabs
	c.tabs = make(map[TabID]*tab)
	c.mu.Unlock()

	err := chromedp.Cancel(c.browserCtx)
	for _, t := range tabs {
		t.cancel()
	}
	c.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return &Error{Op: "close", Cause: err}
	}
	return nil
}

type chromeElement struct {
	c    *Chrome
	tab  *tab
	node *cdp.Node
}

func (e *chromeElement) sel() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

func (e *chromeElement) Click(ctx context.Context) error {
	return e.c.runOn(ctx, e.tab, "click", e.c.opts.ActionTimeout, chromedp.Click(e.sel(), chromedp.ByNodeID))
}

func (e *chromeElement) Type(ctx context.Context, text string) error {
	return e.c.runOn(ctx, e.tab, "type", e.c.opts.ActionTimeout, chromedp.SendKeys(e.sel(), text, chromedp.ByNodeID))
}

func (e *chromeElement) ScrollIntoView(ctx context.Context) error {
	return e.c.runOn(ctx, e.tab, "scroll into view", e.c.opts.ActionTimeout, chromedp.ScrollIntoView(e.sel(), chromedp.ByNodeID))
}

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	var text string
	err := e.c.runOn(ctx, e.tab, "text", e.c.opts.ActionTimeout, chromedp.Text(e.sel(), &text, chromedp.ByNodeID))
	return text, err
}

func (e *chromeElement) HTML(ctx context.Context) (string, error) {
	var html string
	err := e.c.runOn(ctx, e.tab, "html", e.c.opts.ActionTimeout, chromedp.OuterHTML(e.sel(), &html, chromedp.ByNodeID))
	return html, err
}

package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"wxarchiver/pkg/errors"
	"wxarchiver/pkg/logger"
)

// ChromeLauncher starts Chrome through chromedp's exec allocator
type ChromeLauncher struct {
	logger logger.Logger
}

// NewChromeLauncher creates a launcher logging browser-side errors to log
func NewChromeLauncher(log logger.Logger) *ChromeLauncher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &ChromeLauncher{logger: log}
}

// Launch starts a browser, injects the session cookies, and returns the session
func (l *ChromeLauncher) Launch(ctx context.Context, opts SessionOptions) (Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.Width > 0 && opts.Height > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.Width, opts.Height))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			l.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	s := &chromeSession{
		ctx:    browserCtx,
		opts:   opts,
		logger: l.logger,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
		},
	}

	tasks := chromedp.Tasks{}
	for _, c := range opts.Cookies {
		tasks = append(tasks, network.SetCookie(c.Name, c.Value).WithDomain(c.Domain).WithPath(c.Path))
	}

	if err := runFirst(ctx, browserCtx, tasks); err != nil {
		s.cancel()
		return nil, errors.Wrap(errors.ErrorTypeNavigation, err, "failed to start browser")
	}
	if len(opts.Cookies) > 0 {
		l.logger.InfoWithFields("Injected session cookies", map[string]interface{}{"count": len(opts.Cookies)})
	}

	return s, nil
}

type chromeSession struct {
	ctx    context.Context
	opts   SessionOptions
	logger logger.Logger
	cancel context.CancelFunc
	once   sync.Once
}

// NewPage opens a tab in the session's browser context
func (s *chromeSession) NewPage(ctx context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(s.ctx)

	p := &chromePage{
		ctx:     tabCtx,
		cancel:  cancel,
		logger:  s.logger,
		subs:    make(map[int]subscription),
		pending: make(map[network.RequestID]*Response),
	}
	chromedp.ListenTarget(tabCtx, p.onEvent)

	setup := chromedp.Tasks{network.Enable()}
	if s.opts.Width > 0 && s.opts.Height > 0 {
		var emulate []chromedp.EmulateViewportOption
		if s.opts.Mobile {
			emulate = append(emulate, chromedp.EmulateMobile, chromedp.EmulateTouch)
		}
		setup = append(setup, chromedp.EmulateViewport(int64(s.opts.Width), int64(s.opts.Height), emulate...))
	}

	if err := runFirst(ctx, tabCtx, setup); err != nil {
		cancel()
		return nil, errors.Wrap(errors.ErrorTypeNavigation, err, "failed to open page")
	}
	return p, nil
}

// runFirst performs the first Run on a fresh chromedp context. That Run must
// use the chromedp context itself: cancelling a derived one would close the
// tab or browser it creates.
func runFirst(caller, target context.Context, tasks chromedp.Tasks) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(target, tasks...) }()
	select {
	case err := <-done:
		return err
	case <-caller.Done():
		return caller.Err()
	}
}

func (s *chromeSession) Headless() bool {
	return s.opts.Headless
}

func (s *chromeSession) Close() error {
	s.once.Do(s.cancel)
	return nil
}

type subscription struct {
	match  ResponseMatcher
	handle ResponseHandler
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger logger.Logger

	mu      sync.Mutex
	nextID  int
	subs    map[int]subscription
	pending map[network.RequestID]*Response
	closed  bool
}

func (p *chromePage) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		resp := newResponse(e.Response)
		p.mu.Lock()
		if p.anyMatch(resp.URL, resp.ContentType) {
			p.pending[e.RequestID] = resp
		}
		p.mu.Unlock()

	case *network.EventLoadingFailed:
		p.mu.Lock()
		delete(p.pending, e.RequestID)
		p.mu.Unlock()

	case *network.EventLoadingFinished:
		p.mu.Lock()
		resp, ok := p.pending[e.RequestID]
		delete(p.pending, e.RequestID)
		closed := p.closed
		p.mu.Unlock()
		if !ok || closed {
			return
		}

		// Listeners must not block; the body is fetched on its own goroutine.
		id := e.RequestID
		go func() {
			c := chromedp.FromContext(p.ctx)
			if c == nil || c.Target == nil {
				return
			}
			body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(p.ctx, c.Target))
			if err != nil {
				p.logger.DebugWithFields("Response body unavailable", map[string]interface{}{
					"url":   resp.URL,
					"error": err.Error(),
				})
				return
			}
			resp.Body = body
			p.deliver(resp)
		}()
	}
}

// anyMatch must be called with p.mu held
func (p *chromePage) anyMatch(url, contentType string) bool {
	for _, s := range p.subs {
		if s.match(url, contentType) {
			return true
		}
	}
	return false
}

func (p *chromePage) deliver(resp *Response) {
	p.mu.Lock()
	var handlers []ResponseHandler
	for _, s := range p.subs {
		if s.match(resp.URL, resp.ContentType) {
			handlers = append(handlers, s.handle)
		}
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(resp)
	}
}

func (p *chromePage) OnResponse(match ResponseMatcher, handle ResponseHandler) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = subscription{match: match, handle: handle}
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *chromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	c, stop := bind(ctx, p.ctx, timeout)
	defer stop()
	if err := chromedp.Run(c, chromedp.Navigate(url)); err != nil {
		return errors.Wrap(errors.ErrorTypeNavigation, err, "failed to load page").WithURL(url)
	}
	return nil
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	c, stop := bind(ctx, p.ctx, timeout)
	defer stop()
	if err := chromedp.Run(c, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return errors.Wrap(errors.ErrorTypeContentMissing, err, fmt.Sprintf("%s not visible", selector))
	}
	return nil
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	c, stop := bind(ctx, p.ctx, 0)
	defer stop()
	var u string
	if err := chromedp.Run(c, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

// lookup is the shape every DOM query script returns; scripts never return null
type lookup struct {
	Found bool   `json:"found"`
	Value string `json:"value"`
}

func (p *chromePage) query(ctx context.Context, script string) (lookup, error) {
	var res lookup
	err := p.Evaluate(ctx, script, &res)
	return res, err
}

func (p *chromePage) Text(ctx context.Context, selector string) (string, error) {
	res, err := p.query(ctx, fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return el ? {found: true, value: (el.innerText || "").trim()} : {found: false, value: ""};
	})()`, Quote(selector)))
	return res.Value, err
}

func (p *chromePage) InnerHTML(ctx context.Context, selector string) (string, bool, error) {
	res, err := p.query(ctx, fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return el ? {found: true, value: el.innerHTML} : {found: false, value: ""};
	})()`, Quote(selector)))
	return res.Value, res.Found, err
}

func (p *chromePage) Content(ctx context.Context) (string, error) {
	res, err := p.query(ctx, `(() => {
		const dt = document.doctype ? new XMLSerializer().serializeToString(document.doctype) : "";
		return {found: true, value: dt + document.documentElement.outerHTML};
	})()`)
	return res.Value, err
}

func (p *chromePage) BodyText(ctx context.Context) (string, error) {
	res, err := p.query(ctx, `(() => ({found: !!document.body, value: document.body ? document.body.innerText : ""}))()`)
	return res.Value, err
}

const visibleFn = `const visible = (el) => {
	if (!el) return false;
	const style = window.getComputedStyle(el);
	if (style.visibility === "hidden" || style.display === "none") return false;
	return !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
};`

func (p *chromePage) IsVisible(ctx context.Context, selector string) (bool, error) {
	res, err := p.query(ctx, fmt.Sprintf(`(() => {
		%s
		return {found: visible(document.querySelector(%s)), value: ""};
	})()`, visibleFn, Quote(selector)))
	return res.Found, err
}

func (p *chromePage) Click(ctx context.Context, selector string) (bool, error) {
	res, err := p.query(ctx, fmt.Sprintf(`(() => {
		%s
		const el = Array.from(document.querySelectorAll(%s)).find(visible);
		if (!el) return {found: false, value: ""};
		el.click();
		return {found: true, value: ""};
	})()`, visibleFn, Quote(selector)))
	return res.Found, err
}

func (p *chromePage) ClickText(ctx context.Context, text string) (bool, error) {
	res, err := p.query(ctx, fmt.Sprintf(`(() => {
		%s
		const want = %s;
		const el = Array.from(document.querySelectorAll("a, button, div, span, p"))
			.find((n) => (n.innerText || "").trim() === want && visible(n));
		if (!el) return {found: false, value: ""};
		el.click();
		return {found: true, value: ""};
	})()`, visibleFn, Quote(text)))
	return res.Found, err
}

func (p *chromePage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	c, stop := bind(ctx, p.ctx, 0)
	defer stop()

	var raw []byte
	err := chromedp.Run(c, chromedp.Evaluate(expression, &raw, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithAwaitPromise(true)
	}))
	if err != nil {
		return errors.Wrap(errors.ErrorTypeNavigation, err, "script evaluation failed")
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(errors.ErrorTypeParsing, err, "unexpected script result")
	}
	return nil
}

func (p *chromePage) Close() error {
	p.mu.Lock()
	p.closed = true
	p.subs = make(map[int]subscription)
	p.pending = make(map[network.RequestID]*Response)
	p.mu.Unlock()

	p.cancel()
	return nil
}

// bind derives a context from the tab's chromedp context that also ends
// when the caller's ctx ends or timeout elapses.
func bind(caller, tab context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var c context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		c, cancel = context.WithTimeout(tab, timeout)
	} else {
		c, cancel = context.WithCancel(tab)
	}
	stop := context.AfterFunc(caller, cancel)
	return c, func() {
		stop()
		cancel()
	}
}

func newResponse(r *network.Response) *Response {
	headers := make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		headers[strings.ToLower(k)] = fmt.Sprint(v)
	}
	ct := headers["content-type"]
	if ct == "" {
		ct = r.MimeType
	}
	return &Response{
		URL:         r.URL,
		Status:      int(r.Status),
		ContentType: ct,
		Headers:     headers,
	}
}

// Package browsertest provides scripted in-memory implementations of the
// browser interfaces for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"wxarchiver/pkg/browser"
	"wxarchiver/pkg/errors"
)

// Element is a scripted DOM node addressed by its selector
type Element struct {
	Text    string
	HTML    string
	Visible bool
}

type subscription struct {
	match  browser.ResponseMatcher
	handle browser.ResponseHandler
}

// FakePage is a scripted browser.Page. Sequence fields (URLs, BodyTexts)
// advance on each read and repeat their last value once exhausted.
type FakePage struct {
	mu sync.Mutex

	URLs      []string
	BodyTexts []string
	Elements  map[string]Element
	HTML      string

	NavigateErr error
	WaitErr     error

	// EvaluateFunc scripts Evaluate; its result is JSON round-tripped into out
	EvaluateFunc func(p *FakePage, expression string) (interface{}, error)
	// OnNavigate runs after a successful Navigate, typically to Emit responses
	OnNavigate func(p *FakePage, url string)
	// OnClick runs after Click or ClickText hit a visible element
	OnClick func(p *FakePage, target string)

	Navigations []string
	Clicks      []string
	Evaluations []string

	urlIdx  int
	bodyIdx int
	nextID  int
	subs    map[int]subscription
	closed  bool
}

// NewFakePage creates an empty page
func NewFakePage() *FakePage {
	return &FakePage{Elements: make(map[string]Element)}
}

// SetElement adds or replaces a scripted element
func (p *FakePage) SetElement(selector string, el Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Elements == nil {
		p.Elements = make(map[string]Element)
	}
	p.Elements[selector] = el
}

// RemoveElement deletes a scripted element
func (p *FakePage) RemoveElement(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.Elements, selector)
}

// Emit delivers resp to every subscriber whose matcher accepts it
func (p *FakePage) Emit(resp *browser.Response) {
	p.mu.Lock()
	var handlers []browser.ResponseHandler
	if !p.closed {
		for _, s := range p.subs {
			if s.match(resp.URL, resp.ContentType) {
				handlers = append(handlers, s.handle)
			}
		}
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(resp)
	}
}

// Closed reports whether Close was called
func (p *FakePage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Subscribers returns the number of live response subscriptions
func (p *FakePage) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *FakePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.Navigations = append(p.Navigations, url)
	err := p.NavigateErr
	hook := p.OnNavigate
	p.mu.Unlock()

	if err != nil {
		return errors.Wrap(errors.ErrorTypeNavigation, err, "failed to load page").WithURL(url)
	}
	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *FakePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.WaitErr != nil {
		return p.WaitErr
	}
	if el, ok := p.Elements[selector]; ok && el.Visible {
		return nil
	}
	return errors.New(errors.ErrorTypeContentMissing, selector+" not visible")
}

func (p *FakePage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return next(p.URLs, &p.urlIdx), nil
}

func (p *FakePage) Text(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.TrimSpace(p.Elements[selector].Text), nil
}

func (p *FakePage) InnerHTML(ctx context.Context, selector string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.Elements[selector]
	return el.HTML, ok, nil
}

func (p *FakePage) Content(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.HTML, nil
}

func (p *FakePage) BodyText(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return next(p.BodyTexts, &p.bodyIdx), nil
}

func (p *FakePage) IsVisible(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.Elements[selector]
	return ok && el.Visible, nil
}

func (p *FakePage) Click(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	el, ok := p.Elements[selector]
	hit := ok && el.Visible
	if hit {
		p.Clicks = append(p.Clicks, selector)
	}
	hook := p.OnClick
	p.mu.Unlock()

	if hit && hook != nil {
		hook(p, selector)
	}
	return hit, nil
}

func (p *FakePage) ClickText(ctx context.Context, text string) (bool, error) {
	p.mu.Lock()
	hit := false
	for _, el := range p.Elements {
		if el.Visible && strings.TrimSpace(el.Text) == text {
			hit = true
			break
		}
	}
	target := "text=" + text
	if hit {
		p.Clicks = append(p.Clicks, target)
	}
	hook := p.OnClick
	p.mu.Unlock()

	if hit && hook != nil {
		hook(p, target)
	}
	return hit, nil
}

func (p *FakePage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.Evaluations = append(p.Evaluations, expression)
	fn := p.EvaluateFunc
	p.mu.Unlock()

	if fn == nil {
		return nil
	}
	v, err := fn(p, expression)
	if err != nil {
		return err
	}
	if out == nil || v == nil {
		return nil
	}

	var raw []byte
	switch x := v.(type) {
	case json.RawMessage:
		raw = x
	case string:
		raw = []byte(x)
	default:
		raw, err = json.Marshal(v)
		if err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, out)
}

func (p *FakePage) OnResponse(match browser.ResponseMatcher, handle browser.ResponseHandler) func() {
	p.mu.Lock()
	if p.subs == nil {
		p.subs = make(map[int]subscription)
	}
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

func (p *FakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.subs = nil
	return nil
}

func next(seq []string, idx *int) string {
	if len(seq) == 0 {
		return ""
	}
	v := seq[*idx]
	if *idx < len(seq)-1 {
		*idx++
	}
	return v
}

// FakeSession hands out scripted pages: from PageFactory when set,
// otherwise from Pages in order, then blank pages.
type FakeSession struct {
	mu sync.Mutex

	Pages       []*FakePage
	PageFactory func(n int) *FakePage
	NewPageErr  error
	Options     browser.SessionOptions

	opened []*FakePage
	closed bool
}

// NewFakeSession creates a session serving pages in order
func NewFakeSession(pages ...*FakePage) *FakeSession {
	return &FakeSession{Pages: pages}
}

func (s *FakeSession) NewPage(ctx context.Context) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.NewPageErr != nil {
		return nil, s.NewPageErr
	}

	n := len(s.opened)
	var p *FakePage
	switch {
	case s.PageFactory != nil:
		p = s.PageFactory(n)
	case n < len(s.Pages):
		p = s.Pages[n]
	default:
		p = NewFakePage()
	}
	s.opened = append(s.opened, p)
	return p, nil
}

func (s *FakeSession) Headless() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Options.Headless
}

func (s *FakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Opened returns every page handed out so far
func (s *FakeSession) Opened() []*FakePage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*FakePage(nil), s.opened...)
}

// Closed reports whether Close was called
func (s *FakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// FakeLauncher returns Session from every Launch, recording the options used
type FakeLauncher struct {
	mu sync.Mutex

	Session  *FakeSession
	Err      error
	Launches []browser.SessionOptions
}

// NewFakeLauncher creates a launcher around session
func NewFakeLauncher(session *FakeSession) *FakeLauncher {
	return &FakeLauncher{Session: session}
}

func (l *FakeLauncher) Launch(ctx context.Context, opts browser.SessionOptions) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Launches = append(l.Launches, opts)
	if l.Err != nil {
		return nil, l.Err
	}
	l.Session.mu.Lock()
	l.Session.Options = opts
	l.Session.mu.Unlock()
	return l.Session, nil
}

package browser

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"wxarchiver/pkg/auth"
)

// Response is a network response observed while a page was open
type Response struct {
	URL         string
	Status      int
	ContentType string
	Headers     map[string]string
	Body        []byte
}

// ResponseMatcher selects responses by URL and Content-Type before their bodies are fetched
type ResponseMatcher func(url, contentType string) bool

// ResponseHandler receives a matched response with its body. It may run on
// another goroutine than the one driving the page.
type ResponseHandler func(resp *Response)

// Page is a single tab. One page serves one discovery run or one capture attempt.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	URL(ctx context.Context) (string, error)

	// Text returns the trimmed inner text of the first match, "" when absent
	Text(ctx context.Context, selector string) (string, error)
	// InnerHTML returns the markup of the first match and whether it exists
	InnerHTML(ctx context.Context, selector string) (string, bool, error)
	// Content returns the full rendered document
	Content(ctx context.Context) (string, error)
	BodyText(ctx context.Context) (string, error)
	IsVisible(ctx context.Context, selector string) (bool, error)
	// Click clicks the first visible match, reporting whether one was clicked
	Click(ctx context.Context, selector string) (bool, error)
	// ClickText clicks the first visible element whose trimmed text equals text
	ClickText(ctx context.Context, text string) (bool, error)

	// Evaluate runs an expression, awaiting a returned promise, and decodes its JSON result into out
	Evaluate(ctx context.Context, expression string, out interface{}) error

	// OnResponse subscribes to responses for the page's lifetime; call the returned func to stop
	OnResponse(match ResponseMatcher, handle ResponseHandler) (unsubscribe func())

	Close() error
}

// SessionOptions configures one browser context
type SessionOptions struct {
	Headless  bool
	ExecPath  string
	UserAgent string
	Width     int
	Height    int
	// Mobile turns on touch and mobile viewport emulation
	Mobile  bool
	Cookies []auth.Cookie
}

// Session is one browser context; its cookies are shared by every page it opens
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Headless() bool
	Close() error
}

// Launcher starts browser sessions
type Launcher interface {
	Launch(ctx context.Context, opts SessionOptions) (Session, error)
}

// ImageResponses matches any image/* response
func ImageResponses(_ string, contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "image/")
}

// Quote renders s as a JavaScript string literal
func Quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

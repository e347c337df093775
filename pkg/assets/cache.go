package assets

import (
	"sync"

	"wxarchiver/pkg/browser"
)

// Capture is one image body observed on the network
type Capture struct {
	URL         string
	ContentType string
	Body        []byte
}

// Cache collects image responses for one page. Lookups walk captures in
// arrival order so the first observed match wins.
type Cache struct {
	mu    sync.Mutex
	order []string
	items map[string]Capture
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{items: make(map[string]Capture)}
}

// Attach subscribes the cache to every image response of page
func (c *Cache) Attach(page browser.Page) (detach func()) {
	return page.OnResponse(browser.ImageResponses, c.Add)
}

// Add records a response; a repeated URL keeps its position and takes the newer body
func (c *Cache) Add(resp *browser.Response) {
	if resp == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[resp.URL]; !ok {
		c.order = append(c.order, resp.URL)
	}
	c.items[resp.URL] = Capture{URL: resp.URL, ContentType: resp.ContentType, Body: resp.Body}
}

// Match returns the first capture with a body whose URL matches imageURL
func (c *Cache) Match(imageURL string) (Capture, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, u := range c.order {
		capture := c.items[u]
		if len(capture.Body) == 0 {
			continue
		}
		if URLsMatch(imageURL, u) {
			return capture, true
		}
	}
	return Capture{}, false
}

// Len returns the number of distinct URLs captured
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

package capture

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"wxarchiver/pkg/errors"
)

// lazySourceAttrs hold the real image address on lazily loaded images
var lazySourceAttrs = []string{"data-src", "data-original"}

// toMarkdown renders article markup as markdown
func (c *Capturer) toMarkdown(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", nil
	}
	prepared, err := promoteLazyImages(content)
	if err != nil {
		return "", err
	}
	markdown, err := c.converter.ConvertString(prepared)
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypeParsing, err, "failed to convert article to markdown")
	}
	return markdown, nil
}

// promoteLazyImages copies a lazy-load attribute into src when src is missing
// or an inline placeholder, so the markdown keeps the real image.
func promoteLazyImages(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypeParsing, err, "failed to parse article markup")
	}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, _ := s.Attr("src"); src != "" && !strings.HasPrefix(src, "data:") {
			return
		}
		for _, attr := range lazySourceAttrs {
			if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
				s.SetAttr("src", v)
				return
			}
		}
	})
	return doc.Find("body").Html()
}

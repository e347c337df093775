package assets

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"wxarchiver/pkg/errors"
)

const (
	filenameHashLen = 16
	defaultExt      = ".jpg"
)

// imageSources are scanned in order; every src comes before any data-src
var imageSources = []struct {
	selector string
	attr     string
}{
	{"img[src]", "src"},
	{"[data-src]", "data-src"},
	{"[data-original]", "data-original"},
}

var mimeExtensions = map[string]string{
	"image/jpeg":               ".jpg",
	"image/jpg":                ".jpg",
	"image/pjpeg":              ".jpg",
	"image/png":                ".png",
	"image/gif":                ".gif",
	"image/webp":               ".webp",
	"image/svg+xml":            ".svg",
	"image/bmp":                ".bmp",
	"image/x-ms-bmp":           ".bmp",
	"image/tiff":               ".tiff",
	"image/avif":               ".avif",
	"image/heic":               ".heic",
	"image/x-icon":             ".ico",
	"image/vnd.microsoft.icon": ".ico",
}

var pathExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".bmp"}

var wxFormats = []struct {
	marker string
	ext    string
}{
	{"wx_fmt=png", ".png"},
	{"wx_fmt=gif", ".gif"},
	{"wx_fmt=svg", ".svg"},
}

// ExtractImageURLs returns the absolute image URLs referenced by content markup,
// deduplicated in first-seen order with entity escaping undone.
func ExtractImageURLs(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeParsing, err, "failed to parse content markup")
	}

	var urls []string
	seen := make(map[string]struct{})
	for _, src := range imageSources {
		doc.Find(src.selector).Each(func(_ int, s *goquery.Selection) {
			u := strings.ReplaceAll(strings.TrimSpace(s.AttrOr(src.attr, "")), "&amp;", "&")
			if !strings.HasPrefix(u, "http") {
				return
			}
			if _, dup := seen[u]; dup {
				return
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
		})
	}
	return urls, nil
}

// GuessExt picks a file extension from the content type, then the URL path,
// then the platform's wx_fmt hint, defaulting to .jpg.
func GuessExt(rawURL, contentType string) string {
	if contentType != "" {
		mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
		if ext, ok := mimeExtensions[mediaType]; ok {
			return ext
		}
	}

	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	path = strings.ToLower(path)
	for _, ext := range pathExtensions {
		if strings.Contains(path, ext) {
			return ext
		}
	}

	for _, f := range wxFormats {
		if strings.Contains(rawURL, f.marker) {
			return f.ext
		}
	}
	return defaultExt
}

// Filename is the local name of an image: a 16 hex digit SHA-1 prefix of its URL plus extension
func Filename(rawURL, contentType string) string {
	sum := sha1.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:filenameHashLen] + GuessExt(rawURL, contentType)
}

// URLsMatch reports whether two image URLs name the same image, ignoring
// protocol, entity escaping and the query string. Any two URLs sharing a
// query-stripped base match, even across hosts.
func URLsMatch(a, b string) bool {
	a, b = canonical(a), canonical(b)
	if a == b {
		return true
	}
	baseA, _, _ := strings.Cut(a, "?")
	baseB, _, _ := strings.Cut(b, "?")
	return baseA != "" && baseA == baseB
}

func canonical(u string) string {
	u = strings.ReplaceAll(u, "&amp;", "&")
	return strings.ReplaceAll(u, "http://", "https://")
}

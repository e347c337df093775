package auth

import (
	"fmt"
	"os"
	"strings"
)

const (
	// CookieDomain scopes injected session cookies to every platform host
	CookieDomain = ".qq.com"
	CookiePath   = "/"
)

// Cookie is a single session cookie ready to be injected into a browser context
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// ParseCookieString parses a "name=value; name2=value2" header into cookies.
// Pairs without "=" or with an empty name are skipped.
func ParseCookieString(raw string) []Cookie {
	var cookies []Cookie
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cookies = append(cookies, Cookie{
			Name:   name,
			Value:  strings.TrimSpace(value),
			Domain: CookieDomain,
			Path:   CookiePath,
		})
	}
	return cookies
}

// LoadCookies interprets arg as a path to a cookie file when one exists,
// otherwise as a raw cookie string. An empty arg yields no cookies.
func LoadCookies(arg string) ([]Cookie, error) {
	if strings.TrimSpace(arg) == "" {
		return nil, nil
	}

	info, err := os.Stat(arg)
	if err == nil && info.Mode().IsRegular() {
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to read cookie file: %w", err)
		}
		return ParseCookieString(stripHeaderName(string(data))), nil
	}

	return ParseCookieString(stripHeaderName(arg)), nil
}

// CookieHeader renders cookies back into a request header value
func CookieHeader(cookies []Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// stripHeaderName drops a leading "Cookie:" copied along with the header value
func stripHeaderName(text string) string {
	text = strings.TrimSpace(text)
	if len(text) >= 7 && strings.EqualFold(text[:7], "cookie:") {
		text = strings.TrimSpace(text[7:])
	}
	return text
}

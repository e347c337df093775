package wechat

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"wxarchiver/pkg/errors"
)

const (
	// BaseURL is the platform root, also the QR login surface
	BaseURL = "https://mp.weixin.qq.com/"

	// AppMsgEndpoint lists an account's published articles for a logged-in operator
	AppMsgEndpoint = "https://mp.weixin.qq.com/cgi-bin/appmsg"

	// ProfileExtPath serves the mobile history page and its getmsg pagination
	ProfileExtPath = "mp.weixin.qq.com/mp/profile_ext"

	// ArticlePathMarker appears in every article permalink
	ArticlePathMarker = "mp.weixin.qq.com/s"

	// DefaultPageSize is the fixed page size of the appmsg list API
	DefaultPageSize = 5

	// MobileUserAgent makes the history page render as it does inside the mobile client
	MobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) " +
		"AppleWebKit/605.1.15 (KHTML, like Gecko) " +
		"Mobile/15E148 MicroMessenger/8.0.47(0x18002f2c) " +
		"NetType/WIFI Language/zh_CN"

	MobileViewportWidth  = 375
	MobileViewportHeight = 812
)

var tokenPattern = regexp.MustCompile(`token=(\d+)`)

// ExtractBiz returns the __biz account key of a history URL
func ExtractBiz(historyURL string) (string, error) {
	u, err := url.Parse(historyURL)
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypeParsing, err, "invalid history URL").WithURL(historyURL)
	}
	biz := u.Query().Get("__biz")
	if biz == "" {
		return "", errors.New(errors.ErrorTypeParsing, "cannot extract __biz from URL").WithURL(historyURL)
	}
	return biz, nil
}

// BizToFakeID restores the base64 padding the platform API expects in fakeid
func BizToFakeID(biz string) string {
	if r := len(biz) % 4; r != 0 {
		biz += strings.Repeat("=", 4-r)
	}
	return biz
}

// AppMsgURL builds one page request of the appmsg list API
func AppMsgURL(fakeID, token string, begin, count int) string {
	if count <= 0 {
		count = DefaultPageSize
	}

	params := url.Values{}
	params.Set("action", "list_ex")
	params.Set("begin", strconv.Itoa(begin))
	params.Set("count", strconv.Itoa(count))
	params.Set("fakeid", fakeID)
	params.Set("type", "9")
	params.Set("query", "")
	params.Set("token", token)
	params.Set("lang", "zh_CN")
	params.Set("f", "json")
	params.Set("ajax", "1")

	return fmt.Sprintf("%s?%s", AppMsgEndpoint, params.Encode())
}

// ExtractToken returns the session token the login redirect appends to the URL
func ExtractToken(pageURL string) (string, bool) {
	m := tokenPattern.FindStringSubmatch(pageURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsGetMsgResponse reports whether a network response URL is a profile_ext pagination call
func IsGetMsgResponse(responseURL string) bool {
	return strings.Contains(responseURL, ProfileExtPath) && strings.Contains(responseURL, "action=getmsg")
}

// NormalizeArticleURL canonicalizes an article link: entity escaping undone,
// https forced, fragment dropped. Links that are not article permalinks are rejected.
func NormalizeArticleURL(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	u := forceHTTPS(unescapeAmp(raw))
	if !strings.Contains(u, ArticlePathMarker) {
		return "", false
	}
	if i := strings.Index(u, "#"); i >= 0 {
		u = u[:i]
	}
	return u, true
}

func unescapeAmp(s string) string {
	return strings.ReplaceAll(s, "&amp;", "&")
}

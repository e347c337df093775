package wechat

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"wxarchiver/pkg/errors"
	"wxarchiver/pkg/storage"
)

// Platform status codes returned in base_resp.ret / ret
const (
	RetOK             = 0
	RetSessionExpired = 200003
	RetRateLimited    = 200013
)

// localTimeLayout matches the second-precision local timestamps stored in the ledger
const localTimeLayout = "2006-01-02T15:04:05"

// FormatUnix renders a platform epoch timestamp as a ledger publish time
func FormatUnix(sec int64) *string {
	if sec <= 0 {
		return nil
	}
	s := time.Unix(sec, 0).Format(localTimeLayout)
	return &s
}

// BaseResp is the status envelope of the platform API
type BaseResp struct {
	Ret    int    `json:"ret"`
	ErrMsg string `json:"err_msg"`
}

// AppMsgPage is one page of the appmsg list API
type AppMsgPage struct {
	BaseResp *BaseResp    `json:"base_resp"`
	Total    int          `json:"app_msg_cnt"`
	Items    []AppMsgItem `json:"app_msg_list"`
}

// AppMsgItem is a single published article in an AppMsgPage
type AppMsgItem struct {
	AID        string `json:"aid"`
	Title      string `json:"title"`
	Link       string `json:"link"`
	CreateTime int64  `json:"create_time"`
}

// ParseAppMsgPage decodes a list API reply; a reply without base_resp is not a list page
func ParseAppMsgPage(data []byte) (*AppMsgPage, error) {
	var page AppMsgPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeParsing, err, "malformed appmsg reply")
	}
	if page.BaseResp == nil {
		return nil, errors.New(errors.ErrorTypeParsing, "appmsg reply has no base_resp")
	}
	return &page, nil
}

// Ret returns the platform status code
func (p *AppMsgPage) Ret() int {
	return p.BaseResp.Ret
}

// Links converts the page into ledger records, skipping items without a link
func (p *AppMsgPage) Links() []storage.LinkRecord {
	links := make([]storage.LinkRecord, 0, len(p.Items))
	for _, item := range p.Items {
		if item.Link == "" {
			continue
		}
		links = append(links, storage.LinkRecord{
			URL:         item.Link,
			Title:       item.Title,
			PublishTime: FormatUnix(item.CreateTime),
			Source:      storage.SourcePlatformAPI,
		})
	}
	return links
}

// GetMsgPage is one profile_ext getmsg reply. The article list arrives as a
// JSON document embedded in the general_msg_list string.
type GetMsgPage struct {
	Ret            *int   `json:"ret"`
	ErrMsg         string `json:"errmsg"`
	CanMsgContinue int    `json:"can_msg_continue"`
	GeneralMsgList string `json:"general_msg_list"`
}

type generalMsgList struct {
	List []struct {
		CommMsgInfo struct {
			DateTime int64 `json:"datetime"`
		} `json:"comm_msg_info"`
		AppMsgExtInfo *appMsgExtInfo `json:"app_msg_ext_info"`
	} `json:"list"`
}

type appMsgExtInfo struct {
	Title      string          `json:"title"`
	ContentURL string          `json:"content_url"`
	MultiItems []appMsgExtInfo `json:"multi_app_msg_item_list"`
}

// ParseGetMsg decodes a getmsg reply; a reply without ret is not a getmsg payload
func ParseGetMsg(data []byte) (*GetMsgPage, error) {
	var page GetMsgPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeParsing, err, "malformed getmsg reply")
	}
	if page.Ret == nil {
		return nil, errors.New(errors.ErrorTypeParsing, "getmsg reply has no ret")
	}
	return &page, nil
}

// Status returns the reply's ret code
func (p *GetMsgPage) Status() int {
	return *p.Ret
}

// CanContinue reports whether the platform has more history to page through
func (p *GetMsgPage) CanContinue() bool {
	return p.CanMsgContinue != 0
}

// Links expands the embedded list: each message contributes its lead article
// and every secondary article published with it, all sharing its timestamp.
func (p *GetMsgPage) Links() ([]storage.LinkRecord, error) {
	raw := strings.TrimSpace(p.GeneralMsgList)
	if raw == "" {
		return nil, nil
	}

	payload := []byte(raw)
	if !strings.HasPrefix(raw, "{") {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, errors.Wrap(errors.ErrorTypeParsing, err, "general_msg_list is neither JSON nor base64")
		}
		payload = bytes.TrimSpace(decoded)
	}

	var list generalMsgList
	if err := json.Unmarshal(payload, &list); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeParsing, err, "malformed general_msg_list")
	}

	var links []storage.LinkRecord
	for _, msg := range list.List {
		ext := msg.AppMsgExtInfo
		if ext == nil {
			continue
		}
		published := FormatUnix(msg.CommMsgInfo.DateTime)

		entries := append([]appMsgExtInfo{*ext}, ext.MultiItems...)
		for _, entry := range entries {
			if entry.ContentURL == "" {
				continue
			}
			links = append(links, storage.LinkRecord{
				URL:         forceHTTPS(unescapeAmp(entry.ContentURL)),
				Title:       entry.Title,
				PublishTime: published,
				Source:      storage.SourceNetwork,
			})
		}
	}
	return links, nil
}

// Anchor is an article link scraped from rendered markup
type Anchor struct {
	Href string
	Text string
}

// ParseAnchors collects every anchor pointing at an article permalink, in document order
func ParseAnchors(html string) ([]Anchor, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeParsing, err, "failed to parse page markup")
	}

	var anchors []Anchor
	doc.Find(`a[href*="` + ArticlePathMarker + `"]`).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		anchors = append(anchors, Anchor{
			Href: href,
			Text: strings.TrimSpace(s.Text()),
		})
	})
	return anchors, nil
}

// AnchorLinks converts scraped anchors into low-confidence ledger records without a publish time
func AnchorLinks(anchors []Anchor) []storage.LinkRecord {
	links := make([]storage.LinkRecord, 0, len(anchors))
	for _, a := range anchors {
		links = append(links, storage.LinkRecord{
			URL:    unescapeAmp(a.Href),
			Title:  a.Text,
			Source: storage.SourceDOM,
		})
	}
	return links
}

func forceHTTPS(u string) string {
	if strings.HasPrefix(u, "http://") {
		return "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

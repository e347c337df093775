package metadata

import (
	"context"
	"strings"
	"time"

	"wxarchiver/pkg/browser"
	"wxarchiver/pkg/storage"
	"wxarchiver/pkg/wechat"
)

// Article is the descriptive metadata of one rendered article
type Article struct {
	Title       string
	Author      string
	Account     string
	PublishTime string
}

// Extract reads article metadata from the rendered page. Each field takes the
// first non-empty match of its selector list.
func Extract(ctx context.Context, page browser.Page) (Article, error) {
	var a Article
	fields := []struct {
		dst       *string
		selectors []string
	}{
		{&a.Title, wechat.TitleSelectors},
		{&a.Author, wechat.AuthorSelectors},
		{&a.Account, wechat.AccountSelectors},
		{&a.PublishTime, wechat.PublishTimeSelectors},
	}

	for _, f := range fields {
		v, err := firstText(ctx, page, f.selectors)
		if err != nil {
			return Article{}, err
		}
		*f.dst = v
	}
	return a, nil
}

// firstText swallows per-selector lookup errors; only cancellation stops the search
func firstText(ctx context.Context, page browser.Page, selectors []string) (string, error) {
	for _, sel := range selectors {
		text, err := page.Text(ctx, sel)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text, nil
		}
	}
	return "", nil
}

// Merge folds in what discovery knew about the link: its title fills a
// missing title and its publish time, when present, replaces the scraped one.
func (a Article) Merge(link *storage.LinkRecord) Article {
	if link == nil {
		return a
	}
	if a.Title == "" {
		a.Title = link.Title
	}
	if t := link.PublishTimeOrEmpty(); t != "" {
		a.PublishTime = t
	}
	return a
}

// FrontMatter renders the block that heads article.md
func FrontMatter(a Article, source string) string {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString(`title: "` + strings.ReplaceAll(a.Title, `"`, "") + "\"\n")
	if a.Author != "" {
		b.WriteString(`author: "` + a.Author + "\"\n")
	}
	if a.Account != "" {
		b.WriteString(`account: "` + a.Account + "\"\n")
	}
	if a.PublishTime != "" {
		b.WriteString(`date: "` + a.PublishTime + "\"\n")
	}
	b.WriteString(`source: "` + source + "\"\n")
	b.WriteString("---\n")
	return b.String()
}

// Record builds the completed meta.json record for a captured article
func Record(articleID, url string, a Article, imageCount int, dir string, fetchedAt time.Time) *storage.ArticleMeta {
	return &storage.ArticleMeta{
		ArticleID:   articleID,
		URL:         url,
		Title:       a.Title,
		Author:      a.Author,
		AccountName: a.Account,
		PublishTime: a.PublishTime,
		FetchedAt:   fetchedAt.UTC().Format(time.RFC3339Nano),
		Completed:   true,
		ImageCount:  imageCount,
		Dir:         dir,
	}
}

package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"wxarchiver/pkg/assets"
	"wxarchiver/pkg/browser"
	"wxarchiver/pkg/config"
	"wxarchiver/pkg/errors"
	"wxarchiver/pkg/logger"
	"wxarchiver/pkg/metadata"
	"wxarchiver/pkg/retry"
	"wxarchiver/pkg/storage"
	"wxarchiver/pkg/wechat"
)

const (
	htmlFileName     = "article.html"
	markdownFileName = "article.md"
)

// Capturer archives one article from an open page
type Capturer struct {
	store      *storage.Manager
	reconciler *assets.Reconciler
	cfg        *config.BrowserConfig
	converter  *md.Converter
	logger     logger.Logger
	now        func() time.Time
	writeFile  func(path string, data []byte) error
}

// NewCapturer creates a capturer writing into store
func NewCapturer(store *storage.Manager, reconciler *assets.Reconciler, cfg *config.BrowserConfig, log logger.Logger) *Capturer {
	if log == nil {
		log = logger.GetLogger()
	}
	converter := md.NewConverter("", true, &md.Options{HeadingStyle: "atx"})
	converter.Remove("script", "style")

	return &Capturer{
		store:      store,
		reconciler: reconciler,
		cfg:        cfg,
		converter:  converter,
		logger:     log,
		now:        time.Now,
		writeFile:  storage.WriteBytesAtomic,
	}
}

// Capture renders link on page and writes the article directory. It is one
// attempt: the caller owns the page and decides whether to try again.
func (c *Capturer) Capture(ctx context.Context, page browser.Page, link storage.LinkRecord) (*storage.ArticleMeta, error) {
	id := storage.ArticleID(link.URL)
	log := c.logger.WithFields(map[string]interface{}{
		"article_id": id,
		"url":        link.URL,
	})

	cache := assets.NewCache()
	detach := cache.Attach(page)
	defer detach()

	if err := page.Navigate(ctx, link.URL, c.cfg.NavigationTimeout); err != nil {
		return nil, err
	}

	if err := page.WaitVisible(ctx, wechat.ContentSelector, c.cfg.SelectorTimeout); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.WithError(err).Warn("Content container did not appear, extracting what rendered")
	}

	if c.cfg.SettleDelay > 0 {
		if err := retry.Wait(ctx, c.cfg.SettleDelay); err != nil {
			return nil, err
		}
	}

	if err := c.checkBlocked(ctx, page, link.URL); err != nil {
		return nil, err
	}

	article, err := metadata.Extract(ctx, page)
	if err != nil {
		return nil, err
	}
	article = article.Merge(&link)

	content, err := c.content(ctx, page)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		log.Warn("Article content is empty")
	}
	fullPage, err := page.Content(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeContentMissing, err, "failed to read page markup").WithURL(link.URL)
	}

	urls, err := assets.ExtractImageURLs(content)
	if err != nil {
		return nil, err
	}
	mapping, err := c.reconciler.Reconcile(ctx, urls, cache, c.store.AssetsDir(id))
	if err != nil {
		return nil, err
	}

	prefix := assets.RelPrefix(id)
	content = assets.Rewrite(content, mapping, prefix)
	markdown, err := c.toMarkdown(content)
	if err != nil {
		return nil, err
	}
	markdown = assets.Rewrite(markdown, mapping, prefix)
	fullPage = assets.Rewrite(fullPage, mapping, prefix)

	placement, err := c.store.PlaceArticleDir(id, storage.DirName(article.PublishTime, article.Title, id))
	if err != nil {
		return nil, err
	}
	if placement.Action != storage.PlacementCreated && placement.Action != storage.PlacementKept {
		log.InfoWithFields("Article directory moved", map[string]interface{}{
			"dir":    filepath.Base(placement.Dir),
			"action": string(placement.Action),
		})
	}

	document := metadata.FrontMatter(article, link.URL) + "\n" + strings.TrimSpace(markdown) + "\n"
	meta := metadata.Record(id, link.URL, article, len(mapping), filepath.Base(placement.Dir), c.now())
	if err := c.persist(placement.Dir, fullPage, document, meta); err != nil {
		// Directories are found by meta.json; drop one this attempt created
		if placement.Action == storage.PlacementCreated {
			if rmErr := os.RemoveAll(placement.Dir); rmErr != nil {
				log.WithError(rmErr).Warn("Failed to remove incomplete article directory")
			}
		}
		return nil, err
	}

	log.DebugWithFields("Article written", map[string]interface{}{
		"dir":    meta.Dir,
		"images": meta.ImageCount,
		"of":     len(urls),
	})
	return meta, nil
}

// persist writes the article files, meta.json last so a directory is only
// ever marked complete once its content is on disk
func (c *Capturer) persist(dir, fullPage, document string, meta *storage.ArticleMeta) error {
	if err := c.writeFile(filepath.Join(dir, htmlFileName), []byte(fullPage)); err != nil {
		return fmt.Errorf("failed to write %s: %w", htmlFileName, err)
	}
	if err := c.writeFile(filepath.Join(dir, markdownFileName), []byte(document)); err != nil {
		return fmt.Errorf("failed to write %s: %w", markdownFileName, err)
	}
	if err := c.store.SaveMeta(dir, meta); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// checkBlocked fails when the rendered page is a verification or throttle wall
func (c *Capturer) checkBlocked(ctx context.Context, page browser.Page, url string) error {
	body, err := page.BodyText(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return nil
	}
	for _, phrase := range wechat.ArticleBlockPhrases {
		if strings.Contains(body, phrase) {
			return errors.New(errors.ErrorTypeBlocked,
				fmt.Sprintf("page shows %q; retry with a visible browser or a longer delay", phrase)).WithURL(url)
		}
	}
	return nil
}

// content returns the article body markup, trying the alternate container when the primary is absent
func (c *Capturer) content(ctx context.Context, page browser.Page) (string, error) {
	for _, sel := range []string{wechat.ContentSelector, wechat.FallbackContentSelector} {
		html, ok, err := page.InnerHTML(ctx, sel)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			continue
		}
		if ok {
			return html, nil
		}
	}
	return "", nil
}

package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wxarchiver/pkg/auth"
	"wxarchiver/pkg/browser"
	"wxarchiver/pkg/config"
	"wxarchiver/pkg/errors"
	"wxarchiver/pkg/logger"
	"wxarchiver/pkg/retry"
	"wxarchiver/pkg/storage"
	"wxarchiver/pkg/wechat"
)

// ProfileStrategyName is the provenance name of the cookie-injected history page strategy
const ProfileStrategyName = "profile_ext"

const scrollToBottomScript = `(() => { window.scrollTo(0, document.body.scrollHeight); return true; })()`

// ProfileStrategy renders the mobile history page with pre-obtained session
// cookies and harvests the getmsg responses triggered by scrolling and
// clicking "load more". A final DOM pass adds any anchors the responses missed.
type ProfileStrategy struct {
	launcher browser.Launcher
	browser  *config.BrowserConfig
	cfg      *config.DiscoveryConfig
	cookies  []auth.Cookie
	logger   logger.Logger
}

// NewProfileStrategy creates the cookie-injected strategy
func NewProfileStrategy(launcher browser.Launcher, browserCfg *config.BrowserConfig, cfg *config.DiscoveryConfig, cookies []auth.Cookie, log logger.Logger) *ProfileStrategy {
	if log == nil {
		log = logger.GetLogger()
	}
	return &ProfileStrategy{
		launcher: launcher,
		browser:  browserCfg,
		cfg:      cfg,
		cookies:  cookies,
		logger:   log.WithField("strategy", ProfileStrategyName),
	}
}

func (s *ProfileStrategy) Name() string { return ProfileStrategyName }

// Discover implements Strategy
func (s *ProfileStrategy) Discover(ctx context.Context, historyURL string, emit Emitter) error {
	session, err := s.launcher.Launch(ctx, browser.SessionOptions{
		Headless:  s.browser.DiscoveryHeadless,
		ExecPath:  s.browser.ExecPath,
		UserAgent: wechat.MobileUserAgent,
		Width:     wechat.MobileViewportWidth,
		Height:    wechat.MobileViewportHeight,
		Mobile:    true,
		Cookies:   s.cookies,
	})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer session.Close()
	s.logger.InfoWithFields("Injected session cookies", map[string]interface{}{"count": len(s.cookies)})

	page, err := session.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	collector := newGetMsgCollector(s.logger)
	stop := page.OnResponse(func(u, _ string) bool { return wechat.IsGetMsgResponse(u) }, collector.handle)
	defer stop()

	s.logger.InfoWithFields("Opening history page", map[string]interface{}{"url": historyURL})
	if err := page.Navigate(ctx, historyURL, s.browser.NavigationTimeout); err != nil {
		return err
	}
	if err := retry.Wait(ctx, s.cfg.ProfileSettle); err != nil {
		return err
	}
	if err := s.passWall(ctx, page, session.Headless(), historyURL); err != nil {
		return err
	}

	flushed := 0
	flush := func() (int, error) {
		batch := collector.since(flushed)
		flushed += len(batch)
		if len(batch) == 0 {
			return 0, nil
		}
		return emit(batch)
	}

	empty, round, prev := 0, 0, 0
	for round < s.cfg.MaxPages && empty < s.cfg.MaxEmptyRounds && collector.canContinue() {
		if collector.failed() {
			s.logger.Error("History API reported an error, stopping")
			break
		}
		if err := s.advance(ctx, page); err != nil {
			return err
		}

		current := collector.count()
		if current == prev {
			empty++
			s.logger.InfoWithFields("No new articles this round", map[string]interface{}{
				"empty_rounds": empty,
				"max":          s.cfg.MaxEmptyRounds,
			})
		} else {
			empty = 0
			round++
			added, err := flush()
			if err != nil {
				return err
			}
			logger.LogDiscoveryPage(s.logger, ProfileStrategyName, round, current-prev, added, current)
		}
		prev = current
	}

	if _, err := flush(); err != nil {
		return err
	}
	return s.scrapeAnchors(ctx, page, emit)
}

// advance scrolls to the bottom and clicks the first visible load-more control
func (s *ProfileStrategy) advance(ctx context.Context, page browser.Page) error {
	if err := page.Evaluate(ctx, scrollToBottomScript, nil); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.WithError(err).Debug("Scroll failed")
	}
	if err := retry.Wait(ctx, s.cfg.ScrollDelay); err != nil {
		return err
	}

	if s.clickLoadMore(ctx, page) {
		if err := retry.Wait(ctx, s.cfg.LoadMoreDelay); err != nil {
			return err
		}
	}
	return retry.Wait(ctx, s.cfg.RoundDelay)
}

func (s *ProfileStrategy) clickLoadMore(ctx context.Context, page browser.Page) bool {
	for _, sel := range wechat.LoadMoreSelectors {
		if clicked, err := page.Click(ctx, sel); err == nil && clicked {
			return true
		}
	}
	clicked, err := page.ClickText(ctx, wechat.LoadMoreText)
	return err == nil && clicked
}

// passWall returns once no login or verification wall is showing. Headless
// runs cannot be verified by hand, so a wall there is fatal at once.
func (s *ProfileStrategy) passWall(ctx context.Context, page browser.Page, headless bool, historyURL string) error {
	if !s.walled(ctx, page) {
		return ctx.Err()
	}
	if headless {
		return errors.New(errors.ErrorTypeBlocked,
			"history page shows a login wall; run without cookies to use QR login, or run headed").WithURL(historyURL)
	}

	s.logger.WarnWithFields("Verification wall detected, complete it in the browser window", map[string]interface{}{
		"timeout": s.cfg.VerificationTimeout,
	})
	interval := max(s.cfg.VerificationInterval, time.Millisecond)
	for elapsed := time.Duration(0); elapsed < s.cfg.VerificationTimeout; elapsed += interval {
		if err := retry.Wait(ctx, interval); err != nil {
			return err
		}
		if !s.walled(ctx, page) {
			s.logger.Info("Verification passed, resuming")
			return nil
		}
	}
	return errors.New(errors.ErrorTypeVerificationTimeout,
		fmt.Sprintf("verification not completed within %s", s.cfg.VerificationTimeout)).WithURL(historyURL)
}

func (s *ProfileStrategy) walled(ctx context.Context, page browser.Page) bool {
	if body, err := page.BodyText(ctx); err == nil && containsAny(body, wechat.ProfileBlockPhrases) {
		return true
	}
	for _, sel := range wechat.ProfileBlockSelectors {
		if visible, err := page.IsVisible(ctx, sel); err == nil && visible {
			return true
		}
	}
	return false
}

// scrapeAnchors emits article anchors from the rendered page. They carry no
// publish time, so they go in last and only add what the responses missed.
func (s *ProfileStrategy) scrapeAnchors(ctx context.Context, page browser.Page, emit Emitter) error {
	html, err := page.Content(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.WithError(err).Warn("Could not read page markup for anchor scrape")
		return nil
	}
	anchors, err := wechat.ParseAnchors(html)
	if err != nil {
		s.logger.WithError(err).Warn("Anchor scrape failed")
		return nil
	}
	if len(anchors) == 0 {
		return nil
	}

	added, err := emit(wechat.AnchorLinks(anchors))
	if err != nil {
		return err
	}
	s.logger.InfoWithFields("DOM anchors scraped", map[string]interface{}{
		"found": len(anchors),
		"added": added,
	})
	return nil
}

// getMsgCollector accumulates getmsg replies for one page. Handlers may run on
// the browser's event goroutine.
type getMsgCollector struct {
	mu     sync.Mutex
	items  []storage.LinkRecord
	more   bool
	apiErr bool
	logger logger.Logger
}

func newGetMsgCollector(log logger.Logger) *getMsgCollector {
	return &getMsgCollector{more: true, logger: log}
}

func (c *getMsgCollector) handle(resp *browser.Response) {
	reply, err := wechat.ParseGetMsg(resp.Body)
	if err != nil {
		c.logger.WithError(err).Debug("Ignoring unrecognized history response")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ret := reply.Status(); ret != wechat.RetOK {
		c.logger.WarnWithFields("History API returned an error", map[string]interface{}{
			"ret":    ret,
			"errmsg": reply.ErrMsg,
		})
		c.apiErr = true
		return
	}
	c.more = reply.CanContinue()

	links, err := reply.Links()
	if err != nil {
		c.logger.WithError(err).Debug("Ignoring malformed article list")
		return
	}
	c.items = append(c.items, links...)
}

func (c *getMsgCollector) since(offset int) []storage.LinkRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	if offset >= len(c.items) {
		return nil
	}
	return append([]storage.LinkRecord(nil), c.items[offset:]...)
}

func (c *getMsgCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *getMsgCollector) canContinue() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.more
}

func (c *getMsgCollector) failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apiErr
}

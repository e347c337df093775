package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wxarchiver/pkg/browser"
	"wxarchiver/pkg/checkpoint"
	"wxarchiver/pkg/config"
	"wxarchiver/pkg/errors"
	"wxarchiver/pkg/logger"
	"wxarchiver/pkg/ratelimit"
	"wxarchiver/pkg/retry"
	"wxarchiver/pkg/wechat"
)

// PlatformStrategyName is the provenance name of the platform list API strategy
const PlatformStrategyName = "platform_api"

const appMsgFetchScript = `(async () => {
	const r = await fetch(%s, {
		credentials: 'include',
		headers: {'X-Requested-With': 'XMLHttpRequest'}
	});
	return await r.json();
})()`

// PlatformStrategy logs in to the publishing platform by QR code and pages
// through the appmsg list API with the resulting session token. The QR code
// has to be scanned, so the browser is always headed.
type PlatformStrategy struct {
	launcher browser.Launcher
	browser  *config.BrowserConfig
	cfg      *config.DiscoveryConfig
	pacer    ratelimit.Pacer
	logger   logger.Logger

	checkpointDir string
	resume        bool
}

// NewPlatformStrategy creates the QR login strategy
func NewPlatformStrategy(launcher browser.Launcher, browserCfg *config.BrowserConfig, cfg *config.DiscoveryConfig, log logger.Logger) *PlatformStrategy {
	if log == nil {
		log = logger.GetLogger()
	}
	return &PlatformStrategy{
		launcher: launcher,
		browser:  browserCfg,
		cfg:      cfg,
		pacer:    ratelimit.NewJitterDelay(cfg.PageDelayMin, cfg.PageDelayMax),
		logger:   log.WithField("strategy", PlatformStrategyName),
	}
}

// WithCheckpoints saves pagination progress under dir; with resume set, a
// run continues from the offset an earlier run stopped at.
func (s *PlatformStrategy) WithCheckpoints(dir string, resume bool) *PlatformStrategy {
	s.checkpointDir = dir
	s.resume = resume
	return s
}

func (s *PlatformStrategy) Name() string { return PlatformStrategyName }

// Discover implements Strategy
func (s *PlatformStrategy) Discover(ctx context.Context, historyURL string, emit Emitter) error {
	biz, err := wechat.ExtractBiz(historyURL)
	if err != nil {
		return err
	}
	fakeID := wechat.BizToFakeID(biz)
	s.logger.InfoWithFields("Using platform QR-login strategy", map[string]interface{}{"biz": biz})
	progress, cp := s.openCheckpoint(biz)

	session, err := s.launcher.Launch(ctx, browser.SessionOptions{
		Headless:  false,
		ExecPath:  s.browser.ExecPath,
		UserAgent: s.browser.UserAgent,
		Width:     s.browser.WindowWidth,
		Height:    s.browser.WindowHeight,
	})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer session.Close()

	page, err := session.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	token, err := s.login(ctx, page)
	if err != nil {
		return err
	}
	return s.paginate(ctx, page, fakeID, token, emit, progress, cp)
}

// openCheckpoint returns the account's checkpoint, or nils when progress is
// not tracked. Checkpoint trouble never stops discovery.
func (s *PlatformStrategy) openCheckpoint(biz string) (*checkpoint.Manager, *checkpoint.Checkpoint) {
	if s.checkpointDir == "" {
		return nil, nil
	}
	mgr, err := checkpoint.NewManager(s.checkpointDir, biz, s.logger)
	if err != nil {
		s.logger.WithError(err).Warn("Pagination checkpoints disabled")
		return nil, nil
	}

	if s.resume {
		cp, err := mgr.Load()
		switch {
		case err != nil:
			s.logger.WithError(err).Warn("Ignoring unreadable checkpoint")
		case cp != nil:
			s.logger.InfoWithFields("Resuming platform pagination", map[string]interface{}{
				"begin": cp.Begin,
				"total": cp.Total,
			})
			return mgr, cp
		}
	}

	cp, err := mgr.Create(biz, PlatformStrategyName)
	if err != nil {
		s.logger.WithError(err).Warn("Pagination checkpoints disabled")
		return nil, nil
	}
	return mgr, cp
}

// login waits for the operator to scan the QR code. Success is signalled by
// the platform redirecting to a URL that carries the session token.
func (s *PlatformStrategy) login(ctx context.Context, page browser.Page) (string, error) {
	if err := page.Navigate(ctx, wechat.BaseURL, s.browser.NavigationTimeout); err != nil {
		return "", err
	}
	s.logger.InfoWithFields("Waiting for QR code login, scan it with the mobile app and confirm", map[string]interface{}{
		"timeout": s.cfg.LoginTimeout,
	})

	deadline := time.Now().Add(s.cfg.LoginTimeout)
	for {
		if current, err := page.URL(ctx); err == nil {
			if token, ok := wechat.ExtractToken(current); ok {
				s.logger.Info("Login successful")
				return token, nil
			}
		}
		if !time.Now().Before(deadline) {
			break
		}
		if err := retry.Wait(ctx, s.cfg.LoginPollInterval); err != nil {
			return "", err
		}
	}

	body, _ := page.BodyText(ctx)
	if containsAny(body, wechat.NotEligiblePhrases) {
		return "", errors.New(errors.ErrorTypeAccountNotEligible,
			"the scanning account has no linked Official Account; register one or supply session cookies instead")
	}
	return "", errors.New(errors.ErrorTypeLoginTimeout,
		fmt.Sprintf("QR login not completed within %s", s.cfg.LoginTimeout))
}

// paginate walks the list API until the reported total is reached. Throttling
// escalates the wait and eventually ends the run with what was collected; an
// expired token is fatal; any other failure just stops paging. Progress is
// checkpointed after every page and the checkpoint dropped once the listing is exhausted.
func (s *PlatformStrategy) paginate(ctx context.Context, page browser.Page, fakeID, token string, emit Emitter,
	progress *checkpoint.Manager, cp *checkpoint.Checkpoint) error {
	pageSize := s.cfg.PageSize
	if pageSize <= 0 {
		pageSize = wechat.DefaultPageSize
	}
	throttle := ratelimit.NewEscalation(s.cfg.RateLimitStep, s.cfg.RateLimitMaxHits)

	begin, pageNum, collected := 0, 0, 0
	if cp != nil {
		begin = cp.Begin
	}
	total := -1
	finish := func() {
		if progress == nil {
			return
		}
		if err := progress.Delete(); err != nil {
			s.logger.WithError(err).Warn("Failed to remove finished checkpoint")
		}
	}

	for pageNum < s.cfg.MaxPages {
		reply, err := s.fetchPage(ctx, page, wechat.AppMsgURL(fakeID, token, begin, pageSize))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.logger.WithError(err).ErrorWithFields("Platform API call failed, stopping", map[string]interface{}{
				"begin": begin,
			})
			return nil
		}

		if reply.Ret() == wechat.RetRateLimited {
			wait, exhausted := throttle.Hit()
			if exhausted {
				s.logger.WarnWithFields("Rate limited repeatedly, keeping links collected so far", map[string]interface{}{
					"hits":      throttle.Hits(),
					"collected": collected,
				})
				return nil
			}
			logger.LogRateLimit(s.logger, PlatformStrategyName, throttle.Hits(), wait)
			if err := retry.Wait(ctx, wait); err != nil {
				return err
			}
			continue
		}
		throttle.Reset()

		switch ret := reply.Ret(); ret {
		case wechat.RetOK:
		case wechat.RetSessionExpired:
			return errors.New(errors.ErrorTypeSessionExpired, "platform session token expired, log in again").WithCode(ret)
		default:
			s.logger.ErrorWithFields("Platform API error, stopping", map[string]interface{}{
				"ret":     ret,
				"err_msg": reply.BaseResp.ErrMsg,
			})
			return nil
		}

		if total < 0 {
			total = reply.Total
			s.logger.InfoWithFields("Account article count", map[string]interface{}{"total": total})
		}
		if len(reply.Items) == 0 {
			finish()
			return nil
		}

		batch := reply.Links()
		added := 0
		if len(batch) > 0 {
			if added, err = emit(batch); err != nil {
				return err
			}
		}
		collected += len(batch)
		pageNum++
		logger.LogDiscoveryPage(s.logger, PlatformStrategyName, pageNum, len(batch), added, collected)

		begin += pageSize
		if begin >= total {
			finish()
			return nil
		}
		if progress != nil {
			if err := progress.Advance(cp, begin, total, len(batch)); err != nil {
				s.logger.WithError(err).Warn("Failed to save checkpoint")
			}
		}
		if err := s.pacer.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *PlatformStrategy) fetchPage(ctx context.Context, page browser.Page, apiURL string) (*wechat.AppMsgPage, error) {
	var raw json.RawMessage
	if err := page.Evaluate(ctx, fmt.Sprintf(appMsgFetchScript, browser.Quote(apiURL)), &raw); err != nil {
		return nil, err
	}
	return wechat.ParseAppMsgPage(raw)
}

package capture

import (
	"wxarchiver/pkg/auth"
	"wxarchiver/pkg/browser"
	"wxarchiver/pkg/config"
	"wxarchiver/pkg/wechat"
)

// SessionOptions returns the browser context settings for capturing articles.
// Article pages open a "use the mobile client" wall for clients they do not
// recognize, so capture presents as the in-app browser unless CaptureMobile is off.
func SessionOptions(cfg *config.BrowserConfig, cookies []auth.Cookie) browser.SessionOptions {
	opts := browser.SessionOptions{
		Headless:  cfg.CaptureHeadless,
		ExecPath:  cfg.ExecPath,
		UserAgent: cfg.UserAgent,
		Width:     cfg.WindowWidth,
		Height:    cfg.WindowHeight,
		Cookies:   cookies,
	}
	if cfg.CaptureMobile {
		opts.UserAgent = wechat.MobileUserAgent
		opts.Width = wechat.MobileViewportWidth
		opts.Height = wechat.MobileViewportHeight
		opts.Mobile = true
	}
	return opts
}

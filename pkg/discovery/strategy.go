package discovery

import (
	"context"
	"strings"

	"wxarchiver/pkg/auth"
	"wxarchiver/pkg/browser"
	"wxarchiver/pkg/config"
	"wxarchiver/pkg/logger"
	"wxarchiver/pkg/storage"
)

// Emitter persists a batch of discovered links and reports how many were new
type Emitter func(batch []storage.LinkRecord) (added int, err error)

// Strategy is one way of enumerating an account's articles
type Strategy interface {
	Name() string
	// Discover emits batches until the history is exhausted or a stop
	// condition is reached. A nil error means whatever was emitted is the
	// result, even if pagination stopped early.
	Discover(ctx context.Context, historyURL string, emit Emitter) error
}

// NewStrategy picks the cookie-injected strategy when cookies are supplied,
// otherwise the interactive platform login.
func NewStrategy(launcher browser.Launcher, cfg *config.Config, cookies []auth.Cookie, log logger.Logger) Strategy {
	if len(cookies) > 0 {
		return NewProfileStrategy(launcher, &cfg.Browser, &cfg.Discovery, cookies, log)
	}
	return NewPlatformStrategy(launcher, &cfg.Browser, &cfg.Discovery, log).
		WithCheckpoints(cfg.CheckpointDir(), cfg.Discovery.Resume)
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

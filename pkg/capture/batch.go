package capture

import (
	"context"
	"errors"
	"time"

	"wxarchiver/pkg/browser"
	"wxarchiver/pkg/config"
	"wxarchiver/pkg/logger"
	"wxarchiver/pkg/ratelimit"
	"wxarchiver/pkg/retry"
	"wxarchiver/pkg/storage"
)

// Stats are the aggregate counters of one batch
type Stats struct {
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
	Elapsed   time.Duration
}

// Outcome is what happened to one ledger entry
type Outcome string

const (
	OutcomeCaptured Outcome = "captured"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// Event reports the outcome of one ledger entry to an observer
type Event struct {
	Index   int
	Total   int
	Link    storage.LinkRecord
	Outcome Outcome
	Meta    *storage.ArticleMeta
	Err     error
}

// Batch captures a list of links one after another on a shared session
type Batch struct {
	session    browser.Session
	capturer   *Capturer
	store      *storage.Manager
	cfg        *config.CaptureConfig
	failedPath string
	pacer      ratelimit.Pacer
	logger     logger.Logger

	// Observe, when set, is called after every entry
	Observe func(Event)
}

// NewBatch creates a batch driver. Failures are appended to failedPath.
func NewBatch(session browser.Session, capturer *Capturer, store *storage.Manager, cfg *config.CaptureConfig, failedPath string, log logger.Logger) *Batch {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Batch{
		session:    session,
		capturer:   capturer,
		store:      store,
		cfg:        cfg,
		failedPath: failedPath,
		pacer:      ratelimit.NewJitterDelay(cfg.MinDelay, cfg.MaxDelay),
		logger:     log,
	}
}

// WithPacer replaces the pause taken between consecutive entries
func (b *Batch) WithPacer(p ratelimit.Pacer) *Batch {
	b.pacer = p
	return b
}

// Run captures links oldest first. Individual failures are counted, logged
// and recorded; only cancellation or an unreadable archive ends the run early.
func (b *Batch) Run(ctx context.Context, links []storage.LinkRecord) (Stats, error) {
	start := time.Now()
	stats := Stats{Total: len(links)}

	completed, err := b.store.CompletedIDs()
	if err != nil {
		return stats, err
	}

	ordered := append([]storage.LinkRecord(nil), links...)
	storage.SortByPublishTime(ordered)

	for i, link := range ordered {
		if err := ctx.Err(); err != nil {
			stats.Elapsed = time.Since(start)
			return stats, err
		}

		id := storage.ArticleID(link.URL)
		event := Event{Index: i + 1, Total: len(ordered), Link: link}

		if _, done := completed[id]; done && !b.cfg.Force {
			stats.Skipped++
			event.Outcome = OutcomeSkipped
			b.notify(event)
			continue
		}

		meta, err := b.captureWithRetry(ctx, link, id)
		if err != nil {
			if ctx.Err() != nil {
				stats.Elapsed = time.Since(start)
				return stats, ctx.Err()
			}
			stats.Failed++
			event.Outcome = OutcomeFailed
			event.Err = err
			b.recordFailure(link, id, err)
		} else {
			stats.Succeeded++
			completed[id] = struct{}{}
			event.Outcome = OutcomeCaptured
			event.Meta = meta
		}
		b.notify(event)

		if i < len(ordered)-1 {
			if err := b.pacer.Wait(ctx); err != nil {
				stats.Elapsed = time.Since(start)
				return stats, err
			}
		}
	}

	stats.Elapsed = time.Since(start)
	logger.LogBatchSummary(b.logger, stats.Total, stats.Succeeded, stats.Skipped, stats.Failed, stats.Elapsed)
	return stats, nil
}

// captureWithRetry runs capture attempts on fresh pages. The returned error is
// the last attempt's own error, not the retry summary.
func (b *Batch) captureWithRetry(ctx context.Context, link storage.LinkRecord, id string) (*storage.ArticleMeta, error) {
	attempts := b.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	meta, err := retry.DoWithResult(ctx, func(ctx context.Context, attempt int) (*storage.ArticleMeta, error) {
		meta, err := b.attempt(ctx, link)
		logger.LogArticle(b.logger, link.URL, id, attempt, err)
		lastErr = err
		return meta, err
	}, &retry.Config{
		MaxAttempts: attempts,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:    b.cfg.RetryBaseDelay,
			MaxDelay:     b.cfg.RetryMaxDelay,
			Multiplier:   2,
			JitterFactor: b.cfg.RetryJitter,
		},
		RetryIf: retry.RetryUnlessCanceled,
		Logger:  b.logger,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || lastErr == nil {
			return nil, err
		}
		return nil, lastErr
	}
	return meta, nil
}

// attempt captures once on its own page, closing the page whatever happens
func (b *Batch) attempt(ctx context.Context, link storage.LinkRecord) (*storage.ArticleMeta, error) {
	page, err := b.session.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			b.logger.WithError(cerr).Debug("Failed to close page")
		}
	}()
	return b.capturer.Capture(ctx, page, link)
}

func (b *Batch) recordFailure(link storage.LinkRecord, id string, cause error) {
	rec := storage.FailureRecord{
		URL:       link.URL,
		ArticleID: id,
		Title:     link.Title,
		Error:     cause.Error(),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err := storage.AppendFailure(b.failedPath, rec); err != nil {
		b.logger.WithError(err).ErrorWithFields("Failed to record capture failure", map[string]interface{}{
			"url":        link.URL,
			"article_id": id,
		})
	}
}

func (b *Batch) notify(e Event) {
	if b.Observe != nil {
		b.Observe(e)
	}
}

package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// LogArticle records the outcome of one capture attempt
func LogArticle(l Logger, url, articleID string, attempt int, err error) {
	fields := map[string]interface{}{
		"url":        url,
		"article_id": articleID,
		"attempt":    attempt,
	}
	if err != nil {
		l.WithError(err).WarnWithFields("Article capture attempt failed", fields)
		return
	}
	l.InfoWithFields("Article captured", fields)
}

// LogRateLimit records platform throttling and the backoff chosen for it
func LogRateLimit(l Logger, strategy string, hits int, wait time.Duration) {
	l.WithFields(map[string]interface{}{
		"strategy": strategy,
		"hits":     hits,
		"wait":     wait,
		"action":   "rate_limited",
	}).Warn("Rate limit reached, backing off")
}

// LogDiscoveryPage records one page or round of link discovery
func LogDiscoveryPage(l Logger, strategy string, page, received, added, total int) {
	l.InfoWithFields("Discovery page processed", map[string]interface{}{
		"strategy": strategy,
		"page":     page,
		"received": received,
		"added":    added,
		"total":    total,
	})
}

// LogBatchSummary records the aggregate counters of a capture batch
func LogBatchSummary(l Logger, total, succeeded, skipped, failed int, elapsed time.Duration) {
	l.InfoWithFields("Capture batch finished", map[string]interface{}{
		"total":     total,
		"succeeded": succeeded,
		"skipped":   skipped,
		"failed":    failed,
		"elapsed":   elapsed,
	})
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { z := zerolog.Nop(); return &z }

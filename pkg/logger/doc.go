// Package logger provides structured logging for the archiver.
//
// It wraps zerolog behind a small Logger interface so that components receive
// a logger at construction time and tests can substitute NewTestLogger or
// NewNopLogger.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("component", "capture")
//	log.InfoWithFields("Article captured", map[string]interface{}{
//	    "article_id": id,
//	    "images":     n,
//	})
//
// Console output is colorized; when a log file is configured, JSON lines are
// appended to it as well.
package logger

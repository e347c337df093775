package discovery

import (
	"context"
	"time"

	"wxarchiver/pkg/logger"
	"wxarchiver/pkg/storage"
)

// Result summarizes one discovery run
type Result struct {
	Strategy string
	Added    int
	Total    int
	Elapsed  time.Duration
}

// Engine runs a strategy against a ledger
type Engine struct {
	ledger *storage.Ledger
	logger logger.Logger
}

// NewEngine creates an engine that merges into ledger
func NewEngine(ledger *storage.Ledger, log logger.Logger) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Engine{ledger: ledger, logger: log}
}

// Run drives strategy to completion. Every emitted batch is merged and flushed
// immediately, so an error still leaves all earlier batches on disk; the
// returned Result reflects them either way.
func (e *Engine) Run(ctx context.Context, strategy Strategy, historyURL string) (*Result, error) {
	start := time.Now()
	result := &Result{Strategy: strategy.Name()}

	e.logger.InfoWithFields("Starting link discovery", map[string]interface{}{
		"strategy": strategy.Name(),
		"ledger":   e.ledger.Path(),
		"known":    e.ledger.Len(),
	})

	emit := func(batch []storage.LinkRecord) (int, error) {
		added, err := e.ledger.Merge(batch)
		result.Added += added
		return added, err
	}

	err := strategy.Discover(ctx, historyURL, emit)

	result.Total = e.ledger.Len()
	result.Elapsed = time.Since(start)

	fields := map[string]interface{}{
		"strategy": result.Strategy,
		"added":    result.Added,
		"total":    result.Total,
		"ledger":   e.ledger.Path(),
	}
	if err != nil {
		e.logger.WithError(err).ErrorWithFields("Link discovery stopped", fields)
		return result, err
	}
	e.logger.InfoWithFields("Link discovery finished", fields)
	return result, nil
}

package storage

import (
	"errors"
	"fmt"
	"os"
)

// FailureRecord is one failed capture observation
type FailureRecord struct {
	URL       string `json:"url"`
	ArticleID string `json:"article_id"`
	Title     string `json:"title"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// AppendFailure appends rec to the failure log. The log is never deduplicated at write time.
func AppendFailure(path string, rec FailureRecord) error {
	return AppendJSONL(path, rec)
}

// ReadFailures returns every failure record in log order
func ReadFailures(path string) ([]FailureRecord, error) {
	records, _, err := ReadJSONL[FailureRecord](path)
	return records, err
}

// DedupFailures keeps the first record for each URL, preserving order
func DedupFailures(records []FailureRecord) []FailureRecord {
	seen := make(map[string]struct{}, len(records))
	var unique []FailureRecord
	for _, r := range records {
		if r.URL == "" {
			continue
		}
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}
		unique = append(unique, r)
	}
	return unique
}

// DrainFailures reads and deduplicates the failure log, then moves it aside to
// path+".bak" so a retry run starts a fresh log. A missing log yields nothing.
func DrainFailures(path string) ([]FailureRecord, error) {
	records, err := ReadFailures(path)
	if err != nil {
		return nil, err
	}
	unique := DedupFailures(records)
	if len(unique) == 0 {
		return nil, nil
	}

	if err := os.Rename(path, path+".bak"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to move failure log aside: %w", err)
	}
	return unique, nil
}

// AsLinks converts failure records into ledger entries for refetching
func AsLinks(records []FailureRecord) []LinkRecord {
	links := make([]LinkRecord, 0, len(records))
	for _, r := range records {
		links = append(links, LinkRecord{URL: r.URL, Title: r.Title, Source: SourceRetry})
	}
	return links
}

package storage

import (
	"fmt"
	"sort"
)

// Provenance tags for link records
const (
	SourcePlatformAPI = "platform_api"
	SourceNetwork     = "network"
	SourceDOM         = "dom"
	SourceRetry       = "retry"
)

// LinkRecord is one discovered article reference
type LinkRecord struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	PublishTime *string `json:"publish_time"`
	Source      string  `json:"source"`
}

// PublishTimeOrEmpty returns the publish time, or "" when unknown
func (r LinkRecord) PublishTimeOrEmpty() string {
	if r.PublishTime == nil {
		return ""
	}
	return *r.PublishTime
}

// Normalizer canonicalizes a raw article URL, reporting false for URLs that are not articles
type Normalizer func(raw string) (string, bool)

// SortByPublishTime orders records oldest first; unknown times sort before all known ones
// and ties keep their existing order.
func SortByPublishTime(records []LinkRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].PublishTimeOrEmpty() < records[j].PublishTimeOrEmpty()
	})
}

// Ledger is the durable, deduplicated, ordered set of discovered links.
// It is not safe for concurrent use.
type Ledger struct {
	path      string
	normalize Normalizer
	records   []LinkRecord
	seen      map[string]struct{}
	skipped   int
}

// LoadLedger reads the ledger at path. A missing file is an empty ledger; malformed
// lines and records without a URL are skipped.
func LoadLedger(path string, normalize Normalizer) (*Ledger, error) {
	raw, skipped, err := ReadJSONL[LinkRecord](path)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	l := &Ledger{
		path:      path,
		normalize: normalize,
		seen:      make(map[string]struct{}, len(raw)),
		skipped:   skipped,
	}
	for _, r := range raw {
		if r.URL == "" {
			l.skipped++
			continue
		}
		key := l.key(r.URL)
		if _, dup := l.seen[key]; dup {
			continue
		}
		l.seen[key] = struct{}{}
		l.records = append(l.records, r)
	}
	return l, nil
}

func (l *Ledger) key(url string) string {
	if l.normalize != nil {
		if norm, ok := l.normalize(url); ok {
			return norm
		}
	}
	return url
}

// Merge normalizes each incoming record, drops those already known or not recognized
// as articles, and when anything was added re-sorts and rewrites the whole ledger.
// It returns the number of records added.
func (l *Ledger) Merge(batch []LinkRecord) (int, error) {
	added := 0
	for _, item := range batch {
		url := item.URL
		if l.normalize != nil {
			norm, ok := l.normalize(url)
			if !ok {
				continue
			}
			url = norm
		}
		if _, dup := l.seen[url]; dup {
			continue
		}
		l.seen[url] = struct{}{}
		item.URL = url
		l.records = append(l.records, item)
		added++
	}

	if added == 0 {
		return 0, nil
	}

	SortByPublishTime(l.records)
	if err := WriteJSONL(l.path, l.records); err != nil {
		return added, fmt.Errorf("failed to flush ledger: %w", err)
	}
	return added, nil
}

// Records returns a copy of the ledger contents in their persisted order
func (l *Ledger) Records() []LinkRecord {
	out := make([]LinkRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of unique records
func (l *Ledger) Len() int {
	return len(l.records)
}

// Skipped returns how many persisted lines could not be used at load time
func (l *Ledger) Skipped() int {
	return l.skipped
}

// Path returns the backing file location
func (l *Ledger) Path() string {
	return l.path
}

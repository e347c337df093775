package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNormalize(raw string) (string, bool) {
	url := strings.ReplaceAll(raw, "&amp;", "&")
	url = strings.Replace(url, "http://", "https://", 1)
	if !strings.Contains(url, "mp.weixin.qq.com/s") {
		return "", false
	}
	if i := strings.Index(url, "#"); i >= 0 {
		url = url[:i]
	}
	return url, true
}

func strPtr(s string) *string { return &s }

func TestLedgerMergeDedupAndSort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.jsonl")
	l, err := LoadLedger(path, testNormalize)
	require.NoError(t, err)

	added, err := l.Merge([]LinkRecord{
		{URL: "https://mp.weixin.qq.com/s/c", Title: "c", PublishTime: strPtr("2024-03-01T00:00:00"), Source: SourceNetwork},
		{URL: "http://mp.weixin.qq.com/s/a#rd", Title: "a", PublishTime: strPtr("2024-01-01T00:00:00"), Source: SourceNetwork},
		{URL: "https://mp.weixin.qq.com/s/a", Title: "a again", Source: SourceDOM},
		{URL: "https://example.com/not-an-article", Title: "x"},
		{URL: "https://mp.weixin.qq.com/s/dom", Title: "dom only", Source: SourceDOM},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	records := l.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "https://mp.weixin.qq.com/s/dom", records[0].URL, "unknown time sorts first")
	assert.Equal(t, "https://mp.weixin.qq.com/s/a", records[1].URL)
	assert.Equal(t, "https://mp.weixin.qq.com/s/c", records[2].URL)

	reloaded, err := LoadLedger(path, testNormalize)
	require.NoError(t, err)
	assert.Equal(t, records, reloaded.Records())
}

func TestLedgerMergeIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.jsonl")
	batch := []LinkRecord{
		{URL: "https://mp.weixin.qq.com/s/1", PublishTime: strPtr("2024-01-02T00:00:00")},
		{URL: "https://mp.weixin.qq.com/s/2", PublishTime: strPtr("2024-01-01T00:00:00")},
	}

	l, err := LoadLedger(path, testNormalize)
	require.NoError(t, err)
	_, err = l.Merge(batch)
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	again, err := LoadLedger(path, testNormalize)
	require.NoError(t, err)
	added, err := again.Merge(batch)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestLedgerNoWriteWhenNothingAdded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.jsonl")
	l, err := LoadLedger(path, testNormalize)
	require.NoError(t, err)

	added, err := l.Merge([]LinkRecord{{URL: "https://example.com/x"}})
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.NoFileExists(t, path)
}

func TestLedgerLoadSkipsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.jsonl")
	content := `{"url":"https://mp.weixin.qq.com/s/1","title":"one","publish_time":null,"source":"dom"}
not json

{"title":"no url"}
{"url":"https://mp.weixin.qq.com/s/1","title":"dup"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	l, err := LoadLedger(path, testNormalize)
	require.NoError(t, err)
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, 2, l.Skipped())
	assert.Equal(t, "one", l.Records()[0].Title)
}

func TestLedgerWritesUnescapedURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.jsonl")
	l, err := LoadLedger(path, testNormalize)
	require.NoError(t, err)

	_, err = l.Merge([]LinkRecord{{URL: "https://mp.weixin.qq.com/s?__biz=MzA&amp;mid=1&amp;idx=1", Title: "中文"}})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"url":"https://mp.weixin.qq.com/s?__biz=MzA&mid=1&idx=1"`)
	assert.Contains(t, string(data), `"title":"中文"`)
	assert.Contains(t, string(data), `"publish_time":null`)
}

func TestSortByPublishTimeIsStable(t *testing.T) {
	records := []LinkRecord{
		{URL: "b", PublishTime: strPtr("2024")},
		{URL: "n1"},
		{URL: "a", PublishTime: strPtr("2023")},
		{URL: "n2"},
	}
	SortByPublishTime(records)

	var urls []string
	for _, r := range records {
		urls = append(urls, r.URL)
	}
	assert.Equal(t, []string{"n1", "n2", "a", "b"}, urls)
}

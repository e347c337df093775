package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureLogAppendAndDrain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "failed.jsonl")

	require.NoError(t, AppendFailure(path, FailureRecord{URL: "u1", ArticleID: "a1", Error: "first", Timestamp: "t1"}))
	require.NoError(t, AppendFailure(path, FailureRecord{URL: "u2", ArticleID: "a2", Error: "x", Timestamp: "t2"}))
	require.NoError(t, AppendFailure(path, FailureRecord{URL: "u1", ArticleID: "a1", Error: "second", Timestamp: "t3"}))

	all, err := ReadFailures(path)
	require.NoError(t, err)
	assert.Len(t, all, 3, "log is not deduplicated at write time")

	unique, err := DrainFailures(path)
	require.NoError(t, err)
	require.Len(t, unique, 2)
	assert.Equal(t, "first", unique[0].Error, "first occurrence wins")
	assert.Equal(t, "u2", unique[1].URL)

	assert.NoFileExists(t, path)
	assert.FileExists(t, path+".bak")
}

func TestDrainFailuresMissingLog(t *testing.T) {
	unique, err := DrainFailures(filepath.Join(t.TempDir(), "failed.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, unique)
}

func TestAsLinks(t *testing.T) {
	links := AsLinks([]FailureRecord{{URL: "u", Title: "t"}})
	require.Len(t, links, 1)
	assert.Equal(t, "u", links[0].URL)
	assert.Equal(t, "t", links[0].Title)
	assert.Nil(t, links[0].PublishTime)
	assert.Equal(t, SourceRetry, links[0].Source)
}

package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"wxarchiver/pkg/logger"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)
	return m
}

func writeMeta(t *testing.T, m *Manager, dirName string, meta *ArticleMeta) string {
	t.Helper()
	dir := filepath.Join(m.ArticlesDir(), dirName)
	require.NoError(t, os.MkdirAll(dir, 0755))
	meta.Dir = dirName
	require.NoError(t, m.SaveMeta(dir, meta))
	return dir
}

func TestNewManagerCreatesLayout(t *testing.T) {
	m := newTestManager(t)
	info, err := os.Stat(m.ArticlesDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(m.Root(), "assets", "abc"), m.AssetsDir("abc"))
}

func TestCompletedIDsSkipsMalformed(t *testing.T) {
	m := newTestManager(t)

	writeMeta(t, m, "20240101_done", &ArticleMeta{ArticleID: "done", Completed: true})
	writeMeta(t, m, "20240102_partial", &ArticleMeta{ArticleID: "partial", Completed: false})

	broken := filepath.Join(m.ArticlesDir(), "broken")
	require.NoError(t, os.MkdirAll(broken, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(broken, "meta.json"), []byte("{not json"), 0644))

	require.NoError(t, os.MkdirAll(filepath.Join(m.ArticlesDir(), "no_meta"), 0755))

	ids, err := m.CompletedIDs()
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"done": {}}, ids)
}

func TestFindArticleDir(t *testing.T) {
	m := newTestManager(t)
	dir := writeMeta(t, m, "20240101_a", &ArticleMeta{ArticleID: "aaa", Completed: true})

	found, ok := m.FindArticleDir("aaa")
	assert.True(t, ok)
	assert.Equal(t, dir, found)

	_, ok = m.FindArticleDir("zzz")
	assert.False(t, ok)
}

func TestEnsureUniqueDir(t *testing.T) {
	m := newTestManager(t)
	base := m.ArticlesDir()

	assert.Equal(t, filepath.Join(base, "name"), m.EnsureUniqueDir("name"))

	require.NoError(t, os.MkdirAll(filepath.Join(base, "name"), 0755))
	assert.Equal(t, filepath.Join(base, "name_2"), m.EnsureUniqueDir("name"))

	require.NoError(t, os.MkdirAll(filepath.Join(base, "name_2"), 0755))
	assert.Equal(t, filepath.Join(base, "name_3"), m.EnsureUniqueDir("name"))
}

func TestPlaceArticleDirCreatesFresh(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.MkdirAll(filepath.Join(m.ArticlesDir(), "20240101_title"), 0755))

	p, err := m.PlaceArticleDir("new-id", "20240101_title")
	require.NoError(t, err)
	assert.Equal(t, PlacementCreated, p.Action)
	assert.Equal(t, "20240101_title_2", filepath.Base(p.Dir))
	assert.DirExists(t, p.Dir)
}

func TestPlaceArticleDirKeepsSameName(t *testing.T) {
	m := newTestManager(t)
	dir := writeMeta(t, m, "20240101_title", &ArticleMeta{ArticleID: "x", Completed: true})

	p, err := m.PlaceArticleDir("x", "20240101_title")
	require.NoError(t, err)
	assert.Equal(t, PlacementKept, p.Action)
	assert.Equal(t, dir, p.Dir)
}

func TestPlaceArticleDirRenamePreservesIdentifier(t *testing.T) {
	m := newTestManager(t)
	old := writeMeta(t, m, "x_short_id", &ArticleMeta{ArticleID: "X", Completed: true})
	require.NoError(t, os.WriteFile(filepath.Join(old, "article.html"), []byte("<p>hi</p>"), 0644))

	p, err := m.PlaceArticleDir("X", "20240301_Real_Title")
	require.NoError(t, err)
	assert.Equal(t, PlacementRenamed, p.Action)
	assert.Equal(t, "20240301_Real_Title", filepath.Base(p.Dir))

	assert.NoDirExists(t, old)
	meta, err := LoadMeta(p.Dir)
	require.NoError(t, err)
	assert.Equal(t, "X", meta.ArticleID)
	assert.FileExists(t, filepath.Join(p.Dir, "article.html"))
}

func TestPlaceArticleDirReplacesOrphan(t *testing.T) {
	m := newTestManager(t)
	old := writeMeta(t, m, "old_name", &ArticleMeta{ArticleID: "X"})
	orphan := filepath.Join(m.ArticlesDir(), "new_name")
	require.NoError(t, os.MkdirAll(orphan, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(orphan, "stale.txt"), []byte("x"), 0644))

	p, err := m.PlaceArticleDir("X", "new_name")
	require.NoError(t, err)
	assert.Equal(t, PlacementReplaced, p.Action)
	assert.Equal(t, orphan, p.Dir)
	assert.NoDirExists(t, old)
	assert.NoFileExists(t, filepath.Join(orphan, "stale.txt"))

	meta, err := LoadMeta(p.Dir)
	require.NoError(t, err)
	assert.Equal(t, "X", meta.ArticleID)
}

func TestPlaceArticleDirProtectsOtherArticle(t *testing.T) {
	m := newTestManager(t)
	mine := writeMeta(t, m, "mine", &ArticleMeta{ArticleID: "X"})
	theirs := writeMeta(t, m, "shared_name", &ArticleMeta{ArticleID: "Y", Completed: true})

	p, err := m.PlaceArticleDir("X", "shared_name")
	require.NoError(t, err)
	assert.Equal(t, PlacementConflict, p.Action)
	assert.Equal(t, mine, p.Dir)

	meta, err := LoadMeta(theirs)
	require.NoError(t, err)
	assert.Equal(t, "Y", meta.ArticleID)
}

func TestSaveMetaFormat(t *testing.T) {
	m := newTestManager(t)
	dir := filepath.Join(m.ArticlesDir(), "d")

	require.NoError(t, m.SaveMeta(dir, &ArticleMeta{
		ArticleID: "id",
		URL:       "https://mp.weixin.qq.com/s?__biz=a&mid=1",
		Title:     "标题",
		Completed: true,
	}))

	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `"article_id": "id"`)
	assert.Contains(t, text, `"url": "https://mp.weixin.qq.com/s?__biz=a&mid=1"`)
	assert.Contains(t, text, `"title": "标题"`)
	assert.Contains(t, text, `"completed": true`)
	assert.True(t, strings.HasPrefix(text, "{\n  "))
}

func TestLoadMetaRequiresIdentifier(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta.json"), []byte(`{"completed": true}`), 0644))

	_, err := LoadMeta(dir)
	assert.Error(t, err)
}

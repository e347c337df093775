package storage

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestArticleID(t *testing.T) {
	id := ArticleID("https://mp.weixin.qq.com/s/abc")
	assert.Len(t, id, 40)
	assert.Equal(t, id, ArticleID("https://mp.weixin.qq.com/s/abc"))
	assert.NotEqual(t, id, ArticleID("https://mp.weixin.qq.com/s/abd"))
	// sha1("abc")
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", ArticleID("abc"))
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello World", "Hello_World"},
		{"  spaced   out  ", "spaced_out"},
		{`a<b>c:d"e/f\g|h?i*j`, "abcdefghij"},
		{"微信 公众号：文章", "微信_公众号：文章"},
		{"tab\tand\nnewline", "tabandnewline"},
		{"", "untitled"},
		{"???", "untitled"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), "input %q", tt.in)
	}
}

func TestSlugifyBoundsLength(t *testing.T) {
	long := strings.Repeat("字", 80)
	slug := Slugify(long)
	assert.Equal(t, 50, utf8.RuneCountInString(slug))

	trailing := strings.Repeat("a", 49) + " b"
	assert.Equal(t, strings.Repeat("a", 49), Slugify(trailing))
}

func TestDirName(t *testing.T) {
	id := "0123456789abcdef0123"

	tests := []struct {
		name, publish, title, want string
	}{
		{"iso datetime", "2024-05-31T21:29:15", "My Title", "20240531_My_Title"},
		{"iso date", "2024-05-31", "t", "20240531_t"},
		{"rfc3339", "2024-05-31T21:29:15+08:00", "t", "20240531_t"},
		{"localized", "2024年6月4日 16:35", "标题", "20240604_标题"},
		{"unparseable time", "yesterday", "t", "t"},
		{"no time", "", "t", "t"},
		{"no title", "2024-05-31T00:00:00", "", "20240531_0123456789ab"},
		{"nothing", "", "   ", "0123456789ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DirName(tt.publish, tt.title, id))
		})
	}
}

package storage

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const maxSlugRunes = 50

var (
	illegalPathChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
	looseDate        = regexp.MustCompile(`(\d{4})\D+(\d{1,2})\D+(\d{1,2})`)
)

// ISO-like layouts accepted for publish times, most specific first
var publishLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ArticleID returns the stable identifier of an article: the hex SHA-1 of its canonical URL
func ArticleID(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Slugify turns arbitrary text into a directory-safe name. Non-ASCII text is
// preserved, whitespace runs become a single underscore and the result is at
// most 50 runes. It never returns an empty string.
func Slugify(text string) string {
	text = illegalPathChars.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	text = whitespaceRun.ReplaceAllString(text, "_")

	if utf8.RuneCountInString(text) > maxSlugRunes {
		text = string([]rune(text)[:maxSlugRunes])
		text = strings.TrimRight(text, "_")
	}

	if text == "" {
		return "untitled"
	}
	return text
}

// DirName computes the canonical directory name for an article:
// "YYYYMMDD_<slug>" when the publish time yields a date, otherwise just the slug.
// Without a title the slug is the first 12 characters of the identifier.
func DirName(publishTime, title, articleID string) string {
	slug := Slugify(title)
	if strings.TrimSpace(title) == "" {
		slug = articleID
		if len(slug) > 12 {
			slug = slug[:12]
		}
	}

	if prefix, ok := datePrefix(publishTime); ok {
		return prefix + "_" + slug
	}
	return slug
}

func datePrefix(publishTime string) (string, bool) {
	publishTime = strings.TrimSpace(publishTime)
	if publishTime == "" {
		return "", false
	}

	for _, layout := range publishLayouts {
		if t, err := time.Parse(layout, publishTime); err == nil {
			return t.Format("20060102"), true
		}
	}

	// Localized forms such as "2024年6月14日 16:35"
	if m := looseDate.FindStringSubmatch(publishTime); m != nil {
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return fmt.Sprintf("%s%02d%02d", m[1], month, day), true
	}
	return "", false
}

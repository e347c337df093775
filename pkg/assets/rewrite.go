package assets

import (
	"path"
	"sort"
	"strings"
)

// RelPrefix is the path from an article directory to its asset directory
func RelPrefix(articleID string) string {
	return path.Join("..", "..", "assets", articleID)
}

// Rewrite replaces each mapped URL, and its &amp; escaped form, with prefix/filename.
// Longer URLs are replaced first so a URL that prefixes another cannot clobber it.
func Rewrite(text string, mapping Mapping, prefix string) string {
	if len(mapping) == 0 {
		return text
	}

	urls := make([]string, 0, len(mapping))
	for u := range mapping {
		urls = append(urls, u)
	}
	sort.Slice(urls, func(i, j int) bool {
		if len(urls[i]) != len(urls[j]) {
			return len(urls[i]) > len(urls[j])
		}
		return urls[i] < urls[j]
	})

	pairs := make([]string, 0, len(urls)*4)
	for _, u := range urls {
		local := prefix + "/" + mapping[u]
		pairs = append(pairs, u, local)
		if escaped := strings.ReplaceAll(u, "&", "&amp;"); escaped != u {
			pairs = append(pairs, escaped, local)
		}
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

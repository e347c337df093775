// Package storage owns every on-disk representation of the archive.
//
// Layout under the archive root:
//
//	links.jsonl                  link ledger, one LinkRecord per line
//	failed.jsonl                 append-only failure log
//	articles/<dir>/meta.json     ArticleMeta, the sole marker of completion
//	articles/<dir>/article.html
//	articles/<dir>/article.md
//	assets/<article_id>/<file>   saved images
//
// Whole-file writes go through WriteFileAtomic (temporary sibling plus
// rename); logs are line appends. Scans tolerate malformed metadata by
// skipping it. The package assumes a single process per archive root.
package storage

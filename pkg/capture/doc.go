// Package capture renders archived articles and persists them.
//
// A Capturer turns one open page into an article directory:
//
//	articles/<date>_<slug>/article.html  full page, images rewritten to local paths
//	articles/<date>_<slug>/article.md    front matter followed by a markdown rendering
//	articles/<date>_<slug>/meta.json     the completion record
//	assets/<article_id>/<hash>.<ext>     images, intercepted or downloaded
//
// A Batch drives a Capturer over the link ledger in publish order, retrying
// each article on a fresh page, recording exhausted articles in the failure
// log and pacing itself between articles.
package capture

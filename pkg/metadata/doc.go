// Package metadata extracts an article's title, author, account and publish
// time from its rendered page and renders the Markdown front matter.
package metadata

// Package assets reconciles the images an article references with the image
// responses observed while it rendered, downloads whatever was not observed,
// and rewrites markup to point at the local copies.
package assets

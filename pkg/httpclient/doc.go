// Package httpclient downloads article images directly when they were not
// observed on the wire while the article rendered.
//
// Non-2xx replies become typed errors: 429 and 5xx are retried, 4xx are not.
package httpclient

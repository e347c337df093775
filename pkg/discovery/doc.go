// Package discovery enumerates the articles an account has published.
//
// Two strategies share one output contract. PlatformStrategy logs the operator
// into the publishing platform by QR code and pages through its article list
// API. ProfileStrategy opens the mobile history page with injected session
// cookies and collects the pagination responses it triggers by scrolling.
// Engine funnels every batch either strategy emits into the link ledger, so
// each batch is durable before the next page is requested.
package discovery

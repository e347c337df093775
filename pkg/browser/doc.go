// Package browser is the archiver's view of a controllable browser: pages
// that navigate, expose rendered markup, evaluate scripts, and report the
// network responses they receive.
//
// Launcher/Session/Page are interfaces so discovery and capture can be
// exercised against browsertest fakes; ChromeLauncher drives a real
// Chrome through chromedp.
package browser

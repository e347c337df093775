// Package wechat describes the parts of the Official Account platform the
// archiver talks to: URLs and query parameters, the JSON payloads returned
// by the two enumeration endpoints, the article markup selectors, and the
// phrases that signal a login or verification wall.
//
// Payloads are parsed into explicit types at the boundary. Anything that
// does not have the expected shape is reported as a parsing error so the
// caller can log and skip it.
package wechat

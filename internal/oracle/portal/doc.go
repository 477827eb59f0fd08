// Package portal implements oracle.Factory and oracle.Session against the
// FRED web portal.
//
// Two strategies load pages:
//
//   - browser: a headless Chrome driven by go-rod with the stealth
//     evasions applied; each session owns one browser and one tab
//   - http: a plain HTTP client with a cookie jar and browser-like headers
//
// The strategy is picked once from configuration. Both strategies share the
// same parsers, so a session behaves identically apart from how the bytes
// arrive.
package portal

// Package authgate signs users in through OAuth2/OIDC providers and keeps
// them signed in with server-side sessions stored in Redis.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config], the [ErrorKey]
// enum and value types. Identity resolution lives in internal/flows, audit dispatch in
// internal/audit and rate limiting in internal/rate. HTTP lives elsewhere: oauthflow runs
// the browser handshake and middleware guards routes.
//
// # Sessions
//
// A session token is 160 random bits encoded as base32. Redis only sees its SHA-256
// digest. Sessions live for [SessionConfig.TTL] and slide forward when validated with less
// than half of it left. Two requests racing to extend the same session both write; the
// later write wins.
//
// # What this package must NOT do
//
//   - Link accounts across providers by email.
//   - Turn failures into redirects; callers map [ErrorKey] onto their error pages.
//   - Import any sub-package that re-imports authgate (no import cycles).
package authgate

// Package middleware exposes the HTTP guards built on top of authgate.Engine.
//
// # Guards
//
//   - [RequireSession] reads the session cookie, validates it and attaches [Auth].
//   - [RequireOrigin] rejects state-changing requests from unregistered origins.
//   - [RequireRoles] checks the roles of the authenticated user.
//
// Guards are plain func(http.Handler) http.Handler values. Compose them with
// [Chain] or chi's With.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Session lookups,
// expiry and revocation all happen in the Engine.
//
// # What this package must NOT do
//
//   - Access Redis or the user store directly.
//   - Authorize a request when the session store cannot be reached.
package middleware

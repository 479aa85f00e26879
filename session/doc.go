// Package session provides Redis-backed server-side sessions keyed by the
// SHA-256 digest of an opaque bearer token.
//
// # Storage layout
//
// Each session is a JSON document at "{prefix}:{sessionID}" whose Redis expiry
// is pinned to the record's ExpiresAt with PEXPIREAT. A per-user set at
// "{indexPrefix}:{userID}" lists the session IDs issued to that user so all of
// them can be revoked at once. Index entries may outlive the records they
// point to; readers tolerate that.
//
// # Architecture boundaries
//
// [Store] is a typed adapter over Redis. [Manager] owns the lifecycle:
// token generation, creation, validation with sliding expiry, and revocation.
// Neither type knows about HTTP or cookies.
//
// # What this package must NOT do
//
//   - Persist the bearer token itself. Only its digest is ever written.
//   - Import authgate or any HTTP package.
package session

// Package flows contains orchestrators for Engine operations that span more
// than one backend.
//
// Each flow function accepts a typed dependency struct and returns a result
// carrying a classified failure, so the root package can map failures onto
// its own error keys without the flow importing it.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authgate (to avoid import cycles).
//   - Own any backend; the Engine does.
package flows

// Package rate provides a Redis-backed fixed-window counter used to bound how
// often one client may start a sign-in flow.
//
// # Window semantics
//
// INCR + EXPIRE NX in one MULTI under {prefix}:{key}, default
// prefix "afl". The window starts at the first hit, not on a wall-clock
// boundary.
package rate

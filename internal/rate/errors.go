package rate

import "errors"

var (
	// ErrRateLimited is returned once a key exhausts its window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

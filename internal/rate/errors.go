package rate

import "errors"

var (
	// ErrRedisUnavailable wraps counter-store transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrUnknownClass is returned for a class with no configured policy.
	ErrUnknownClass = errors.New("unknown rate limit class")
)

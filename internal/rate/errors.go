package rate

import "errors"

var (
	// ErrRateLimited is returned once a key has used up its window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable is returned when Redis cannot answer.
	ErrUnavailable = errors.New("rate limiter unavailable")
)

package domain

import "errors"

var (
	ErrInvalidKind           = errors.New("invalid_kind")
	ErrInvalidOwner          = errors.New("invalid_owner")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidCurrency       = errors.New("invalid_currency")
	ErrInvalidID             = errors.New("invalid_id")
	ErrNotFound              = errors.New("payable_not_found")
	ErrNotRetryable          = errors.New("payable_not_retryable")
	ErrRetryLimitExceeded    = errors.New("retry_limit_exceeded")
	ErrActiveLimitReached    = errors.New("active_limit_reached")
	ErrInvalidTransition     = errors.New("invalid_transition")
	ErrConcurrentUpdate      = errors.New("concurrent_update")
	ErrRetryInProgress       = errors.New("retry_in_progress")
	ErrUnresolvableReference = errors.New("unresolvable_reference")
	ErrRateLimited           = errors.New("rate_limited")
)

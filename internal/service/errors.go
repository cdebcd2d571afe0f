package service

import "errors"

// Error taxonomy surfaced to the API layer. NotFound lives in the store
// package; everything else originates here.
var (
	// ErrValidation marks malformed input, e.g. a past schedule time.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition marks a status change the lifecycle table forbids.
	ErrInvalidTransition = errors.New("status transition not permitted")
	// ErrQuotaExceeded marks a publish rejected by the channel's daily limit.
	ErrQuotaExceeded = errors.New("daily publish limit reached")
	// ErrIngestionFailed marks a drive collaborator failure; retryable.
	ErrIngestionFailed = errors.New("ingestion failed")
	// ErrPublishFailed marks a publish collaborator failure; retryable by an
	// explicit operator re-call.
	ErrPublishFailed = errors.New("publish failed")
)

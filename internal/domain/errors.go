package domain

import "errors"

var (
	// ErrQuotaExceeded marks an upstream rejection that is worth retrying
	// with backoff before surfacing as a recoverable turn failure.
	ErrQuotaExceeded = errors.New("remote quota exceeded")

	ErrSessionNotFound = errors.New("session not found")
	ErrModelNotFound   = errors.New("model profile not found")
)

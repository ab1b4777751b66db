package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	// ErrStorageUnavailable wraps every failure of the durable queue store.
	// Callers must surface it: a failed persist means the submission is lost.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

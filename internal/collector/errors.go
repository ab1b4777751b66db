package collector

import (
	"errors"
	"fmt"
	"strings"
)

// CollectorError describes a failed attempt. Transient is true for transport
// failures and false for logical rejections by a reachable collector.
type CollectorError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *CollectorError) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "delivery failed"
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (http %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("collector: %s: %v", msg, e.Cause)
	}
	return "collector: " + msg
}

func (e *CollectorError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether err came from a transport-level failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var collectorErr *CollectorError
	if errors.As(err, &collectorErr) {
		return collectorErr.Transient
	}
	return false
}

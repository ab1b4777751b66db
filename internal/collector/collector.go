package collector

import (
	"context"
	"errors"

	"github.com/kursadbilgin/incident-outbox/internal/domain"
)

// Kind classifies a single delivery attempt.
type Kind string

const (
	KindDelivered   Kind = "delivered"
	KindRejected    Kind = "rejected"
	KindUnreachable Kind = "unreachable"
)

func (k Kind) String() string { return string(k) }

// Collector is the outbound delivery port. Attempt performs exactly one
// network call and never retries.
type Collector interface {
	Attempt(ctx context.Context, submission domain.Submission) Outcome
}

// Outcome is the classified result of one attempt. Err is nil only for
// KindDelivered.
type Outcome struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func Delivered(statusCode int) Outcome {
	return Outcome{Kind: KindDelivered, StatusCode: statusCode}
}

func Rejected(err *CollectorError) Outcome {
	return Outcome{Kind: KindRejected, StatusCode: err.StatusCode, Err: err}
}

func Unreachable(err *CollectorError) Outcome {
	return Outcome{Kind: KindUnreachable, StatusCode: err.StatusCode, Err: err}
}

func (o Outcome) IsDelivered() bool { return o.Kind == KindDelivered }

// Reason is the human-readable cause shown to the user.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	var collectorErr *CollectorError
	if errors.As(o.Err, &collectorErr) && collectorErr.Message != "" {
		return collectorErr.Message
	}
	return o.Err.Error()
}

package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type NotificationKind string

const (
	NotificationDelivered     NotificationKind = "delivered"
	NotificationSavedForLater NotificationKind = "saved_for_later"
	NotificationSaveFailed    NotificationKind = "save_failed"
	NotificationSweepFinished NotificationKind = "sweep_finished"
	NotificationSweepFailed   NotificationKind = "sweep_failed"
)

// DeliveryNotification is the user-facing message produced by the outbox.
// ClearForm tells the collaborator the bound form can be reset.
type DeliveryNotification struct {
	Kind      NotificationKind `json:"kind"`
	Key       string           `json:"key,omitempty"`
	FormType  string           `json:"formType,omitempty"`
	Message   string           `json:"message"`
	Reason    string           `json:"reason,omitempty"`
	ClearForm bool             `json:"clearForm"`
}

// SweepSummary aggregates one resync pass. Skipped is set when another sweep
// was already running and this call did nothing. LoadError is set when the
// queue could not be read and nothing was attempted.
type SweepSummary struct {
	Attempted   int       `json:"attempted"`
	Succeeded   int       `json:"succeeded"`
	Rejected    int       `json:"rejected"`
	Unreachable int       `json:"unreachable"`
	Skipped     bool      `json:"skipped"`
	LoadError   string    `json:"loadError,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
}

func (s SweepSummary) Failed() int {
	return s.Rejected + s.Unreachable
}

func (s SweepSummary) Notification() DeliveryNotification {
	if s.LoadError != "" {
		return DeliveryNotification{
			Kind:    NotificationSweepFailed,
			Message: "Pending forms could not be read from this device.",
			Reason:  s.LoadError,
		}
	}
	if s.Skipped {
		return DeliveryNotification{
			Kind:    NotificationSweepFinished,
			Message: "A resync is already in progress.",
		}
	}
	if s.Attempted == 0 {
		return DeliveryNotification{
			Kind:    NotificationSweepFinished,
			Message: "No pending forms to send.",
		}
	}
	return DeliveryNotification{
		Kind:    NotificationSweepFinished,
		Message: fmt.Sprintf("Sent %d of %d pending forms.", s.Succeeded, s.Attempted),
	}
}

// Notifier receives notifications that are not returned to a caller, such as
// the end-of-sweep summary of a connectivity-triggered resync.
type Notifier interface {
	Notify(ctx context.Context, notification DeliveryNotification)
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, notification DeliveryNotification) {
	n.logger.Info("outbox notification",
		zap.String("kind", string(notification.Kind)),
		zap.String("key", notification.Key),
		zap.String("message", notification.Message),
		zap.String("reason", notification.Reason),
	)
}

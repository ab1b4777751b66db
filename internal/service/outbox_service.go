package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kursadbilgin/incident-outbox/internal/collector"
	"github.com/kursadbilgin/incident-outbox/internal/domain"
	"github.com/kursadbilgin/incident-outbox/internal/observability"
	"github.com/kursadbilgin/incident-outbox/internal/ratelimit"
	"github.com/kursadbilgin/incident-outbox/internal/repository"
	"go.uber.org/zap"
)

// OutboxService owns the submission lifecycle: one delivery attempt per
// submit, the local queue on failure, and resync sweeps over that queue.
type OutboxService struct {
	submissions repository.SubmissionRepository
	collector   collector.Collector
	catalog     *domain.FormCatalog
	rateLimiter ratelimit.RateLimiter
	scope       string
	notifier    Notifier
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time

	sweeping atomic.Bool
	locks    *recordLocks

	lastSweepMu sync.RWMutex
	lastSweep   *SweepSummary
}

// ResendResult reports a single-item retry. Found is false when the record
// was already gone, which is not an error.
type ResendResult struct {
	Key       string         `json:"key"`
	Found     bool           `json:"found"`
	Delivered bool           `json:"delivered"`
	Outcome   collector.Kind `json:"outcome,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

func NewOutboxService(
	submissions repository.SubmissionRepository,
	deliveryClient collector.Collector,
	catalog *domain.FormCatalog,
	rateLimiter ratelimit.RateLimiter,
	scope string,
	logger *zap.Logger,
) (*OutboxService, error) {
	if submissions == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if deliveryClient == nil {
		return nil, fmt.Errorf("collector is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("form catalog is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OutboxService{
		submissions: submissions,
		collector:   deliveryClient,
		catalog:     catalog,
		rateLimiter: rateLimiter,
		scope:       scope,
		notifier:    NewLogNotifier(logger),
		logger:      logger,
		now:         time.Now,
		locks:       newRecordLocks(),
	}, nil
}

func (s *OutboxService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *OutboxService) SetNotifier(notifier Notifier) {
	if s == nil || notifier == nil {
		return
	}
	s.notifier = notifier
}

func (s *OutboxService) Catalog() *domain.FormCatalog {
	return s.catalog
}

// StartIncident opens a new incident session for the collaborator.
func (s *OutboxService) StartIncident() domain.Incident {
	return domain.NewIncident(s.now())
}

// Submit attempts delivery once and queues the submission when the attempt
// fails. A returned error means the submission could not be saved either.
func (s *OutboxService) Submit(
	ctx context.Context,
	incident domain.Incident,
	formType string,
	fields map[string]string,
) (DeliveryNotification, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := incident.Validate(); err != nil {
		return DeliveryNotification{}, err
	}
	parsedFormType, err := s.catalog.Parse(formType)
	if err != nil {
		return DeliveryNotification{}, err
	}

	ctx = observability.WithIncidentID(ctx, incident.ID)
	submission := domain.NewSubmission(incident.ID, parsedFormType, fields)
	logger := observability.WithContextLogger(s.logger, ctx).With(zap.String("key", submission.Key))

	unlock := s.locks.lock(submission.Key)
	defer unlock()

	outcome := s.attempt(ctx, submission)
	if outcome.IsDelivered() {
		// A queued copy from an earlier failure is now stale.
		if err := s.submissions.Remove(ctx, submission.Key); err != nil {
			s.metrics.IncStorageError("remove")
			logger.Warn("failed to remove stale pending submission after delivery", zap.Error(err))
		}
		s.refreshPendingCount(ctx)

		logger.Info("submission delivered")
		return DeliveryNotification{
			Kind:      NotificationDelivered,
			Key:       submission.Key,
			FormType:  submission.FormType.String(),
			Message:   "Form sent successfully.",
			ClearForm: true,
		}, nil
	}

	reason := outcome.Reason()
	if err := s.submissions.Upsert(ctx, &submission); err != nil {
		s.metrics.IncStorageError("upsert")
		logger.Error("failed to save submission for later",
			zap.String("outcome", outcome.Kind.String()),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return DeliveryNotification{
			Kind:     NotificationSaveFailed,
			Key:      submission.Key,
			FormType: submission.FormType.String(),
			Message:  "The form could not be sent or saved on this device. Do not clear it.",
			Reason:   reason,
		}, fmt.Errorf("failed to save submission %s: %w", submission.Key, err)
	}
	s.refreshPendingCount(ctx)

	logger.Info("submission saved for later",
		zap.String("outcome", outcome.Kind.String()),
		zap.String("reason", reason),
	)
	return DeliveryNotification{
		Kind:      NotificationSavedForLater,
		Key:       submission.Key,
		FormType:  submission.FormType.String(),
		Message:   "Form saved on this device and will be sent when the connection returns.",
		Reason:    reason,
		ClearForm: true,
	}, nil
}

// ResyncAll attempts every queued submission one at a time. A call made
// while another sweep is running returns immediately with Skipped set.
func (s *OutboxService) ResyncAll(ctx context.Context) (SweepSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if !s.sweeping.CompareAndSwap(false, true) {
		s.metrics.IncSweep("skipped")
		s.logger.Info("resync already in progress, skipping")
		return SweepSummary{Skipped: true}, nil
	}
	defer s.sweeping.Store(false)

	summary := SweepSummary{StartedAt: s.now().UTC()}

	pending, err := s.submissions.GetAll(ctx)
	if err != nil {
		err = fmt.Errorf("failed to load pending submissions: %w", err)
		summary.LoadError = err.Error()
		summary.FinishedAt = s.now().UTC()
		s.storeLastSweep(summary)
		s.metrics.IncStorageError("get_all")
		s.metrics.IncSweep("failed")
		s.logger.Error("resync could not read the outbox", zap.Error(err))
		s.notifier.Notify(ctx, summary.Notification())
		return summary, err
	}

	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		s.sweepOne(ctx, pending[i].Key, &summary)
	}

	s.refreshPendingCount(ctx)
	summary.FinishedAt = s.now().UTC()
	s.storeLastSweep(summary)
	s.metrics.IncSweep("completed")

	s.logger.Info("resync finished",
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("rejected", summary.Rejected),
		zap.Int("unreachable", summary.Unreachable),
	)
	s.notifier.Notify(ctx, summary.Notification())

	return summary, ctx.Err()
}

func (s *OutboxService) sweepOne(ctx context.Context, key string, summary *SweepSummary) {
	unlock := s.locks.lock(key)
	defer unlock()

	// Re-read under the lock: a concurrent submit may have delivered or
	// replaced the record since GetAll.
	submission, err := s.submissions.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return
	}
	if err != nil {
		s.metrics.IncStorageError("get")
		s.logger.Error("failed to load pending submission", zap.String("key", key), zap.Error(err))
		return
	}

	summary.Attempted++
	outcome := s.attempt(ctx, *submission)
	switch outcome.Kind {
	case collector.KindDelivered:
		summary.Succeeded++
		if err := s.submissions.Remove(ctx, key); err != nil {
			s.metrics.IncStorageError("remove")
			s.logger.Warn("failed to remove delivered submission", zap.String("key", key), zap.Error(err))
		}
		return
	case collector.KindRejected:
		summary.Rejected++
	default:
		summary.Unreachable++
	}

	// Transport failures are expected while offline; anything else needs a look.
	level := zap.WarnLevel
	if collector.IsTransient(outcome.Err) {
		level = zap.InfoLevel
	}
	s.logger.Log(level, "pending submission kept in outbox",
		zap.String("key", key),
		zap.String("outcome", string(outcome.Kind)),
		zap.String("reason", outcome.Reason()),
	)
}

// ResendOne retries a single queued submission on explicit user request.
func (s *OutboxService) ResendOne(ctx context.Context, key string) (ResendResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := ResendResult{Key: key}
	if key == "" {
		return result, fmt.Errorf("%w: key is required", domain.ErrValidation)
	}

	unlock := s.locks.lock(key)
	defer unlock()

	submission, err := s.submissions.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Info("resend requested for absent submission", zap.String("key", key))
		return result, nil
	}
	if err != nil {
		s.metrics.IncStorageError("get")
		return result, fmt.Errorf("failed to load submission %s: %w", key, err)
	}
	result.Found = true

	outcome := s.attempt(ctx, *submission)
	result.Outcome = outcome.Kind
	if !outcome.IsDelivered() {
		result.Reason = outcome.Reason()
		return result, nil
	}

	result.Delivered = true
	if err := s.submissions.Remove(ctx, key); err != nil {
		s.metrics.IncStorageError("remove")
		s.logger.Warn("failed to remove resent submission", zap.String("key", key), zap.Error(err))
	}
	s.refreshPendingCount(ctx)
	return result, nil
}

func (s *OutboxService) PendingCount(ctx context.Context) (int64, error) {
	count, err := s.submissions.Count(ctx)
	if err != nil {
		s.metrics.IncStorageError("count")
		return 0, fmt.Errorf("failed to count pending submissions: %w", err)
	}
	return count, nil
}

// ListPending returns the queue in insertion order.
func (s *OutboxService) ListPending(ctx context.Context) ([]domain.PendingItem, error) {
	pending, err := s.submissions.GetAll(ctx)
	if err != nil {
		s.metrics.IncStorageError("get_all")
		return nil, fmt.Errorf("failed to list pending submissions: %w", err)
	}

	items := make([]domain.PendingItem, 0, len(pending))
	for i := range pending {
		items = append(items, pending[i].PendingItem())
	}
	return items, nil
}

// LastSweep returns the most recent completed sweep, if any.
func (s *OutboxService) LastSweep() (SweepSummary, bool) {
	s.lastSweepMu.RLock()
	defer s.lastSweepMu.RUnlock()

	if s.lastSweep == nil {
		return SweepSummary{}, false
	}
	return *s.lastSweep, true
}

func (s *OutboxService) Ping(ctx context.Context) error {
	return s.submissions.Ping(ctx)
}

func (s *OutboxService) attempt(ctx context.Context, submission domain.Submission) collector.Outcome {
	if s.rateLimiter != nil {
		if err := s.rateLimiter.Wait(ctx, s.scope); err != nil {
			return collector.Unreachable(&collector.CollectorError{
				Message:   "delivery paced out before sending",
				Transient: true,
				Cause:     err,
			})
		}
	}

	start := s.now()
	outcome := s.collector.Attempt(ctx, submission)
	s.metrics.ObserveDeliveryAttempt(submission.FormType.String(), outcome.Kind.String(), s.now().Sub(start))
	return outcome
}

func (s *OutboxService) refreshPendingCount(ctx context.Context) {
	count, err := s.submissions.Count(ctx)
	if err != nil {
		s.logger.Warn("failed to refresh pending count", zap.Error(err))
		return
	}
	s.metrics.SetPendingSubmissions(count)
}

func (s *OutboxService) storeLastSweep(summary SweepSummary) {
	s.lastSweepMu.Lock()
	defer s.lastSweepMu.Unlock()
	s.lastSweep = &summary
}

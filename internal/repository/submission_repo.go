package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/incident-outbox/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubmissionRepository is the durable queue of pending submissions. Every
// storage failure is returned wrapped in domain.ErrStorageUnavailable.
type SubmissionRepository interface {
	// Upsert writes or replaces the record at its recomputed key.
	Upsert(ctx context.Context, s *domain.Submission) error
	Get(ctx context.Context, key string) (*domain.Submission, error)
	// GetAll returns pending records in insertion order.
	GetAll(ctx context.Context) ([]domain.Submission, error)
	// Remove is a no-op when key is absent.
	Remove(ctx context.Context, key string) error
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

var _ SubmissionRepository = (*GormSubmissionRepo)(nil)

type GormSubmissionRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormSubmissionRepo(db *gorm.DB) *GormSubmissionRepo {
	return &GormSubmissionRepo{db: db, now: time.Now}
}

func (r *GormSubmissionRepo) Upsert(ctx context.Context, s *domain.Submission) error {
	if s == nil {
		return fmt.Errorf("%w: submission is required", domain.ErrValidation)
	}
	s.PrepareForPersist()
	if err := s.Validate(); err != nil {
		return err
	}

	now := r.now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	model := submissionModelFromDomain(s)
	// created_at is left out of the update set so an overwrite keeps the
	// original queue position.
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "record_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"incident_id", "form_type", "fields", "status", "updated_at"}),
		}).
		Create(model).Error
	if err != nil {
		return storageError("upsert", err)
	}

	var stored SubmissionModel
	if err := r.db.WithContext(ctx).First(&stored, "record_key = ?", s.Key).Error; err == nil {
		s.CreatedAt = stored.CreatedAt
	}
	return nil
}

func (r *GormSubmissionRepo) Get(ctx context.Context, key string) (*domain.Submission, error) {
	var model SubmissionModel
	err := r.db.WithContext(ctx).First(&model, "record_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storageError("get", err)
	}
	return submissionModelToDomain(&model), nil
}

func (r *GormSubmissionRepo) GetAll(ctx context.Context) ([]domain.Submission, error) {
	var models []SubmissionModel
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Order("record_key ASC").
		Find(&models).Error
	if err != nil {
		return nil, storageError("get all", err)
	}

	submissions := make([]domain.Submission, 0, len(models))
	for i := range models {
		submissions = append(submissions, *submissionModelToDomain(&models[i]))
	}
	return submissions, nil
}

func (r *GormSubmissionRepo) Remove(ctx context.Context, key string) error {
	err := r.db.WithContext(ctx).
		Where("record_key = ?", key).
		Delete(&SubmissionModel{}).Error
	if err != nil {
		return storageError("remove", err)
	}
	return nil
}

func (r *GormSubmissionRepo) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&SubmissionModel{}).Count(&total).Error; err != nil {
		return 0, storageError("count", err)
	}
	return total, nil
}

func (r *GormSubmissionRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return storageError("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return storageError("ping", err)
	}
	return nil
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStorageUnavailable, op, err)
}

package repository

import (
	"time"

	"github.com/kursadbilgin/incident-outbox/internal/domain"
	"gorm.io/datatypes"
)

// SubmissionModel is the persistence model for the pending_submissions table.
type SubmissionModel struct {
	RecordKey  string                                `gorm:"type:varchar(512);primaryKey"`
	IncidentID string                                `gorm:"type:varchar(255);not null;index"`
	FormType   domain.FormType                       `gorm:"type:varchar(255);not null"`
	Fields     datatypes.JSONType[map[string]string] `gorm:"not null"`
	Status     domain.DeliveryStatus                 `gorm:"type:varchar(20);not null"`
	CreatedAt  time.Time                             `gorm:"not null;index"`
	UpdatedAt  time.Time
}

func (SubmissionModel) TableName() string {
	return "pending_submissions"
}

func submissionModelFromDomain(s *domain.Submission) *SubmissionModel {
	if s == nil {
		return nil
	}

	return &SubmissionModel{
		RecordKey:  s.Key,
		IncidentID: s.IncidentID,
		FormType:   s.FormType,
		Fields:     datatypes.NewJSONType(s.Fields),
		Status:     s.Status,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

func submissionModelToDomain(m *SubmissionModel) *domain.Submission {
	if m == nil {
		return nil
	}

	fields := m.Fields.Data()
	if fields == nil {
		fields = map[string]string{}
	}

	return &domain.Submission{
		Key:        m.RecordKey,
		IncidentID: m.IncidentID,
		FormType:   m.FormType,
		Fields:     fields,
		Status:     m.Status,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

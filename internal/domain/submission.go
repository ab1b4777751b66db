package domain

import (
	"fmt"
	"strings"
	"time"
)

// KeySeparator joins incident id and form type into the record key.
const KeySeparator = "-"

// DeliveryStatus is the Status_Envio value sent to the collector.
type DeliveryStatus string

const (
	StatusPending DeliveryStatus = "Pendente"
	StatusSent    DeliveryStatus = "Enviado"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusSent:
		return true
	}
	return false
}

// RecordKey derives the store key for an (incident, form type) pair.
func RecordKey(incidentID string, formType FormType) string {
	return incidentID + KeySeparator + formType.String()
}

// Submission is one form's data for one incident, the unit of pending work.
type Submission struct {
	Key        string
	IncidentID string
	FormType   FormType
	Fields     map[string]string
	Status     DeliveryStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewSubmission builds a tentatively pending submission for delivery.
func NewSubmission(incidentID string, formType FormType, fields map[string]string) Submission {
	copied := make(map[string]string, len(fields))
	for name, value := range fields {
		copied[name] = value
	}

	s := Submission{
		IncidentID: strings.TrimSpace(incidentID),
		FormType:   formType,
		Fields:     copied,
		Status:     StatusPending,
	}
	s.Key = s.RecordKey()
	return s
}

func (s Submission) RecordKey() string {
	return RecordKey(s.IncidentID, s.FormType)
}

// PrepareForPersist recomputes the key and forces the pending status. The key
// is never taken from the caller so it cannot diverge from the content.
func (s *Submission) PrepareForPersist() {
	s.Key = s.RecordKey()
	s.Status = StatusPending
	if s.Fields == nil {
		s.Fields = map[string]string{}
	}
}

func (s Submission) Validate() error {
	if strings.TrimSpace(s.IncidentID) == "" {
		return fmt.Errorf("%w: incident id is required, start a new incident first", ErrValidation)
	}
	if strings.TrimSpace(s.FormType.String()) == "" {
		return fmt.Errorf("%w: form type is required", ErrValidation)
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("%w: invalid delivery status %q", ErrValidation, s.Status)
	}
	return nil
}

// PendingItem is the listing view of a queued submission.
type PendingItem struct {
	Key        string
	IncidentID string
	FormType   FormType
	CreatedAt  time.Time
}

func (s Submission) PendingItem() PendingItem {
	return PendingItem{
		Key:        s.Key,
		IncidentID: s.IncidentID,
		FormType:   s.FormType,
		CreatedAt:  s.CreatedAt,
	}
}

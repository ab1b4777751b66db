package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRecordKey(t *testing.T) {
	t.Parallel()

	got := RecordKey("1678886400000-q1w2e3r4t", FormTypeAccidentData)
	if got != "1678886400000-q1w2e3r4t-DADOS ACIDENTE" {
		t.Fatalf("RecordKey() = %q", got)
	}
}

func TestNewSubmissionCopiesFieldsAndDerivesKey(t *testing.T) {
	t.Parallel()

	fields := map[string]string{"placa": "ABC123"}
	s := NewSubmission(" inc-1 ", FormTypeAccidentData, fields)
	fields["placa"] = "changed"

	if s.IncidentID != "inc-1" {
		t.Fatalf("IncidentID = %q, want inc-1", s.IncidentID)
	}
	if s.Key != "inc-1-DADOS ACIDENTE" {
		t.Fatalf("Key = %q", s.Key)
	}
	if s.Status != StatusPending {
		t.Fatalf("Status = %s, want %s", s.Status, StatusPending)
	}
	if s.Fields["placa"] != "ABC123" {
		t.Fatalf("Fields[placa] = %q, want ABC123", s.Fields["placa"])
	}
}

func TestSubmissionPrepareForPersistRecomputesKey(t *testing.T) {
	t.Parallel()

	s := Submission{
		Key:        "forged-key",
		IncidentID: "inc-2",
		FormType:   FormTypeCrashReceipt,
		Status:     StatusSent,
	}
	s.PrepareForPersist()

	if s.Key != "inc-2-RECIBO BATIDA" {
		t.Fatalf("Key = %q, want recomputed key", s.Key)
	}
	if s.Status != StatusPending {
		t.Fatalf("Status = %s, want %s", s.Status, StatusPending)
	}
	if s.Fields == nil {
		t.Fatal("Fields should be initialized")
	}
}

func TestSubmissionValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		s       Submission
		wantErr bool
	}{
		{name: "valid", s: NewSubmission("inc", FormTypeAccidentData, nil)},
		{name: "missing incident", s: NewSubmission("  ", FormTypeAccidentData, nil), wantErr: true},
		{name: "missing form type", s: NewSubmission("inc", "", nil), wantErr: true},
		{name: "invalid status", s: Submission{IncidentID: "inc", FormType: FormTypeAccidentData, Status: "LOST"}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.s.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestFormCatalogParse(t *testing.T) {
	t.Parallel()

	catalog, err := NewFormCatalog("DADOS ACIDENTE", " RECIBO BATIDA ", "DADOS ACIDENTE")
	if err != nil {
		t.Fatalf("NewFormCatalog() error = %v", err)
	}

	if got := catalog.FormTypes(); len(got) != 2 {
		t.Fatalf("FormTypes() = %v, want 2 entries", got)
	}

	ft, err := catalog.Parse(" RECIBO BATIDA")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ft != FormTypeCrashReceipt {
		t.Fatalf("Parse() = %q, want %q", ft, FormTypeCrashReceipt)
	}

	if _, err := catalog.Parse("recibo batida"); !errors.Is(err, ErrValidation) {
		t.Fatalf("Parse() error = %v, want ErrValidation", err)
	}
}

func TestNewFormCatalogRejectsInvalid(t *testing.T) {
	t.Parallel()

	if _, err := NewFormCatalog(); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty catalog error = %v, want ErrValidation", err)
	}
	if _, err := NewFormCatalog("A/B"); !errors.Is(err, ErrValidation) {
		t.Fatalf("slash catalog error = %v, want ErrValidation", err)
	}
}

func TestNewIncident(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1678886400000)
	a := NewIncident(now)
	b := NewIncident(now)

	if !strings.HasPrefix(a.ID, "1678886400000-") {
		t.Fatalf("ID = %q, want unix millis prefix", a.ID)
	}
	if len(a.ID) != len("1678886400000-")+incidentSuffixLen {
		t.Fatalf("ID length = %d", len(a.ID))
	}
	if a.ID == b.ID {
		t.Fatal("incident ids should be unique")
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := (Incident{}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
}

package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const incidentSuffixLen = 9

// Incident is the collaborator-owned session for one real-world accident. It
// is passed explicitly into every submit.
type Incident struct {
	ID        string
	StartedAt time.Time
}

// NewIncident generates an id of the form "<unix-millis>-<random>".
func NewIncident(now time.Time) Incident {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:incidentSuffixLen]
	return Incident{
		ID:        fmt.Sprintf("%d-%s", now.UnixMilli(), suffix),
		StartedAt: now.UTC(),
	}
}

func (i Incident) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("%w: incident id is required, start a new incident first", ErrValidation)
	}
	return nil
}

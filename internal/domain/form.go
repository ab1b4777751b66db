package domain

import (
	"fmt"
	"strings"
)

// FormType names one of the fixed form categories, e.g. the sheet tab the
// collector writes into.
type FormType string

const (
	FormTypeAccidentData FormType = "DADOS ACIDENTE"
	FormTypeCrashReceipt FormType = "RECIBO BATIDA"
)

func (f FormType) String() string { return string(f) }

// FormCatalog is the set of form types the collaborator registered at
// construction time.
type FormCatalog struct {
	ordered []FormType
	known   map[FormType]struct{}
}

func NewFormCatalog(formTypes ...string) (*FormCatalog, error) {
	catalog := &FormCatalog{known: make(map[FormType]struct{}, len(formTypes))}
	for _, raw := range formTypes {
		ft := FormType(strings.TrimSpace(raw))
		if ft == "" {
			return nil, fmt.Errorf("%w: empty form type in catalog", ErrValidation)
		}
		if strings.Contains(ft.String(), "/") {
			return nil, fmt.Errorf("%w: form type %q must not contain '/'", ErrValidation, ft)
		}
		if _, dup := catalog.known[ft]; dup {
			continue
		}
		catalog.known[ft] = struct{}{}
		catalog.ordered = append(catalog.ordered, ft)
	}
	if len(catalog.ordered) == 0 {
		return nil, fmt.Errorf("%w: form catalog is empty", ErrValidation)
	}
	return catalog, nil
}

// Parse resolves a raw form type against the catalog. Matching is exact after
// trimming; labels are sheet names and are case sensitive.
func (c *FormCatalog) Parse(raw string) (FormType, error) {
	ft := FormType(strings.TrimSpace(raw))
	if c == nil {
		return "", fmt.Errorf("%w: form catalog is not configured", ErrValidation)
	}
	if _, ok := c.known[ft]; !ok {
		return "", fmt.Errorf("%w: unknown form type %q", ErrValidation, raw)
	}
	return ft, nil
}

func (c *FormCatalog) FormTypes() []FormType {
	if c == nil {
		return nil
	}
	out := make([]FormType, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Package validator checks ingestion requests before they are queued and
// returns per-field error details.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
)

const (
	maxPrimaryKeyLength = 1024
	maxFieldNameLength  = 255
	maxFieldValueLength = 1048576
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest checks the primary key and every field. Field names
// become row-key components, so the term separators '/' and ':' and the
// segment-row names "s<digits>" are rejected.
func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	errs := make(map[string]string)

	switch {
	case req.PrimaryKey == "":
		errs["primary_key"] = "primary key is required"
	case len(req.PrimaryKey) > maxPrimaryKeyLength:
		errs["primary_key"] = fmt.Sprintf("primary key must be at most %d bytes", maxPrimaryKeyLength)
	}
	if len(req.Fields) == 0 {
		errs["fields"] = "at least one field is required"
	}
	for name, value := range req.Fields {
		key := "fields." + name
		switch {
		case strings.TrimSpace(name) == "":
			errs["fields"] = "field names must not be empty"
		case len(name) > maxFieldNameLength:
			errs[key] = fmt.Sprintf("field name must be at most %d bytes", maxFieldNameLength)
		case strings.ContainsAny(name, "/:"):
			errs[key] = "field name must not contain '/' or ':'"
		case schema.ReservedField(name):
			errs[key] = "field name is reserved"
		case len(value) > maxFieldValueLength:
			errs[key] = fmt.Sprintf("value must be at most %d bytes", maxFieldValueLength)
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

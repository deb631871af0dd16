package pii

import (
	"log/slog"
	"strings"
)

const RedactedPlaceholder = "[REDACTED]"

// Redactor replaces the values of configured fields in relayed payloads.
// Field names match case-insensitively, since producers are not consistent
// about casing (Uid vs uid).
type Redactor struct {
	fieldsToRedact map[string]struct{} // lower-cased
	logger         *slog.Logger
}

// NewRedactor creates a new Redactor instance with a given set of fields to redact.
func NewRedactor(fields []string, logger *slog.Logger) *Redactor {
	fieldSet := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if field = strings.TrimSpace(field); field != "" {
			fieldSet[strings.ToLower(field)] = struct{}{}
		}
	}
	return &Redactor{
		fieldsToRedact: fieldSet,
		logger:         logger,
	}
}

// Enabled reports whether any field is configured.
func (r *Redactor) Enabled() bool {
	return r != nil && len(r.fieldsToRedact) > 0
}

// Redact modifies payload in place and reports whether anything was replaced.
// Only top-level keys are considered. Keys starting with an underscore are
// relay annotations and are never redacted.
func (r *Redactor) Redact(payload map[string]interface{}) bool {
	if !r.Enabled() || len(payload) == 0 {
		return false
	}

	redacted := false
	for key, value := range payload {
		if strings.HasPrefix(key, "_") || value == nil {
			continue
		}
		if _, ok := r.fieldsToRedact[strings.ToLower(key)]; ok {
			payload[key] = RedactedPlaceholder
			redacted = true
		}
	}
	if redacted {
		r.logger.Debug("redacted fields from payload")
	}
	return redacted
}

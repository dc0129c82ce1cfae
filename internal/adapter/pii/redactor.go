package pii

import (
	"log/slog"
	"strings"

	"github.com/V4T54L/logflow/internal/domain"
)

const RedactedPlaceholder = "[REDACTED]"

// Redactor replaces the values of sensitive fields in log events.
type Redactor struct {
	fieldsToRedact map[string]struct{} // Use a map for O(1) lookups
	logger         *slog.Logger
}

// NewRedactor creates a new Redactor instance with a given set of fields to redact.
// A field name also covers its flattened children, so "user" redacts "user.email".
func NewRedactor(fields []string, logger *slog.Logger) *Redactor {
	fieldSet := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" || field == domain.FieldMessage {
			continue
		}
		fieldSet[field] = struct{}{}
	}
	return &Redactor{
		fieldsToRedact: fieldSet,
		logger:         logger,
	}
}

// Enabled reports whether any field is configured for redaction.
func (r *Redactor) Enabled() bool {
	return len(r.fieldsToRedact) > 0
}

// Redact modifies the event in place and reports whether anything was redacted.
func (r *Redactor) Redact(event *domain.LogEvent) bool {
	if len(r.fieldsToRedact) == 0 || len(event.Fields) == 0 {
		return false
	}

	redacted := 0
	for key := range event.Fields {
		if r.shouldRedact(key) {
			event.Fields[key] = RedactedPlaceholder
			redacted++
		}
	}

	if redacted > 0 {
		event.AddTag(domain.TagPIIRedacted)
		r.logger.Debug("redacted pii fields", "event_id", event.ID, "count", redacted)
	}
	return redacted > 0
}

func (r *Redactor) shouldRedact(key string) bool {
	if _, ok := r.fieldsToRedact[key]; ok {
		return true
	}
	for i := strings.IndexByte(key, '.'); i > 0; i = nextDot(key, i) {
		if _, ok := r.fieldsToRedact[key[:i]]; ok {
			return true
		}
	}
	return false
}

func nextDot(s string, i int) int {
	j := strings.IndexByte(s[i+1:], '.')
	if j < 0 {
		return -1
	}
	return i + 1 + j
}

package services

import (
	"sort"
	"strings"
)

// FieldError attaches a validation or conflict message to the input field
// that caused it.
type FieldError struct {
	Field   string
	Message string
}

// FieldErrors is the error type surfaced for every rejected input. It
// carries one or more field-keyed messages and renders as a
// {"field": ["message"]} map at the HTTP boundary.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return strings.Join(parts, "; ")
}

// Map groups the messages by field for JSON rendering.
func (e FieldErrors) Map() map[string][]string {
	out := make(map[string][]string, len(e))
	for _, fe := range e {
		out[fe.Field] = append(out[fe.Field], fe.Message)
	}
	return out
}

// Fields returns the sorted set of offending field names.
func (e FieldErrors) Fields() []string {
	seen := make(map[string]bool, len(e))
	var fields []string
	for _, fe := range e {
		if !seen[fe.Field] {
			seen[fe.Field] = true
			fields = append(fields, fe.Field)
		}
	}
	sort.Strings(fields)
	return fields
}

func (e *FieldErrors) add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

func (e FieldErrors) orNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

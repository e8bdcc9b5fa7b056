package patient

import (
	"errors"
	"strings"
)

var (
	ErrNotFound        = errors.New("patient not found")
	ErrConflict        = errors.New("patient already exists")
	ErrInvalidArgument = errors.New("invalid argument")
)

// FieldIssue describes a single constraint violation.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Issues []FieldIssue `json:"errors"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, i := range e.Issues {
		parts = append(parts, i.Field+": "+i.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	e.Issues = append(e.Issues, FieldIssue{Field: field, Message: msg})
}

func (e *ValidationError) orNil() error {
	if len(e.Issues) == 0 {
		return nil
	}
	return e
}

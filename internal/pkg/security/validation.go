package security

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxIDLength bounds query and document identifiers, in bytes.
const MaxIDLength = 512

// ValidationError represents a field validation error.
type ValidationError struct {
	Field      string
	Value      interface{}
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Constraint, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Constraint)
}

// ValidateID validates a query or document identifier.
// Requirements: non-blank, at most MaxIDLength bytes, valid UTF-8, no
// control characters.
func ValidateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{
			Field:      field,
			Constraint: "required",
		}
	}

	if len(id) > MaxIDLength {
		return &ValidationError{
			Field:      field,
			Value:      len(id),
			Constraint: fmt.Sprintf("maximum length is %d bytes", MaxIDLength),
		}
	}

	if !utf8.ValidString(id) {
		return &ValidationError{
			Field:      field,
			Constraint: "must be valid UTF-8",
		}
	}

	for _, r := range id {
		if unicode.IsControl(r) {
			return &ValidationError{
				Field:      field,
				Constraint: "must not contain control characters",
			}
		}
	}

	return nil
}

package withdrawal

import (
	"fmt"
	"strings"
)

// Validation error codes returned to the UI, keyed per field.
const (
	CodeMissingField        = "missing_field"
	CodeInvalidFormat       = "invalid_format"
	CodeBelowMinimum        = "below_minimum"
	CodeInsufficientBalance = "insufficient_balance"
)

type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors collects every violation found in one pass so the user
// can correct the whole form at once.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

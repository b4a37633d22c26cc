package apperrors

import (
	"errors"
	"strings"
)

// ErrUnimplementedType indicates a filter or attribute value resolved to a
// type no typed table exists for. This is a schema/compiler mismatch, not
// bad user input, and maps to a 500-class response.
var ErrUnimplementedType = errors.New("unimplemented attribute value type")

// ValidationError aggregates every issue found while validating a query.
// Validation is all-or-nothing: the whole query is rejected with a 400-class
// response listing each issue.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Issues, ", ")
}

// Add appends an issue to the error.
func (e *ValidationError) Add(issue string) {
	e.Issues = append(e.Issues, issue)
}

// HasIssues reports whether any issue was recorded.
func (e *ValidationError) HasIssues() bool {
	return len(e.Issues) > 0
}

// AsValidation unwraps err into a *ValidationError if it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

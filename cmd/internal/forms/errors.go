package forms

import "errors"

// ErrInvalid is wrapped by every ValidationError.
var ErrInvalid = errors.New("invalid input")

// ValidationError is a client-side rejection.
type ValidationError struct {
	// Field is the JSON name of the offending field, empty for form-level errors.
	Field   string
	Message string
	// Err is the underlying cause, if any (for example a password policy error).
	Err error
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalid, e.Err}
	}
	return []error{ErrInvalid}
}

func invalid(field, msg string, cause error) *ValidationError {
	return &ValidationError{Field: field, Message: msg, Err: cause}
}

package token

import "errors"

// Public, stable errors for callers.
var (
	// ErrMalformed is returned when a token cannot be split, base64url-decoded, or parsed as JSON claims.
	ErrMalformed = errors.New("malformed token")

	// ErrNoSubject is returned when the sub claim is missing or not a numeric user id.
	ErrNoSubject = errors.New("token subject is not a user id")
)

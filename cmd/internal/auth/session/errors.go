package session

import "errors"

var (
	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")

	// ErrInvalidLoginResponse is returned when the service hands back a token
	// pair the client cannot use. Nothing is persisted in that case.
	ErrInvalidLoginResponse = errors.New("invalid login response")

	// ErrUnknownRole is wrapped when a token carries a role the service never issues.
	ErrUnknownRole = errors.New("unknown role")
)

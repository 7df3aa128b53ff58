package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrReauthRequired is returned when the session could not be refreshed
	// and the user must log in again.
	ErrReauthRequired = errors.New("re-authentication required")

	// ErrInvalidBaseURL is returned by New for a base URL that is not absolute http(s).
	ErrInvalidBaseURL = errors.New("invalid api base url")

	// ErrSessionEnded is joined with ErrReauthRequired when a logout cleared
	// the credentials while a refresh was in flight.
	ErrSessionEnded = errors.New("session ended during refresh")

	errNoRefreshToken = errors.New("no refresh token stored")
)

// APIError is a non-2xx response from the service.
type APIError struct {
	Method string
	Path   string
	Status int
	// Detail is the FastAPI "detail" field, flattened to text. Empty when the
	// body carried none.
	Detail string
	Body   []byte
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// Message returns the human-readable detail, or fallback when the response had none.
func (e *APIError) Message(fallback string) string {
	if e == nil || e.Detail == "" {
		return fallback
	}
	return e.Detail
}

// Message extracts a user-facing message from any error returned by Client.
// Service errors yield their detail; everything else yields fallback.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message(fallback)
	}
	return fallback
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	return &APIError{
		Method: method,
		Path:   path,
		Status: status,
		Detail: parseDetail(body),
		Body:   body,
	}
}

// parseDetail understands both FastAPI shapes:
//
//	{"detail": "Invalid email or password"}
//	{"detail": [{"loc": [...], "msg": "field required", "type": "..."}]}
func parseDetail(body []byte) string {
	var env struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &env); err != nil || len(env.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(env.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(env.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if m := strings.TrimSpace(it.Msg); m != "" {
				msgs = append(msgs, m)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

// Package guard decides whether a navigation may proceed given the session state.
package guard

import (
	"context"
	"errors"
	"net/http"

	"docqa/cmd/internal/auth/session"
)

// Entry points used for redirects.
const (
	LoginPath = "/login"
	HomePath  = "/dashboard"
)

// Decision is the outcome of Decide.
type Decision int

const (
	// Pending means startup has not finished; render a placeholder.
	Pending Decision = iota
	// RedirectLogin sends an unauthenticated caller to LoginPath.
	RedirectLogin
	// RedirectHome sends a non-admin away from an admin route to HomePath.
	RedirectHome
	// Allow lets the navigation proceed.
	Allow
)

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case RedirectLogin:
		return "redirect-login"
	case RedirectHome:
		return "redirect-home"
	case Allow:
		return "allow"
	default:
		return "unknown"
	}
}

var (
	ErrLoading       = errors.New("session is still loading")
	ErrLoginRequired = errors.New("login required")
	ErrAdminRequired = errors.New("admin role required")
)

// StateSource yields the current session snapshot. *session.Controller satisfies it.
type StateSource interface {
	Snapshot(ctx context.Context) session.Snapshot
}

// Decide is a pure function of the snapshot and the route's admin requirement.
func Decide(s session.Snapshot, requireAdmin bool) Decision {
	switch {
	case s.Loading():
		return Pending
	case !s.Authenticated:
		return RedirectLogin
	case requireAdmin && !s.Admin:
		return RedirectHome
	default:
		return Allow
	}
}

// Check renders Decide as an error for non-HTTP callers.
func Check(ctx context.Context, src StateSource, requireAdmin bool) error {
	switch Decide(src.Snapshot(ctx), requireAdmin) {
	case Pending:
		return ErrLoading
	case RedirectLogin:
		return ErrLoginRequired
	case RedirectHome:
		return ErrAdminRequired
	default:
		return nil
	}
}

// Protect wraps next so it only runs when Decide allows it.
func Protect(src StateSource, requireAdmin bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch Decide(src.Snapshot(r.Context()), requireAdmin) {
		case Pending:
			w.Header().Set("Retry-After", "1")
			w.Header().Set("Cache-Control", "no-store")
			http.Error(w, "Loading...", http.StatusServiceUnavailable)
		case RedirectLogin:
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
		case RedirectHome:
			http.Redirect(w, r, HomePath, http.StatusSeeOther)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

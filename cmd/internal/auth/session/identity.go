package session

import "strings"

// Role is the authorization role carried in the access token.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a role the service issues.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// State is the controller's lifecycle state.
type State int

const (
	StateLoading State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Identity is the signed-in user. ID and Role always come from token claims.
// Name and Email are nil when the service has not told us.
type Identity struct {
	ID    int64   `json:"id"`
	Role  Role    `json:"role"`
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// DisplayName returns Name, then Email, then "".
func (i Identity) DisplayName() string {
	if i.Name != nil && *i.Name != "" {
		return *i.Name
	}
	if i.Email != nil {
		return *i.Email
	}
	return ""
}

// Snapshot is a consistent view of the controller at one instant.
type Snapshot struct {
	State    State     `json:"-"`
	Identity *Identity `json:"identity,omitempty"`

	// Authenticated is true when an identity is held and the store still has an access token.
	Authenticated bool `json:"authenticated"`
	// Admin is true when the identity has the admin role.
	Admin bool `json:"admin"`
}

// Loading reports whether startup has not finished.
func (s Snapshot) Loading() bool { return s.State == StateLoading }

// Kind names the snapshot as one of loading, anonymous,
// authenticated-user or authenticated-admin.
func (s Snapshot) Kind() string {
	switch {
	case s.Loading():
		return "loading"
	case !s.Authenticated:
		return "anonymous"
	case s.Admin:
		return "authenticated-admin"
	default:
		return "authenticated-user"
	}
}

// namePlaceholder derives a display name from the local part of an email.
func namePlaceholder(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

func strPtr(s string) *string { return &s }

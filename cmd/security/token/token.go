package token

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultExpiryMargin absorbs clock skew and in-flight latency: a token is
	// considered expired this long before its exp claim.
	DefaultExpiryMargin = 5 * time.Second

	// TypeAccess and TypeRefresh are the values of the type claim.
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims is the decoded payload of an access or refresh token:
// {sub, role, type, exp, iat}.
type Claims struct {
	Role string `json:"role,omitempty"`
	Type string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// UserID coerces the sub claim to the numeric user id used by the backend.
func (c Claims) UserID() (int64, error) {
	sub := strings.TrimSpace(c.Subject)
	if sub == "" {
		return 0, ErrNoSubject
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNoSubject, sub)
	}
	return id, nil
}

// Expiry returns the exp claim and whether it was present.
func (c Claims) Expiry() (time.Time, bool) {
	if c.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}

// Decode extracts the claims segment of raw without verifying the signature.
// Only the second dot-separated segment is read: the header and signature
// are neither required nor inspected. Every failure wraps ErrMalformed;
// Decode never panics.
func Decode(raw string) (Claims, error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) < 2 || parts[1] == "" {
		return Claims{}, fmt.Errorf("%w: missing claims segment", ErrMalformed)
	}

	p := jwt.NewParser(jwt.WithPaddingAllowed())
	payload, err := p.DecodeSegment(parts[1])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(payload), []byte("{")) {
		return Claims{}, fmt.Errorf("%w: claims are not a JSON object", ErrMalformed)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims, nil
}

// IsExpired reports whether raw should no longer be used at time now.
// It is true when now >= exp - margin, and also when raw cannot be decoded
// or carries no exp claim.
func IsExpired(raw string, now time.Time, margin time.Duration) bool {
	claims, err := Decode(raw)
	if err != nil {
		return true
	}
	exp, ok := claims.Expiry()
	if !ok {
		return true
	}
	return !now.Before(exp.Add(-margin))
}

// Clock judges token expiry against an injectable time source.
type Clock struct {
	Now    func() time.Time
	Margin time.Duration
}

// NewClock returns a wall-clock Clock with the given margin (DefaultExpiryMargin when margin < 0).
func NewClock(margin time.Duration) Clock {
	if margin < 0 {
		margin = DefaultExpiryMargin
	}
	return Clock{Now: time.Now, Margin: margin}
}

// Expired reports whether raw is expired at the clock's current time.
func (c Clock) Expired(raw string) bool {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return IsExpired(raw, now(), c.Margin)
}

// Package tokentest mints backend-shaped tokens for tests.
package tokentest

import (
	"strconv"
	"testing"
	"time"

	"docqa/cmd/security/token"

	"github.com/golang-jwt/jwt/v5"
)

// Secret is the HS256 key used by test tokens. Clients never verify it.
const Secret = "docqa-test-secret-not-for-production"

// Access mints an access token for userID/role expiring ttl after now.
func Access(t testing.TB, userID int64, role string, now time.Time, ttl time.Duration) string {
	t.Helper()
	return Mint(t, token.Claims{
		Role: role,
		Type: token.TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
}

// Refresh mints a refresh token for userID expiring ttl after now.
func Refresh(t testing.TB, userID int64, now time.Time, ttl time.Duration) string {
	t.Helper()
	return Mint(t, token.Claims{
		Type: token.TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
}

// Mint signs arbitrary claims with Secret.
func Mint(t testing.TB, claims jwt.Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(Secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

package token_test

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"docqa/cmd/security/token"
	"docqa/cmd/security/token/tokentest"

	"github.com/golang-jwt/jwt/v5"
)

var fixedNow = time.Unix(1_760_000_000, 0).UTC()

func TestDecode_RoundTripAdmin(t *testing.T) {
	t.Parallel()

	raw := tokentest.Access(t, 42, "admin", fixedNow, time.Hour)

	claims, err := token.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	id, err := claims.UserID()
	if err != nil {
		t.Fatalf("UserID: %v", err)
	}
	if id != 42 {
		t.Fatalf("id=%d want 42", id)
	}
	if claims.Role != "admin" {
		t.Fatalf("role=%q want admin", claims.Role)
	}
	if claims.Type != token.TypeAccess {
		t.Fatalf("type=%q want access", claims.Type)
	}
	exp, ok := claims.Expiry()
	if !ok || !exp.Equal(fixedNow.Add(time.Hour)) {
		t.Fatalf("exp=%v ok=%v", exp, ok)
	}
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	notJSON := base64.RawURLEncoding.EncodeToString([]byte(`not json`))

	cases := []struct {
		name string
		in   string
	}{
		{name: "empty", in: ""},
		{name: "blank", in: "   "},
		{name: "single segment", in: "abc"},
		{name: "missing claims segment", in: header + "."},
		{name: "invalid base64", in: header + ".!!!*.sig"},
		{name: "invalid json", in: header + "." + notJSON + ".sig"},
		{name: "json null claims", in: header + "." + base64.RawURLEncoding.EncodeToString([]byte(`null`)) + ".sig"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := token.Decode(tc.in)
			if !errors.Is(err, token.ErrMalformed) {
				t.Fatalf("Decode(%q) err=%v want ErrMalformed", tc.in, err)
			}
		})
	}
}

func TestDecode_ReadsOnlyClaimsSegment(t *testing.T) {
	t.Parallel()

	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"42","role":"admin","exp":1900000000}`))

	for name, raw := range map[string]string{
		"header and claims only": "eyJhbGciOiJIUzI1NiJ9." + payload,
		"undecodable header":     "%%%." + payload + ".sig",
		"extra segments":         "h." + payload + ".sig.more",
	} {
		claims, err := token.Decode(raw)
		if err != nil {
			t.Fatalf("%s: Decode err=%v", name, err)
		}
		id, err := claims.UserID()
		if err != nil || id != 42 || claims.Role != "admin" {
			t.Fatalf("%s: id=%d role=%q err=%v", name, id, claims.Role, err)
		}
	}
}

func TestClaimsUserID_RejectsNonNumericSubject(t *testing.T) {
	t.Parallel()

	raw := tokentest.Mint(t, token.Claims{
		Role: "user",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-number",
			ExpiresAt: jwt.NewNumericDate(fixedNow.Add(time.Hour)),
		},
	})
	claims, err := token.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, err := claims.UserID(); !errors.Is(err, token.ErrNoSubject) {
		t.Fatalf("UserID err=%v want ErrNoSubject", err)
	}
}

func TestIsExpired_Margin(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		ttl  time.Duration
		want bool
	}{
		{name: "one hour ahead", ttl: time.Hour, want: false},
		{name: "six seconds ahead", ttl: 6 * time.Second, want: false},
		{name: "exactly at margin", ttl: 5 * time.Second, want: true},
		{name: "inside margin", ttl: 2 * time.Second, want: true},
		{name: "already expired", ttl: -time.Minute, want: true},
	}

	for _, tc := range cases {
		raw := tokentest.Access(t, 7, "user", fixedNow, tc.ttl)
		got := token.IsExpired(raw, fixedNow, token.DefaultExpiryMargin)
		if got != tc.want {
			t.Fatalf("%s: IsExpired=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsExpired_FailsClosed(t *testing.T) {
	t.Parallel()

	if !token.IsExpired("garbage", fixedNow, token.DefaultExpiryMargin) {
		t.Fatalf("expected malformed token to be expired")
	}

	noExp := tokentest.Mint(t, token.Claims{
		Role:             "user",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "7"},
	})
	if !token.IsExpired(noExp, fixedNow, token.DefaultExpiryMargin) {
		t.Fatalf("expected token without exp to be expired")
	}
}

func TestClock_UsesInjectedNow(t *testing.T) {
	t.Parallel()

	raw := tokentest.Access(t, 7, "user", fixedNow, time.Minute)

	c := token.Clock{Now: func() time.Time { return fixedNow }, Margin: token.DefaultExpiryMargin}
	if c.Expired(raw) {
		t.Fatalf("expected valid at issue time")
	}

	c.Now = func() time.Time { return fixedNow.Add(56 * time.Second) }
	if !c.Expired(raw) {
		t.Fatalf("expected expired within margin of exp")
	}
}

func TestNewClock_NegativeMarginUsesDefault(t *testing.T) {
	t.Parallel()

	c := token.NewClock(-1)
	if c.Margin != token.DefaultExpiryMargin {
		t.Fatalf("margin=%v want %v", c.Margin, token.DefaultExpiryMargin)
	}
}

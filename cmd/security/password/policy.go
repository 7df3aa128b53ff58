package password

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate checks password policy. It does not mutate input.
func (c Config) Validate(password string) error {
	// Count characters (runes), not bytes, to be user-friendly.
	n := utf8.RuneCountInString(password)

	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if n > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}

	if c.Policy.RejectVeryWeak {
		if looksVeryWeak(password) {
			return ErrWeakPassword
		}
	}

	return nil
}

// ValidateConfirmation checks that confirm matches password, then applies Validate.
func (c Config) ValidateConfirmation(password, confirm string) error {
	if password != confirm {
		return ErrMismatch
	}
	return c.Validate(password)
}

// Message renders a policy error the way forms show it.
func (c Config) Message(err error) string {
	switch err {
	case ErrMismatch:
		return "Passwords do not match"
	case ErrPasswordTooShort:
		return fmt.Sprintf("Password must be at least %d characters long", c.Policy.MinLength)
	case ErrPasswordTooLong:
		return fmt.Sprintf("Password must be at most %d characters long", c.Policy.MaxLength)
	case ErrWeakPassword:
		return "Password is too easy to guess"
	case nil:
		return ""
	default:
		return err.Error()
	}
}

// looksVeryWeak is intentionally minimal and conservative.
// It is not a full zxcvbn-style estimator (non-goal).
func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}

	// Reject if all same char.
	allSame := true
	var first rune
	for i, r := range s {
		if i == 0 {
			first = r
			continue
		}
		if r != first {
			allSame = false
			break
		}
	}
	if allSame {
		return true
	}

	// Reject if it's only digits and short-ish (common PIN-like).
	onlyDigits := true
	for _, r := range s {
		if !unicode.IsDigit(r) {
			onlyDigits = false
			break
		}
	}
	if onlyDigits && utf8.RuneCountInString(s) < 8 {
		return true
	}

	// Reject common trivial patterns.
	lower := strings.ToLower(s)
	switch lower {
	case "password", "password1", "password123", "123456", "123456789", "qwerty", "qwerty123", "abc123", "11111111":
		return true
	}

	return false
}

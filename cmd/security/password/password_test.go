package password

import "testing"

func TestValidate_Default(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate("12345"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if err := cfg.Validate("abcdef"); err != nil {
		t.Fatalf("expected six characters to pass, got %v", err)
	}
	// Runes, not bytes.
	if err := cfg.Validate("ééééé"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort for 5 runes, got %v", err)
	}
}

func TestValidate_MinMax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.MinLength = 12
	cfg.Policy.MaxLength = 16

	if err := cfg.Validate("short"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}

	if err := cfg.Validate("this password is definitely too long"); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}

	if err := cfg.Validate("goodpassw0rd!"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestValidateConfirmation(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.ValidateConfirmation("secret1", "secret2"); err != ErrMismatch {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
	// Mismatch is reported before length.
	if err := cfg.ValidateConfirmation("abc", "abd"); err != ErrMismatch {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
	if err := cfg.ValidateConfirmation("abc", "abc"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if err := cfg.ValidateConfirmation("secret1", "secret1"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestMessage(t *testing.T) {
	cfg := DefaultConfig()

	cases := map[error]string{
		ErrMismatch:         "Passwords do not match",
		ErrPasswordTooShort: "Password must be at least 6 characters long",
		ErrPasswordTooLong:  "Password must be at most 128 characters long",
		nil:                 "",
	}
	for err, want := range cases {
		if got := cfg.Message(err); got != want {
			t.Fatalf("Message(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestPolicy_RejectVeryWeak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.RejectVeryWeak = true

	for _, pw := range []string{"password", "11111111", "123456", "aaaaaaa"} {
		if err := cfg.Validate(pw); err != ErrWeakPassword {
			t.Fatalf("expected ErrWeakPassword for %q, got %v", pw, err)
		}
	}
	if err := cfg.Validate("a-very-ok-pass"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

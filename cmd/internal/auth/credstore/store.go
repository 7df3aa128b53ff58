package credstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Well-known keys.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

var (
	// ErrNotFound is returned by Get when the key holds no value.
	ErrNotFound = errors.New("credential not found")

	// ErrUnknownKey is returned by stores that only accept the well-known keys.
	ErrUnknownKey = errors.New("unknown credential key")

	// ErrIncompletePair is returned when writing a pair with an empty half.
	ErrIncompletePair = errors.New("credential pair must contain both tokens")
)

// Pair is the access/refresh credential pair.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Complete reports whether both halves are present.
func (p Pair) Complete() bool {
	return strings.TrimSpace(p.AccessToken) != "" && strings.TrimSpace(p.RefreshToken) != ""
}

// Store is the durable key-value boundary.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// PairStore is implemented by stores that write and clear both credentials in one step.
type PairStore interface {
	Store
	PutPair(ctx context.Context, p Pair) error
	DeletePair(ctx context.Context) error

	// SwapPair writes p only while the stored access token equals expect
	// ("" meaning none) and reports whether it did.
	SwapPair(ctx context.Context, expect string, p Pair) (bool, error)
	// DeletePairIf clears both credentials only while the stored access
	// token equals expect and reports whether it did.
	DeletePairIf(ctx context.Context, expect string) (bool, error)
}

// WritePair persists both credentials together.
// Without PairStore support the two writes are sequenced adjacently and the
// first is rolled back if the second fails.
func WritePair(ctx context.Context, s Store, p Pair) error {
	if !p.Complete() {
		return ErrIncompletePair
	}
	if ps, ok := s.(PairStore); ok {
		return ps.PutPair(ctx, p)
	}

	if err := s.Set(ctx, KeyAccessToken, p.AccessToken); err != nil {
		return fmt.Errorf("write access token: %w", err)
	}
	if err := s.Set(ctx, KeyRefreshToken, p.RefreshToken); err != nil {
		_ = s.Remove(ctx, KeyAccessToken)
		return fmt.Errorf("write refresh token: %w", err)
	}
	return nil
}

// ClearPair removes both credentials. Clearing an empty store is a no-op.
func ClearPair(ctx context.Context, s Store) error {
	if ps, ok := s.(PairStore); ok {
		return ps.DeletePair(ctx)
	}

	errA := s.Remove(ctx, KeyAccessToken)
	errR := s.Remove(ctx, KeyRefreshToken)
	return errors.Join(errA, errR)
}

// ReplacePair writes p only if the stored access token is still expect.
// It reports false, with nothing written, when another writer got there first.
// Stores without PairStore support compare and write in two steps.
func ReplacePair(ctx context.Context, s Store, expect string, p Pair) (bool, error) {
	if !p.Complete() {
		return false, ErrIncompletePair
	}
	if ps, ok := s.(PairStore); ok {
		return ps.SwapPair(ctx, expect, p)
	}

	current, err := AccessToken(ctx, s)
	if err != nil {
		return false, err
	}
	if current != expect {
		return false, nil
	}
	return true, WritePair(ctx, s, p)
}

// ClearPairIf clears both credentials only if the stored access token is
// still expect. It reports false when the store holds someone else's pair.
func ClearPairIf(ctx context.Context, s Store, expect string) (bool, error) {
	if ps, ok := s.(PairStore); ok {
		return ps.DeletePairIf(ctx, expect)
	}

	current, err := AccessToken(ctx, s)
	if err != nil {
		return false, err
	}
	if current != expect {
		return false, nil
	}
	return true, ClearPair(ctx, s)
}

// LoadPair reads both credentials. Missing halves come back empty.
func LoadPair(ctx context.Context, s Store) (Pair, error) {
	access, err := AccessToken(ctx, s)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := RefreshToken(ctx, s)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// AccessToken returns the stored access token, or "" when absent.
func AccessToken(ctx context.Context, s Store) (string, error) {
	return getOptional(ctx, s, KeyAccessToken)
}

// RefreshToken returns the stored refresh token, or "" when absent.
func RefreshToken(ctx context.Context, s Store) (string, error) {
	return getOptional(ctx, s, KeyRefreshToken)
}

func getOptional(ctx context.Context, s Store, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

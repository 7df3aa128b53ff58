package credstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetMissing(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	_, err := s.Get(context.Background(), KeyAccessToken)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SetGetRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, KeyAccessToken, "a1"))
	v, err := s.Get(ctx, KeyAccessToken)
	require.NoError(t, err)
	require.Equal(t, "a1", v)

	require.NoError(t, s.Remove(ctx, KeyAccessToken))
	require.NoError(t, s.Remove(ctx, KeyAccessToken), "removing twice is not an error")

	_, err = s.Get(ctx, KeyAccessToken)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore()
	require.ErrorIs(t, s.Set(ctx, KeyAccessToken, "a1"), context.Canceled)
}

func TestWritePair_PairStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, WritePair(ctx, s, Pair{AccessToken: "a", RefreshToken: "r"}))

	p, err := LoadPair(ctx, s)
	require.NoError(t, err)
	require.Equal(t, Pair{AccessToken: "a", RefreshToken: "r"}, p)

	require.NoError(t, ClearPair(ctx, s))
	require.NoError(t, ClearPair(ctx, s), "clearing an empty store is a no-op")

	p, err = LoadPair(ctx, s)
	require.NoError(t, err)
	require.Equal(t, Pair{}, p)
}

func TestWritePair_RejectsIncomplete(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	for _, p := range []Pair{
		{},
		{AccessToken: "a"},
		{RefreshToken: "r"},
		{AccessToken: " ", RefreshToken: "r"},
	} {
		require.ErrorIs(t, WritePair(context.Background(), s, p), ErrIncompletePair)
	}

	access, err := AccessToken(context.Background(), s)
	require.NoError(t, err)
	require.Empty(t, access)
}

// kvOnly hides the PairStore methods so the sequential fallback is exercised.
type kvOnly struct {
	inner   *MemoryStore
	failKey string
}

func (s *kvOnly) Get(ctx context.Context, key string) (string, error) {
	return s.inner.Get(ctx, key)
}

func (s *kvOnly) Set(ctx context.Context, key, value string) error {
	if key == s.failKey {
		return errors.New("disk full")
	}
	return s.inner.Set(ctx, key, value)
}

func (s *kvOnly) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, key)
}

func TestWritePair_FallbackSequential(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := &kvOnly{inner: NewMemoryStore()}

	require.NoError(t, WritePair(ctx, s, Pair{AccessToken: "a", RefreshToken: "r"}))
	p, err := LoadPair(ctx, s)
	require.NoError(t, err)
	require.Equal(t, "a", p.AccessToken)
	require.Equal(t, "r", p.RefreshToken)

	require.NoError(t, ClearPair(ctx, s))
	p, err = LoadPair(ctx, s)
	require.NoError(t, err)
	require.False(t, p.Complete())
}

func TestWritePair_FallbackRollsBackAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := &kvOnly{inner: NewMemoryStore(), failKey: KeyRefreshToken}

	err := WritePair(ctx, s, Pair{AccessToken: "a", RefreshToken: "r"})
	require.Error(t, err)

	access, err := AccessToken(ctx, s)
	require.NoError(t, err)
	require.Empty(t, access, "access token must not outlive a failed pair write")
}

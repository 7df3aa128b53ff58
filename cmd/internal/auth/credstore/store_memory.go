package credstore

import (
	"context"
	"sync"
)

// MemoryStore keeps credentials in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value for key or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	if !ok || v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key.
func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

// Remove deletes key.
func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// PutPair writes both credentials under one lock.
func (s *MemoryStore) PutPair(ctx context.Context, p Pair) error {
	if !p.Complete() {
		return ErrIncompletePair
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[KeyAccessToken] = p.AccessToken
	s.values[KeyRefreshToken] = p.RefreshToken
	return nil
}

// DeletePair clears both credentials under one lock.
func (s *MemoryStore) DeletePair(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, KeyAccessToken)
	delete(s.values, KeyRefreshToken)
	return nil
}

// SwapPair writes p under the lock if the access token still equals expect.
func (s *MemoryStore) SwapPair(ctx context.Context, expect string, p Pair) (bool, error) {
	if !p.Complete() {
		return false, ErrIncompletePair
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.values[KeyAccessToken] != expect {
		return false, nil
	}
	s.values[KeyAccessToken] = p.AccessToken
	s.values[KeyRefreshToken] = p.RefreshToken
	return true, nil
}

// DeletePairIf clears both credentials under the lock if the access token still equals expect.
func (s *MemoryStore) DeletePairIf(ctx context.Context, expect string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.values[KeyAccessToken] != expect {
		return false, nil
	}
	delete(s.values, KeyAccessToken)
	delete(s.values, KeyRefreshToken)
	return true, nil
}

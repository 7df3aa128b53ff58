package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	fileMode = 0o600
	dirMode  = 0o700
)

// FileStore keeps all credentials in one JSON document on disk.
//
// Every mutation rewrites the whole document through a temp file + rename,
// so a crash leaves either the old or the new record, never a half-written pair.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore rooted at path. The file is created lazily.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("credstore: empty file path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("credstore: resolve path: %w", err)
	}
	return &FileStore{path: abs}, nil
}

// DefaultFilePath returns <user config dir>/docqa/credentials.json.
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "docqa", "credentials.json"), nil
}

// Path returns the absolute file location.
func (s *FileStore) Path() string { return s.path }

// Get returns the value for key or ErrNotFound.
func (s *FileStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read()
	if err != nil {
		return "", err
	}
	v, ok := rec[key]
	if !ok || v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key.
func (s *FileStore) Set(ctx context.Context, key, value string) error {
	return s.update(ctx, func(rec map[string]string) {
		rec[key] = value
	})
}

// Remove deletes key.
func (s *FileStore) Remove(ctx context.Context, key string) error {
	return s.update(ctx, func(rec map[string]string) {
		delete(rec, key)
	})
}

// PutPair writes both credentials in one file replacement.
func (s *FileStore) PutPair(ctx context.Context, p Pair) error {
	if !p.Complete() {
		return ErrIncompletePair
	}
	return s.update(ctx, func(rec map[string]string) {
		rec[KeyAccessToken] = p.AccessToken
		rec[KeyRefreshToken] = p.RefreshToken
	})
}

// DeletePair clears both credentials in one file replacement.
func (s *FileStore) DeletePair(ctx context.Context) error {
	return s.update(ctx, func(rec map[string]string) {
		delete(rec, KeyAccessToken)
		delete(rec, KeyRefreshToken)
	})
}

// SwapPair replaces the pair in one file replacement if the access token still equals expect.
func (s *FileStore) SwapPair(ctx context.Context, expect string, p Pair) (bool, error) {
	if !p.Complete() {
		return false, ErrIncompletePair
	}
	return s.updateIf(ctx, expect, func(rec map[string]string) {
		rec[KeyAccessToken] = p.AccessToken
		rec[KeyRefreshToken] = p.RefreshToken
	})
}

// DeletePairIf clears the pair in one file replacement if the access token still equals expect.
func (s *FileStore) DeletePairIf(ctx context.Context, expect string) (bool, error) {
	return s.updateIf(ctx, expect, func(rec map[string]string) {
		delete(rec, KeyAccessToken)
		delete(rec, KeyRefreshToken)
	})
}

func (s *FileStore) update(ctx context.Context, mutate func(map[string]string)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read()
	if err != nil {
		return err
	}
	mutate(rec)
	return s.write(rec)
}

func (s *FileStore) updateIf(ctx context.Context, expect string, mutate func(map[string]string)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read()
	if err != nil {
		return false, err
	}
	if rec[KeyAccessToken] != expect {
		return false, nil
	}
	mutate(rec)
	return true, s.write(rec)
}

func (s *FileStore) read() (map[string]string, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credstore: read %s: %w", s.path, err)
	}
	if len(b) == 0 {
		return map[string]string{}, nil
	}

	rec := map[string]string{}
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("credstore: decode %s: %w", s.path, err)
	}
	return rec, nil
}

func (s *FileStore) write(rec map[string]string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("credstore: create dir: %w", err)
	}

	if len(rec) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("credstore: remove %s: %w", s.path, err)
		}
		return nil
	}

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("credstore: encode: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("credstore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("credstore: chmod: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("credstore: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("credstore: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credstore: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("credstore: replace %s: %w", s.path, err)
	}
	return nil
}

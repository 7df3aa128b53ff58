package credstore

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultProfile is the row key used when no profile is configured.
const DefaultProfile = "default"

// PostgresStore implements PairStore using PostgreSQL (docqa.credentials).
//
// Each profile is one row holding both tokens, so pair writes and clears are
// single statements.
type PostgresStore struct {
	pool    *pgxpool.Pool
	profile string
}

// NewPostgresStore creates a Postgres-backed credential store for profile.
func NewPostgresStore(pool *pgxpool.Pool, profile string) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("credstore: nil pool")
	}
	profile = strings.TrimSpace(profile)
	if profile == "" {
		profile = DefaultProfile
	}
	return &PostgresStore{pool: pool, profile: profile}, nil
}

// EnsureSchema creates the credentials table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS docqa;
		CREATE TABLE IF NOT EXISTS docqa.credentials (
			profile       text PRIMARY KEY,
			access_token  text,
			refresh_token text,
			updated_at    timestamptz NOT NULL DEFAULT now()
		)
	`)
	return err
}

// Get returns the value for key or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	col, err := column(key)
	if err != nil {
		return "", err
	}

	var v *string
	err = s.pool.QueryRow(ctx,
		`SELECT `+col+` FROM docqa.credentials WHERE profile = $1`,
		s.profile,
	).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if v == nil || *v == "" {
		return "", ErrNotFound
	}
	return *v, nil
}

// Set stores value under key.
func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	col, err := column(key)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO docqa.credentials (profile, `+col+`, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (profile) DO UPDATE
		SET `+col+` = EXCLUDED.`+col+`, updated_at = now()
	`, s.profile, value)
	return err
}

// Remove clears key. The row is kept until DeletePair.
func (s *PostgresStore) Remove(ctx context.Context, key string) error {
	col, err := column(key)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE docqa.credentials SET `+col+` = NULL, updated_at = now() WHERE profile = $1`,
		s.profile,
	)
	return err
}

// PutPair upserts both tokens in one statement.
func (s *PostgresStore) PutPair(ctx context.Context, p Pair) error {
	if !p.Complete() {
		return ErrIncompletePair
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO docqa.credentials (profile, access_token, refresh_token, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (profile) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    updated_at = now()
	`, s.profile, p.AccessToken, p.RefreshToken)
	return err
}

// DeletePair removes the profile row.
func (s *PostgresStore) DeletePair(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM docqa.credentials WHERE profile = $1`, s.profile)
	return err
}

// SwapPair updates both tokens in one statement guarded by the current access token.
func (s *PostgresStore) SwapPair(ctx context.Context, expect string, p Pair) (bool, error) {
	if !p.Complete() {
		return false, ErrIncompletePair
	}

	if expect == "" {
		// No row counts as holding no access token.
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO docqa.credentials AS c (profile, access_token, refresh_token, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (profile) DO UPDATE
			SET access_token = EXCLUDED.access_token,
			    refresh_token = EXCLUDED.refresh_token,
			    updated_at = now()
			WHERE COALESCE(c.access_token, '') = ''
		`, s.profile, p.AccessToken, p.RefreshToken)
		if err != nil {
			return false, err
		}
		return tag.RowsAffected() > 0, nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE docqa.credentials
		SET access_token = $2, refresh_token = $3, updated_at = now()
		WHERE profile = $1 AND access_token = $4
	`, s.profile, p.AccessToken, p.RefreshToken, expect)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeletePairIf removes the profile row if it still holds expect.
func (s *PostgresStore) DeletePairIf(ctx context.Context, expect string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM docqa.credentials WHERE profile = $1 AND COALESCE(access_token, '') = $2`,
		s.profile, expect,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 || expect != "" {
		return tag.RowsAffected() > 0, nil
	}

	// Nothing deleted while expecting no token: fine unless a token appeared.
	current, err := AccessToken(ctx, s)
	if err != nil {
		return false, err
	}
	return current == "", nil
}

// column maps a well-known key to its column. Keys never reach SQL unchecked.
func column(key string) (string, error) {
	switch key {
	case KeyAccessToken:
		return "access_token", nil
	case KeyRefreshToken:
		return "refresh_token", nil
	default:
		return "", ErrUnknownKey
	}
}

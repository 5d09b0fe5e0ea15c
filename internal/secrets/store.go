package secrets

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"fluxboom/internal/domain"
	"fluxboom/internal/infra"
)

// Well-known secret names.
const (
	KeyReplicate = "replicate_api_key"
	KeyImgbb     = "imgbb_api_key"
)

// StorePG keeps API credentials in PostgreSQL. Values are plain strings; a
// missing secret reads back as an empty string.
type StorePG struct {
	pool *pgxpool.Pool
}

// NewStore constructs a credential store backed by PostgreSQL.
func NewStore(pool *pgxpool.Pool) *StorePG {
	return &StorePG{pool: pool}
}

// Get returns the stored value for name, or "" when none is stored.
func (s *StorePG) Get(ctx context.Context, name string) (string, error) {
	row := s.pool.QueryRow(ctx, `
SELECT value
FROM secrets
WHERE name = $1;
`, name)
	var value string
	if err := row.Scan(&value); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(value), nil
}

// Set stores or replaces the value for name.
func (s *StorePG) Set(ctx context.Context, name, value string) error {
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if name == "" {
		return errors.New("secrets: name is required")
	}
	if value == "" {
		return errors.New("secrets: value is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO secrets (name, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET
    value = EXCLUDED.value,
    updated_at = now();
`, name, value)
	return err
}

var _ domain.SecretStore = (*StorePG)(nil)

// EnvFallback wraps a SecretStore and serves fixed environment-sourced values
// ahead of stored ones, mirroring how deployments inject credentials without
// touching the database.
type EnvFallback struct {
	Store  domain.SecretStore
	Values map[string]string
}

func (e *EnvFallback) Get(ctx context.Context, name string) (string, error) {
	if v := strings.TrimSpace(e.Values[name]); v != "" {
		return v, nil
	}
	if e.Store == nil {
		return "", nil
	}
	return e.Store.Get(ctx, name)
}

func (e *EnvFallback) Set(ctx context.Context, name, value string) error {
	if e.Store == nil {
		return errors.New("secrets: no backing store configured")
	}
	return e.Store.Set(ctx, name, value)
}

var _ domain.SecretStore = (*EnvFallback)(nil)

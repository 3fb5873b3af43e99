package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTokenStore persists refresh tokens to a Postgres table, allowing
// multiple API replicas to share session state. The user_id primary key
// enforces the single-active-token-per-user invariant at the database level;
// the upsert makes rotation an atomic overwrite.
type PostgresTokenStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// PostgresTokenStoreOption configures the store.
type PostgresTokenStoreOption func(*PostgresTokenStore)

// WithQueryTimeout bounds individual store operations.
func WithQueryTimeout(timeout time.Duration) PostgresTokenStoreOption {
	return func(s *PostgresTokenStore) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// NewPostgresTokenStore opens a Postgres-backed refresh-token store using the
// provided DSN.
func NewPostgresTokenStore(dsn string, opts ...PostgresTokenStoreOption) (*PostgresTokenStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres token store dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres token store config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres token store pool: %w", err)
	}
	store := &PostgresTokenStore{pool: pool}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// Close releases the Postgres connection pool resources.
func (s *PostgresTokenStore) Close(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *PostgresTokenStore) opContext() (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(context.Background(), s.timeout)
	}
	return context.Background(), func() {}
}

// Save stores or overwrites the user's current refresh token.
func (s *PostgresTokenStore) Save(userID, token string, expiresAt time.Time) error {
	if s.pool == nil {
		return fmt.Errorf("postgres token store pool not configured")
	}
	ctx, cancel := s.opContext()
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO auth_refresh_tokens (user_id, token, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at
`, userID, token, expiresAt.UTC())
	return err
}

// Get fetches the current refresh record for the user.
func (s *PostgresTokenStore) Get(userID string) (RefreshRecord, bool, error) {
	if s.pool == nil {
		return RefreshRecord{}, false, fmt.Errorf("postgres token store pool not configured")
	}
	ctx, cancel := s.opContext()
	defer cancel()
	row := s.pool.QueryRow(ctx, `
SELECT token, expires_at
FROM auth_refresh_tokens
WHERE user_id = $1
`, userID)
	record := RefreshRecord{UserID: userID}
	if err := row.Scan(&record.Token, &record.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefreshRecord{}, false, nil
		}
		return RefreshRecord{}, false, err
	}
	return record, true, nil
}

// Delete removes the user's refresh record.
func (s *PostgresTokenStore) Delete(userID string) error {
	if s.pool == nil {
		return fmt.Errorf("postgres token store pool not configured")
	}
	ctx, cancel := s.opContext()
	defer cancel()
	_, err := s.pool.Exec(ctx, `DELETE FROM auth_refresh_tokens WHERE user_id = $1`, userID)
	return err
}

// PurgeExpired deletes expired refresh records from the table.
func (s *PostgresTokenStore) PurgeExpired(now time.Time) error {
	if s.pool == nil {
		return fmt.Errorf("postgres token store pool not configured")
	}
	ctx, cancel := s.opContext()
	defer cancel()
	_, err := s.pool.Exec(ctx, `DELETE FROM auth_refresh_tokens WHERE expires_at <= $1`, now.UTC())
	return err
}

// Ping verifies the backing pool is reachable.
func (s *PostgresTokenStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres token store pool not configured")
	}
	return s.pool.Ping(ctx)
}

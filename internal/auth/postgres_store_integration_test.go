//go:build postgres

package auth

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestPostgresTokenStoreRoundTrip(t *testing.T) {
	store, cleanup := openPostgresTokenStoreForTest(t)
	defer cleanup()

	// Postgres stores timestamps at microsecond precision.
	expiresAt := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	if err := store.Save("user-1", "first-token", expiresAt); err != nil {
		t.Fatalf("save token: %v", err)
	}

	record, ok, err := store.Get("user-1")
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if !ok {
		t.Fatal("expected a stored record")
	}
	if record.Token != "first-token" {
		t.Fatalf("token = %q, want %q", record.Token, "first-token")
	}
	if !record.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("expiresAt = %v, want %v", record.ExpiresAt, expiresAt)
	}

	if _, ok, err := store.Get("user-unknown"); err != nil || ok {
		t.Fatalf("unknown user: ok=%v err=%v, want miss without error", ok, err)
	}
}

func TestPostgresTokenStoreOverwritesOnSave(t *testing.T) {
	store, cleanup := openPostgresTokenStoreForTest(t)
	defer cleanup()

	if err := store.Save("user-1", "first-token", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("save first token: %v", err)
	}
	if err := store.Save("user-1", "second-token", time.Now().Add(2*time.Hour)); err != nil {
		t.Fatalf("save second token: %v", err)
	}

	record, ok, err := store.Get("user-1")
	if err != nil || !ok {
		t.Fatalf("get token: ok=%v err=%v", ok, err)
	}
	if record.Token != "second-token" {
		t.Fatalf("token = %q, want the overwriting value", record.Token)
	}
}

func TestPostgresTokenStoreDeleteIsIdempotent(t *testing.T) {
	store, cleanup := openPostgresTokenStoreForTest(t)
	defer cleanup()

	if err := store.Save("user-1", "token", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("save token: %v", err)
	}
	if err := store.Delete("user-1"); err != nil {
		t.Fatalf("delete token: %v", err)
	}
	if _, ok, err := store.Get("user-1"); err != nil || ok {
		t.Fatalf("after delete: ok=%v err=%v, want miss", ok, err)
	}
	if err := store.Delete("user-1"); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}

func TestPostgresTokenStorePurgeExpired(t *testing.T) {
	store, cleanup := openPostgresTokenStoreForTest(t)
	defer cleanup()

	now := time.Now()
	if err := store.Save("stale", "stale-token", now.Add(-time.Minute)); err != nil {
		t.Fatalf("save stale token: %v", err)
	}
	if err := store.Save("fresh", "fresh-token", now.Add(time.Hour)); err != nil {
		t.Fatalf("save fresh token: %v", err)
	}

	if err := store.PurgeExpired(now); err != nil {
		t.Fatalf("purge expired: %v", err)
	}

	if _, ok, err := store.Get("stale"); err != nil || ok {
		t.Fatalf("stale record survived purge: ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.Get("fresh"); err != nil || !ok {
		t.Fatalf("fresh record lost in purge: ok=%v err=%v", ok, err)
	}
}

func openPostgresTokenStoreForTest(t *testing.T, opts ...PostgresTokenStoreOption) (*PostgresTokenStore, func()) {
	t.Helper()

	dsn := os.Getenv("STREAMTUBE_TEST_POSTGRES_DSN")
	if strings.TrimSpace(dsn) == "" {
		t.Skip("STREAMTUBE_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse postgres config: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		t.Fatalf("open postgres pool: %v", err)
	}

	applyAuthMigrationsForTest(t, ctx, pool)
	if _, err := pool.Exec(ctx, `TRUNCATE TABLE auth_refresh_tokens`); err != nil {
		pool.Close()
		t.Fatalf("truncate auth_refresh_tokens: %v", err)
	}
	pool.Close()

	store, err := NewPostgresTokenStore(dsn, opts...)
	if err != nil {
		t.Fatalf("open postgres token store: %v", err)
	}

	cleanup := func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if store.pool != nil {
			conn, err := store.pool.Acquire(cleanupCtx)
			if err == nil {
				_, _ = conn.Exec(cleanupCtx, `TRUNCATE TABLE auth_refresh_tokens`)
				conn.Release()
			}
		}
		_ = store.Close(context.Background())
	}

	return store, cleanup
}

func applyAuthMigrationsForTest(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()

	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("determine repository root: runtime.Caller failed")
	}

	repoRoot := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	migrationsDir := filepath.Join(repoRoot, "deploy", "migrations")

	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			t.Fatalf("read migration %s: %v", entry.Name(), err)
		}

		for _, stmt := range splitSQLStatementsForTest(string(data)) {
			if stmt == "" {
				continue
			}
			if _, err := pool.Exec(ctx, stmt); err != nil {
				t.Fatalf("apply migration %s: %v", entry.Name(), err)
			}
		}
	}
}

func splitSQLStatementsForTest(script string) []string {
	parts := strings.Split(script, ";")
	statements := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		statements = append(statements, trimmed)
	}
	return statements
}

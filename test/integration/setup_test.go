//go:build integration

// Package integration runs the Postgres repositories against a real database.
// Run with: go test -tags integration ./test/integration/...
// Set PORTAL_TEST_DATABASE_URL to reuse an existing database instead of
// starting a container.
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medportal/portal/internal/domain/identity"
	"github.com/medportal/portal/internal/platform/db"
)

var globalPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	pool, cleanup, err := setupDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up database: %v\n", err)
		os.Exit(1)
	}

	globalPool = pool
	code := m.Run()
	cleanup()
	os.Exit(code)
}

func setupDatabase(ctx context.Context) (*pgxpool.Pool, func(), error) {
	connStr := os.Getenv("PORTAL_TEST_DATABASE_URL")
	stop := func() {}
	if connStr == "" {
		var err error
		connStr, stop, err = startPostgres(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("start postgres container: %w", err)
		}
	}

	pool, err := db.NewPool(ctx, connStr, 10, 1)
	if err != nil {
		stop()
		return nil, nil, err
	}

	if _, err := db.NewMigrator(pool, findMigrationsDir()).Up(ctx); err != nil {
		pool.Close()
		stop()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	return pool, func() {
		pool.Close()
		stop()
	}, nil
}

// findMigrationsDir locates the migrations directory relative to this file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// createPatient inserts a patient with a unique email.
func createPatient(t *testing.T, ctx context.Context) *identity.User {
	t.Helper()
	u := &identity.User{
		Name:         "Test Patient",
		Email:        "patient-" + uuid.NewString() + "@example.com",
		PasswordHash: "x",
	}
	if err := identity.NewUserRepoPG(globalPool).Create(ctx, u); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return u
}

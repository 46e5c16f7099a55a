// Package test provides shared helpers for integration tests.
package test

import (
	"database/sql"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/peterldowns/pgtestdb"
	"github.com/peterldowns/pgtestdb/migrators/golangmigrator"
)

// NewDB returns an isolated, fully migrated Postgres database for one test.
// pgtestdb clones a migrated template, so each call costs milliseconds, not
// a full migration run. Tests calling this must be guarded by RequirePostgres.
func NewDB(t *testing.T) *sql.DB {
	t.Helper()
	return pgtestdb.New(t, baseConfig(t), golangmigrator.New(migrationsDir(t)))
}

// NewDBURL provisions the same isolated database as NewDB but hands back its
// connection string, for code that opens its own connection.
func NewDBURL(t *testing.T) string {
	t.Helper()
	cfg := pgtestdb.Custom(t, baseConfig(t), golangmigrator.New(migrationsDir(t)))
	return cfg.URL()
}

func baseConfig(t *testing.T) pgtestdb.Config {
	t.Helper()

	databaseURL := os.Getenv("DATABASE_URL")

	parsedURL, err := url.Parse(databaseURL)
	if err != nil {
		t.Fatalf("failed to parse DATABASE_URL: %v", err)
	}

	port := parsedURL.Port()
	if port == "" {
		port = "5432"
	}
	password, _ := parsedURL.User.Password()
	database := strings.TrimPrefix(parsedURL.Path, "/")
	if database == "" {
		database = "postgres"
	}

	return pgtestdb.Config{
		DriverName: "pgx",
		Host:       parsedURL.Hostname(),
		Port:       port,
		User:       parsedURL.User.Username(),
		Password:   password,
		Database:   database,
		Options:    parsedURL.RawQuery,
	}
}

// RequirePostgres skips the test unless DATABASE_URL points at a reachable
// Postgres instance. Integration tests are opt-in; unit tests cover the
// same paths with sqlmock.
func RequirePostgres(t *testing.T) {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
}

// migrationsDir walks up from the working directory to the embedded
// migrations so tests pass regardless of which package runs them.
func migrationsDir(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	current := wd
	for {
		candidate := filepath.Join(current, "internal", "database", "migrations")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(current)
		if parent == current {
			t.Fatalf("could not find migrations directory above %s", wd)
		}
		current = parent
	}
}

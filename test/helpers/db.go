// Package helpers provides database and network utilities for portsweep
// integration and end-to-end tests.
package helpers

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/anstrom/portsweep/internal/db"
)

const (
	defaultPostgreSQLPort = 5432
	dbConnectionTimeout   = 5 * time.Second
)

// TestDatabaseConfig returns the connection settings of the test database.
// TEST_DB_* variables override the defaults.
func TestDatabaseConfig() *db.Config {
	cfg := db.DefaultConfig()
	cfg.Host = getEnvOrDefault("TEST_DB_HOST", "localhost")
	cfg.Port = getEnvIntOrDefault("TEST_DB_PORT", defaultPostgreSQLPort)
	cfg.Database = getEnvOrDefault("TEST_DB_NAME", "portsweep_test")
	cfg.Username = getEnvOrDefault("TEST_DB_USER", "test_user")
	cfg.Password = getEnvOrDefault("TEST_DB_PASSWORD", "test_password")
	cfg.SSLMode = "disable"
	cfg.MaxOpenConns = 5
	cfg.MaxIdleConns = 2
	return &cfg
}

// ConnectToTestDatabase connects to the test database and applies
// migrations.
func ConnectToTestDatabase(ctx context.Context) (*db.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, dbConnectionTimeout)
	defer cancel()

	database, err := db.ConnectAndMigrate(ctx, TestDatabaseConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return database, nil
}

// SetupTestDB returns a migrated test database, skipping the test when
// none is reachable. The connection is closed when the test ends.
func SetupTestDB(t testing.TB) *db.DB {
	t.Helper()

	database, err := ConnectToTestDatabase(context.Background())
	if err != nil {
		t.Skipf("Skipping test, database not available: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

// CleanupReports deletes reports created by a test. Open ports go with
// them through the foreign key cascade.
func CleanupReports(ctx context.Context, database *db.DB, target string) error {
	_, err := database.ExecContext(ctx, `DELETE FROM scan_reports WHERE target = $1`, target)
	return err
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

package cli

import (
	"context"
	"fmt"

	"github.com/anstrom/portsweep/internal/db"
	"github.com/anstrom/portsweep/internal/logging"
)

// DatabaseOperation represents a function that operates on a database connection.
type DatabaseOperation func(ctx context.Context, database *db.DB) error

// withDatabase executes the given operation with a database connection.
// It handles all database setup and cleanup, returning any errors that occur.
// With migrate set, pending migrations are applied first.
func withDatabase(migrate bool, operation DatabaseOperation) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), databaseTimeout)
	defer cancel()

	connect := db.Connect
	if migrate {
		connect = db.ConnectAndMigrate
	}
	database, err := connect(ctx, &cfg.Database.Config)
	if err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}
	defer func() {
		if closeErr := database.Close(); closeErr != nil {
			logging.Warn("Failed to close database connection", "error", closeErr)
		}
	}()

	return operation(ctx, database)
}

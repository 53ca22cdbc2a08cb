package db

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DevMode loads migrations from the on-disk directory instead of the
// embedded copy so new migrations can be iterated without rebuilding.
var DevMode bool

// devMigrationsDir is relative to the repo root, where `go run` executes.
const devMigrationsDir = "internal/db/migrations"

// getMigrationsFS returns the filesystem the migration engine reads, rooted
// at the directory containing the numbered .sql files.
func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		if _, err := os.Stat(devMigrationsDir); err != nil {
			return nil, fmt.Errorf("dev migrations directory unavailable: %w", err)
		}
		return os.DirFS(devMigrationsDir), nil
	}

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return sub, nil
}

// Package migrations embeds and runs the goose migrations that create
// the schema documented in spec.md §6. Using goose against ordered .sql
// files (rather than gorm's AutoMigrate) matches persistorai-persistor's
// pattern and keeps the schema auditable, since operators provision it
// directly per spec.md §6.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

// Run applies all pending migrations against db.
func Run(db *sql.DB) error {
	goose.SetBaseFS(sqlFiles)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("migrations: set dialect: %w", err)
	}
	if err := goose.Up(db, "sql"); err != nil {
		return fmt.Errorf("migrations: up: %w", err)
	}
	return nil
}

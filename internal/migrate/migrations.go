package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"

	"orderline/internal/db"
)

//go:embed sql/sqlite/*.sql sql/postgres/*.sql
var migrationsFS embed.FS

// goose keeps dialect and filesystem in package globals.
var mu sync.Mutex

func dialectDir(driver string) (dialect, dir string, err error) {
	switch driver {
	case "", db.DriverSQLite:
		return "sqlite3", "sql/sqlite", nil
	case db.DriverPostgres:
		return "postgres", "sql/postgres", nil
	}
	return "", "", fmt.Errorf("no migrations for driver %q", driver)
}

// Migrate applies embedded migrations in order.
func Migrate(conn *sql.DB, driver string) error {
	dialect, dir, err := dialectDir(driver)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(conn, dir); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Version reports the applied schema version.
func Version(conn *sql.DB, driver string) (int64, error) {
	dialect, _, err := dialectDir(driver)
	if err != nil {
		return 0, err
	}
	mu.Lock()
	defer mu.Unlock()
	if err := goose.SetDialect(dialect); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(conn)
}

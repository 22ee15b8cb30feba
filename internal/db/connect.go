package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // driver: sqlite
)

//go:embed migrations/*.sql
var migrations embed.FS

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB for the given driver, pings it and ensures the schema exists.
// An empty sqlite dsn means <dataDir>/studyhub.db.
func Open(ctx context.Context, driver Driver, dsn, dataDir string) (*sql.DB, error) {
	var (
		drvName string
		dialect goose.Dialect
	)
	switch driver {
	case DriverSQLite:
		drvName, dialect = "sqlite", goose.DialectSQLite3 // modernc driver
		if dsn == "" {
			if dataDir == "" {
				dataDir = "."
			}
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir %s: %w", dataDir, err)
			}
			dsn = "file:" + filepath.Join(dataDir, "studyhub.db") + "?mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName, dialect = "pgx", goose.DialectPostgres // pgx stdlib driver
		if dsn == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable not set")
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := Migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, err
	}
	if driver == DriverSQLite {
		// one writer at a time
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		log.Printf("INFO: applied migration %s in %s", r.Source.Path, r.Duration)
	}
	return nil
}

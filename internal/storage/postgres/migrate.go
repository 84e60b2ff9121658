package postgres

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver "pgx" for migrations
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Direction selects which way Migrate moves the schema.
type Direction int

// Migration directions.
const (
	Up Direction = iota
	Down
)

// Migrate applies the embedded migrations to the database at dsn. Running it
// with nothing pending is not an error.
func Migrate(dsn string, dir Direction, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	return RunMigrations(db, dir, logger)
}

// RunMigrations applies the embedded migrations through db.
func RunMigrations(db *sql.DB, dir Direction, logger *zap.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}
	defer func() {
		// Closing the driver would close db, which the caller owns.
		if err := src.Close(); err != nil {
			logger.Warn("close migration source", zap.Error(err))
		}
	}()

	switch dir {
	case Down:
		err = m.Down()
	default:
		err = m.Up()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	version, dirty, verr := m.Version()
	switch {
	case errors.Is(verr, migrate.ErrNilVersion):
		logger.Info("migrations reverted")
	case verr != nil:
		logger.Warn("read migration version", zap.Error(verr))
	default:
		logger.Info("migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}

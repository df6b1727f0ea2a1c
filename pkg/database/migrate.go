package database

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// migrateLogger routes golang-migrate output through zap.
type migrateLogger struct {
	logger *zap.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug("database_migration", zap.String("detail", strings.TrimSpace(fmt.Sprintf(format, v...))))
}

func (l migrateLogger) Verbose() bool { return false }

// RunMigrations brings the orders and transactions schema up to date on the primary.
// order-api and transaction-worker both call it at startup; the driver's advisory lock
// serialises them.
func RunMigrations(logger *zap.Logger, primaryDSN string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "pgx5://"+primaryDSN)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()
	m.Log = migrateLogger{logger: logger}

	if version, dirty, err := m.Version(); err == nil && dirty {
		return fmt.Errorf("migrate: schema version %d is dirty and needs manual repair", version)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %w", err)
	}
	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("database_migrations_applied", zap.Uint("version", version))
	return nil
}

package postgres

import (
	"embed"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/converso-ai/nlu-engine/internal/config"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/logging"
	"github.com/converso-ai/nlu-engine/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies all pending migrations.  Schema is embedded in the binary;
// no external migration directory is needed at runtime.
func Migrate(cfg config.DatabaseConfig, logger logging.Logger) error {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "load embedded migrations")
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateDSN(cfg))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "create migrator")
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		version, _, _ := m.Version()
		return errors.Wrapf(err, errors.ErrCodeDatabaseError, "apply migrations (current version %d)", version)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		logger.Warn("migration version unavailable", logging.Err(err))
		return nil
	}
	logger.Info("migrations applied",
		logging.Int("version", int(version)),
		logging.Bool("dirty", dirty))
	return nil
}

// migrateDSN rewrites the connection URL onto golang-migrate's pgx/v5 driver
// scheme.
func migrateDSN(cfg config.DatabaseConfig) string {
	return "pgx5" + BuildDSN(cfg)[len("postgres"):]
}

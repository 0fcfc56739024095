package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/fastygo/taskbot/internal/config"
)

const migrationLockTimeout = 30 * time.Second

// RunMigrations brings the task schema up to date when enabled. A schema
// left dirty by an interrupted run is reported instead of being retried.
func RunMigrations(db config.DatabaseConfig, migrations config.MigrationsConfig, logger *zap.Logger) error {
	if !migrations.Enabled {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := db.URL
	if dsn == "" {
		dsn = db.DSN()
	}
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{DatabaseName: db.Name})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(migrations.Path), db.Name, driver)
	if err != nil {
		return fmt.Errorf("migration source %s: %w", migrations.Path, err)
	}
	defer m.Close()
	m.Log = migrateLogger{logger: logger.Named("migrate")}
	m.LockTimeout = migrationLockTimeout

	if version, dirty, err := m.Version(); err == nil && dirty {
		return fmt.Errorf("schema version %d is dirty, fix it manually before restarting", version)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	logger.Info("database schema ready", zap.Uint("version", version))
	return nil
}

// migrateLogger implements migrate.Logger on top of zap.
type migrateLogger struct {
	logger *zap.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return l.logger.Core().Enabled(zap.DebugLevel)
}

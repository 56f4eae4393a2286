package auxdb

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/atscope/modguard/pkg/mlog"
)

//go:embed migrations/*
var migrationFiles embed.FS

// runMigrations applies every pending up migration for driver against db.
// Unlike the moderation database, the auxiliary schema is owned by this
// process, so migrations run unconditionally at startup.
func runMigrations(driver string, db *sql.DB) error {
	var d interface {
		migrate.Driver
	}
	var err error
	var srcPath string

	switch driver {
	case "sqlite":
		d, err = sqlite.WithInstance(db, &sqlite.Config{})
		srcPath = "migrations/sqlite"
	case "postgres":
		d, err = postgres.WithInstance(db, &postgres.Config{})
		srcPath = "migrations/postgres"
	default:
		return fmt.Errorf("auxdb: unsupported driver %q", driver)
	}
	if err != nil {
		return fmt.Errorf("auxdb: migration driver: %w", err)
	}

	src, err := iofs.New(migrationFiles, srcPath)
	if err != nil {
		return fmt.Errorf("auxdb: migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, d)
	if err != nil {
		return fmt.Errorf("auxdb: migrate init: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("auxdb: migrate up: %w", err)
	}
	mlog.Info("auxdb: schema up to date")
	return nil
}

package main

import (
	"database/sql"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	appconfig "github.com/wolfman30/physio-portal/internal/config"
	appmigrations "github.com/wolfman30/physio-portal/migrations"
	"github.com/wolfman30/physio-portal/pkg/logging"
)

// Usage:
//
//	migrate               apply every pending migration
//	migrate down          roll back the latest migration
//	migrate force <ver>   mark <ver> as applied after a failed run
func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if err := run(cfg.DatabaseURL, os.Args[1:], logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(databaseURL string, args []string, logger *logging.Logger) error {
	if strings.TrimSpace(databaseURL) == "" {
		return errors.New("DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return err
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}
	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	switch {
	case len(args) >= 2 && args[0] == "force":
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		if err := m.Force(version); err != nil {
			return err
		}
		logger.Info("forced migration version", "version", version)
	case len(args) >= 1 && args[0] == "down":
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		logger.Info("rolled back one migration")
	default:
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		logger.Info("migrations complete")
	}
	return nil
}

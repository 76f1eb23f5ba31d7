package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"smartinlet/internal/logs"
	"smartinlet/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	MigrateAuto = "auto" // gorm AutoMigrate по моделям
	MigrateSQL  = "sql"  // версионные SQL-миграции (только postgres)
	MigrateNone = "none"
)

// Migrate приводит схему к актуальной выбранным способом.
func Migrate(gdb *gorm.DB, driver, dsn, mode string) error {
	switch mode {
	case "", MigrateAuto:
		if err := gdb.AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		logs.Logger.Info("database schema auto-migrated")
		return nil
	case MigrateSQL:
		if driver != "postgres" {
			return fmt.Errorf("sql migrations support postgres only, got %q", driver)
		}
		return migrateSQL(dsn)
	case MigrateNone:
		return nil
	}
	return fmt.Errorf("unknown migration mode: %s", mode)
}

func migrateSQL(dsn string) error {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer conn.Close()

	driver, err := postgres.WithInstance(conn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	v, dirty, _ := m.Version()
	logs.Logger.WithFields(logrus.Fields{"version": v, "dirty": dirty}).Info("database migrations completed")
	return nil
}

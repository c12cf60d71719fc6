// Package storage opens and prepares the economy database.
package storage

import (
	"fmt"

	"powerup-economy/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Open connects with the named driver ("postgres" or "sqlite").
func Open(driver, dsn string, logLevel logger.LogLevel) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite" {
		// sqlite has no row locks; one connection serializes writers.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate creates or updates every economy table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Player{},
		&models.LedgerEntry{},
		&models.PowerUpDefinition{},
		&models.PowerUpInstance{},
		&models.QuizAttempt{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// SeedCatalog upserts the given definitions keyed by id.
func SeedCatalog(db *gorm.DB, defs []models.PowerUpDefinition) error {
	if len(defs) == 0 {
		return nil
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "kind", "description", "price", "cadence_hours", "max_uses", "factor", "updated_at",
		}),
	}).Create(&defs).Error
}

// OpenSQLite returns a migrated, seeded sqlite database stored at path.
// Used for local development and tests.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := Open("sqlite", path+"?_busy_timeout=5000", logger.Silent)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	if err := SeedCatalog(db, models.DefaultCatalog()); err != nil {
		return nil, err
	}
	return db, nil
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and the versioned schema migration runner.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/TobyLinn/BetterForward/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer.
var ErrNotFound = gorm.ErrRecordNotFound

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// migration is one ordered, idempotent schema step. Steps are applied in
// ascending Version order inside a transaction that also records the
// SchemaVersion row, so a step either fully applies or not at all.
type migration struct {
	Version int
	Name    string
	Apply   func(tx *gorm.DB) error
}

// migrations is the ordered schema history. Append only; never reorder or
// edit an applied step.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create core tables",
		Apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&domain.UserThread{},
				&domain.MessageLink{},
				&domain.CaptchaState{},
				&domain.SpamRule{},
			)
		},
	},
	{
		Version: 2,
		Name:    "add captcha attempt audit table",
		Apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&domain.CaptchaAttempt{})
		},
	},
}

// LatestSchemaVersion is the schema version this binary understands.
func LatestSchemaVersion() int { return migrations[len(migrations)-1].Version }

// CurrentSchemaVersion returns the highest applied migration version, or 0
// for a fresh database.
func CurrentSchemaVersion(db *gorm.DB) (int, error) {
	if !db.Migrator().HasTable(&domain.SchemaVersion{}) {
		return 0, nil
	}
	var v *int
	err := db.Model(&domain.SchemaVersion{}).Select("max(version)").Scan(&v).Error
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	return *v, nil
}

// Migrate brings the schema up to LatestSchemaVersion, applying pending
// steps in order. A database whose version marker is ahead of this binary
// fails loudly instead of silently operating on an unknown layout.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.SchemaVersion{}); err != nil {
		return fmt.Errorf("migrate: ensure version table: %w", err)
	}

	current, err := CurrentSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("migrate: read schema version: %w", err)
	}
	if latest := LatestSchemaVersion(); current > latest {
		return fmt.Errorf("migrate: database schema version %d is newer than supported version %d", current, latest)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		step := m
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := step.Apply(tx); err != nil {
				return err
			}
			return tx.Create(&domain.SchemaVersion{
				Version:   step.Version,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("migrate: step %d (%s): %w", step.Version, step.Name, err)
		}
	}
	return nil
}

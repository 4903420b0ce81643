// Package database keeps a history of processing runs in a local SQLite
// database, so past successes and failures can be inspected after the fact.
package database

import (
	"embed"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migrate_sqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"moul.io/zapgorm2"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type RowID = int64

// Run is one attempt at processing a video, from submission to its final
// status (done or aborted).
type Run struct {
	ID         RowID `gorm:"primaryKey"`
	VideoID    string
	Title      string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

func (Run) TableName() string {
	return "run"
}

type Database struct {
	db *gorm.DB
}

func NewDatabase(path string, logger *zap.Logger) (*Database, error) {
	gormLogger := zapgorm2.New(logger)
	gormLogger.SetAsDefault()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, err
	}
	return &Database{db}, nil
}

// Migrate brings the schema up to date, using the migrations embedded in the
// binary.
func (d *Database) Migrate() error {
	fs, err := iofs.New(embedMigrations, "migrations")
	if err != nil {
		return err
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	driver, err := migrate_sqlite3.WithInstance(sqlDB, &migrate_sqlite3.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", fs, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func (d *Database) Close() {
	if sqlDB, err := d.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// InsertRun adds a new run, overwriting Run.ID with the new row ID.
func (d *Database) InsertRun(run *Run) error {
	return d.db.Create(run).Error
}

// UpdateRun sets all values in the database row identified by Run.ID.
func (d *Database) UpdateRun(run *Run) error {
	return d.db.Save(run).Error
}

// RecentRuns returns up to limit runs, most recently started first.
func (d *Database) RecentRuns(limit int) ([]Run, error) {
	var runs []Run
	err := d.db.Order("started_at DESC, id DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// RunsByStatus returns all runs with the given status, most recent first.
func (d *Database) RunsByStatus(status string) ([]Run, error) {
	var runs []Run
	err := d.db.Where("status = ?", status).Order("started_at DESC, id DESC").Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

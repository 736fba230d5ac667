package database

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewSqlite opens a file backed store for development and tests.
// A single connection serializes writers, which is what keeps the row
// mutations atomic without FOR UPDATE.
func NewSqlite(path string) (*gorm.DB, error) {
	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         newLogger(),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

func MigrateSqlite(db *gorm.DB) error {
	return migrateModels(db)
}

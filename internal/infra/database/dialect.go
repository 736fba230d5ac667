package database

import "gorm.io/gorm"

const (
	DialectPostgres = "postgres"
	DialectSqlite   = "sqlite"
)

func Dialect(db *gorm.DB) string {
	return db.Dialector.Name()
}

func IsPostgres(db *gorm.DB) bool {
	return Dialect(db) == DialectPostgres
}

// Migrate runs the migration matching the connected backend.
func Migrate(db *gorm.DB) error {
	if IsPostgres(db) {
		return MigratePostgres(db)
	}
	return MigrateSqlite(db)
}

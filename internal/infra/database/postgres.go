package database

import (
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/totegamma/ojstore/internal/infra/database/models"
)

func newLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             300 * time.Millisecond, // Slow SQL threshold
			LogLevel:                  logger.Warn,            // Log level
			IgnoreRecordNotFoundError: true,                   // Ignore ErrRecordNotFound error for logger
			Colorful:                  true,                   // Enable color
		},
	)
}

func NewPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         newLogger(),
	})
	return db, err
}

// secondary indexes backing the adaptors' sort and membership queries
var postgresIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_document_fields ON document USING GIN (fields jsonb_path_ops)`,
	`CREATE INDEX IF NOT EXISTS idx_document_hidden ON document (domain_id, doc_type, (fields #> '{hidden}'), doc_id)`,
	`CREATE INDEX IF NOT EXISTS idx_document_update_at ON document (domain_id, doc_type, (fields #> '{update_at}') DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_document_vote ON document (domain_id, doc_type, (fields #> '{vote}') DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_document_status_fields ON document_status USING GIN (fields jsonb_path_ops)`,
}

func MigratePostgres(db *gorm.DB) error {
	if err := migrateModels(db); err != nil {
		return err
	}
	for _, stmt := range postgresIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func migrateModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Document{},
		&models.Status{},
	)
}

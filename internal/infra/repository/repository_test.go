package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/totegamma/ojstore/internal/domain"
	"github.com/totegamma/ojstore/internal/infra/cache"
	"github.com/totegamma/ojstore/internal/infra/database"
)

const testDomain = "system"

func openTestDB(t *testing.T, path string) *gorm.DB {
	t.Helper()

	db, err := database.NewSqlite(path)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	config := domain.DefaultConfig()
	config.RevRetryLimit = 50
	db := openTestDB(t, filepath.Join(t.TempDir(), "store.db"))
	return NewStore(db, cache.NewLocal(time.Minute), config)
}

func docKey(docType domain.DocType, id domain.Identifier) domain.DocumentKey {
	return domain.DocumentKey{DomainID: testDomain, DocType: docType, DocID: id}
}

func statusKey(docType domain.DocType, id domain.Identifier, uid int64) domain.StatusKey {
	return domain.StatusKey{DocumentKey: docKey(docType, id), UID: uid}
}

func mustInt(t *testing.T, f domain.Fields, key string) int64 {
	t.Helper()
	n, ok := f.Int64(key)
	require.True(t, ok, "field %s is not an integer: %#v", key, f[key])
	return n
}

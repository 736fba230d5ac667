package usecase

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/totegamma/ojstore/internal/domain"
	"github.com/totegamma/ojstore/internal/infra/cache"
	"github.com/totegamma/ojstore/internal/infra/database"
	"github.com/totegamma/ojstore/internal/infra/repository"
)

const testDomain = "system"

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()

	db, err := database.NewSqlite(filepath.Join(t.TempDir(), "usecase.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	config := domain.DefaultConfig()
	config.RevRetryLimit = 50
	return repository.NewStore(db, cache.NewLocal(time.Minute), config)
}

func mustInt(t *testing.T, f domain.Fields, key string) int64 {
	t.Helper()
	n, ok := f.Int64(key)
	require.True(t, ok, "field %s is not an integer: %#v", key, f[key])
	return n
}

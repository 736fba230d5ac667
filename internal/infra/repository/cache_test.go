package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/ojstore/internal/domain"
	"github.com/totegamma/ojstore/internal/infra/cache"
	"github.com/totegamma/ojstore/internal/infra/cache/memcachetest"
)

// newReplicas opens two stores on one database file, each with its own
// connection and its own memcached client against a shared server.
func newReplicas(t *testing.T) (*Store, *Store) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "shared.db")
	srv := memcachetest.Run(t)

	open := func() *Store {
		db := openTestDB(t, path)
		return NewStore(db, cache.NewMemcached(memcache.New(srv.Addr()), time.Minute), domain.DefaultConfig())
	}
	return open(), open()
}

func TestReplicasSeeEachOthersWrites(t *testing.T) {
	ctx := context.Background()
	a, b := newReplicas(t)

	id, err := a.Documents.Add(ctx, AddInput{DomainID: testDomain, DocType: domain.DocTypeContest, Fields: domain.Fields{"attend": 0}})
	require.NoError(t, err)
	key := docKey(domain.DocTypeContest, id)

	doc, err := a.Documents.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), mustInt(t, doc.Fields, "attend"))

	_, err = b.Documents.Inc(ctx, key, "attend", 1)
	require.NoError(t, err)

	doc, err = a.Documents.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), mustInt(t, doc.Fields, "attend"))

	_, _, err = b.Documents.Push(ctx, key, "notes", "hello", 1, nil)
	require.NoError(t, err)
	doc, err = a.Documents.Get(ctx, key)
	require.NoError(t, err)
	assert.Len(t, doc.Fields.Slice("notes"), 1)

	require.NoError(t, b.Documents.Delete(ctx, key))
	doc, err = a.Documents.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

// racingCache runs a write between a reader's database load and its fill.
type racingCache struct {
	cache.Cache
	beforeFill func()
}

func (c *racingCache) Add(ctx context.Context, key string, value []byte) {
	if hook := c.beforeFill; hook != nil {
		c.beforeFill = nil
		hook()
	}
	c.Cache.Add(ctx, key, value)
}

func TestFillAfterConcurrentWriteIsDropped(t *testing.T) {
	ctx := context.Background()

	db := openTestDB(t, filepath.Join(t.TempDir(), "race.db"))
	rc := &racingCache{Cache: cache.NewLocal(time.Minute)}
	store := NewStore(db, rc, domain.DefaultConfig())

	id, err := store.Documents.Add(ctx, AddInput{DomainID: testDomain, DocType: domain.DocTypeContest, Fields: domain.Fields{"attend": 0}})
	require.NoError(t, err)
	key := docKey(domain.DocTypeContest, id)

	rc.beforeFill = func() {
		_, err := store.Documents.Inc(ctx, key, "attend", 1)
		require.NoError(t, err)
	}

	doc, err := store.Documents.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), mustInt(t, doc.Fields, "attend"), "the racing read returns what it loaded")

	doc, err = store.Documents.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), mustInt(t, doc.Fields, "attend"))
}

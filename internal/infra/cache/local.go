package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type tombstone struct{}

// Local is an in-process cache. It is only coherent when a single process
// writes to the database.
type Local struct {
	cache *gocache.Cache
}

func NewLocal(ttl time.Duration) *Local {
	return &Local{
		cache: gocache.New(ttl, ttl+5*time.Minute),
	}
}

func (l *Local) Get(_ context.Context, key string) ([]byte, bool) {
	v, found := l.cache.Get(key)
	if !found {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

func (l *Local) Add(_ context.Context, key string, value []byte) {
	// fails while an entry or a tombstone is live
	_ = l.cache.Add(key, value, gocache.DefaultExpiration)
}

func (l *Local) Invalidate(_ context.Context, key string) {
	l.cache.Set(key, tombstone{}, HoldPeriod)
}

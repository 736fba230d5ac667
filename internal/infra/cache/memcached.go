package cache

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/zeebo/xxh3"
)

// tombstoneFlag marks an invalidation item.
const tombstoneFlag = 1

// Memcached shares entries between replicas.
type Memcached struct {
	client *memcache.Client
	ttl    int32
	hold   int32
}

func NewMemcached(client *memcache.Client, ttl time.Duration) *Memcached {
	return &Memcached{
		client: client,
		ttl:    max(int32(ttl/time.Second), 1),
		hold:   max(int32(HoldPeriod/time.Second), 1),
	}
}

// memcached keys are limited to 250 bytes without spaces or control characters
func hashKey(key string) string {
	return "ojstore:" + strconv.FormatUint(xxh3.HashString(key), 16)
}

func (m *Memcached) Get(ctx context.Context, key string) ([]byte, bool) {
	item, err := m.client.Get(hashKey(key))
	if err != nil {
		if err != memcache.ErrCacheMiss {
			slog.WarnContext(ctx, "memcached get failed", slog.String("module", "cache"), slog.String("error", err.Error()))
		}
		return nil, false
	}
	if item.Flags == tombstoneFlag {
		return nil, false
	}
	return item.Value, true
}

func (m *Memcached) Add(ctx context.Context, key string, value []byte) {
	err := m.client.Add(&memcache.Item{
		Key:        hashKey(key),
		Value:      value,
		Expiration: m.ttl,
	})
	if err != nil && err != memcache.ErrNotStored {
		slog.WarnContext(ctx, "memcached add failed", slog.String("module", "cache"), slog.String("error", err.Error()))
	}
}

func (m *Memcached) Invalidate(ctx context.Context, key string) {
	err := m.client.Set(&memcache.Item{
		Key:        hashKey(key),
		Value:      []byte{},
		Flags:      tombstoneFlag,
		Expiration: m.hold,
	})
	if err != nil {
		slog.WarnContext(ctx, "memcached invalidate failed", slog.String("module", "cache"), slog.String("error", err.Error()))
	}
}

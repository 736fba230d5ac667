// Package cache holds the read-through cache backends used for point lookups.
package cache

import (
	"context"
	"time"
)

// HoldPeriod is how long an invalidated key refuses fills.
const HoldPeriod = 5 * time.Second

// Cache stores serialized entries. Misses and backend failures both read as a miss.
//
// Readers fill with Add after loading from the database and writers call
// Invalidate after commit. Invalidate leaves a tombstone for HoldPeriod and Add
// never overwrites a tombstone, so a fill that read the row before a commit
// cannot land after that commit's invalidation.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	// Add stores value unless key already holds an entry or a tombstone.
	Add(ctx context.Context, key string, value []byte)
	Invalidate(ctx context.Context, key string)
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (Nop) Add(context.Context, string, []byte) {}
func (Nop) Invalidate(context.Context, string) {}

package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/ojstore/internal/domain"
)

func TestSignalServicePublish(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	sub := rdb.Subscribe(ctx, domain.EventChannel("system"))
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	s := NewSignalService(rdb)
	err = s.Publish(ctx, domain.Event{
		Type:     domain.EventStatusUpdated,
		DomainID: "system",
		DocType:  domain.DocTypeContest,
		DocID:    domain.IntID(12),
		UID:      3,
		Payload:  domain.Fields{"attend": 1},
	})
	require.NoError(t, err)

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "ojstore.system", msg.Channel)

		var event domain.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
		assert.Equal(t, domain.EventStatusUpdated, event.Type)
		assert.True(t, domain.IntID(12).Equal(event.DocID))
		assert.Equal(t, int64(3), event.UID)
		assert.False(t, event.Time.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestSignalServicePublishFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	mr.Close()

	err := NewSignalService(rdb).Publish(context.Background(), domain.Event{DomainID: "system"})
	assert.Error(t, err)
}

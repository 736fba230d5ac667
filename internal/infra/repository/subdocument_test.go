package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/ojstore/internal/domain"
)

func TestSubDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	rid, err := store.Documents.Add(ctx, AddInput{DomainID: testDomain, DocType: domain.DocTypeDiscussionReply, Content: "reply"})
	require.NoError(t, err)
	key := docKey(domain.DocTypeDiscussionReply, rid)

	_, first, err := store.Documents.Push(ctx, key, "reply", "tail one", 4, domain.Fields{"edited": false})
	require.NoError(t, err)
	doc, second, err := store.Documents.Push(ctx, key, "reply", "tail two", 5, nil)
	require.NoError(t, err)
	assert.Len(t, doc.Fields.Slice("reply"), 2)
	assert.False(t, first.Equal(second))

	parent, sub, err := store.Documents.GetSub(ctx, key, "reply", first)
	require.NoError(t, err)
	require.NotNil(t, parent)
	require.NotNil(t, sub)
	assert.Equal(t, "tail one", sub.Content)
	assert.Equal(t, int64(4), sub.OwnerUID)
	assert.True(t, first.Equal(sub.ID))

	doc, err = store.Documents.SetSub(ctx, key, "reply", first, domain.Fields{"content": "edited", "_id": "hijack"})
	require.NoError(t, err)
	require.NotNil(t, doc)
	_, sub, err = store.Documents.GetSub(ctx, key, "reply", first)
	require.NoError(t, err)
	assert.Equal(t, "edited", sub.Content)

	doc, err = store.Documents.DeleteSub(ctx, key, "reply", first)
	require.NoError(t, err)
	assert.Len(t, doc.Fields.Slice("reply"), 1)

	parent, sub, err = store.Documents.GetSub(ctx, key, "reply", first)
	require.NoError(t, err)
	assert.NotNil(t, parent)
	assert.Nil(t, sub)

	doc, err = store.Documents.SetSub(ctx, key, "reply", first, domain.Fields{"content": "x"})
	require.NoError(t, err)
	assert.Nil(t, doc)

	doc, err = store.Documents.DeleteSub(ctx, key, "reply", first)
	require.NoError(t, err)
	assert.NotNil(t, doc)
}

func TestSubDocumentMissingParent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	key := docKey(domain.DocTypeDiscussionReply, domain.NewObjectID())

	parent, sub, err := store.Documents.GetSub(ctx, key, "reply", domain.NewObjectID())
	require.NoError(t, err)
	assert.Nil(t, parent)
	assert.Nil(t, sub)

	doc, id, err := store.Documents.Push(ctx, key, "reply", "x", 1, nil)
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.True(t, id.IsNull())
}

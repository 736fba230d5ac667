package usecase

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/ojstore/internal/domain"
)

func newDiscussion(t *testing.T, uc *DiscussionUsecase) domain.Identifier {
	t.Helper()
	did, err := uc.Add(context.Background(), DiscussionInput{
		DomainID:   testDomain,
		OwnerUID:   1,
		ParentType: domain.DocTypeDiscussionNode,
		ParentID:   domain.StringID("general"),
		Title:      "hello",
		Content:    "first post",
	})
	require.NoError(t, err)
	return did
}

func TestDiscussionNeedsParent(t *testing.T) {
	store := newTestStore(t)
	uc := NewDiscussionUsecase(store.Documents, store.Statuses, nil)

	_, err := uc.Add(context.Background(), DiscussionInput{DomainID: testDomain, Title: "orphan"})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestDiscussionReplies(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pub := &recordingPublisher{}
	uc := NewDiscussionUsecase(store.Documents, store.Statuses, pub)
	did := newDiscussion(t, uc)

	before, err := uc.Get(ctx, testDomain, did)
	require.NoError(t, err)

	first, err := uc.AddReply(ctx, testDomain, did, 2, "me too")
	require.NoError(t, err)
	second, err := uc.AddReply(ctx, testDomain, did, 3, "same")
	require.NoError(t, err)

	after, err := uc.Get(ctx, testDomain, did)
	require.NoError(t, err)
	assert.Equal(t, int64(2), mustInt(t, after.Fields, domain.FieldNumReplies))
	assert.NotEqual(t, before.Fields[domain.FieldUpdateAt], after.Fields[domain.FieldUpdateAt])

	page, err := uc.ListReplies(ctx, testDomain, did, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 2, page.NumPages)
	require.Len(t, page.Items, 1)
	assert.True(t, first.Equal(page.Items[0].Key.DocID))

	page, err = uc.ListReplies(ctx, testDomain, did, 2, 1)
	require.NoError(t, err)
	assert.True(t, second.Equal(page.Items[0].Key.DocID))

	_, err = uc.AddReply(ctx, testDomain, domain.NewObjectID(), 2, "lost")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	assert.Equal(t, []string{domain.EventDocumentAdded, domain.EventDocumentAdded, domain.EventDocumentAdded}, pub.types())
}

func TestDiscussionTailReplies(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	uc := NewDiscussionUsecase(store.Documents, store.Statuses, nil)
	did := newDiscussion(t, uc)

	drid, err := uc.AddReply(ctx, testDomain, did, 2, "reply")
	require.NoError(t, err)

	drrid, err := uc.AddTailReply(ctx, testDomain, drid, 3, "tail")
	require.NoError(t, err)

	tail, err := uc.GetTailReply(ctx, testDomain, drid, drrid)
	require.NoError(t, err)
	assert.Equal(t, "tail", tail.Content)
	assert.Equal(t, int64(3), tail.OwnerUID)
	assert.True(t, tail.Fields.Has("created_at"))

	tail, err = uc.EditTailReply(ctx, testDomain, drid, drrid, "edited tail")
	require.NoError(t, err)
	assert.Equal(t, "edited tail", tail.Content)
	assert.True(t, drrid.Equal(tail.ID))

	require.NoError(t, uc.DeleteTailReply(ctx, testDomain, drid, drrid))

	_, err = uc.GetTailReply(ctx, testDomain, drid, drrid)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = uc.EditTailReply(ctx, testDomain, drid, drrid, "again")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = uc.AddTailReply(ctx, testDomain, domain.NewObjectID(), 3, "nowhere")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestDiscussionDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	uc := NewDiscussionUsecase(store.Documents, store.Statuses, nil)
	did := newDiscussion(t, uc)
	other := newDiscussion(t, uc)

	drid, err := uc.AddReply(ctx, testDomain, did, 2, "reply")
	require.NoError(t, err)
	kept, err := uc.AddReply(ctx, testDomain, other, 2, "elsewhere")
	require.NoError(t, err)

	st, err := uc.SetStar(ctx, testDomain, did, 2, true)
	require.NoError(t, err)
	assert.Equal(t, true, st.Fields[domain.FieldStar])

	require.NoError(t, uc.Delete(ctx, testDomain, did))

	_, err = uc.Get(ctx, testDomain, did)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	reply, err := store.Documents.Get(ctx, replyKey(testDomain, drid))
	require.NoError(t, err)
	assert.Nil(t, reply)

	reply, err = store.Documents.Get(ctx, replyKey(testDomain, kept))
	require.NoError(t, err)
	assert.NotNil(t, reply)

	st, err = store.Statuses.GetStatus(ctx, domain.StatusKey{DocumentKey: discussionKey(testDomain, did), UID: 2})
	require.NoError(t, err)
	assert.Nil(t, st)
}

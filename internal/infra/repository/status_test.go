package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/ojstore/internal/domain"
)

func TestSetAndGetStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	key := statusKey(domain.DocTypeProblem, domain.IntID(1000), 2)

	st, err := store.Statuses.GetStatus(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, st)

	st, err = store.Statuses.SetStatus(ctx, key, domain.Fields{"star": true, "code.lang": "cc"})
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, int64(0), st.Rev)

	st, err = store.Statuses.SetStatus(ctx, key, domain.Fields{"star": false})
	require.NoError(t, err)
	assert.Equal(t, false, st.Fields["star"])
	assert.Equal(t, "cc", st.Fields.Map("code")["lang"])

	_, err = store.Statuses.SetStatus(ctx, key, domain.Fields{"rev": 9})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	st, err = store.Statuses.GetStatus(ctx, key, "star")
	require.NoError(t, err)
	assert.Equal(t, domain.Fields{"star": false}, st.Fields)
}

func TestSetIfNotStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	key := statusKey(domain.DocTypeContest, domain.IntID(1), 5)

	st, outcome, err := store.Statuses.SetIfNotStatus(ctx, key, "attend", 1, 1, domain.Fields{"subscribe": true})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeInserted, outcome)
	assert.Equal(t, int64(1), mustInt(t, st.Fields, "attend"))
	assert.Equal(t, true, st.Fields["subscribe"])

	st, outcome, err = store.Statuses.SetIfNotStatus(ctx, key, "attend", 1, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnchanged, outcome)
	assert.Nil(t, st)

	st, outcome, err = store.Statuses.SetIfNotStatus(ctx, key, "attend", 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUpdated, outcome)
	assert.Equal(t, int64(0), mustInt(t, st.Fields, "attend"))
}

func TestDoubleAttendCountsOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	cid, err := store.Documents.Add(ctx, AddInput{
		DomainID: testDomain,
		DocType:  domain.DocTypeContest,
		Fields:   domain.Fields{"attend": 0},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, outcome, err := store.Statuses.SetIfNotStatus(ctx, statusKey(domain.DocTypeContest, cid, 42), "attend", 1, 1, nil)
			if !assert.NoError(t, err) || !outcome.Applied() {
				return
			}
			_, err = store.Documents.Inc(ctx, docKey(domain.DocTypeContest, cid), "attend", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc, err := store.Documents.Get(ctx, docKey(domain.DocTypeContest, cid))
	require.NoError(t, err)
	assert.Equal(t, int64(1), mustInt(t, doc.Fields, "attend"))
}

func TestCappedIncStatusConcurrent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	key := statusKey(domain.DocTypeProblemSolution, domain.NewObjectID(), 3)

	var applied, capped atomic.Int32
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, outcome, err := store.Statuses.CappedIncStatus(ctx, key, "vote", 1, -1, 1)
			assert.NoError(t, err)
			switch {
			case outcome.Applied():
				applied.Add(1)
			case outcome == domain.OutcomeAlreadyAtCap:
				capped.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), applied.Load())
	assert.Equal(t, int32(1), capped.Load())

	st, err := store.Statuses.GetStatus(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), mustInt(t, st.Fields, "vote"))
}

func TestCappedIncStatusBounds(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	key := statusKey(domain.DocTypeProblemSolution, domain.NewObjectID(), 3)

	steps := []struct {
		delta   int64
		outcome domain.Outcome
		value   int64
	}{
		{-1, domain.OutcomeInserted, -1},
		{-1, domain.OutcomeAlreadyAtCap, -1},
		{1, domain.OutcomeUpdated, 0},
		{1, domain.OutcomeUpdated, 1},
		{1, domain.OutcomeAlreadyAtCap, 1},
	}
	for i, s := range steps {
		st, outcome, err := store.Statuses.CappedIncStatus(ctx, key, "vote", s.delta, -1, 1)
		require.NoError(t, err)
		assert.Equal(t, s.outcome, outcome, "step %d", i)
		if outcome.Applied() {
			assert.Equal(t, s.value, mustInt(t, st.Fields, "vote"), "step %d", i)
		} else {
			assert.Nil(t, st)
		}
	}

	assert.Panics(t, func() {
		store.Statuses.CappedIncStatus(ctx, key, "vote", 0, -1, 1)
	})
}

func TestIncAndSetMembershipStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	key := statusKey(domain.DocTypeTraining, domain.NewObjectID(), 1)

	st, err := store.Statuses.IncStatus(ctx, key, "num_submit", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), mustInt(t, st.Fields, "num_submit"))

	for _, pid := range []int{1, 2, 1} {
		st, err = store.Statuses.AddToSetStatus(ctx, key, "done_pids", pid)
		require.NoError(t, err)
	}
	assert.Len(t, st.Fields.Slice("done_pids"), 2)

	st, err = store.Statuses.PullStatus(ctx, key, "done_pids", 1)
	require.NoError(t, err)
	assert.Len(t, st.Fields.Slice("done_pids"), 1)

	st, err = store.Statuses.PullStatus(ctx, statusKey(domain.DocTypeTraining, domain.NewObjectID(), 1), "done_pids", 1)
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestRevSetStatusRejectsStaleRevision(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	key := statusKey(domain.DocTypeContest, domain.IntID(7), 9)

	st, err := store.Statuses.RevSetStatus(ctx, key, 0, domain.Fields{"score": 1})
	require.NoError(t, err)
	assert.Nil(t, st, "missing record")

	st, err = store.Statuses.RevInitStatus(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Rev)

	st, err = store.Statuses.RevSetStatus(ctx, key, 0, domain.Fields{"score": 1})
	require.NoError(t, err)
	assert.Nil(t, st)

	current, err := store.Statuses.GetStatus(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), current.Rev)
	assert.False(t, current.Fields.Has("score"))

	st, err = store.Statuses.RevSetStatus(ctx, key, 1, domain.Fields{"score": 100})
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, int64(2), st.Rev)
	assert.Equal(t, int64(100), mustInt(t, st.Fields, "score"))
}

func TestJournalRevisions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	key := statusKey(domain.DocTypeContest, domain.IntID(7), 9)

	var st *domain.Status
	var err error
	for i := range 3 {
		st, err = store.Statuses.RevPushStatus(ctx, key, "journal", domain.Fields{"rid": i, "score": 10 * i})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), st.Rev)
	assert.Len(t, st.Fields.Slice("journal"), 3)

	st, err = store.Statuses.RevSetStatus(ctx, key, 3, domain.Fields{"score": 20})
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, int64(4), st.Rev)

	st, err = store.Statuses.RevSetStatus(ctx, key, 3, domain.Fields{"score": 0})
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestRevUpdateStatusUnderContention(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	key := statusKey(domain.DocTypeContest, domain.IntID(1), 1)

	_, err := store.Statuses.RevInitStatus(ctx, key)
	require.NoError(t, err)

	const writers = 6
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Statuses.RevUpdateStatus(ctx, key, func(cur *domain.Status) (domain.Fields, error) {
				n, _ := cur.Fields.Int64("n")
				return domain.Fields{"n": n + 1}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := store.Statuses.GetStatus(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(writers), mustInt(t, st.Fields, "n"))
	assert.Equal(t, int64(1+writers), st.Rev)
}

func TestRevUpdateStatusGivesUp(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	store.Statuses.retryLimit = 2
	key := statusKey(domain.DocTypeContest, domain.IntID(1), 1)

	_, err := store.Statuses.RevInitStatus(ctx, key)
	require.NoError(t, err)

	calls := 0
	_, err = store.Statuses.RevUpdateStatus(ctx, key, func(cur *domain.Status) (domain.Fields, error) {
		calls++
		// a competing writer lands between every read and write
		_, err := store.Statuses.RevInitStatus(ctx, key)
		return domain.Fields{}, err
	})
	assert.True(t, errors.Is(err, domain.ErrRevisionConflict))
	assert.Equal(t, 3, calls)

	st, err := store.Statuses.RevUpdateStatus(ctx, statusKey(domain.DocTypeContest, domain.IntID(404), 1), func(*domain.Status) (domain.Fields, error) {
		t.Fatal("recompute called for a missing record")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestZeroRetryLimitUsesDefault(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	statuses := NewStatusRepository(store.Statuses.db, domain.Config{})
	require.Equal(t, domain.DefaultConfig().RevRetryLimit, statuses.retryLimit)

	key := statusKey(domain.DocTypeContest, domain.IntID(1), 1)
	_, err := statuses.RevInitStatus(ctx, key)
	require.NoError(t, err)

	calls := 0
	_, err = statuses.RevUpdateStatus(ctx, key, func(cur *domain.Status) (domain.Fields, error) {
		calls++
		_, err := statuses.RevInitStatus(ctx, key)
		return domain.Fields{}, err
	})
	assert.True(t, errors.Is(err, domain.ErrRevisionConflict))
	assert.Equal(t, int(domain.DefaultConfig().RevRetryLimit)+1, calls)
}

func TestCappedIncRejectsNumericString(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	key := statusKey(domain.DocTypeProblem, domain.IntID(1), 1)

	_, err := store.Statuses.SetStatus(ctx, key, domain.Fields{"vote": "5"})
	require.NoError(t, err)

	_, _, err = store.Statuses.CappedIncStatus(ctx, key, "vote", 1, -10, 10)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	_, err = store.Statuses.IncStatus(ctx, key, "vote", 1)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	st, err := store.Statuses.GetStatus(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "5", st.Fields["vote"])
}

func TestRevUpdateStatusRecomputeError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	key := statusKey(domain.DocTypeContest, domain.IntID(1), 1)

	_, err := store.Statuses.RevInitStatus(ctx, key)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = store.Statuses.RevUpdateStatus(ctx, key, func(*domain.Status) (domain.Fields, error) {
		return nil, boom
	})
	assert.True(t, errors.Is(err, boom))
}

func TestFindMultiStatusAndDict(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, pid := range []int64{1, 2, 3} {
		_, err := store.Statuses.SetStatus(ctx, statusKey(domain.DocTypeProblem, domain.IntID(pid), 10), domain.Fields{"status": pid})
		require.NoError(t, err)
	}
	_, err := store.Statuses.SetStatus(ctx, statusKey(domain.DocTypeProblem, domain.IntID(1), 11), domain.Fields{"status": 1})
	require.NoError(t, err)

	statuses, err := store.Statuses.FindMultiStatus(ctx, NewQuery().
		Where("domain_id", testDomain).
		Where("uid", 10).
		Filter("status", Gte, 2).
		Sort("doc_id", Desc))
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, domain.IntID(3).Equal(statuses[0].Key.DocID))

	count := 0
	for st, err := range store.Statuses.GetMultiStatus(ctx, NewQuery().Where("doc_id", 1)) {
		require.NoError(t, err)
		assert.True(t, domain.IntID(1).Equal(st.Key.DocID))
		count++
	}
	assert.Equal(t, 2, count)

	dict, err := store.Statuses.GetDictStatus(ctx, testDomain, 10, domain.DocTypeProblem,
		[]domain.Identifier{domain.IntID(1), domain.IntID(3), domain.IntID(99)})
	require.NoError(t, err)
	require.Len(t, dict, 2)
	assert.Equal(t, int64(3), mustInt(t, dict[domain.IntID(3)].Fields, "status"))
	assert.Nil(t, dict[domain.IntID(99)])
}

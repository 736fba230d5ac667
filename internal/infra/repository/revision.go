package repository

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/ojstore/internal/domain"
)

var errStaleRevision = errors.New("stale revision")

// RecomputeFunc derives the fields to write from the current record.
// It can run more than once per update and must not have side effects.
type RecomputeFunc func(current *domain.Status) (domain.Fields, error)

func (r *StatusRepository) revisionBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, r.retryLimit), ctx)
}

// RevUpdateStatus is the read, recompute, conditional write cycle over a
// status record, retried with backoff while other writers advance the revision.
// A missing record returns nil. Exhausted retries return ErrRevisionConflict.
func (r *StatusRepository) RevUpdateStatus(ctx context.Context, key domain.StatusKey, recompute RecomputeFunc) (*domain.Status, error) {
	ctx, span := tracer.Start(ctx, "Status.Repository.RevUpdateStatus")
	defer span.End()
	span.SetAttributes(statusAttr(key))

	attempts := 0
	st, err := backoff.RetryWithData(func() (*domain.Status, error) {
		attempts++

		current, err := r.GetStatus(ctx, key)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if current == nil {
			return nil, nil
		}

		fields, err := recompute(current)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		updated, err := r.RevSetStatus(ctx, key, current.Rev, fields)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if updated == nil {
			return nil, errStaleRevision
		}
		return updated, nil
	}, r.revisionBackOff(ctx))
	span.SetAttributes(attribute.Int("attempts", attempts))

	if errors.Is(err, errStaleRevision) {
		err = errors.Wrapf(domain.ErrRevisionConflict, "status %s after %d attempts", key, attempts)
		span.RecordError(err)
		return nil, err
	}
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "rev update status")
	}
	return st, nil
}

package repository

import (
	"context"
	"fmt"
	"iter"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/ojstore/internal/domain"
	"github.com/totegamma/ojstore/internal/infra/database/models"
)

var (
	errUnchanged = errors.New("unchanged")
	errAtCap     = errors.New("at cap")
)

type StatusRepository struct {
	db         *gorm.DB
	compiler   compiler
	retryLimit uint64
}

// NewStatusRepository falls back to the default retry limit when
// config leaves it at zero, which backoff would read as unlimited.
func NewStatusRepository(db *gorm.DB, config domain.Config) *StatusRepository {
	limit := config.RevRetryLimit
	if limit == 0 {
		limit = domain.DefaultConfig().RevRetryLimit
	}
	return &StatusRepository{
		db:         db,
		compiler:   newCompiler(db, statusColumns),
		retryLimit: limit,
	}
}

func statusScope(tx *gorm.DB, key domain.StatusKey) *gorm.DB {
	return tx.Where("domain_id = ? AND doc_type = ? AND doc_id = ? AND uid = ?",
		key.DomainID, int(key.DocType), key.DocID, key.UID)
}

func statusAttr(key domain.StatusKey) attribute.KeyValue {
	return attribute.String("status", key.String())
}

// ensureStatus inserts an empty record unless one exists and reports whether it did.
func ensureStatus(tx *gorm.DB, key domain.StatusKey) (bool, error) {
	row := models.Status{
		DomainID: key.DomainID,
		DocType:  int(key.DocType),
		DocID:    key.DocID,
		UID:      key.UID,
		Fields:   datatypes.JSONMap{},
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	return res.RowsAffected > 0, res.Error
}

// mutate locks the record, creating it first when upsert is set, and writes
// back whatever fn leaves in it. Sentinel errors from fn roll the transaction back.
func (r *StatusRepository) mutate(ctx context.Context, key domain.StatusKey, upsert bool, fn func(m *models.Status) error) (*domain.Status, bool, error) {
	var result *models.Status
	var inserted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if upsert {
			var err error
			inserted, err = ensureStatus(tx, key)
			if err != nil {
				return err
			}
		}

		var m models.Status
		err := statusScope(tx.Clauses(clause.Locking{Strength: "UPDATE"}), key).Take(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errNoMatch
		}
		if err != nil {
			return err
		}
		if m.Fields == nil {
			m.Fields = datatypes.JSONMap{}
		}

		if err := fn(&m); err != nil {
			return err
		}

		fields, err := roundTrip(m.Fields)
		if err != nil {
			return err
		}
		m.Fields = fields

		if err := tx.Save(&m).Error; err != nil {
			return err
		}
		result = &m
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return toStatus(result, nil), inserted, nil
}

func setStatusFields(m *models.Status, fields domain.Fields) error {
	for k, v := range fields {
		if _, ok := statusColumns[k]; ok {
			return fmt.Errorf("%w: %s cannot be set", domain.ErrInvalidArgument, k)
		}
		if err := setPath(m.Fields, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (r *StatusRepository) GetStatus(ctx context.Context, key domain.StatusKey, fields ...string) (*domain.Status, error) {
	ctx, span := tracer.Start(ctx, "Status.Repository.GetStatus")
	defer span.End()
	span.SetAttributes(statusAttr(key))

	var m models.Status
	err := statusScope(r.db.WithContext(ctx), key).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "get status")
	}
	return toStatus(&m, fields), nil
}

// SetStatus upserts the record and replaces the given fields. Last write wins.
func (r *StatusRepository) SetStatus(ctx context.Context, key domain.StatusKey, fields domain.Fields) (*domain.Status, error) {
	ctx, span := tracer.Start(ctx, "Status.Repository.SetStatus")
	defer span.End()
	span.SetAttributes(statusAttr(key))

	st, _, err := r.mutate(ctx, key, true, func(m *models.Status) error {
		return setStatusFields(m, fields)
	})
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "set status")
	}
	return st, nil
}

// SetIfNotStatus sets field to value (plus extra) unless its stored value already equals ifNot.
// The no-op case returns a nil status with OutcomeUnchanged.
func (r *StatusRepository) SetIfNotStatus(ctx context.Context, key domain.StatusKey, field string, value, ifNot any, extra domain.Fields) (*domain.Status, domain.Outcome, error) {
	ctx, span := tracer.Start(ctx, "Status.Repository.SetIfNotStatus")
	defer span.End()
	span.SetAttributes(statusAttr(key), attribute.String("field", field))

	st, inserted, err := r.mutate(ctx, key, true, func(m *models.Status) error {
		if cur, ok := getPath(m.Fields, field); ok && domain.SameValue(cur, ifNot) {
			return errUnchanged
		}
		if err := setStatusFields(m, extra); err != nil {
			return err
		}
		return setStatusFields(m, domain.Fields{field: value})
	})
	if errors.Is(err, errUnchanged) {
		return nil, domain.OutcomeUnchanged, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, 0, errors.Wrap(err, "set if not status")
	}
	if inserted {
		return st, domain.OutcomeInserted, nil
	}
	return st, domain.OutcomeUpdated, nil
}

// CappedIncStatus adds delta unless the field is already at maxValue (delta > 0)
// or at minValue (delta < 0). A missing field counts as zero.
func (r *StatusRepository) CappedIncStatus(ctx context.Context, key domain.StatusKey, field string, delta, minValue, maxValue int64) (*domain.Status, domain.Outcome, error) {
	if delta == 0 {
		panic("repository: capped increment with zero delta")
	}

	ctx, span := tracer.Start(ctx, "Status.Repository.CappedIncStatus")
	defer span.End()
	span.SetAttributes(statusAttr(key), attribute.String("field", field), attribute.Int64("delta", delta))

	st, inserted, err := r.mutate(ctx, key, true, func(m *models.Status) error {
		cur, err := intAt(m.Fields, field)
		if err != nil {
			return err
		}
		if (delta > 0 && cur >= maxValue) || (delta < 0 && cur <= minValue) {
			return errAtCap
		}
		return setPath(m.Fields, field, cur+delta)
	})
	if errors.Is(err, errAtCap) {
		return nil, domain.OutcomeAlreadyAtCap, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, 0, errors.Wrap(err, "capped inc status")
	}
	if inserted {
		return st, domain.OutcomeInserted, nil
	}
	return st, domain.OutcomeUpdated, nil
}

func (r *StatusRepository) IncStatus(ctx context.Context, key domain.StatusKey, field string, delta int64) (*domain.Status, error) {
	ctx, span := tracer.Start(ctx, "Status.Repository.IncStatus")
	defer span.End()
	span.SetAttributes(statusAttr(key), attribute.String("field", field))

	st, _, err := r.mutate(ctx, key, true, func(m *models.Status) error {
		return incPath(m.Fields, field, delta)
	})
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "inc status")
	}
	return st, nil
}

// AddToSetStatus upserts the record and adds value to an array field once.
func (r *StatusRepository) AddToSetStatus(ctx context.Context, key domain.StatusKey, field string, value any) (*domain.Status, error) {
	ctx, span := tracer.Start(ctx, "Status.Repository.AddToSetStatus")
	defer span.End()
	span.SetAttributes(statusAttr(key), attribute.String("field", field))

	st, _, err := r.mutate(ctx, key, true, func(m *models.Status) error {
		return addToSetPath(m.Fields, field, value)
	})
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "add to set status")
	}
	return st, nil
}

// PullStatus removes values from an array field. Absent records stay absent.
func (r *StatusRepository) PullStatus(ctx context.Context, key domain.StatusKey, field string, values ...any) (*domain.Status, error) {
	ctx, span := tracer.Start(ctx, "Status.Repository.PullStatus")
	defer span.End()
	span.SetAttributes(statusAttr(key), attribute.String("field", field))

	st, _, err := r.mutate(ctx, key, false, func(m *models.Status) error {
		return pullPath(m.Fields, field, values)
	})
	if errors.Is(err, errNoMatch) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "pull status")
	}
	return st, nil
}

// RevInitStatus upserts the record and bumps its revision.
func (r *StatusRepository) RevInitStatus(ctx context.Context, key domain.StatusKey) (*domain.Status, error) {
	ctx, span := tracer.Start(ctx, "Status.Repository.RevInitStatus")
	defer span.End()
	span.SetAttributes(statusAttr(key))

	st, _, err := r.mutate(ctx, key, true, func(m *models.Status) error {
		m.Rev++
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "rev init status")
	}
	return st, nil
}

// RevPushStatus appends value to an array field and bumps the revision in one write.
func (r *StatusRepository) RevPushStatus(ctx context.Context, key domain.StatusKey, field string, value any) (*domain.Status, error) {
	ctx, span := tracer.Start(ctx, "Status.Repository.RevPushStatus")
	defer span.End()
	span.SetAttributes(statusAttr(key), attribute.String("field", field))

	st, _, err := r.mutate(ctx, key, true, func(m *models.Status) error {
		if err := pushPath(m.Fields, field, value); err != nil {
			return err
		}
		m.Rev++
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "rev push status")
	}
	return st, nil
}

// RevSetStatus applies fields only if the stored revision equals rev, bumping it.
// A stale rev, or a missing record, returns nil without error.
func (r *StatusRepository) RevSetStatus(ctx context.Context, key domain.StatusKey, rev int64, fields domain.Fields) (*domain.Status, error) {
	ctx, span := tracer.Start(ctx, "Status.Repository.RevSetStatus")
	defer span.End()
	span.SetAttributes(statusAttr(key), attribute.Int64("rev", rev))

	st, _, err := r.mutate(ctx, key, false, func(m *models.Status) error {
		if m.Rev != rev {
			return errNoMatch
		}
		if err := setStatusFields(m, fields); err != nil {
			return err
		}
		m.Rev++
		return nil
	})
	if errors.Is(err, errNoMatch) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "rev set status")
	}
	return st, nil
}

// DeleteStatusMulti removes every user's status of one document. Document
// deletion does not call this; callers opt in.
func (r *StatusRepository) DeleteStatusMulti(ctx context.Context, domainID string, docType domain.DocType, docID domain.Identifier) (int64, error) {
	ctx, span := tracer.Start(ctx, "Status.Repository.DeleteStatusMulti")
	defer span.End()

	res := r.db.WithContext(ctx).
		Where("domain_id = ? AND doc_type = ? AND doc_id = ?", domainID, int(docType), docID).
		Delete(&models.Status{})
	if res.Error != nil {
		span.RecordError(res.Error)
		return 0, errors.Wrap(res.Error, "delete statuses")
	}
	return res.RowsAffected, nil
}

// GetMultiStatus streams the statuses matching q.
func (r *StatusRepository) GetMultiStatus(ctx context.Context, q *Query) iter.Seq2[*domain.Status, error] {
	if q == nil {
		q = NewQuery()
	}
	return func(yield func(*domain.Status, error) bool) {
		ctx, span := tracer.Start(ctx, "Status.Repository.GetMultiStatus")
		defer span.End()

		tx, err := r.compiler.apply(r.db.WithContext(ctx).Model(&models.Status{}), q)
		if err != nil {
			yield(nil, err)
			return
		}
		rows, err := tx.Rows()
		if err != nil {
			span.RecordError(err)
			yield(nil, errors.Wrap(err, "query statuses"))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var m models.Status
			if err := tx.ScanRows(rows, &m); err != nil {
				span.RecordError(err)
				yield(nil, errors.Wrap(err, "scan status"))
				return
			}
			if !yield(toStatus(&m, q.Projection), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			span.RecordError(err)
			yield(nil, errors.Wrap(err, "iterate statuses"))
		}
	}
}

func (r *StatusRepository) FindMultiStatus(ctx context.Context, q *Query) ([]*domain.Status, error) {
	ctx, span := tracer.Start(ctx, "Status.Repository.FindMultiStatus")
	defer span.End()

	if q == nil {
		q = NewQuery()
	}
	tx, err := r.compiler.apply(r.db.WithContext(ctx).Model(&models.Status{}), q)
	if err != nil {
		return nil, err
	}
	var rows []models.Status
	if err := tx.Find(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "find statuses")
	}

	statuses := make([]*domain.Status, len(rows))
	for i := range rows {
		statuses[i] = toStatus(&rows[i], q.Projection)
	}
	return statuses, nil
}

package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/totegamma/ojstore/internal/domain"
	"github.com/totegamma/ojstore/internal/infra/cache"
	"github.com/totegamma/ojstore/internal/infra/database/models"
)

// Store bundles the two repositories sharing one connection.
type Store struct {
	Documents *DocumentRepository
	Statuses  *StatusRepository
}

func NewStore(db *gorm.DB, c cache.Cache, config domain.Config) *Store {
	return &Store{
		Documents: NewDocumentRepository(db, c),
		Statuses:  NewStatusRepository(db, config),
	}
}

// GetDict fetches a set of documents of mixed types in one query.
// Keys that do not exist are absent from the result.
func (r *DocumentRepository) GetDict(ctx context.Context, domainID string, keys []domain.DictKey, fields ...string) (map[domain.DictKey]*domain.Document, error) {
	ctx, span := tracer.Start(ctx, "Document.Repository.GetDict")
	defer span.End()

	result := make(map[domain.DictKey]*domain.Document, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	groups := map[domain.DocType][]domain.Identifier{}
	for _, k := range keys {
		groups[k.DocType] = append(groups[k.DocType], k.DocID)
	}
	types := make([]domain.DocType, 0, len(groups))
	for t := range groups {
		types = append(types, t)
	}
	slices.Sort(types)

	clauses := make([]string, 0, len(types))
	args := make([]any, 0, len(types)*2)
	for _, t := range types {
		clauses = append(clauses, "(doc_type = ? AND doc_id IN ?)")
		args = append(args, int(t), groups[t])
	}

	var rows []models.Document
	err := r.db.WithContext(ctx).
		Where("domain_id = ?", domainID).
		Where("("+strings.Join(clauses, " OR ")+")", args...).
		Find(&rows).Error
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "get document dict")
	}

	for i := range rows {
		doc := toDocument(&rows[i], fields)
		result[domain.DictKey{DocType: doc.Key.DocType, DocID: doc.Key.DocID}] = doc
	}
	return result, nil
}

// GetDictStatus fetches one user's statuses for a set of documents of one type.
func (r *StatusRepository) GetDictStatus(ctx context.Context, domainID string, uid int64, docType domain.DocType, docIDs []domain.Identifier, fields ...string) (map[domain.Identifier]*domain.Status, error) {
	ctx, span := tracer.Start(ctx, "Status.Repository.GetDictStatus")
	defer span.End()

	result := make(map[domain.Identifier]*domain.Status, len(docIDs))
	if len(docIDs) == 0 {
		return result, nil
	}

	var rows []models.Status
	err := r.db.WithContext(ctx).
		Where("domain_id = ? AND doc_type = ? AND uid = ? AND doc_id IN ?", domainID, int(docType), uid, docIDs).
		Find(&rows).Error
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "get status dict")
	}

	for i := range rows {
		st := toStatus(&rows[i], fields)
		result[st.Key.DocID] = st
	}
	return result, nil
}

type Page[T any] struct {
	Items    []T
	Page     int
	NumPages int
	Total    int64
}

func numPages(total int64, pageSize int) int {
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

// Paginate returns one page of q and the total match count. The two reads
// are separate round trips and may disagree under concurrent writes.
func (r *DocumentRepository) Paginate(ctx context.Context, q *Query, page, pageSize int) (Page[*domain.Document], error) {
	if page <= 0 || pageSize <= 0 {
		return Page[*domain.Document]{}, fmt.Errorf("%w: page %d size %d", domain.ErrInvalidArgument, page, pageSize)
	}

	window := q.clone().Skip((page - 1) * pageSize).Limit(pageSize)
	items, err := r.FindMulti(ctx, window)
	if err != nil {
		return Page[*domain.Document]{}, err
	}
	total, err := r.Count(ctx, q)
	if err != nil {
		return Page[*domain.Document]{}, err
	}

	return Page[*domain.Document]{
		Items:    items,
		Page:     page,
		NumPages: numPages(total, pageSize),
		Total:    total,
	}, nil
}

package repository

import (
	"context"
	"fmt"
	"iter"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/ojstore/internal/domain"
	"github.com/totegamma/ojstore/internal/infra/cache"
	"github.com/totegamma/ojstore/internal/infra/database/models"
)

var tracer = otel.Tracer("repository")

// errNoMatch aborts a row transaction whose filter did not match.
var errNoMatch = errors.New("no match")

type DocumentRepository struct {
	db       *gorm.DB
	cache    cache.Cache
	compiler compiler
}

func NewDocumentRepository(db *gorm.DB, c cache.Cache) *DocumentRepository {
	if c == nil {
		c = cache.Nop{}
	}
	return &DocumentRepository{
		db:       db,
		cache:    c,
		compiler: newCompiler(db, documentColumns),
	}
}

type AddInput struct {
	DomainID      string
	DocType       domain.DocType
	DocID         domain.Identifier // generated when null
	OwnerUID      int64
	Content       string
	ParentDocType *domain.DocType
	ParentDocID   domain.Identifier
	Fields        domain.Fields
}

func documentScope(tx *gorm.DB, key domain.DocumentKey) *gorm.DB {
	return tx.Where("domain_id = ? AND doc_type = ? AND doc_id = ?", key.DomainID, int(key.DocType), key.DocID)
}

func documentCacheKey(key domain.DocumentKey) string {
	return "doc:" + key.Canonical()
}

func keyAttr(key domain.DocumentKey) attribute.KeyValue {
	return attribute.String("document", key.String())
}

func (r *DocumentRepository) invalidate(ctx context.Context, key domain.DocumentKey) {
	r.cache.Invalidate(ctx, documentCacheKey(key))
}

func (r *DocumentRepository) Add(ctx context.Context, in AddInput) (domain.Identifier, error) {
	if (in.ParentDocType == nil) != in.ParentDocID.IsNull() {
		panic("repository: parent doc type and parent doc id must be given together")
	}

	ctx, span := tracer.Start(ctx, "Document.Repository.Add")
	defer span.End()

	rowID := domain.NewObjectID()
	docID := in.DocID
	if docID.IsNull() {
		docID = rowID
	}
	key := domain.DocumentKey{DomainID: in.DomainID, DocType: in.DocType, DocID: docID}
	span.SetAttributes(keyAttr(key))

	fields, err := roundTrip(in.Fields)
	if err != nil {
		span.RecordError(err)
		return domain.Identifier{}, errors.Wrap(err, "encode fields")
	}

	m := models.Document{
		ID:          rowID.String(),
		DomainID:    in.DomainID,
		DocType:     int(in.DocType),
		DocID:       docID,
		OwnerUID:    in.OwnerUID,
		Content:     in.Content,
		ParentDocID: in.ParentDocID,
		Fields:      fields,
	}
	if in.ParentDocType != nil {
		t := int(*in.ParentDocType)
		m.ParentDocType = &t
	}

	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.Identifier{}, fmt.Errorf("%w: document %s: %w", domain.ErrDuplicateKey, key, err)
		}
		span.RecordError(err)
		return domain.Identifier{}, errors.Wrap(err, "insert document")
	}

	return docID, nil
}

// Get returns nil when the document does not exist. fields restricts the extension map.
func (r *DocumentRepository) Get(ctx context.Context, key domain.DocumentKey, fields ...string) (*domain.Document, error) {
	ctx, span := tracer.Start(ctx, "Document.Repository.Get")
	defer span.End()
	span.SetAttributes(keyAttr(key))

	m, err := r.load(ctx, key)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "get document")
	}
	if m == nil {
		return nil, nil
	}
	return toDocument(m, fields), nil
}

func (r *DocumentRepository) load(ctx context.Context, key domain.DocumentKey) (*models.Document, error) {
	ck := documentCacheKey(key)
	if b, ok := r.cache.Get(ctx, ck); ok {
		if m, err := decodeEntry(b); err == nil {
			return m, nil
		}
		r.cache.Invalidate(ctx, ck)
	}

	var m models.Document
	err := documentScope(r.db.WithContext(ctx), key).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if b, err := encodeEntry(&m); err == nil {
		r.cache.Add(ctx, ck, b)
	}
	return &m, nil
}

// mutate runs fn against the locked row and writes it back in the same
// transaction. A missing row, or fn returning errNoMatch, yields nil.
func (r *DocumentRepository) mutate(ctx context.Context, key domain.DocumentKey, fn func(m *models.Document) error) (*domain.Document, error) {
	var result *models.Document
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Document
		err := documentScope(tx.Clauses(clause.Locking{Strength: "UPDATE"}), key).Take(&m).Error
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
	r.invalidate(ctx, key)

	if errors.Is(err, errNoMatch) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toDocument(result, nil), nil
}

// Set replaces the given fields. content and owner_uid address their columns,
// dotted names descend into nested objects.
func (r *DocumentRepository) Set(ctx context.Context, key domain.DocumentKey, fields domain.Fields) (*domain.Document, error) {
	ctx, span := tracer.Start(ctx, "Document.Repository.Set")
	defer span.End()
	span.SetAttributes(keyAttr(key))

	doc, err := r.mutate(ctx, key, func(m *models.Document) error {
		for k, v := range fields {
			if err := setDocumentField(m, k, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "set document")
	}
	return doc, nil
}

func setDocumentField(m *models.Document, field string, value any) error {
	switch field {
	case "content":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: content must be a string", domain.ErrInvalidArgument)
		}
		m.Content = s
		return nil
	case "owner_uid":
		n, ok := domain.AsInt64(value)
		if !ok {
			return fmt.Errorf("%w: owner_uid must be an integer", domain.ErrInvalidArgument)
		}
		m.OwnerUID = n
		return nil
	}
	if _, ok := documentColumns[field]; ok {
		return fmt.Errorf("%w: %s cannot be set", domain.ErrInvalidArgument, field)
	}
	return setPath(m.Fields, field, value)
}

func (r *DocumentRepository) Delete(ctx context.Context, key domain.DocumentKey) error {
	ctx, span := tracer.Start(ctx, "Document.Repository.Delete")
	defer span.End()
	span.SetAttributes(keyAttr(key))

	err := documentScope(r.db.WithContext(ctx), key).Delete(&models.Document{}).Error
	r.invalidate(ctx, key)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "delete document")
	}
	return nil
}

// DeleteMulti removes every document of docType in the domain matching q.
// Statuses of the removed documents are left in place.
func (r *DocumentRepository) DeleteMulti(ctx context.Context, domainID string, docType domain.DocType, q *Query) (int64, error) {
	ctx, span := tracer.Start(ctx, "Document.Repository.DeleteMulti")
	defer span.End()

	scoped := q.clone()
	scoped.Conditions = append(scoped.Conditions,
		Condition{Field: "domain_id", Op: Eq, Value: domainID},
		Condition{Field: "doc_type", Op: Eq, Value: docType},
	)

	var ids []domain.Identifier
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		selected, err := r.compiler.where(tx.Model(&models.Document{}), scoped)
		if err != nil {
			return err
		}
		if err := selected.Pluck("doc_id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		res := tx.Where("domain_id = ? AND doc_type = ? AND doc_id IN ?", domainID, int(docType), ids).
			Delete(&models.Document{})
		deleted = res.RowsAffected
		return res.Error
	})
	for _, id := range ids {
		r.invalidate(ctx, domain.DocumentKey{DomainID: domainID, DocType: docType, DocID: id})
	}
	if err != nil {
		span.RecordError(err)
		return 0, errors.Wrap(err, "delete documents")
	}
	return deleted, nil
}

// GetMulti streams the documents matching q. On a single-connection backend
// the sequence holds the connection until it is drained or abandoned.
func (r *DocumentRepository) GetMulti(ctx context.Context, q *Query) iter.Seq2[*domain.Document, error] {
	if q == nil {
		q = NewQuery()
	}
	return func(yield func(*domain.Document, error) bool) {
		ctx, span := tracer.Start(ctx, "Document.Repository.GetMulti")
		defer span.End()

		tx, err := r.compiler.apply(r.db.WithContext(ctx).Model(&models.Document{}), q)
		if err != nil {
			yield(nil, err)
			return
		}
		rows, err := tx.Rows()
		if err != nil {
			span.RecordError(err)
			yield(nil, errors.Wrap(err, "query documents"))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var m models.Document
			if err := tx.ScanRows(rows, &m); err != nil {
				span.RecordError(err)
				yield(nil, errors.Wrap(err, "scan document"))
				return
			}
			if !yield(toDocument(&m, q.Projection), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			span.RecordError(err)
			yield(nil, errors.Wrap(err, "iterate documents"))
		}
	}
}

func (r *DocumentRepository) FindMulti(ctx context.Context, q *Query) ([]*domain.Document, error) {
	ctx, span := tracer.Start(ctx, "Document.Repository.FindMulti")
	defer span.End()

	if q == nil {
		q = NewQuery()
	}

	tx, err := r.compiler.apply(r.db.WithContext(ctx).Model(&models.Document{}), q)
	if err != nil {
		return nil, err
	}
	var rows []models.Document
	if err := tx.Find(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "find documents")
	}

	docs := make([]*domain.Document, len(rows))
	for i := range rows {
		docs[i] = toDocument(&rows[i], q.Projection)
	}
	return docs, nil
}

func (r *DocumentRepository) Count(ctx context.Context, q *Query) (int64, error) {
	ctx, span := tracer.Start(ctx, "Document.Repository.Count")
	defer span.End()

	tx, err := r.compiler.where(r.db.WithContext(ctx).Model(&models.Document{}), q)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := tx.Count(&n).Error; err != nil {
		span.RecordError(err)
		return 0, errors.Wrap(err, "count documents")
	}
	return n, nil
}

// Inc adds delta to an integer field, treating a missing field as zero.
func (r *DocumentRepository) Inc(ctx context.Context, key domain.DocumentKey, field string, delta int64) (*domain.Document, error) {
	ctx, span := tracer.Start(ctx, "Document.Repository.Inc")
	defer span.End()
	span.SetAttributes(keyAttr(key), attribute.String("field", field))

	doc, err := r.mutate(ctx, key, func(m *models.Document) error {
		return incPath(m.Fields, field, delta)
	})
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "inc document")
	}
	return doc, nil
}

// IncAndSet applies an increment and an assignment in one write.
func (r *DocumentRepository) IncAndSet(ctx context.Context, key domain.DocumentKey, incField string, incValue int64, setField string, setValue any) (*domain.Document, error) {
	ctx, span := tracer.Start(ctx, "Document.Repository.IncAndSet")
	defer span.End()
	span.SetAttributes(keyAttr(key))

	doc, err := r.mutate(ctx, key, func(m *models.Document) error {
		if err := incPath(m.Fields, incField, incValue); err != nil {
			return err
		}
		return setDocumentField(m, setField, setValue)
	})
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "inc and set document")
	}
	return doc, nil
}

// AddToSet appends value to an array field unless an equal element is present.
func (r *DocumentRepository) AddToSet(ctx context.Context, key domain.DocumentKey, field string, value any) (*domain.Document, error) {
	ctx, span := tracer.Start(ctx, "Document.Repository.AddToSet")
	defer span.End()
	span.SetAttributes(keyAttr(key), attribute.String("field", field))

	doc, err := r.mutate(ctx, key, func(m *models.Document) error {
		return addToSetPath(m.Fields, field, value)
	})
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "add to set")
	}
	return doc, nil
}

// Pull removes every element equal to one of values from an array field.
func (r *DocumentRepository) Pull(ctx context.Context, key domain.DocumentKey, field string, values ...any) (*domain.Document, error) {
	ctx, span := tracer.Start(ctx, "Document.Repository.Pull")
	defer span.End()
	span.SetAttributes(keyAttr(key), attribute.String("field", field))

	doc, err := r.mutate(ctx, key, func(m *models.Document) error {
		return pullPath(m.Fields, field, values)
	})
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "pull")
	}
	return doc, nil
}

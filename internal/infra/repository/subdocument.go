package repository

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/ojstore/internal/domain"
	"github.com/totegamma/ojstore/internal/infra/database/models"
)

func findSub(arr []any, subID domain.Identifier) int {
	for i, e := range arr {
		sub, ok := domain.SubDocumentFromMap(e)
		if ok && sub.ID.Equal(subID) {
			return i
		}
	}
	return -1
}

// Push appends a new sub-document with a generated id to an array field.
func (r *DocumentRepository) Push(ctx context.Context, key domain.DocumentKey, field string, content string, ownerUID int64, extra domain.Fields) (*domain.Document, domain.Identifier, error) {
	ctx, span := tracer.Start(ctx, "Document.Repository.Push")
	defer span.End()
	span.SetAttributes(keyAttr(key), attribute.String("field", field))

	sub := domain.SubDocument{
		ID:       domain.NewObjectID(),
		OwnerUID: ownerUID,
		Content:  content,
		Fields:   extra,
	}

	doc, err := r.mutate(ctx, key, func(m *models.Document) error {
		return pushPath(m.Fields, field, sub.ToMap())
	})
	if err != nil {
		span.RecordError(err)
		return nil, domain.Identifier{}, errors.Wrap(err, "push sub document")
	}
	if doc == nil {
		return nil, domain.Identifier{}, nil
	}
	return doc, sub.ID, nil
}

// GetSub returns (nil, nil) when the parent is missing and (parent, nil) when
// only the element is missing.
func (r *DocumentRepository) GetSub(ctx context.Context, key domain.DocumentKey, field string, subID domain.Identifier) (*domain.Document, *domain.SubDocument, error) {
	ctx, span := tracer.Start(ctx, "Document.Repository.GetSub")
	defer span.End()
	span.SetAttributes(keyAttr(key), attribute.String("field", field))

	m, err := r.load(ctx, key)
	if err != nil {
		span.RecordError(err)
		return nil, nil, errors.Wrap(err, "get sub document")
	}
	if m == nil {
		return nil, nil, nil
	}
	doc := toDocument(m, nil)

	arr, err := arrayAt(doc.Fields, field)
	if err != nil {
		return doc, nil, err
	}
	i := findSub(arr, subID)
	if i < 0 {
		return doc, nil, nil
	}
	sub, _ := domain.SubDocumentFromMap(arr[i])
	return doc, &sub, nil
}

// SetSub updates fields of one element. The result is nil when either the
// parent or the element is missing.
func (r *DocumentRepository) SetSub(ctx context.Context, key domain.DocumentKey, field string, subID domain.Identifier, fields domain.Fields) (*domain.Document, error) {
	ctx, span := tracer.Start(ctx, "Document.Repository.SetSub")
	defer span.End()
	span.SetAttributes(keyAttr(key), attribute.String("field", field))

	doc, err := r.mutate(ctx, key, func(m *models.Document) error {
		arr, err := arrayAt(m.Fields, field)
		if err != nil {
			return err
		}
		i := findSub(arr, subID)
		if i < 0 {
			return errNoMatch
		}
		elem, ok := arr[i].(map[string]any)
		if !ok {
			return errNoMatch
		}
		for k, v := range fields {
			if k == domain.SubIDField {
				continue
			}
			elem[k] = v
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "set sub document")
	}
	return doc, nil
}

// DeleteSub removes one element; deleting a missing element still returns the parent.
func (r *DocumentRepository) DeleteSub(ctx context.Context, key domain.DocumentKey, field string, subID domain.Identifier) (*domain.Document, error) {
	ctx, span := tracer.Start(ctx, "Document.Repository.DeleteSub")
	defer span.End()
	span.SetAttributes(keyAttr(key), attribute.String("field", field))

	doc, err := r.mutate(ctx, key, func(m *models.Document) error {
		arr, err := arrayAt(m.Fields, field)
		if err != nil {
			return err
		}
		i := findSub(arr, subID)
		if i < 0 {
			return nil
		}
		return setPath(m.Fields, field, append(arr[:i:i], arr[i+1:]...))
	})
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "delete sub document")
	}
	return doc, nil
}

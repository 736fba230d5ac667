package usecase

import (
	"context"
	"iter"

	"github.com/totegamma/ojstore/internal/domain"
	"github.com/totegamma/ojstore/internal/infra/repository"
)

// DocumentRepository defines the document operations the adaptors rely on.
type DocumentRepository interface {
	Add(ctx context.Context, in repository.AddInput) (domain.Identifier, error)
	Get(ctx context.Context, key domain.DocumentKey, fields ...string) (*domain.Document, error)
	Set(ctx context.Context, key domain.DocumentKey, fields domain.Fields) (*domain.Document, error)
	Delete(ctx context.Context, key domain.DocumentKey) error
	DeleteMulti(ctx context.Context, domainID string, docType domain.DocType, q *repository.Query) (int64, error)
	GetMulti(ctx context.Context, q *repository.Query) iter.Seq2[*domain.Document, error]
	FindMulti(ctx context.Context, q *repository.Query) ([]*domain.Document, error)
	Inc(ctx context.Context, key domain.DocumentKey, field string, delta int64) (*domain.Document, error)
	IncAndSet(ctx context.Context, key domain.DocumentKey, incField string, incValue int64, setField string, setValue any) (*domain.Document, error)
	AddToSet(ctx context.Context, key domain.DocumentKey, field string, value any) (*domain.Document, error)
	Pull(ctx context.Context, key domain.DocumentKey, field string, values ...any) (*domain.Document, error)
	Push(ctx context.Context, key domain.DocumentKey, field string, content string, ownerUID int64, extra domain.Fields) (*domain.Document, domain.Identifier, error)
	GetSub(ctx context.Context, key domain.DocumentKey, field string, subID domain.Identifier) (*domain.Document, *domain.SubDocument, error)
	SetSub(ctx context.Context, key domain.DocumentKey, field string, subID domain.Identifier, fields domain.Fields) (*domain.Document, error)
	DeleteSub(ctx context.Context, key domain.DocumentKey, field string, subID domain.Identifier) (*domain.Document, error)
	GetDict(ctx context.Context, domainID string, keys []domain.DictKey, fields ...string) (map[domain.DictKey]*domain.Document, error)
	Paginate(ctx context.Context, q *repository.Query, page, pageSize int) (repository.Page[*domain.Document], error)
}

// StatusRepository defines the per-user status operations the adaptors rely on.
type StatusRepository interface {
	GetStatus(ctx context.Context, key domain.StatusKey, fields ...string) (*domain.Status, error)
	SetStatus(ctx context.Context, key domain.StatusKey, fields domain.Fields) (*domain.Status, error)
	SetIfNotStatus(ctx context.Context, key domain.StatusKey, field string, value, ifNot any, extra domain.Fields) (*domain.Status, domain.Outcome, error)
	CappedIncStatus(ctx context.Context, key domain.StatusKey, field string, delta, minValue, maxValue int64) (*domain.Status, domain.Outcome, error)
	IncStatus(ctx context.Context, key domain.StatusKey, field string, delta int64) (*domain.Status, error)
	AddToSetStatus(ctx context.Context, key domain.StatusKey, field string, value any) (*domain.Status, error)
	RevPushStatus(ctx context.Context, key domain.StatusKey, field string, value any) (*domain.Status, error)
	RevUpdateStatus(ctx context.Context, key domain.StatusKey, recompute repository.RecomputeFunc) (*domain.Status, error)
	DeleteStatusMulti(ctx context.Context, domainID string, docType domain.DocType, docID domain.Identifier) (int64, error)
	GetMultiStatus(ctx context.Context, q *repository.Query) iter.Seq2[*domain.Status, error]
	GetDictStatus(ctx context.Context, domainID string, uid int64, docType domain.DocType, docIDs []domain.Identifier, fields ...string) (map[domain.Identifier]*domain.Status, error)
}

// Publisher delivers change events to the realtime collaborator.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

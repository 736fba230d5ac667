package usecase

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/totegamma/ojstore/internal/domain"
	"github.com/totegamma/ojstore/internal/infra/repository"
)

type DiscussionInput struct {
	DomainID   string
	OwnerUID   int64
	ParentType domain.DocType
	ParentID   domain.Identifier
	Title      string
	Content    string
	Hidden     bool
}

type DiscussionUsecase struct {
	docs     DocumentRepository
	statuses StatusRepository
	pub      Publisher
}

func NewDiscussionUsecase(docs DocumentRepository, statuses StatusRepository, pub Publisher) *DiscussionUsecase {
	return &DiscussionUsecase{
		docs:     docs,
		statuses: statuses,
		pub:      pub,
	}
}

func discussionKey(domainID string, did domain.Identifier) domain.DocumentKey {
	return domain.DocumentKey{DomainID: domainID, DocType: domain.DocTypeDiscussion, DocID: did}
}

func replyKey(domainID string, drid domain.Identifier) domain.DocumentKey {
	return domain.DocumentKey{DomainID: domainID, DocType: domain.DocTypeDiscussionReply, DocID: drid}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (uc *DiscussionUsecase) Add(ctx context.Context, in DiscussionInput) (domain.Identifier, error) {
	ctx, span := tracer.Start(ctx, "Discussion.Usecase.Add")
	defer span.End()

	if in.ParentID.IsNull() {
		return domain.Identifier{}, errors.Wrap(domain.ErrInvalidArgument, "discussion needs a parent")
	}
	parentType := in.ParentType

	did, err := uc.docs.Add(ctx, repository.AddInput{
		DomainID:      in.DomainID,
		DocType:       domain.DocTypeDiscussion,
		OwnerUID:      in.OwnerUID,
		Content:       in.Content,
		ParentDocType: &parentType,
		ParentDocID:   in.ParentID,
		Fields: domain.Fields{
			domain.FieldTitle:      in.Title,
			domain.FieldHidden:     in.Hidden,
			domain.FieldNumReplies: 0,
			domain.FieldUpdateAt:   now(),
			"views":                0,
		},
	})
	if err != nil {
		span.RecordError(err)
		return domain.Identifier{}, err
	}

	notify(ctx, uc.pub, domain.Event{
		Type:     domain.EventDocumentAdded,
		DomainID: in.DomainID,
		DocType:  domain.DocTypeDiscussion,
		DocID:    did,
		UID:      in.OwnerUID,
	})
	return did, nil
}

func (uc *DiscussionUsecase) Get(ctx context.Context, domainID string, did domain.Identifier) (*domain.Document, error) {
	key := discussionKey(domainID, did)
	doc, err := uc.docs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, notFound(key)
	}
	return doc, nil
}

// AddReply stores a reply document and bumps the discussion's reply counter.
func (uc *DiscussionUsecase) AddReply(ctx context.Context, domainID string, did domain.Identifier, uid int64, content string) (domain.Identifier, error) {
	ctx, span := tracer.Start(ctx, "Discussion.Usecase.AddReply")
	defer span.End()

	if _, err := uc.Get(ctx, domainID, did); err != nil {
		return domain.Identifier{}, err
	}

	parentType := domain.DocTypeDiscussion
	drid, err := uc.docs.Add(ctx, repository.AddInput{
		DomainID:      domainID,
		DocType:       domain.DocTypeDiscussionReply,
		OwnerUID:      uid,
		Content:       content,
		ParentDocType: &parentType,
		ParentDocID:   did,
		Fields:        domain.Fields{domain.FieldReply: []any{}},
	})
	if err != nil {
		span.RecordError(err)
		return domain.Identifier{}, err
	}

	if _, err := uc.docs.IncAndSet(ctx, discussionKey(domainID, did), domain.FieldNumReplies, 1, domain.FieldUpdateAt, now()); err != nil {
		span.RecordError(err)
		return domain.Identifier{}, err
	}

	notify(ctx, uc.pub, domain.Event{
		Type:     domain.EventDocumentAdded,
		DomainID: domainID,
		DocType:  domain.DocTypeDiscussionReply,
		DocID:    drid,
		UID:      uid,
		Payload:  domain.Fields{"discussion": did},
	})
	return drid, nil
}

// ListReplies pages through the replies of a discussion, oldest first.
func (uc *DiscussionUsecase) ListReplies(ctx context.Context, domainID string, did domain.Identifier, page, pageSize int) (repository.Page[*domain.Document], error) {
	q := repository.DocumentQuery(domainID, domain.DocTypeDiscussionReply).
		Where("parent_doc_type", domain.DocTypeDiscussion).
		Where("parent_doc_id", did).
		Sort("cdate", repository.Asc).
		Sort("doc_id", repository.Asc)
	return uc.docs.Paginate(ctx, q, page, pageSize)
}

// AddTailReply appends a nested reply to a reply document.
func (uc *DiscussionUsecase) AddTailReply(ctx context.Context, domainID string, drid domain.Identifier, uid int64, content string) (domain.Identifier, error) {
	ctx, span := tracer.Start(ctx, "Discussion.Usecase.AddTailReply")
	defer span.End()

	key := replyKey(domainID, drid)
	reply, drrid, err := uc.docs.Push(ctx, key, domain.FieldReply, content, uid, domain.Fields{"created_at": now()})
	if err != nil {
		span.RecordError(err)
		return domain.Identifier{}, err
	}
	if reply == nil {
		return domain.Identifier{}, notFound(key)
	}

	if reply.HasParent() {
		parent := discussionKey(domainID, reply.ParentDocID)
		if _, err := uc.docs.Set(ctx, parent, domain.Fields{domain.FieldUpdateAt: now()}); err != nil {
			span.RecordError(err)
			return domain.Identifier{}, err
		}
	}

	notify(ctx, uc.pub, domain.Event{
		Type:     domain.EventDocumentUpdated,
		DomainID: domainID,
		DocType:  domain.DocTypeDiscussionReply,
		DocID:    drid,
		UID:      uid,
		Payload:  domain.Fields{"tail": drrid},
	})
	return drrid, nil
}

func (uc *DiscussionUsecase) GetTailReply(ctx context.Context, domainID string, drid, drrid domain.Identifier) (*domain.SubDocument, error) {
	key := replyKey(domainID, drid)
	reply, tail, err := uc.docs.GetSub(ctx, key, domain.FieldReply, drrid)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, notFound(key)
	}
	if tail == nil {
		return nil, domain.NotFoundError{Resource: "tail reply " + drrid.String()}
	}
	return tail, nil
}

func (uc *DiscussionUsecase) EditTailReply(ctx context.Context, domainID string, drid, drrid domain.Identifier, content string) (*domain.SubDocument, error) {
	ctx, span := tracer.Start(ctx, "Discussion.Usecase.EditTailReply")
	defer span.End()

	reply, err := uc.docs.SetSub(ctx, replyKey(domainID, drid), domain.FieldReply, drrid, domain.Fields{
		domain.SubContentField: content,
		"edited_at":            now(),
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if reply == nil {
		return nil, domain.NotFoundError{Resource: "tail reply " + drrid.String()}
	}
	return uc.GetTailReply(ctx, domainID, drid, drrid)
}

func (uc *DiscussionUsecase) DeleteTailReply(ctx context.Context, domainID string, drid, drrid domain.Identifier) error {
	ctx, span := tracer.Start(ctx, "Discussion.Usecase.DeleteTailReply")
	defer span.End()

	key := replyKey(domainID, drid)
	reply, err := uc.docs.DeleteSub(ctx, key, domain.FieldReply, drrid)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if reply == nil {
		return notFound(key)
	}
	return nil
}

// Delete removes a discussion together with its replies and every user's status on it.
func (uc *DiscussionUsecase) Delete(ctx context.Context, domainID string, did domain.Identifier) error {
	ctx, span := tracer.Start(ctx, "Discussion.Usecase.Delete")
	defer span.End()

	if _, err := uc.Get(ctx, domainID, did); err != nil {
		return err
	}

	replies := repository.NewQuery().
		Where("parent_doc_type", domain.DocTypeDiscussion).
		Where("parent_doc_id", did)
	if _, err := uc.docs.DeleteMulti(ctx, domainID, domain.DocTypeDiscussionReply, replies); err != nil {
		span.RecordError(err)
		return err
	}
	if err := uc.docs.Delete(ctx, discussionKey(domainID, did)); err != nil {
		span.RecordError(err)
		return err
	}
	if _, err := uc.statuses.DeleteStatusMulti(ctx, domainID, domain.DocTypeDiscussion, did); err != nil {
		span.RecordError(err)
		return err
	}

	notify(ctx, uc.pub, domain.Event{
		Type:     domain.EventDocumentDeleted,
		DomainID: domainID,
		DocType:  domain.DocTypeDiscussion,
		DocID:    did,
	})
	return nil
}

func (uc *DiscussionUsecase) SetStar(ctx context.Context, domainID string, did domain.Identifier, uid int64, star bool) (*domain.Status, error) {
	if _, err := uc.Get(ctx, domainID, did); err != nil {
		return nil, err
	}
	return uc.statuses.SetStatus(ctx, domain.StatusKey{DocumentKey: discussionKey(domainID, did), UID: uid}, domain.Fields{domain.FieldStar: star})
}

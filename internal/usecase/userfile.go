package usecase

import (
	"context"

	"github.com/pkg/errors"

	"github.com/totegamma/ojstore/internal/domain"
	"github.com/totegamma/ojstore/internal/infra/repository"
)

type UserfileInput struct {
	DomainID string
	OwnerUID int64
	Filename string
	Data     string // opaque id in the blob service
	Size     int64
}

type UserfileUsecase struct {
	docs     DocumentRepository
	statuses StatusRepository
	pub      Publisher
}

func NewUserfileUsecase(docs DocumentRepository, statuses StatusRepository, pub Publisher) *UserfileUsecase {
	return &UserfileUsecase{
		docs:     docs,
		statuses: statuses,
		pub:      pub,
	}
}

func userfileKey(domainID string, fid domain.Identifier) domain.DocumentKey {
	return domain.DocumentKey{DomainID: domainID, DocType: domain.DocTypeUserfile, DocID: fid}
}

func (uc *UserfileUsecase) Add(ctx context.Context, in UserfileInput) (domain.Identifier, error) {
	ctx, span := tracer.Start(ctx, "Userfile.Usecase.Add")
	defer span.End()

	if in.Data == "" {
		return domain.Identifier{}, errors.Wrap(domain.ErrInvalidArgument, "userfile without data")
	}

	fid, err := uc.docs.Add(ctx, repository.AddInput{
		DomainID: in.DomainID,
		DocType:  domain.DocTypeUserfile,
		OwnerUID: in.OwnerUID,
		Fields: domain.Fields{
			domain.FieldTitle: in.Filename,
			domain.FieldData:  in.Data,
			"size":            in.Size,
		},
	})
	if err != nil {
		span.RecordError(err)
		return domain.Identifier{}, err
	}

	notify(ctx, uc.pub, domain.Event{
		Type:     domain.EventDocumentAdded,
		DomainID: in.DomainID,
		DocType:  domain.DocTypeUserfile,
		DocID:    fid,
		UID:      in.OwnerUID,
	})
	return fid, nil
}

func (uc *UserfileUsecase) Get(ctx context.Context, domainID string, fid domain.Identifier) (*domain.Document, error) {
	key := userfileKey(domainID, fid)
	doc, err := uc.docs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, notFound(key)
	}
	return doc, nil
}

// ListByOwner returns the files of one user, newest first.
func (uc *UserfileUsecase) ListByOwner(ctx context.Context, domainID string, uid int64) ([]*domain.Document, error) {
	q := repository.DocumentQuery(domainID, domain.DocTypeUserfile).
		Where("owner_uid", uid).
		Sort("doc_id", repository.Desc)
	return uc.docs.FindMulti(ctx, q)
}

// Delete removes the file record and its statuses and returns the blob id
// so the caller can release the stored data.
func (uc *UserfileUsecase) Delete(ctx context.Context, domainID string, fid domain.Identifier) (string, error) {
	ctx, span := tracer.Start(ctx, "Userfile.Usecase.Delete")
	defer span.End()

	file, err := uc.Get(ctx, domainID, fid)
	if err != nil {
		return "", err
	}
	if err := uc.docs.Delete(ctx, file.Key); err != nil {
		span.RecordError(err)
		return "", err
	}
	if _, err := uc.statuses.DeleteStatusMulti(ctx, domainID, domain.DocTypeUserfile, fid); err != nil {
		span.RecordError(err)
		return "", err
	}

	notify(ctx, uc.pub, domain.Event{
		Type:     domain.EventDocumentDeleted,
		DomainID: domainID,
		DocType:  domain.DocTypeUserfile,
		DocID:    fid,
		UID:      file.OwnerUID,
	})
	data, _ := file.Fields.String(domain.FieldData)
	return data, nil
}

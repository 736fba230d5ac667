package usecase

import (
	"context"
	"slices"

	"github.com/pkg/errors"

	"github.com/totegamma/ojstore/internal/domain"
	"github.com/totegamma/ojstore/internal/infra/repository"
)

// TrainingNode is one step of a training plan.
type TrainingNode struct {
	ID          int64
	Title       string
	PIDs        []int64
	RequireNIDs []int64
}

type TrainingInput struct {
	DomainID string
	OwnerUID int64
	Title    string
	Content  string
	DAG      []TrainingNode
}

type TrainingUsecase struct {
	docs     DocumentRepository
	statuses StatusRepository
	pub      Publisher
}

func NewTrainingUsecase(docs DocumentRepository, statuses StatusRepository, pub Publisher) *TrainingUsecase {
	return &TrainingUsecase{
		docs:     docs,
		statuses: statuses,
		pub:      pub,
	}
}

func trainingKey(domainID string, tid domain.Identifier) domain.DocumentKey {
	return domain.DocumentKey{DomainID: domainID, DocType: domain.DocTypeTraining, DocID: tid}
}

func int64sToAny(in []int64) []any {
	out := make([]any, len(in))
	for i, n := range in {
		out[i] = n
	}
	return out
}

func (uc *TrainingUsecase) Add(ctx context.Context, in TrainingInput) (domain.Identifier, error) {
	ctx, span := tracer.Start(ctx, "Training.Usecase.Add")
	defer span.End()

	var pids []int64
	dag := make([]any, len(in.DAG))
	for i, node := range in.DAG {
		dag[i] = map[string]any{
			"_id":          node.ID,
			"title":        node.Title,
			"pids":         int64sToAny(node.PIDs),
			"require_nids": int64sToAny(node.RequireNIDs),
		}
		for _, pid := range node.PIDs {
			if !slices.Contains(pids, pid) {
				pids = append(pids, pid)
			}
		}
	}

	tid, err := uc.docs.Add(ctx, repository.AddInput{
		DomainID: in.DomainID,
		DocType:  domain.DocTypeTraining,
		OwnerUID: in.OwnerUID,
		Content:  in.Content,
		Fields: domain.Fields{
			domain.FieldTitle:  in.Title,
			domain.FieldDAG:    dag,
			domain.FieldPIDs:   int64sToAny(pids),
			domain.FieldEnroll: 0,
		},
	})
	if err != nil {
		span.RecordError(err)
		return domain.Identifier{}, err
	}

	notify(ctx, uc.pub, domain.Event{
		Type:     domain.EventDocumentAdded,
		DomainID: in.DomainID,
		DocType:  domain.DocTypeTraining,
		DocID:    tid,
		UID:      in.OwnerUID,
	})
	return tid, nil
}

func (uc *TrainingUsecase) Get(ctx context.Context, domainID string, tid domain.Identifier) (*domain.Document, error) {
	key := trainingKey(domainID, tid)
	doc, err := uc.docs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, notFound(key)
	}
	return doc, nil
}

// Enroll registers uid once and counts the enrollment on the training.
func (uc *TrainingUsecase) Enroll(ctx context.Context, domainID string, tid domain.Identifier, uid int64) error {
	ctx, span := tracer.Start(ctx, "Training.Usecase.Enroll")
	defer span.End()

	key := trainingKey(domainID, tid)
	if _, err := uc.Get(ctx, domainID, tid); err != nil {
		return err
	}

	_, outcome, err := uc.statuses.CappedIncStatus(ctx, domain.StatusKey{DocumentKey: key, UID: uid}, domain.FieldEnroll, 1, 0, 1)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !outcome.Applied() {
		return errors.Wrapf(domain.ErrAlreadyDone, "uid %d already enrolled in %s", uid, key)
	}

	if _, err := uc.docs.Inc(ctx, key, domain.FieldEnroll, 1); err != nil {
		span.RecordError(err)
		return err
	}

	notify(ctx, uc.pub, domain.Event{
		Type:     domain.EventStatusUpdated,
		DomainID: domainID,
		DocType:  domain.DocTypeTraining,
		DocID:    tid,
		UID:      uid,
		Payload:  domain.Fields{domain.FieldEnroll: 1},
	})
	return nil
}

// MarkDone records pid as solved within the training. Once every problem
// of the training is solved the status is flagged done.
func (uc *TrainingUsecase) MarkDone(ctx context.Context, domainID string, tid domain.Identifier, uid int64, pid int64) (*domain.Status, error) {
	ctx, span := tracer.Start(ctx, "Training.Usecase.MarkDone")
	defer span.End()

	training, err := uc.Get(ctx, domainID, tid)
	if err != nil {
		return nil, err
	}
	all := training.Fields.Slice(domain.FieldPIDs)
	if !slices.ContainsFunc(all, func(v any) bool { return domain.SameValue(v, pid) }) {
		return nil, errors.Wrapf(domain.ErrInvalidArgument, "problem %d is not part of training %s", pid, tid)
	}

	key := domain.StatusKey{DocumentKey: training.Key, UID: uid}
	st, err := uc.statuses.AddToSetStatus(ctx, key, domain.FieldDonePIDs, pid)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	done := st.Fields.Slice(domain.FieldDonePIDs)
	complete := true
	for _, p := range all {
		if !slices.ContainsFunc(done, func(v any) bool { return domain.SameValue(v, p) }) {
			complete = false
			break
		}
	}
	if finished, _ := st.Fields.Bool("done"); complete && !finished {
		st, err = uc.statuses.SetStatus(ctx, key, domain.Fields{"done": true})
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	notify(ctx, uc.pub, domain.Event{
		Type:     domain.EventStatusUpdated,
		DomainID: domainID,
		DocType:  domain.DocTypeTraining,
		DocID:    tid,
		UID:      uid,
		Payload:  domain.Fields{domain.FieldDonePIDs: done},
	})
	return st, nil
}

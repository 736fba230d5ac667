package usecase

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/totegamma/ojstore/internal/domain"
	"github.com/totegamma/ojstore/internal/infra/repository"
)

type ContestInput struct {
	DomainID string
	OwnerUID int64
	Title    string
	Content  string
	Rule     int
	BeginAt  time.Time
	EndAt    time.Time
	PIDs     []int64
}

type ContestUsecase struct {
	docs     DocumentRepository
	statuses StatusRepository
	pub      Publisher
	scorer   Scorer
}

// NewContestUsecase wires the contest adaptor. A nil scorer scores by the contest's rule.
func NewContestUsecase(docs DocumentRepository, statuses StatusRepository, pub Publisher, scorer Scorer) *ContestUsecase {
	if scorer == nil {
		scorer = RuleScorer{}
	}
	return &ContestUsecase{
		docs:     docs,
		statuses: statuses,
		pub:      pub,
		scorer:   scorer,
	}
}

func contestKey(domainID string, tid domain.Identifier) domain.DocumentKey {
	return domain.DocumentKey{DomainID: domainID, DocType: domain.DocTypeContest, DocID: tid}
}

func (uc *ContestUsecase) Add(ctx context.Context, in ContestInput) (domain.Identifier, error) {
	ctx, span := tracer.Start(ctx, "Contest.Usecase.Add")
	defer span.End()

	if !in.EndAt.After(in.BeginAt) {
		return domain.Identifier{}, errors.Wrap(domain.ErrInvalidArgument, "contest must end after it begins")
	}
	pids := make([]any, len(in.PIDs))
	for i, pid := range in.PIDs {
		pids[i] = pid
	}

	tid, err := uc.docs.Add(ctx, repository.AddInput{
		DomainID: in.DomainID,
		DocType:  domain.DocTypeContest,
		OwnerUID: in.OwnerUID,
		Content:  in.Content,
		Fields: domain.Fields{
			domain.FieldTitle:   in.Title,
			domain.FieldRule:    in.Rule,
			domain.FieldBeginAt: in.BeginAt.UTC().Format(time.RFC3339Nano),
			domain.FieldEndAt:   in.EndAt.UTC().Format(time.RFC3339Nano),
			domain.FieldPIDs:    pids,
			domain.FieldAttend:  0,
		},
	})
	if err != nil {
		span.RecordError(err)
		return domain.Identifier{}, err
	}

	notify(ctx, uc.pub, domain.Event{
		Type:     domain.EventDocumentAdded,
		DomainID: in.DomainID,
		DocType:  domain.DocTypeContest,
		DocID:    tid,
		UID:      in.OwnerUID,
	})
	return tid, nil
}

func (uc *ContestUsecase) Get(ctx context.Context, domainID string, tid domain.Identifier) (*domain.Document, error) {
	key := contestKey(domainID, tid)
	doc, err := uc.docs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, notFound(key)
	}
	return doc, nil
}

// Attend registers uid once and counts the attendance on the contest.
func (uc *ContestUsecase) Attend(ctx context.Context, domainID string, tid domain.Identifier, uid int64) error {
	ctx, span := tracer.Start(ctx, "Contest.Usecase.Attend")
	defer span.End()

	key := contestKey(domainID, tid)
	if _, err := uc.Get(ctx, domainID, tid); err != nil {
		return err
	}

	_, outcome, err := uc.statuses.CappedIncStatus(ctx, domain.StatusKey{DocumentKey: key, UID: uid}, domain.FieldAttend, 1, 0, 1)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !outcome.Applied() {
		return errors.Wrapf(domain.ErrAlreadyDone, "uid %d already attends %s", uid, key)
	}

	if _, err := uc.docs.Inc(ctx, key, domain.FieldAttend, 1); err != nil {
		span.RecordError(err)
		return err
	}

	notify(ctx, uc.pub, domain.Event{
		Type:     domain.EventStatusUpdated,
		DomainID: domainID,
		DocType:  domain.DocTypeContest,
		DocID:    tid,
		UID:      uid,
		Payload:  domain.Fields{domain.FieldAttend: 1},
	})
	return nil
}

// UpdateJournal appends a judged record to uid's journal and recomputes the
// aggregate fields against the revision that append produced.
func (uc *ContestUsecase) UpdateJournal(ctx context.Context, domainID string, tid domain.Identifier, uid int64, entry JournalEntry) (*domain.Status, error) {
	ctx, span := tracer.Start(ctx, "Contest.Usecase.UpdateJournal")
	defer span.End()

	contest, err := uc.Get(ctx, domainID, tid)
	if err != nil {
		return nil, err
	}
	key := domain.StatusKey{DocumentKey: contest.Key, UID: uid}

	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	if _, err := uc.statuses.RevPushStatus(ctx, key, domain.FieldJournal, entry.fields()); err != nil {
		span.RecordError(err)
		return nil, err
	}

	st, err := uc.statuses.RevUpdateStatus(ctx, key, func(current *domain.Status) (domain.Fields, error) {
		return uc.scorer.Score(contest, journalFromFields(current.Fields.Slice(domain.FieldJournal))), nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if st == nil {
		return nil, domain.NotFoundError{Resource: "status " + key.String()}
	}

	notify(ctx, uc.pub, domain.Event{
		Type:     domain.EventStatusUpdated,
		DomainID: domainID,
		DocType:  domain.DocTypeContest,
		DocID:    tid,
		UID:      uid,
		Payload:  st.Fields.Project(domain.FieldScore, domain.FieldAccept, domain.FieldPenalty),
	})
	return st, nil
}

// Scoreboard lists the statuses of attending users, best first.
func (uc *ContestUsecase) Scoreboard(ctx context.Context, domainID string, tid domain.Identifier) ([]*domain.Status, error) {
	ctx, span := tracer.Start(ctx, "Contest.Usecase.Scoreboard")
	defer span.End()

	contest, err := uc.Get(ctx, domainID, tid)
	if err != nil {
		return nil, err
	}

	q := repository.NewQuery().
		Where("domain_id", domainID).
		Where("doc_type", domain.DocTypeContest).
		Where("doc_id", tid).
		Where(domain.FieldAttend, 1).
		Fields(domain.FieldScore, domain.FieldAccept, domain.FieldPenalty, domain.FieldDetail)
	if rule, _ := contest.Fields.Int64(domain.FieldRule); rule == domain.RuleACM {
		q.Sort(domain.FieldAccept, repository.Desc).Sort(domain.FieldPenalty, repository.Asc)
	} else {
		q.Sort(domain.FieldScore, repository.Desc)
	}
	q.Sort("uid", repository.Asc)

	var rows []*domain.Status
	for st, err := range uc.statuses.GetMultiStatus(ctx, q) {
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		rows = append(rows, st)
	}
	return rows, nil
}

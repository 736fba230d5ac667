package usecase

import (
	"context"

	"github.com/pkg/errors"

	"github.com/totegamma/ojstore/internal/domain"
	"github.com/totegamma/ojstore/internal/infra/repository"
)

type ProblemInput struct {
	DomainID string
	PID      domain.Identifier // generated when null
	OwnerUID int64
	Title    string
	Content  string
	Category []string
	Tag      []string
	Hidden   bool
}

// ProblemFilter narrows a problem listing.
type ProblemFilter struct {
	Category      string
	IncludeHidden bool
}

// ProblemRow is one entry of a listing joined with the viewer's status.
type ProblemRow struct {
	Problem *domain.Document
	Status  *domain.Status
}

type ProblemUsecase struct {
	docs     DocumentRepository
	statuses StatusRepository
	pub      Publisher
}

func NewProblemUsecase(docs DocumentRepository, statuses StatusRepository, pub Publisher) *ProblemUsecase {
	return &ProblemUsecase{
		docs:     docs,
		statuses: statuses,
		pub:      pub,
	}
}

func problemKey(domainID string, pid domain.Identifier) domain.DocumentKey {
	return domain.DocumentKey{DomainID: domainID, DocType: domain.DocTypeProblem, DocID: pid}
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func (uc *ProblemUsecase) Add(ctx context.Context, in ProblemInput) (domain.Identifier, error) {
	ctx, span := tracer.Start(ctx, "Problem.Usecase.Add")
	defer span.End()

	pid, err := uc.docs.Add(ctx, repository.AddInput{
		DomainID: in.DomainID,
		DocType:  domain.DocTypeProblem,
		DocID:    in.PID,
		OwnerUID: in.OwnerUID,
		Content:  in.Content,
		Fields: domain.Fields{
			domain.FieldTitle:     in.Title,
			domain.FieldCategory:  stringsToAny(in.Category),
			domain.FieldTag:       stringsToAny(in.Tag),
			domain.FieldHidden:    in.Hidden,
			domain.FieldNumSubmit: 0,
			domain.FieldNumAccept: 0,
			domain.FieldData:      []any{},
		},
	})
	if err != nil {
		span.RecordError(err)
		return domain.Identifier{}, err
	}

	notify(ctx, uc.pub, domain.Event{
		Type:     domain.EventDocumentAdded,
		DomainID: in.DomainID,
		DocType:  domain.DocTypeProblem,
		DocID:    pid,
		UID:      in.OwnerUID,
	})
	return pid, nil
}

func (uc *ProblemUsecase) Get(ctx context.Context, domainID string, pid domain.Identifier) (*domain.Document, error) {
	key := problemKey(domainID, pid)
	doc, err := uc.docs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, notFound(key)
	}
	return doc, nil
}

func (uc *ProblemUsecase) Edit(ctx context.Context, domainID string, pid domain.Identifier, fields domain.Fields) (*domain.Document, error) {
	ctx, span := tracer.Start(ctx, "Problem.Usecase.Edit")
	defer span.End()

	key := problemKey(domainID, pid)
	doc, err := uc.docs.Set(ctx, key, fields)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if doc == nil {
		return nil, notFound(key)
	}

	notify(ctx, uc.pub, domain.Event{
		Type:     domain.EventDocumentUpdated,
		DomainID: domainID,
		DocType:  domain.DocTypeProblem,
		DocID:    pid,
	})
	return doc, nil
}

func (uc *ProblemUsecase) SetStar(ctx context.Context, domainID string, pid domain.Identifier, uid int64, star bool) (*domain.Status, error) {
	if _, err := uc.Get(ctx, domainID, pid); err != nil {
		return nil, err
	}
	return uc.statuses.SetStatus(ctx, domain.StatusKey{DocumentKey: problemKey(domainID, pid), UID: uid}, domain.Fields{domain.FieldStar: star})
}

// Submit counts a submission on both the problem and uid's status.
func (uc *ProblemUsecase) Submit(ctx context.Context, domainID string, pid domain.Identifier, uid int64) error {
	ctx, span := tracer.Start(ctx, "Problem.Usecase.Submit")
	defer span.End()

	key := problemKey(domainID, pid)
	doc, err := uc.docs.Inc(ctx, key, domain.FieldNumSubmit, 1)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if doc == nil {
		return notFound(key)
	}
	_, err = uc.statuses.IncStatus(ctx, domain.StatusKey{DocumentKey: key, UID: uid}, domain.FieldNumSubmit, 1)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Accept marks uid's status accepted by rid. The problem's accept counter
// moves only on the first acceptance; later ones report false.
func (uc *ProblemUsecase) Accept(ctx context.Context, domainID string, pid domain.Identifier, uid int64, rid domain.Identifier) (bool, error) {
	ctx, span := tracer.Start(ctx, "Problem.Usecase.Accept")
	defer span.End()

	key := problemKey(domainID, pid)
	if _, err := uc.Get(ctx, domainID, pid); err != nil {
		return false, err
	}

	accepted := int(domain.RecordStatusAccepted)
	_, outcome, err := uc.statuses.SetIfNotStatus(ctx, domain.StatusKey{DocumentKey: key, UID: uid},
		domain.FieldStatus, accepted, accepted, domain.Fields{domain.FieldRID: rid})
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if !outcome.Applied() {
		return false, nil
	}

	if _, err := uc.docs.Inc(ctx, key, domain.FieldNumAccept, 1); err != nil {
		span.RecordError(err)
		return false, err
	}

	notify(ctx, uc.pub, domain.Event{
		Type:     domain.EventStatusUpdated,
		DomainID: domainID,
		DocType:  domain.DocTypeProblem,
		DocID:    pid,
		UID:      uid,
		Payload:  domain.Fields{domain.FieldStatus: accepted, domain.FieldRID: rid},
	})
	return true, nil
}

func solutionKey(domainID string, psid domain.Identifier) domain.DocumentKey {
	return domain.DocumentKey{DomainID: domainID, DocType: domain.DocTypeProblemSolution, DocID: psid}
}

func (uc *ProblemUsecase) AddSolution(ctx context.Context, domainID string, pid domain.Identifier, uid int64, content string) (domain.Identifier, error) {
	ctx, span := tracer.Start(ctx, "Problem.Usecase.AddSolution")
	defer span.End()

	if _, err := uc.Get(ctx, domainID, pid); err != nil {
		return domain.Identifier{}, err
	}

	parentType := domain.DocTypeProblem
	psid, err := uc.docs.Add(ctx, repository.AddInput{
		DomainID:      domainID,
		DocType:       domain.DocTypeProblemSolution,
		OwnerUID:      uid,
		Content:       content,
		ParentDocType: &parentType,
		ParentDocID:   pid,
		Fields:        domain.Fields{domain.FieldVote: 0, domain.FieldReply: []any{}},
	})
	if err != nil {
		span.RecordError(err)
		return domain.Identifier{}, err
	}
	return psid, nil
}

// VoteSolution moves uid's vote on a solution by delta (+1 or -1) within
// [-1, 1] and applies the same delta to the solution's tally.
func (uc *ProblemUsecase) VoteSolution(ctx context.Context, domainID string, psid domain.Identifier, uid int64, delta int64) (int64, error) {
	ctx, span := tracer.Start(ctx, "Problem.Usecase.VoteSolution")
	defer span.End()

	if delta != 1 && delta != -1 {
		return 0, errors.Wrapf(domain.ErrInvalidArgument, "vote delta %d", delta)
	}

	key := solutionKey(domainID, psid)
	solution, err := uc.docs.Get(ctx, key, domain.FieldVote)
	if err != nil {
		return 0, err
	}
	if solution == nil {
		return 0, notFound(key)
	}

	_, outcome, err := uc.statuses.CappedIncStatus(ctx, domain.StatusKey{DocumentKey: key, UID: uid}, domain.FieldVote, delta, -1, 1)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if !outcome.Applied() {
		return 0, errors.Wrapf(domain.ErrAlreadyDone, "uid %d vote on %s", uid, key)
	}

	solution, err = uc.docs.Inc(ctx, key, domain.FieldVote, delta)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if solution == nil {
		return 0, notFound(key)
	}
	vote, _ := solution.Fields.Int64(domain.FieldVote)

	notify(ctx, uc.pub, domain.Event{
		Type:     domain.EventStatusUpdated,
		DomainID: domainID,
		DocType:  domain.DocTypeProblemSolution,
		DocID:    psid,
		UID:      uid,
		Payload:  domain.Fields{domain.FieldVote: vote},
	})
	return vote, nil
}

// ListWithStatus pages through problems and attaches uid's status for each row.
func (uc *ProblemUsecase) ListWithStatus(ctx context.Context, domainID string, uid int64, filter ProblemFilter, page, pageSize int) (repository.Page[ProblemRow], error) {
	ctx, span := tracer.Start(ctx, "Problem.Usecase.ListWithStatus")
	defer span.End()

	q := repository.DocumentQuery(domainID, domain.DocTypeProblem)
	if !filter.IncludeHidden {
		q.Where(domain.FieldHidden, false)
	}
	if filter.Category != "" {
		q.Filter(domain.FieldCategory, repository.Contains, filter.Category)
	}
	q.Sort("doc_id", repository.Asc).Fields(domain.FieldTitle, domain.FieldCategory, domain.FieldTag, domain.FieldNumSubmit, domain.FieldNumAccept)

	problems, err := uc.docs.Paginate(ctx, q, page, pageSize)
	if err != nil {
		span.RecordError(err)
		return repository.Page[ProblemRow]{}, err
	}

	pids := make([]domain.Identifier, len(problems.Items))
	for i, p := range problems.Items {
		pids[i] = p.Key.DocID
	}
	statuses, err := uc.statuses.GetDictStatus(ctx, domainID, uid, domain.DocTypeProblem, pids, domain.FieldStatus, domain.FieldStar)
	if err != nil {
		span.RecordError(err)
		return repository.Page[ProblemRow]{}, err
	}

	rows := make([]ProblemRow, len(problems.Items))
	for i, p := range problems.Items {
		rows[i] = ProblemRow{Problem: p, Status: statuses[p.Key.DocID]}
	}
	return repository.Page[ProblemRow]{
		Items:    rows,
		Page:     problems.Page,
		NumPages: problems.NumPages,
		Total:    problems.Total,
	}, nil
}

func problemListKey(domainID string, lid domain.Identifier) domain.DocumentKey {
	return domain.DocumentKey{DomainID: domainID, DocType: domain.DocTypeProblemList, DocID: lid}
}

func (uc *ProblemUsecase) AddList(ctx context.Context, domainID string, uid int64, title string) (domain.Identifier, error) {
	return uc.docs.Add(ctx, repository.AddInput{
		DomainID: domainID,
		DocType:  domain.DocTypeProblemList,
		OwnerUID: uid,
		Fields:   domain.Fields{domain.FieldTitle: title, domain.FieldPIDs: []any{}},
	})
}

func (uc *ProblemUsecase) AddToList(ctx context.Context, domainID string, lid, pid domain.Identifier) (*domain.Document, error) {
	key := problemListKey(domainID, lid)
	list, err := uc.docs.AddToSet(ctx, key, domain.FieldPIDs, pid)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, notFound(key)
	}
	return list, nil
}

func (uc *ProblemUsecase) RemoveFromList(ctx context.Context, domainID string, lid, pid domain.Identifier) (*domain.Document, error) {
	key := problemListKey(domainID, lid)
	list, err := uc.docs.Pull(ctx, key, domain.FieldPIDs, pid)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, notFound(key)
	}
	return list, nil
}

// GetList returns a problem list and its problems in list order. Problems
// deleted since they were listed are skipped.
func (uc *ProblemUsecase) GetList(ctx context.Context, domainID string, lid domain.Identifier) (*domain.Document, []*domain.Document, error) {
	key := problemListKey(domainID, lid)
	list, err := uc.docs.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if list == nil {
		return nil, nil, notFound(key)
	}

	raw := list.Fields.Slice(domain.FieldPIDs)
	keys := make([]domain.DictKey, len(raw))
	for i, v := range raw {
		keys[i] = domain.DictKey{DocType: domain.DocTypeProblem, DocID: domain.Convert(v)}
	}
	dict, err := uc.docs.GetDict(ctx, domainID, keys, domain.FieldTitle)
	if err != nil {
		return nil, nil, err
	}

	problems := make([]*domain.Document, 0, len(keys))
	for _, k := range keys {
		if p, ok := dict[k]; ok {
			problems = append(problems, p)
		}
	}
	return list, problems, nil
}

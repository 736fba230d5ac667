package rest

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/totegamma/ojstore/internal/domain"
	"github.com/totegamma/ojstore/internal/infra/repository"
	"github.com/totegamma/ojstore/internal/present/rest/middleware"
	"github.com/totegamma/ojstore/internal/present/rest/presenter"
	"github.com/totegamma/ojstore/internal/usecase"
)

const maxPageSize = 100

// DocumentReader is the read side of the document store.
type DocumentReader interface {
	Get(ctx context.Context, key domain.DocumentKey, fields ...string) (*domain.Document, error)
	Paginate(ctx context.Context, q *repository.Query, page, pageSize int) (repository.Page[*domain.Document], error)
}

// StatusReader is the read side of the status store.
type StatusReader interface {
	GetStatus(ctx context.Context, key domain.StatusKey, fields ...string) (*domain.Status, error)
}

// ScoreboardReader ranks the attendees of a contest.
type ScoreboardReader interface {
	Scoreboard(ctx context.Context, domainID string, tid domain.Identifier) ([]*domain.Status, error)
}

// ReplyLister pages through the replies of a discussion.
type ReplyLister interface {
	ListReplies(ctx context.Context, domainID string, did domain.Identifier, page, pageSize int) (repository.Page[*domain.Document], error)
}

// ProblemLister pages through problems joined with one user's status.
type ProblemLister interface {
	ListWithStatus(ctx context.Context, domainID string, uid int64, filter usecase.ProblemFilter, page, pageSize int) (repository.Page[usecase.ProblemRow], error)
}

type UserfileLister interface {
	ListByOwner(ctx context.Context, domainID string, uid int64) ([]*domain.Document, error)
}

// Features groups the feature-level read paths served next to the raw store.
type Features struct {
	Contests    ScoreboardReader
	Discussions ReplyLister
	Problems    ProblemLister
	Userfiles   UserfileLister
}

// Pinger reports backend liveness. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	docs     DocumentReader
	statuses StatusReader
	features Features
	db       Pinger
}

func NewHandler(
	docs DocumentReader,
	statuses StatusReader,
	features Features,
	db Pinger,
) *Handler {
	return &Handler{
		docs:     docs,
		statuses: statuses,
		features: features,
		db:       db,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.handleHealth)

	d := e.Group("/d/:domain", middleware.ScopeDomain)
	d.GET("/doc/:type", h.handleList)
	d.GET("/doc/:type/:id", h.handleDocument)
	d.GET("/doc/:type/:id/status/:uid", h.handleStatus)
	d.GET("/contest/:id/scoreboard", h.handleScoreboard)
	d.GET("/discussion/:id/replies", h.handleReplies)
	d.GET("/problems", h.handleProblems)
	d.GET("/user/:uid/files", h.handleUserfiles)
}

type documentView struct {
	DomainID      string            `json:"domain_id"`
	DocType       domain.DocType    `json:"doc_type"`
	DocID         domain.Identifier `json:"doc_id"`
	OwnerUID      int64             `json:"owner_uid"`
	Content       string            `json:"content"`
	ParentDocType *domain.DocType   `json:"parent_doc_type,omitempty"`
	ParentDocID   domain.Identifier `json:"parent_doc_id"`
	Fields        domain.Fields     `json:"fields"`
	CDate         time.Time         `json:"cdate"`
	MDate         time.Time         `json:"mdate"`
}

func newDocumentView(d *domain.Document) documentView {
	return documentView{
		DomainID:      d.Key.DomainID,
		DocType:       d.Key.DocType,
		DocID:         d.Key.DocID,
		OwnerUID:      d.OwnerUID,
		Content:       d.Content,
		ParentDocType: d.ParentDocType,
		ParentDocID:   d.ParentDocID,
		Fields:        d.Fields,
		CDate:         d.CDate,
		MDate:         d.MDate,
	}
}

type statusView struct {
	DomainID string            `json:"domain_id"`
	DocType  domain.DocType    `json:"doc_type"`
	DocID    domain.Identifier `json:"doc_id"`
	UID      int64             `json:"uid"`
	Rev      int64             `json:"rev"`
	Fields   domain.Fields     `json:"fields"`
	MDate    time.Time         `json:"mdate"`
}

func newStatusView(st *domain.Status) statusView {
	return statusView{
		DomainID: st.Key.DomainID,
		DocType:  st.Key.DocType,
		DocID:    st.Key.DocID,
		UID:      st.Key.UID,
		Rev:      st.Rev,
		Fields:   st.Fields,
		MDate:    st.MDate,
	}
}

type pageView struct {
	Items    []documentView `json:"items"`
	Page     int            `json:"page"`
	NumPages int            `json:"num_pages"`
	Total    int64          `json:"total"`
}

func (h *Handler) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		return presenter.Unavailable(c, err)
	}
	return presenter.OK(c, echo.Map{"database": "ok"})
}

func fieldsParam(c echo.Context) []string {
	raw := c.QueryParam("fields")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func (h *Handler) documentKey(c echo.Context) (domain.DocumentKey, bool) {
	docType, ok := domain.ParseDocType(c.Param("type"))
	if !ok {
		return domain.DocumentKey{}, false
	}
	return domain.DocumentKey{
		DomainID: c.Get(middleware.DomainKey).(string),
		DocType:  docType,
		DocID:    domain.Convert(c.Param("id")),
	}, true
}

func (h *Handler) handleDocument(c echo.Context) error {
	ctx := c.Request().Context()

	key, ok := h.documentKey(c)
	if !ok {
		return presenter.BadRequestMessage(c, "unknown document type")
	}

	doc, err := h.docs.Get(ctx, key, fieldsParam(c)...)
	if err != nil {
		return presenter.InternalError(c, err)
	}
	if doc == nil {
		return presenter.NotFound(c, "document not found")
	}
	return presenter.OK(c, newDocumentView(doc))
}

func (h *Handler) handleStatus(c echo.Context) error {
	ctx := c.Request().Context()

	key, ok := h.documentKey(c)
	if !ok {
		return presenter.BadRequestMessage(c, "unknown document type")
	}
	uid, err := strconv.ParseInt(c.Param("uid"), 10, 64)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid uid")
	}

	st, err := h.statuses.GetStatus(ctx, domain.StatusKey{DocumentKey: key, UID: uid}, fieldsParam(c)...)
	if err != nil {
		return presenter.InternalError(c, err)
	}
	if st == nil {
		return presenter.NotFound(c, "status not found")
	}
	return presenter.OK(c, newStatusView(st))
}

func (h *Handler) handleScoreboard(c echo.Context) error {
	ctx := c.Request().Context()

	rows, err := h.features.Contests.Scoreboard(ctx, c.Get(middleware.DomainKey).(string), domain.Convert(c.Param("id")))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return presenter.NotFound(c, "contest not found")
		}
		return presenter.InternalError(c, err)
	}

	view := make([]statusView, len(rows))
	for i, st := range rows {
		view[i] = newStatusView(st)
	}
	return presenter.OK(c, view)
}

func intQuery(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// pageParams reads page and limit, returning a message when either is invalid.
func pageParams(c echo.Context) (int, int, string) {
	page, err := intQuery(c, "page", 1)
	if err != nil || page <= 0 {
		return 0, 0, "invalid page parameter"
	}
	limit, err := intQuery(c, "limit", 20)
	if err != nil || limit <= 0 {
		return 0, 0, "invalid limit parameter"
	}
	return page, min(limit, maxPageSize), ""
}

func newPageView(result repository.Page[*domain.Document]) pageView {
	view := pageView{
		Items:    make([]documentView, len(result.Items)),
		Page:     result.Page,
		NumPages: result.NumPages,
		Total:    result.Total,
	}
	for i, d := range result.Items {
		view.Items[i] = newDocumentView(d)
	}
	return view
}

func (h *Handler) handleList(c echo.Context) error {
	ctx := c.Request().Context()

	docType, ok := domain.ParseDocType(c.Param("type"))
	if !ok {
		return presenter.BadRequestMessage(c, "unknown document type")
	}
	page, limit, msg := pageParams(c)
	if msg != "" {
		return presenter.BadRequestMessage(c, msg)
	}

	q := repository.DocumentQuery(c.Get(middleware.DomainKey).(string), docType).
		Sort("doc_id", repository.Asc).
		Fields(fieldsParam(c)...)
	if owner := c.QueryParam("owner"); owner != "" {
		uid, err := strconv.ParseInt(owner, 10, 64)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid owner parameter")
		}
		q.Where("owner_uid", uid)
	}

	result, err := h.docs.Paginate(ctx, q, page, limit)
	if err != nil {
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, newPageView(result))
}

func (h *Handler) handleReplies(c echo.Context) error {
	ctx := c.Request().Context()

	page, limit, msg := pageParams(c)
	if msg != "" {
		return presenter.BadRequestMessage(c, msg)
	}

	result, err := h.features.Discussions.ListReplies(ctx, c.Get(middleware.DomainKey).(string), domain.Convert(c.Param("id")), page, limit)
	if err != nil {
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, newPageView(result))
}

type problemRowView struct {
	Problem documentView `json:"problem"`
	Status  *statusView  `json:"status"`
}

// handleProblems lists visible problems with the status of the uid query user.
func (h *Handler) handleProblems(c echo.Context) error {
	ctx := c.Request().Context()

	page, limit, msg := pageParams(c)
	if msg != "" {
		return presenter.BadRequestMessage(c, msg)
	}
	uid, err := strconv.ParseInt(c.QueryParam("uid"), 10, 64)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid uid parameter")
	}
	filter := usecase.ProblemFilter{Category: c.QueryParam("category")}

	result, err := h.features.Problems.ListWithStatus(ctx, c.Get(middleware.DomainKey).(string), uid, filter, page, limit)
	if err != nil {
		return presenter.InternalError(c, err)
	}

	items := make([]problemRowView, len(result.Items))
	for i, row := range result.Items {
		items[i].Problem = newDocumentView(row.Problem)
		if row.Status != nil {
			st := newStatusView(row.Status)
			items[i].Status = &st
		}
	}
	return presenter.OK(c, echo.Map{
		"items":     items,
		"page":      result.Page,
		"num_pages": result.NumPages,
		"total":     result.Total,
	})
}

func (h *Handler) handleUserfiles(c echo.Context) error {
	ctx := c.Request().Context()

	uid, err := strconv.ParseInt(c.Param("uid"), 10, 64)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid uid")
	}

	files, err := h.features.Userfiles.ListByOwner(ctx, c.Get(middleware.DomainKey).(string), uid)
	if err != nil {
		return presenter.InternalError(c, err)
	}

	view := make([]documentView, len(files))
	for i, d := range files {
		view[i] = newDocumentView(d)
	}
	return presenter.OK(c, view)
}

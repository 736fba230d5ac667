package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/totegamma/ojstore/internal/domain"
)

const (
	defaultTimeout = 3 * time.Second
	cacheTTL       = 10 * time.Second
)

// Client reads from the ops API of an ojstore process.
type Client struct {
	client    *http.Client
	cache     *cache.Cache
	userAgent string
	baseURL   string
}

func New(baseURL string) *Client {
	httpClient := http.Client{
		Timeout: defaultTimeout,
	}

	c := &Client{
		client:    &httpClient,
		cache:     cache.New(cacheTTL, time.Minute),
		userAgent: "ojstore-client",
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
	httpClient.Transport = c
	return c
}

func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	return http.DefaultTransport.RoundTrip(req)
}

type Document struct {
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

type Status struct {
	DomainID string            `json:"domain_id"`
	DocType  domain.DocType    `json:"doc_type"`
	DocID    domain.Identifier `json:"doc_id"`
	UID      int64             `json:"uid"`
	Rev      int64             `json:"rev"`
	Fields   domain.Fields     `json:"fields"`
	MDate    time.Time         `json:"mdate"`
}

type Page struct {
	Items    []Document `json:"items"`
	Page     int        `json:"page"`
	NumPages int        `json:"num_pages"`
	Total    int64      `json:"total"`
}

type envelope struct {
	Status  string          `json:"status"`
	Content json.RawMessage `json:"content"`
	Error   string          `json:"error"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ojstore: %d %s", e.Code, e.Message)
}

// Is maps 404 answers onto domain.ErrNotFound.
func (e *APIError) Is(target error) bool {
	return e.Code == http.StatusNotFound && errors.Is(domain.ErrNotFound, target)
}

func (c *Client) HttpRequest(ctx context.Context, method, path string, response any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to perform request")
	}
	defer resp.Body.Close()

	var body envelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return errors.Wrapf(err, "failed to decode response (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Code: resp.StatusCode, Message: body.Error}
	}
	if response == nil {
		return nil
	}

	err = json.Unmarshal(body.Content, response)
	if err != nil {
		return errors.Wrap(err, "failed to decode content")
	}
	return nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.HttpRequest(ctx, http.MethodGet, "/health", nil)
}

func docPath(domainID string, docType domain.DocType, docID domain.Identifier) string {
	return "/d/" + url.PathEscape(domainID) + "/doc/" + strconv.Itoa(int(docType)) + "/" + url.PathEscape(docID.String())
}

func withFields(path string, fields []string) string {
	if len(fields) == 0 {
		return path
	}
	return path + "?fields=" + url.QueryEscape(strings.Join(fields, ","))
}

// GetDocument fetches one document. Full documents are cached briefly; projected reads are not.
func (c *Client) GetDocument(ctx context.Context, domainID string, docType domain.DocType, docID domain.Identifier, fields ...string) (Document, error) {
	path := docPath(domainID, docType, docID)

	if len(fields) == 0 {
		if x, found := c.cache.Get(path); found {
			return x.(Document), nil
		}
	}

	var doc Document
	err := c.HttpRequest(ctx, http.MethodGet, withFields(path, fields), &doc)
	if err != nil {
		return Document{}, err
	}

	if len(fields) == 0 {
		c.cache.Set(path, doc, cache.DefaultExpiration)
	}
	return doc, nil
}

func (c *Client) GetStatus(ctx context.Context, domainID string, docType domain.DocType, docID domain.Identifier, uid int64, fields ...string) (Status, error) {
	path := docPath(domainID, docType, docID) + "/status/" + strconv.FormatInt(uid, 10)

	var st Status
	err := c.HttpRequest(ctx, http.MethodGet, withFields(path, fields), &st)
	if err != nil {
		return Status{}, err
	}
	return st, nil
}

type ListOptions struct {
	Page     int
	Limit    int
	OwnerUID *int64
	Fields   []string
}

func (c *Client) ListDocuments(ctx context.Context, domainID string, docType domain.DocType, opts ListOptions) (Page, error) {
	query := url.Values{}
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.OwnerUID != nil {
		query.Set("owner", strconv.FormatInt(*opts.OwnerUID, 10))
	}
	if len(opts.Fields) > 0 {
		query.Set("fields", strings.Join(opts.Fields, ","))
	}

	path := "/d/" + url.PathEscape(domainID) + "/doc/" + strconv.Itoa(int(docType))
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var page Page
	err := c.HttpRequest(ctx, http.MethodGet, path, &page)
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

func (c *Client) Scoreboard(ctx context.Context, domainID string, tid domain.Identifier) ([]Status, error) {
	path := "/d/" + url.PathEscape(domainID) + "/contest/" + url.PathEscape(tid.String()) + "/scoreboard"

	var rows []Status
	err := c.HttpRequest(ctx, http.MethodGet, path, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

package repository

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/totegamma/ojstore/internal/domain"
	"github.com/totegamma/ojstore/internal/infra/database"
)

// Operator is a document-database style comparison applied to one field.
type Operator string

const (
	Eq       Operator = "$eq"
	Ne       Operator = "$ne"
	Gt       Operator = "$gt"
	Gte      Operator = "$gte"
	Lt       Operator = "$lt"
	Lte      Operator = "$lte"
	In       Operator = "$in"
	Nin      Operator = "$nin"
	Exists   Operator = "$exists"
	Contains Operator = "$contains" // array field holds the value
)

type Condition struct {
	Field string
	Op    Operator
	Value any
}

type SortOrder int

const (
	Asc  SortOrder = 1
	Desc SortOrder = -1
)

type SortField struct {
	Field string
	Order SortOrder
}

// Query is a filter over either table. Multiple conditions are ANDed.
// Field names that are not well-known columns address the extension map,
// with dots descending into nested objects.
type Query struct {
	Conditions []Condition
	SortBy     []SortField
	LimitCount int
	SkipCount  int
	Projection []string
}

func NewQuery() *Query {
	return &Query{}
}

// DocumentQuery scopes a query to one doc type of a domain.
func DocumentQuery(domainID string, docType domain.DocType) *Query {
	return NewQuery().
		Where("domain_id", domainID).
		Where("doc_type", docType)
}

func (q *Query) Filter(field string, op Operator, value any) *Query {
	q.Conditions = append(q.Conditions, Condition{Field: field, Op: op, Value: value})
	return q
}

func (q *Query) Where(field string, value any) *Query {
	return q.Filter(field, Eq, value)
}

func (q *Query) Sort(field string, order SortOrder) *Query {
	q.SortBy = append(q.SortBy, SortField{Field: field, Order: order})
	return q
}

func (q *Query) Limit(n int) *Query {
	q.LimitCount = n
	return q
}

func (q *Query) Skip(n int) *Query {
	q.SkipCount = n
	return q
}

// Fields restricts the extension fields returned. Well-known columns are always returned.
func (q *Query) Fields(keys ...string) *Query {
	q.Projection = append(q.Projection, keys...)
	return q
}

func (q *Query) clone() *Query {
	if q == nil {
		return NewQuery()
	}
	c := *q
	c.Conditions = append([]Condition(nil), q.Conditions...)
	c.SortBy = append([]SortField(nil), q.SortBy...)
	c.Projection = append([]string(nil), q.Projection...)
	return &c
}

type columnKind int

const (
	columnPlain columnKind = iota
	columnDocType
	columnIdentifier
)

type columnSet map[string]columnKind

var documentColumns = columnSet{
	"domain_id":       columnPlain,
	"doc_type":        columnDocType,
	"doc_id":          columnIdentifier,
	"owner_uid":       columnPlain,
	"content":         columnPlain,
	"parent_doc_type": columnDocType,
	"parent_doc_id":   columnIdentifier,
	"cdate":           columnPlain,
	"mdate":           columnPlain,
}

var statusColumns = columnSet{
	"domain_id": columnPlain,
	"doc_type":  columnDocType,
	"doc_id":    columnIdentifier,
	"uid":       columnPlain,
	"rev":       columnPlain,
	"cdate":     columnPlain,
	"mdate":     columnPlain,
}

var pathSegmentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type compiler struct {
	postgres bool
	columns  columnSet
}

func newCompiler(db *gorm.DB, columns columnSet) compiler {
	return compiler{
		postgres: database.IsPostgres(db),
		columns:  columns,
	}
}

// apply adds the filters, ordering and window of q to tx.
func (c compiler) apply(tx *gorm.DB, q *Query) (*gorm.DB, error) {
	if q == nil {
		return tx, nil
	}
	tx, err := c.where(tx, q)
	if err != nil {
		return nil, err
	}
	for _, s := range q.SortBy {
		target, err := c.sortTarget(s.Field)
		if err != nil {
			return nil, err
		}
		if s.Order == Desc {
			tx = tx.Order(target + " DESC")
		} else {
			tx = tx.Order(target + " ASC")
		}
	}
	if q.LimitCount > 0 {
		tx = tx.Limit(q.LimitCount)
	}
	if q.SkipCount > 0 {
		tx = tx.Offset(q.SkipCount)
	}
	return tx, nil
}

func (c compiler) where(tx *gorm.DB, q *Query) (*gorm.DB, error) {
	if q == nil {
		return tx, nil
	}
	for _, cond := range q.Conditions {
		expr, args, err := c.condition(cond)
		if err != nil {
			return nil, err
		}
		tx = tx.Where(expr, args...)
	}
	return tx, nil
}

func (c compiler) sortTarget(field string) (string, error) {
	if _, ok := c.columns[field]; ok {
		return field, nil
	}
	segments, err := splitPath(field)
	if err != nil {
		return "", err
	}
	return c.pathExpr(segments), nil
}

func (c compiler) condition(cond Condition) (string, []any, error) {
	if kind, ok := c.columns[cond.Field]; ok {
		return c.columnCondition(cond, kind)
	}
	segments, err := splitPath(cond.Field)
	if err != nil {
		return "", nil, err
	}
	if c.postgres {
		return c.postgresCondition(cond, segments)
	}
	return c.sqliteCondition(cond, segments)
}

func splitPath(field string) ([]string, error) {
	segments := strings.Split(field, ".")
	for _, s := range segments {
		if !pathSegmentPattern.MatchString(s) {
			return nil, fmt.Errorf("%w: invalid field path %q", domain.ErrInvalidArgument, field)
		}
	}
	return segments, nil
}

func (c compiler) pathExpr(segments []string) string {
	if c.postgres {
		return "fields #> '{" + strings.Join(segments, ",") + "}'"
	}
	return "json_extract(fields, '$." + strings.Join(segments, ".") + "')"
}

func columnValue(kind columnKind, v any) any {
	switch kind {
	case columnIdentifier:
		return domain.Convert(v)
	case columnDocType:
		if t, ok := v.(domain.DocType); ok {
			return int(t)
		}
		return v
	default:
		return v
	}
}

func (c compiler) columnCondition(cond Condition, kind columnKind) (string, []any, error) {
	col := cond.Field
	switch cond.Op {
	case Eq:
		if cond.Value == nil {
			return col + " IS NULL", nil, nil
		}
		return col + " = ?", []any{columnValue(kind, cond.Value)}, nil
	case Ne:
		if cond.Value == nil {
			return col + " IS NOT NULL", nil, nil
		}
		return "(" + col + " IS NULL OR " + col + " <> ?)", []any{columnValue(kind, cond.Value)}, nil
	case Gt, Gte, Lt, Lte:
		return col + " " + comparison(cond.Op) + " ?", []any{columnValue(kind, cond.Value)}, nil
	case In, Nin:
		values, err := toSlice(cond.Value)
		if err != nil {
			return "", nil, err
		}
		if len(values) == 0 {
			return emptySet(cond.Op), nil, nil
		}
		for i := range values {
			values[i] = columnValue(kind, values[i])
		}
		if cond.Op == In {
			return col + " IN ?", []any{values}, nil
		}
		return "(" + col + " IS NULL OR " + col + " NOT IN ?)", []any{values}, nil
	case Exists:
		if truthy(cond.Value) {
			return col + " IS NOT NULL", nil, nil
		}
		return col + " IS NULL", nil, nil
	default:
		return "", nil, fmt.Errorf("%w: operator %s is not supported on column %s", domain.ErrInvalidArgument, cond.Op, col)
	}
}

func (c compiler) sqliteCondition(cond Condition, segments []string) (string, []any, error) {
	path := "'$." + strings.Join(segments, ".") + "'"
	expr := "json_extract(fields, " + path + ")"
	switch cond.Op {
	case Eq:
		if cond.Value == nil {
			return expr + " IS NULL", nil, nil
		}
		return expr + " = ?", []any{sqliteScalar(cond.Value)}, nil
	case Ne:
		if cond.Value == nil {
			return expr + " IS NOT NULL", nil, nil
		}
		return "(" + expr + " IS NULL OR " + expr + " <> ?)", []any{sqliteScalar(cond.Value)}, nil
	case Gt, Gte, Lt, Lte:
		return expr + " " + comparison(cond.Op) + " ?", []any{sqliteScalar(cond.Value)}, nil
	case In, Nin:
		values, err := toSlice(cond.Value)
		if err != nil {
			return "", nil, err
		}
		if len(values) == 0 {
			return emptySet(cond.Op), nil, nil
		}
		for i := range values {
			values[i] = sqliteScalar(values[i])
		}
		if cond.Op == In {
			return expr + " IN ?", []any{values}, nil
		}
		return "(" + expr + " IS NULL OR " + expr + " NOT IN ?)", []any{values}, nil
	case Exists:
		typed := "json_type(fields, " + path + ")"
		if truthy(cond.Value) {
			return typed + " IS NOT NULL", nil, nil
		}
		return typed + " IS NULL", nil, nil
	case Contains:
		return "EXISTS (SELECT 1 FROM json_each(fields, " + path + ") WHERE json_each.value = ?)",
			[]any{sqliteScalar(cond.Value)}, nil
	default:
		return "", nil, fmt.Errorf("%w: unknown operator %s", domain.ErrInvalidArgument, cond.Op)
	}
}

func (c compiler) postgresCondition(cond Condition, segments []string) (string, []any, error) {
	expr := c.pathExpr(segments)
	switch cond.Op {
	case Eq:
		if cond.Value == nil {
			return "(" + expr + " IS NULL OR " + expr + " = 'null'::jsonb)", nil, nil
		}
		arg, err := jsonArg(cond.Value)
		if err != nil {
			return "", nil, err
		}
		return expr + " = CAST(? AS jsonb)", []any{arg}, nil
	case Ne:
		if cond.Value == nil {
			return "(" + expr + " IS NOT NULL AND " + expr + " <> 'null'::jsonb)", nil, nil
		}
		arg, err := jsonArg(cond.Value)
		if err != nil {
			return "", nil, err
		}
		return "(" + expr + " IS NULL OR " + expr + " <> CAST(? AS jsonb))", []any{arg}, nil
	case Gt, Gte, Lt, Lte:
		arg, err := jsonArg(cond.Value)
		if err != nil {
			return "", nil, err
		}
		return expr + " " + comparison(cond.Op) + " CAST(? AS jsonb)", []any{arg}, nil
	case In, Nin:
		values, err := toSlice(cond.Value)
		if err != nil {
			return "", nil, err
		}
		if len(values) == 0 {
			return emptySet(cond.Op), nil, nil
		}
		placeholders := make([]string, len(values))
		args := make([]any, len(values))
		for i, v := range values {
			arg, err := jsonArg(v)
			if err != nil {
				return "", nil, err
			}
			placeholders[i] = "CAST(? AS jsonb)"
			args[i] = arg
		}
		list := "(" + strings.Join(placeholders, ", ") + ")"
		if cond.Op == In {
			return expr + " IN " + list, args, nil
		}
		return "(" + expr + " IS NULL OR " + expr + " NOT IN " + list + ")", args, nil
	case Exists:
		if truthy(cond.Value) {
			return expr + " IS NOT NULL", nil, nil
		}
		return expr + " IS NULL", nil, nil
	case Contains:
		// containment on the whole column so the GIN index applies
		var nested any = []any{normalizeValue(cond.Value)}
		for i := len(segments) - 1; i >= 0; i-- {
			nested = map[string]any{segments[i]: nested}
		}
		arg, err := jsonArg(nested)
		if err != nil {
			return "", nil, err
		}
		return "fields @> CAST(? AS jsonb)", []any{arg}, nil
	default:
		return "", nil, fmt.Errorf("%w: unknown operator %s", domain.ErrInvalidArgument, cond.Op)
	}
}

func comparison(op Operator) string {
	switch op {
	case Gt:
		return ">"
	case Gte:
		return ">="
	case Lt:
		return "<"
	default:
		return "<="
	}
}

func emptySet(op Operator) string {
	if op == In {
		return "1 = 0"
	}
	return "1 = 1"
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return !ok || b
}

func toSlice(v any) ([]any, error) {
	if s, ok := v.([]any); ok {
		return append([]any(nil), s...), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: expected a list, got %T", domain.ErrInvalidArgument, v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case domain.Identifier:
		return t.JSONValue()
	case domain.DocType:
		return int(t)
	default:
		return v
	}
}

// sqliteScalar turns a value into what json_extract yields for it.
func sqliteScalar(v any) any {
	switch t := normalizeValue(v).(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any, domain.Fields, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return t
	}
}

func jsonArg(v any) (string, error) {
	b, err := json.Marshal(normalizeValue(v))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return string(b), nil
}

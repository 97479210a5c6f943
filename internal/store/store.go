// Package store defines the document store the dashboards read from and write
// to, with in-memory and SQLite implementations.
//
// Documents are loosely typed field maps grouped into collections. Reads are
// either one-shot (GetOnce) or live (Subscribe): a subscription receives an
// initial snapshot and a fresh snapshot after every write that touches its
// collection.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"momentum/internal/core"
)

var (
	ErrNotFound = core.ErrNotFound
	ErrClosed   = errors.New("store closed")
)

// Document is one stored document with its store-assigned id.
type Document struct {
	ID     string
	Fields core.Fields
}

// Op is a filter comparison.
type Op int

const (
	OpEq Op = iota
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "=="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpIn:
		return "in"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Filter is a single predicate on a document field.
type Filter struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, v any) Filter  { return Filter{Field: field, Op: OpEq, Value: v} }
func Gt(field string, v any) Filter  { return Filter{Field: field, Op: OpGt, Value: v} }
func Gte(field string, v any) Filter { return Filter{Field: field, Op: OpGte, Value: v} }
func Lt(field string, v any) Filter  { return Filter{Field: field, Op: OpLt, Value: v} }
func Lte(field string, v any) Filter { return Filter{Field: field, Op: OpLte, Value: v} }

// In matches documents whose field equals any of vs.
func In(field string, vs ...any) Filter { return Filter{Field: field, Op: OpIn, Value: vs} }

// Direction orders query results by the order field.
type Direction int

const (
	Unordered Direction = iota
	Asc
	Desc
)

// Query selects documents from one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Direction  Direction
	Limit      int
}

// NewQuery starts a query on collection.
func NewQuery(collection string) Query {
	return Query{Collection: collection}
}

func (q Query) Where(filters ...Filter) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), filters...)
	return q
}

func (q Query) Order(field string, dir Direction) Query {
	q.OrderBy = field
	q.Direction = dir
	return q
}

// Owner is shorthand for an ownerId equality filter.
func (q Query) Owner(ownerID string) Query {
	return q.Where(Eq(FieldOwner, ownerID))
}

// FieldOwner and FieldTimestamp are the fields the stores index.
const (
	FieldOwner     = "ownerId"
	FieldTimestamp = "timestamp"
)

// Match reports whether fields satisfy every filter.
func (q Query) Match(fields core.Fields) bool {
	for _, f := range q.Filters {
		if !f.match(fieldValue(fields, f.Field)) {
			return false
		}
	}
	return true
}

// ownerOf reads the owner of a document, accepting the legacy userId name.
func ownerOf(fields core.Fields) string {
	s, _ := fieldValue(fields, FieldOwner).(string)
	return s
}

func fieldValue(fields core.Fields, name string) any {
	if v, ok := fields[name]; ok {
		return v
	}
	if name == FieldOwner {
		return fields["userId"]
	}
	return nil
}

func (f Filter) match(v any) bool {
	if v == nil {
		return false
	}
	if f.Op == OpIn {
		vs, _ := f.Value.([]any)
		for _, want := range vs {
			if c, ok := compare(v, want); ok && c == 0 {
				return true
			}
		}
		return false
	}
	c, ok := compare(v, f.Value)
	if !ok {
		return false
	}
	switch f.Op {
	case OpEq:
		return c == 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	default:
		return false
	}
}

// compare orders two field values. Strings compare with strings, numbers with
// numbers; anything else is incomparable.
func compare(a, b any) (int, bool) {
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(as, bs), true
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok || ab != bb {
			return 1, ok
		}
		return 0, true
	}
	an, ok := number(a)
	if !ok {
		return 0, false
	}
	bn, ok := number(b)
	if !ok {
		return 0, false
	}
	return an.Cmp(bn), true
}

func number(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int32:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(x), true
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		return d, err == nil
	case decimal.Decimal:
		return x, true
	default:
		return decimal.Zero, false
	}
}

// apply sorts and limits already-filtered documents according to q.
func (q Query) apply(docs []Document) []Document {
	if q.OrderBy != "" && q.Direction != Unordered {
		sort.SliceStable(docs, func(i, j int) bool {
			c, _ := compare(fieldValue(docs[i].Fields, q.OrderBy), fieldValue(docs[j].Fields, q.OrderBy))
			if q.Direction == Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs
}

// Subscription is a live query handle.
type Subscription interface {
	// Cancel stops delivery. It is safe to call more than once and from
	// inside the subscription callback.
	Cancel()
}

// SnapshotFunc receives the full result set of a live query, or the error
// that prevented loading it.
type SnapshotFunc func(docs []Document, err error)

// Store is the document store contract.
type Store interface {
	GetOnce(ctx context.Context, q Query) ([]Document, error)
	Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Subscription, error)
	// Create stores a new document and returns its generated id.
	Create(ctx context.Context, collection string, fields core.Fields) (string, error)
	// Update merges partial into an existing document. Missing documents
	// yield ErrNotFound.
	Update(ctx context.Context, collection, id string, partial core.Fields) error
	// Set creates or replaces the document with the given id.
	Set(ctx context.Context, collection, id string, fields core.Fields) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// GetSingle returns a document's fields, or ok=false if absent.
	GetSingle(ctx context.Context, collection, id string) (fields core.Fields, ok bool, err error)
	Close() error
}

// cloneFields deep-copies nested maps and slices so callers never share
// mutable state with the store.
func cloneFields(f core.Fields) core.Fields {
	if f == nil {
		return nil
	}
	out := make(core.Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneFields(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func merge(dst, partial core.Fields) core.Fields {
	out := cloneFields(dst)
	if out == nil {
		out = make(core.Fields, len(partial))
	}
	for k, v := range partial {
		out[k] = cloneValue(v)
	}
	return out
}

// sortByID gives unordered queries a deterministic result.
func sortByID(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}

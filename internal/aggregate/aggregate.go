// Package aggregate folds classified records into totals, bucketed series and
// cumulative running sums.
//
// Every operation is a pure function of the records it is given. Amounts that
// failed to decode arrive here as zero, so a bad record never aborts a fold.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"momentum/internal/bucket"
	"momentum/internal/classify"
	"momentum/internal/core"
)

// Totals holds one sum per category. Missing categories read as zero.
type Totals map[classify.Category]decimal.Decimal

// Get returns the total for c, or zero.
func (t Totals) Get(c classify.Category) decimal.Decimal {
	if v, ok := t[c]; ok {
		return v
	}
	return decimal.Zero
}

// Bucket is one period of a bucketed series.
type Bucket struct {
	Key string
	// First is the earliest timestamp that fell into the bucket. Buckets are
	// ordered by it because week and month keys do not sort as strings.
	First int64
	Cells Totals
}

// Point is one step of a cumulative series.
type Point struct {
	Key   string
	Value decimal.Decimal
}

// Aggregator classifies records with a kind table before folding them.
type Aggregator struct {
	table *classify.Table
}

// New returns an Aggregator over table. A nil table uses the default scheme.
func New(table *classify.Table) *Aggregator {
	if table == nil {
		table = classify.Default()
	}
	return &Aggregator{table: table}
}

func (a *Aggregator) Table() *classify.Table { return a.table }

func (a *Aggregator) Classify(r core.Record) classify.Category {
	return a.table.Classify(r.Kind)
}

// Sum returns the total amount of records in category c.
func (a *Aggregator) Sum(records []core.Record, c classify.Category) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range records {
		if a.Classify(r) == c {
			sum = sum.Add(r.Amount)
		}
	}
	return sum
}

// Totals sums every category in a single pass. Unrecognized records are dropped.
func (a *Aggregator) Totals(records []core.Record) Totals {
	t := make(Totals)
	for _, r := range records {
		c := a.Classify(r)
		if c == classify.Unrecognized {
			continue
		}
		t[c] = t.Get(c).Add(r.Amount)
	}
	return t
}

// Filter returns the records whose category is one of cats, preserving order.
func (a *Aggregator) Filter(records []core.Record, cats ...classify.Category) []core.Record {
	want := make(map[classify.Category]bool, len(cats))
	for _, c := range cats {
		want[c] = true
	}
	var out []core.Record
	for _, r := range records {
		if want[a.Classify(r)] {
			out = append(out, r)
		}
	}
	return out
}

// Bucketed groups records by period key. Each record lands in exactly one
// (bucket, category) cell. Periods with no records are absent.
func (a *Aggregator) Bucketed(records []core.Record, b bucket.Bucketer) []Bucket {
	index := make(map[string]int)
	var out []Bucket
	for _, r := range records {
		c := a.Classify(r)
		if c == classify.Unrecognized {
			continue
		}
		key := b.Key(r.Timestamp)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, Bucket{Key: key, First: r.Timestamp, Cells: make(Totals)})
		}
		if r.Timestamp < out[i].First {
			out[i].First = r.Timestamp
		}
		out[i].Cells[c] = out[i].Cells.Get(c).Add(r.Amount)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].First < out[j].First })
	return out
}

// SortByTime returns a copy of records in non-decreasing timestamp order.
// Equal timestamps keep their input order.
func SortByTime(records []core.Record) []core.Record {
	sorted := make([]core.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })
	return sorted
}

// Cumulative returns the running total at each key, in chronological order.
// The value at key k is the value at the previous key plus every amount
// whose key is k.
func Cumulative(records []core.Record, keyFn func(core.Record) string) []Point {
	var (
		out   []Point
		index = make(map[string]int)
		total = decimal.Zero
	)
	for _, r := range SortByTime(records) {
		total = total.Add(r.Amount)
		key := keyFn(r)
		if i, ok := index[key]; ok {
			out[i].Value = total
			continue
		}
		index[key] = len(out)
		out = append(out, Point{Key: key, Value: total})
	}
	return out
}

// RunningTotals returns the final running sum per entity.
func RunningTotals(records []core.Record, entityFn func(core.Record) string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, r := range records {
		e := entityFn(r)
		out[e] = out[e].Add(r.Amount)
	}
	return out
}

// CumulativeBy builds one cumulative series per entity.
func CumulativeBy(records []core.Record, keyFn, entityFn func(core.Record) string) map[string][]Point {
	groups := make(map[string][]core.Record)
	for _, r := range records {
		e := entityFn(r)
		groups[e] = append(groups[e], r)
	}
	out := make(map[string][]Point, len(groups))
	for e, rs := range groups {
		out[e] = Cumulative(rs, keyFn)
	}
	return out
}

// Keys returns the distinct keys produced by keyFn over records in
// chronological order of first appearance.
func Keys(records []core.Record, keyFn func(core.Record) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range SortByTime(records) {
		k := keyFn(r)
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// ByBucket adapts a Bucketer to a key function.
func ByBucket(b bucket.Bucketer) func(core.Record) string {
	return func(r core.Record) string { return b.Key(r.Timestamp) }
}

// ByRef keys records by the entity they reference.
func ByRef(r core.Record) string { return r.Ref }

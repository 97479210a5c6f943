// Package classify maps raw record kinds to semantic categories.
//
// Kind tags drifted across several incompatible schemes over the life of the
// data. A Table is a versioned kind->category mapping so the scheme in use is
// configuration rather than code.
package classify

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Category is the closed set of semantic record classes.
type Category int

const (
	Unrecognized Category = iota
	Income
	Expense
	Savings
	Bonus
	Debt
	GoalLog
)

// Categories lists every recognised category in display order.
var Categories = []Category{Income, Expense, Savings, Bonus, Debt, GoalLog}

var categoryNames = map[Category]string{
	Unrecognized: "unrecognized",
	Income:       "income",
	Expense:      "expense",
	Savings:      "savings",
	Bonus:        "bonus",
	Debt:         "debt",
	GoalLog:      "goal_log",
}

func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return fmt.Sprintf("category(%d)", int(c))
}

var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrUnknownScheme   = errors.New("unknown classifier scheme")
)

// ParseCategory accepts the lowercase names returned by String.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range categoryNames {
		if c != Unrecognized && name == s {
			return c, nil
		}
	}
	return Unrecognized, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// Table is an immutable, versioned kind->category mapping.
type Table struct {
	version string
	kinds   map[string]Category
}

// NewTable builds a table. Kind lookups are exact (case-sensitive), matching
// how tags were stored.
func NewTable(version string, kinds map[string]Category) *Table {
	m := make(map[string]Category, len(kinds))
	for k, c := range kinds {
		m[k] = c
	}
	return &Table{version: version, kinds: m}
}

func (t *Table) Version() string { return t.version }

// Classify returns the category for kind, or Unrecognized.
func (t *Table) Classify(kind string) Category {
	if t == nil {
		return Unrecognized
	}
	if c, ok := t.kinds[kind]; ok {
		return c
	}
	return Unrecognized
}

// Kinds returns the raw kinds mapped to c, sorted.
func (t *Table) Kinds(c Category) []string {
	var out []string
	for k, cat := range t.kinds {
		if cat == c {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Built-in scheme names.
const (
	SchemeLedgerV1 = "ledger-v1"
	SchemeLedgerV2 = "ledger-v2"
	SchemeLedgerV3 = "ledger-v3"
	DefaultScheme  = SchemeLedgerV1
)

var (
	schemesMu sync.RWMutex
	schemes   = map[string]*Table{
		SchemeLedgerV1: NewTable(SchemeLedgerV1, map[string]Category{
			"Income":          Income,
			"Salary":          Income,
			"Expense":         Expense,
			"Savings_Deposit": Savings,
			"Credit_Payment":  Debt,
			"Debt_Added":      Debt,
			"Bonus":           Bonus,
			"GoalLog":         GoalLog,
		}),
		SchemeLedgerV2: NewTable(SchemeLedgerV2, map[string]Category{
			"Salary":       Income,
			"Bonus":        Bonus,
			"Expense":      Expense,
			"Savings":      Savings,
			"Debt_Payment": Debt,
			"Debt":         Debt,
			"GoalLog":      GoalLog,
		}),
		SchemeLedgerV3: NewTable(SchemeLedgerV3, map[string]Category{
			"income":  Income,
			"expense": Expense,
			"savings": Savings,
			"debt":    Debt,
			"bonus":   Bonus,
			"GoalLog": GoalLog,
		}),
	}
)

// Scheme returns a registered table by name.
func Scheme(name string) (*Table, error) {
	schemesMu.RLock()
	defer schemesMu.RUnlock()
	t, ok := schemes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
	}
	return t, nil
}

// Register adds or replaces a named table. Loaded files register their
// tables here so they can be selected by name like the built-ins.
func Register(t *Table) {
	schemesMu.Lock()
	defer schemesMu.Unlock()
	schemes[t.version] = t
}

// SchemeNames returns all registered scheme names, sorted.
func SchemeNames() []string {
	schemesMu.RLock()
	defer schemesMu.RUnlock()
	names := make([]string, 0, len(schemes))
	for n := range schemes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Default returns the default scheme.
func Default() *Table {
	t, _ := Scheme(DefaultScheme)
	return t
}

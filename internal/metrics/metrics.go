// Package metrics derives summary scalars from category totals and the
// owner's fixed baseline settings.
//
// Which terms make up total income and total expense is a Formula, chosen by
// name. The combination changed several times over the life of the data, so
// the presets below keep each variant selectable.
package metrics

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"momentum/internal/aggregate"
	"momentum/internal/classify"
	"momentum/internal/core"
)

// Field names a value from FixedSettings.
type Field string

const (
	FieldSalary  Field = "salary"
	FieldDebt    Field = "debt"
	FieldSavings Field = "savings"
)

var ErrUnknownFormula = errors.New("unknown metrics formula")

// Terms is a sum of fixed fields and category totals.
type Terms struct {
	Fixed      []Field
	Categories []classify.Category
}

// Eval sums the terms. Missing settings count as zero.
func (t Terms) Eval(totals aggregate.Totals, s *core.FixedSettings) decimal.Decimal {
	sum := decimal.Zero
	for _, f := range t.Fixed {
		sum = sum.Add(fixedValue(s, f))
	}
	for _, c := range t.Categories {
		sum = sum.Add(totals.Get(c))
	}
	return sum
}

func fixedValue(s *core.FixedSettings, f Field) decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	switch f {
	case FieldSalary:
		return s.FixedSalary
	case FieldDebt:
		return s.FixedDebt
	case FieldSavings:
		return s.FixedSavings
	default:
		return decimal.Zero
	}
}

// Formula defines total income and total expense.
type Formula struct {
	Name    string
	Income  Terms
	Expense Terms
}

// Preset names.
const (
	Standard         = "standard"
	SalaryBonus      = "salary-bonus"
	RecordsOnly      = "records-only"
	FixedObligations = "fixed-obligations"
)

var (
	formulasMu sync.RWMutex
	formulas   = map[string]Formula{
		Standard: {
			Name:    Standard,
			Income:  Terms{Fixed: []Field{FieldSalary}, Categories: []classify.Category{classify.Income, classify.Bonus}},
			Expense: Terms{Fixed: []Field{FieldDebt, FieldSavings}, Categories: []classify.Category{classify.Expense}},
		},
		SalaryBonus: {
			Name:    SalaryBonus,
			Income:  Terms{Fixed: []Field{FieldSalary}, Categories: []classify.Category{classify.Bonus}},
			Expense: Terms{Fixed: []Field{FieldDebt, FieldSavings}, Categories: []classify.Category{classify.Expense}},
		},
		RecordsOnly: {
			Name:    RecordsOnly,
			Income:  Terms{Categories: []classify.Category{classify.Income, classify.Bonus}},
			Expense: Terms{Categories: []classify.Category{classify.Expense}},
		},
		FixedObligations: {
			Name:    FixedObligations,
			Income:  Terms{Fixed: []Field{FieldSalary}, Categories: []classify.Category{classify.Income, classify.Bonus}},
			Expense: Terms{Fixed: []Field{FieldDebt}, Categories: []classify.Category{classify.Expense, classify.Debt}},
		},
	}
)

// Lookup returns a registered formula by name.
func Lookup(name string) (Formula, error) {
	formulasMu.RLock()
	defer formulasMu.RUnlock()
	f, ok := formulas[name]
	if !ok {
		return Formula{}, fmt.Errorf("%w: %q", ErrUnknownFormula, name)
	}
	return f, nil
}

// Register adds or replaces a formula.
func Register(f Formula) {
	formulasMu.Lock()
	defer formulasMu.Unlock()
	formulas[f.Name] = f
}

// Names returns all registered formula names, sorted.
func Names() []string {
	formulasMu.RLock()
	defer formulasMu.RUnlock()
	out := make([]string, 0, len(formulas))
	for n := range formulas {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// DefaultFormula returns the standard preset.
func DefaultFormula() Formula {
	f, _ := Lookup(Standard)
	return f
}

// Summary holds the derived scalars. Values are unclamped; use Display at
// the presentation boundary.
type Summary struct {
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
	NetFlow      decimal.Decimal
	Savings      decimal.Decimal
	Debt         decimal.Decimal
	Bonus        decimal.Decimal
	// Balance is net flow minus debt movements.
	Balance decimal.Decimal
	// RemainingBalance is net flow minus savings and debt.
	RemainingBalance decimal.Decimal
}

// Derive combines totals with settings. Nil settings are all zero.
func Derive(totals aggregate.Totals, settings *core.FixedSettings, f Formula) Summary {
	income := f.Income.Eval(totals, settings)
	expense := f.Expense.Eval(totals, settings)
	net := income.Sub(expense)
	savings := totals.Get(classify.Savings)
	debt := totals.Get(classify.Debt)
	return Summary{
		TotalIncome:      income,
		TotalExpense:     expense,
		NetFlow:          net,
		Savings:          savings,
		Debt:             debt,
		Bonus:            totals.Get(classify.Bonus),
		Balance:          net.Sub(debt),
		RemainingBalance: net.Sub(savings).Sub(debt),
	}
}

var hundred = decimal.NewFromInt(100)

// RepaymentPercentage returns the share of initial debt already repaid, in
// percent. It is zero when initial is not positive.
func RepaymentPercentage(initial, current decimal.Decimal) decimal.Decimal {
	if !initial.IsPositive() {
		return decimal.Zero
	}
	return initial.Sub(current).Div(initial).Mul(hundred)
}

// ApplyRepayment returns the debt left after paying amount, never below zero.
func ApplyRepayment(current, amount decimal.Decimal) decimal.Decimal {
	return Display(current.Sub(amount))
}

// RepaymentSequence applies payments in order and returns the debt after each.
func RepaymentSequence(initial decimal.Decimal, payments []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(payments))
	cur := initial
	for _, p := range payments {
		cur = ApplyRepayment(cur, p)
		out = append(out, cur)
	}
	return out
}

// Display clamps v at zero for presentation.
func Display(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

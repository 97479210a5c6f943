package metrics

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"momentum/internal/classify"
)

type fileTerms struct {
	Fixed      []string `mapstructure:"fixed"`
	Categories []string `mapstructure:"categories"`
}

type fileFormula struct {
	Name    string    `mapstructure:"name"`
	Income  fileTerms `mapstructure:"income"`
	Expense fileTerms `mapstructure:"expense"`
}

// LoadFile reads a custom formula from the "formula" key of a rules file and
// registers it. A file without that key yields ok=false and no error.
//
//	formula:
//	  name: household
//	  income:  {fixed: [salary], categories: [income, bonus]}
//	  expense: {fixed: [debt], categories: [expense]}
func LoadFile(path string) (f Formula, ok bool, err error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Formula{}, false, fmt.Errorf("read formula file: %w", err)
	}
	if !v.IsSet("formula") {
		return Formula{}, false, nil
	}
	var ff fileFormula
	if err := v.UnmarshalKey("formula", &ff); err != nil {
		return Formula{}, false, fmt.Errorf("decode formula: %w", err)
	}
	f, err = buildFormula(ff)
	if err != nil {
		return Formula{}, false, err
	}
	Register(f)
	return f, true, nil
}

func buildFormula(ff fileFormula) (Formula, error) {
	if strings.TrimSpace(ff.Name) == "" {
		return Formula{}, fmt.Errorf("formula: missing name")
	}
	income, err := buildTerms(ff.Income)
	if err != nil {
		return Formula{}, fmt.Errorf("formula %q income: %w", ff.Name, err)
	}
	expense, err := buildTerms(ff.Expense)
	if err != nil {
		return Formula{}, fmt.Errorf("formula %q expense: %w", ff.Name, err)
	}
	return Formula{Name: ff.Name, Income: income, Expense: expense}, nil
}

func buildTerms(ft fileTerms) (Terms, error) {
	var t Terms
	for _, s := range ft.Fixed {
		switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
		case FieldSalary, FieldDebt, FieldSavings:
			t.Fixed = append(t.Fixed, f)
		default:
			return Terms{}, fmt.Errorf("unknown fixed field %q", s)
		}
	}
	for _, s := range ft.Categories {
		c, err := classify.ParseCategory(s)
		if err != nil {
			return Terms{}, err
		}
		t.Categories = append(t.Categories, c)
	}
	return t, nil
}

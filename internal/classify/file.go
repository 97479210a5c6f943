package classify

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// fileTable is the on-disk shape under the "classifier" key. Kinds are a list
// rather than a map because viper lowercases map keys and kinds are
// case-sensitive.
type fileTable struct {
	Version string `mapstructure:"version"`
	Kinds   []struct {
		Kind     string `mapstructure:"kind"`
		Category string `mapstructure:"category"`
	} `mapstructure:"kinds"`
}

// LoadFile reads a classifier table from a YAML, JSON or TOML file and
// registers it under its version name.
//
//	classifier:
//	  version: household-2024
//	  kinds:
//	    - {kind: Paycheck, category: income}
//	    - {kind: Groceries, category: expense}
func LoadFile(path string) (*Table, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read classifier file: %w", err)
	}
	var ft fileTable
	if err := v.UnmarshalKey("classifier", &ft); err != nil {
		return nil, fmt.Errorf("decode classifier table: %w", err)
	}
	return buildTable(ft)
}

func buildTable(ft fileTable) (*Table, error) {
	if strings.TrimSpace(ft.Version) == "" {
		return nil, fmt.Errorf("classifier table: missing version")
	}
	if len(ft.Kinds) == 0 {
		return nil, fmt.Errorf("classifier table %q: no kinds", ft.Version)
	}
	kinds := make(map[string]Category, len(ft.Kinds))
	for _, k := range ft.Kinds {
		if k.Kind == "" {
			return nil, fmt.Errorf("classifier table %q: empty kind", ft.Version)
		}
		c, err := ParseCategory(k.Category)
		if err != nil {
			return nil, fmt.Errorf("classifier table %q, kind %q: %w", ft.Version, k.Kind, err)
		}
		kinds[k.Kind] = c
	}
	t := NewTable(ft.Version, kinds)
	Register(t)
	return t, nil
}

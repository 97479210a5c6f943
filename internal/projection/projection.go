// Package projection maps cumulative series onto a display window.
//
// Series are always computed over the full history; projection only chooses
// which dates are shown, so clipping the window never resets the baseline.
package projection

import (
	"github.com/shopspring/decimal"

	"momentum/internal/aggregate"
)

// Series maps a date key to the cumulative value recorded at that date.
type Series map[string]decimal.Decimal

// FromPoints converts an aggregate cumulative series.
func FromPoints(points []aggregate.Point) Series {
	s := make(Series, len(points))
	for _, p := range points {
		s[p.Key] = p.Value
	}
	return s
}

// Project returns, for every key in byKey, one value per display date. A
// display date takes the value at the latest computed date not after it
// that the key's series has; with no such date the value is zero.
//
// Dates must be keys that sort chronologically as strings (day keys). Both
// date slices must be sorted.
func Project(byKey map[string]Series, computed, display []string) map[string][]decimal.Decimal {
	out := make(map[string][]decimal.Decimal, len(byKey))
	for key, series := range byKey {
		values := make([]decimal.Decimal, len(display))
		last := decimal.Zero
		i := 0
		for j, date := range display {
			for i < len(computed) && computed[i] <= date {
				if v, ok := series[computed[i]]; ok {
					last = v
				}
				i++
			}
			values[j] = last
		}
		out[key] = values
	}
	return out
}

// ProjectOne is Project for a single series.
func ProjectOne(series Series, computed, display []string) []decimal.Decimal {
	return Project(map[string]Series{"": series}, computed, display)[""]
}

// Floats converts projected values for rendering.
func Floats(values []decimal.Decimal) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v.InexactFloat64()
	}
	return out
}

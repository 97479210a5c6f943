// Package bucket maps timestamps to period keys used to group records.
//
// Each granularity (day, week, month, year) has its own strategy that
// encapsulates the key format, mirroring how the dashboards have always
// labelled their time-flow charts.
package bucket

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
	Year  Granularity = "year"
)

// Granularity selects both the bucket key scheme and the relative period.
type Granularity string

var ErrUnknownGranularity = errors.New("unknown granularity")

// Keyer is the strategy interface for turning a time into a bucket key.
type Keyer interface {
	// Key returns the bucket key for t. Implementations must be pure.
	Key(t time.Time, loc *time.Location) string
}

// DayKeyer produces YYYY-MM-DD keys, always in UTC.
type DayKeyer struct{}

func (DayKeyer) Key(t time.Time, _ *time.Location) string {
	return t.UTC().Format("2006-01-02")
}

// WeekKeyer produces "Week N" with N = ceil(dayOfMonth/7). The counter resets
// every calendar month, so week 1 of January and week 1 of February share a key.
type WeekKeyer struct{}

func (WeekKeyer) Key(t time.Time, loc *time.Location) string {
	day := t.In(loc).Day()
	return "Week " + strconv.Itoa((day+6)/7)
}

// MonthKeyer produces YYYY-M with an unpadded month.
type MonthKeyer struct{}

func (MonthKeyer) Key(t time.Time, loc *time.Location) string {
	lt := t.In(loc)
	return strconv.Itoa(lt.Year()) + "-" + strconv.Itoa(int(lt.Month()))
}

// YearKeyer produces YYYY.
type YearKeyer struct{}

func (YearKeyer) Key(t time.Time, loc *time.Location) string {
	return strconv.Itoa(t.In(loc).Year())
}

// keyers maps granularities to their key strategies.
var keyers = map[Granularity]Keyer{
	Day:   DayKeyer{},
	Week:  WeekKeyer{},
	Month: MonthKeyer{},
	Year:  YearKeyer{},
}

// ParseGranularity validates a user-supplied granularity string.
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := keyers[g]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownGranularity, s)
	}
	return g, nil
}

// GetKeyer returns the key strategy for g.
func GetKeyer(g Granularity) (Keyer, error) {
	k, ok := keyers[g]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGranularity, g)
	}
	return k, nil
}

// Bucketer binds a granularity to a location for repeated key computation.
type Bucketer struct {
	g     Granularity
	keyer Keyer
	loc   *time.Location
}

// New returns a Bucketer. A nil location means UTC.
func New(g Granularity, loc *time.Location) (Bucketer, error) {
	k, err := GetKeyer(g)
	if err != nil {
		return Bucketer{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return Bucketer{g: g, keyer: k, loc: loc}, nil
}

func (b Bucketer) Granularity() Granularity { return b.g }

// Key returns the bucket key for an epoch-millisecond timestamp.
func (b Bucketer) Key(ts int64) string {
	return b.keyer.Key(time.UnixMilli(ts), b.loc)
}

// Key is a convenience for one-off lookups in UTC.
func Key(ts int64, g Granularity) (string, error) {
	b, err := New(g, time.UTC)
	if err != nil {
		return "", err
	}
	return b.Key(ts), nil
}

// StartOfRelativePeriod returns the start of the rolling window ending at now.
// Day aligns to midnight in now's location; the others subtract 7 days, one
// month or one year respectively.
func StartOfRelativePeriod(now time.Time, g Granularity) (time.Time, error) {
	switch g {
	case Day:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
	case Week:
		return now.AddDate(0, 0, -7), nil
	case Month:
		return now.AddDate(0, -1, 0), nil
	case Year:
		return now.AddDate(-1, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownGranularity, g)
	}
}

// DayRange lists the UTC day keys from from to to inclusive. It returns nil
// when to is before from.
func DayRange(from, to time.Time) []string {
	start := time.Date(from.UTC().Year(), from.UTC().Month(), from.UTC().Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.UTC().Year(), to.UTC().Month(), to.UTC().Day(), 0, 0, 0, 0, time.UTC)
	if end.Before(start) {
		return nil
	}
	var out []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format("2006-01-02"))
	}
	return out
}

// ParseDay parses a YYYY-MM-DD day key as UTC midnight.
func ParseDay(s string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(s))
}

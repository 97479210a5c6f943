// Package render defines the structures handed to presentation sinks and the
// chart registry that owns the currently rendered charts.
package render

import (
	"context"
	"errors"
)

// Kind is the chart type.
type Kind string

const (
	KindBar      Kind = "bar"
	KindLine     Kind = "line"
	KindDoughnut Kind = "doughnut"
)

// Dataset is one labelled series. ColorHint holds one colour for the whole
// dataset or one per value.
type Dataset struct {
	Label     string    `json:"label"`
	Values    []float64 `json:"values"`
	ColorHint []string  `json:"color_hint,omitempty"`
}

// Color returns the hint for value i, falling back to the dataset colour.
func (d Dataset) Color(i int) string {
	switch {
	case len(d.ColorHint) == 0:
		return ""
	case i < len(d.ColorHint):
		return d.ColorHint[i]
	default:
		return d.ColorHint[0]
	}
}

// Chart is a labelled set of datasets. Every dataset has len(Labels) values.
type Chart struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Metric is one summary scalar, already formatted for display.
type Metric struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	// Class is a presentation hint such as "positive" or "not-configured".
	Class string `json:"class,omitempty"`
}

// ListItem is one row of a rendered list.
type ListItem struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
	Value  string `json:"value,omitempty"`
	Class  string `json:"class,omitempty"`
	When   int64  `json:"when,omitempty"`
}

// Renderer is a presentation sink.
type Renderer interface {
	RenderMetrics(ctx context.Context, section string, metrics []Metric) error
	RenderChart(ctx context.Context, c Chart) error
	RenderList(ctx context.Context, listID string, items []ListItem) error
}

// Destroyer is implemented by sinks that hold per-chart resources which must
// be released before a chart is drawn again.
type Destroyer interface {
	DestroyChart(ctx context.Context, id string) error
}

// Flusher is implemented by sinks that buffer output until a frame ends.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Multi fans every call out to all sinks and joins their errors.
func Multi(sinks ...Renderer) Renderer {
	return multi(sinks)
}

type multi []Renderer

func (m multi) RenderMetrics(ctx context.Context, section string, metrics []Metric) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RenderMetrics(ctx, section, metrics))
	}
	return errors.Join(errs...)
}

func (m multi) RenderChart(ctx context.Context, c Chart) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RenderChart(ctx, c))
	}
	return errors.Join(errs...)
}

func (m multi) RenderList(ctx context.Context, listID string, items []ListItem) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RenderList(ctx, listID, items))
	}
	return errors.Join(errs...)
}

func (m multi) DestroyChart(ctx context.Context, id string) error {
	var errs []error
	for _, s := range m {
		if d, ok := s.(Destroyer); ok {
			errs = append(errs, d.DestroyChart(ctx, id))
		}
	}
	return errors.Join(errs...)
}

func (m multi) Flush(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		if f, ok := s.(Flusher); ok {
			errs = append(errs, f.Flush(ctx))
		}
	}
	return errors.Join(errs...)
}

package render

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrStale is returned when a frame was superseded by a newer one before it
// finished drawing. Its remaining output is discarded.
var ErrStale = errors.New("render superseded by a newer snapshot")

// Registry owns the charts currently on display, keyed by chart id. Drawing
// a chart replaces the previous one with the same id: the old chart is
// destroyed before the new one is created, so exactly one exists at a time.
//
// Renders are grouped into frames, one per snapshot. Starting a frame
// supersedes every earlier frame.
type Registry struct {
	sink Renderer

	mu     sync.Mutex
	gen    uint64
	charts map[string]Chart
}

func NewRegistry(sink Renderer) *Registry {
	return &Registry{sink: sink, charts: make(map[string]Chart)}
}

// Frame is one render pass.
type Frame struct {
	r   *Registry
	gen uint64
}

// Begin starts a new frame, superseding all earlier ones.
func (r *Registry) Begin() Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	return Frame{r: r, gen: r.gen}
}

// Generation returns the latest frame number.
func (r *Registry) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// Stale reports whether a newer frame has started.
func (f Frame) Stale() bool {
	return f.r.Generation() != f.gen
}

// Chart replaces or creates the chart c.ID.
func (f Frame) Chart(ctx context.Context, c Chart) error {
	r := f.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != f.gen {
		return ErrStale
	}
	if _, ok := r.charts[c.ID]; ok {
		if d, ok := r.sink.(Destroyer); ok {
			if err := d.DestroyChart(ctx, c.ID); err != nil {
				return err
			}
		}
		delete(r.charts, c.ID)
	}
	if err := r.sink.RenderChart(ctx, c); err != nil {
		return err
	}
	r.charts[c.ID] = c
	return nil
}

func (f Frame) Metrics(ctx context.Context, section string, metrics []Metric) error {
	r := f.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != f.gen {
		return ErrStale
	}
	return r.sink.RenderMetrics(ctx, section, metrics)
}

func (f Frame) List(ctx context.Context, listID string, items []ListItem) error {
	r := f.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != f.gen {
		return ErrStale
	}
	return r.sink.RenderList(ctx, listID, items)
}

// Commit flushes buffering sinks unless the frame is stale.
func (f Frame) Commit(ctx context.Context) error {
	r := f.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != f.gen {
		return ErrStale
	}
	if fl, ok := r.sink.(Flusher); ok {
		return fl.Flush(ctx)
	}
	return nil
}

// Current returns the chart currently registered under id.
func (r *Registry) Current(id string) (Chart, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.charts[id]
	return c, ok
}

// IDs lists registered chart ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.charts))
	for id := range r.charts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Destroy removes a chart, if present.
func (r *Registry) Destroy(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.charts[id]; !ok {
		return nil
	}
	delete(r.charts, id)
	if d, ok := r.sink.(Destroyer); ok {
		return d.DestroyChart(ctx, id)
	}
	return nil
}

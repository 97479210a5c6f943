package render

import (
	"context"
	"sync"
	"time"
)

// View is a point-in-time copy of everything rendered to a Snapshot.
type View struct {
	Metrics   map[string][]Metric   `json:"metrics"`
	Charts    map[string]Chart      `json:"charts"`
	Lists     map[string][]ListItem `json:"lists"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Snapshot keeps the latest render output in memory. The HTTP server serves
// it as the live dashboard.
type Snapshot struct {
	mu   sync.RWMutex
	view View
	now  func() time.Time
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		view: View{
			Metrics: make(map[string][]Metric),
			Charts:  make(map[string]Chart),
			Lists:   make(map[string][]ListItem),
		},
		now: time.Now,
	}
}

func (s *Snapshot) RenderMetrics(_ context.Context, section string, metrics []Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Metrics[section] = append([]Metric(nil), metrics...)
	s.view.UpdatedAt = s.now()
	return nil
}

func (s *Snapshot) RenderChart(_ context.Context, c Chart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Charts[c.ID] = cloneChart(c)
	s.view.UpdatedAt = s.now()
	return nil
}

func (s *Snapshot) RenderList(_ context.Context, listID string, items []ListItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Lists[listID] = append([]ListItem(nil), items...)
	s.view.UpdatedAt = s.now()
	return nil
}

func (s *Snapshot) DestroyChart(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.view.Charts, id)
	return nil
}

// View returns a copy of the current output.
func (s *Snapshot) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := View{
		Metrics:   make(map[string][]Metric, len(s.view.Metrics)),
		Charts:    make(map[string]Chart, len(s.view.Charts)),
		Lists:     make(map[string][]ListItem, len(s.view.Lists)),
		UpdatedAt: s.view.UpdatedAt,
	}
	for k, m := range s.view.Metrics {
		v.Metrics[k] = append([]Metric(nil), m...)
	}
	for k, c := range s.view.Charts {
		v.Charts[k] = cloneChart(c)
	}
	for k, l := range s.view.Lists {
		v.Lists[k] = append([]ListItem(nil), l...)
	}
	return v
}

func cloneChart(c Chart) Chart {
	out := Chart{ID: c.ID, Kind: c.Kind, Labels: append([]string(nil), c.Labels...)}
	for _, d := range c.Datasets {
		out.Datasets = append(out.Datasets, Dataset{
			Label:     d.Label,
			Values:    append([]float64(nil), d.Values...),
			ColorHint: append([]string(nil), d.ColorHint...),
		})
	}
	return out
}

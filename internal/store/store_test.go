package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"momentum/internal/core"
)

type factory func(t *testing.T, opts Options) Store

func backends() map[string]factory {
	return map[string]factory{
		"memory": func(t *testing.T, opts Options) Store {
			s := NewMemory(opts)
			t.Cleanup(func() { s.Close() })
			return s
		},
		"sqlite": func(t *testing.T, opts Options) Store {
			s, err := NewSQLite(filepath.Join(t.TempDir(), "momentum.db"), opts)
			if err != nil {
				t.Fatalf("NewSQLite() error = %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			fn(t, mk(t, Options{}))
		})
	}
}

func record(owner string, ts int64, amount string) core.Fields {
	return core.Fields{"ownerId": owner, "kind": "Expense", "amount": amount, "timestamp": ts}
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Fields["amount"].(string)
	}
	return out
}

func TestQueryFiltersAndOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, f := range []core.Fields{
			record("alice", 300, "3"),
			record("alice", 100, "1"),
			record("bob", 250, "x"),
			record("alice", 200, "2"),
			{"userId": "alice", "kind": "Expense", "amount": "legacy", "timestamp": 50},
		} {
			if _, err := s.Create(ctx, core.CollectionFinance, f); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
		}

		tests := []struct {
			name string
			q    Query
			want []string
		}{
			{
				name: "owner ascending",
				q:    NewQuery(core.CollectionFinance).Owner("alice").Order(FieldTimestamp, Asc),
				want: []string{"legacy", "1", "2", "3"},
			},
			{
				name: "owner descending with range",
				q:    NewQuery(core.CollectionFinance).Owner("alice").Where(Gte(FieldTimestamp, int64(100))).Order(FieldTimestamp, Desc),
				want: []string{"3", "2", "1"},
			},
			{
				name: "strict bounds",
				q:    NewQuery(core.CollectionFinance).Where(Gt(FieldTimestamp, 100), Lt(FieldTimestamp, 300)).Order(FieldTimestamp, Asc),
				want: []string{"2", "x"},
			},
			{
				name: "in",
				q:    NewQuery(core.CollectionFinance).Where(In("amount", "1", "3")).Order(FieldTimestamp, Asc),
				want: []string{"1", "3"},
			},
			{
				name: "limit",
				q:    Query{Collection: core.CollectionFinance, OrderBy: FieldTimestamp, Direction: Desc, Limit: 2},
				want: []string{"3", "x"},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				docs, err := s.GetOnce(ctx, tt.q)
				if err != nil {
					t.Fatalf("GetOnce() error = %v", err)
				}
				got := ids(docs)
				if len(got) != len(tt.want) {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
				for i := range got {
					if got[i] != tt.want[i] {
						t.Errorf("got %v, want %v", got, tt.want)
						break
					}
				}
			})
		}
	})
}

func TestWriteOperations(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id, err := s.Create(ctx, core.CollectionGoals, core.Fields{
			"ownerId":  "alice",
			"title":    "Run",
			"subgoals": []any{map[string]any{"id": "s1", "text": "5k", "status": "in_progress"}},
		})
		if err != nil {
			t.Fatal(err)
		}
		if id == "" {
			t.Fatal("Create returned empty id")
		}

		if err := s.Update(ctx, core.CollectionGoals, id, core.Fields{"status": "done"}); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		f, ok, err := s.GetSingle(ctx, core.CollectionGoals, id)
		if err != nil || !ok {
			t.Fatalf("GetSingle() = %v, %v", ok, err)
		}
		goal := core.GoalFromFields(id, f)
		if goal.Title != "Run" || goal.Status != core.GoalDone || len(goal.Subgoals) != 1 {
			t.Errorf("merged goal = %+v", goal)
		}

		if err := s.Update(ctx, core.CollectionGoals, "missing", core.Fields{"x": 1}); !errors.Is(err, ErrNotFound) {
			t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
		}

		if err := s.Set(ctx, core.CollectionSettings, "alice", core.Fields{"ownerId": "alice", "fixedSalary": "10"}); err != nil {
			t.Fatal(err)
		}
		if err := s.Set(ctx, core.CollectionSettings, "alice", core.Fields{"ownerId": "alice", "fixedSalary": "20"}); err != nil {
			t.Fatal(err)
		}
		docs, _ := s.GetOnce(ctx, NewQuery(core.CollectionSettings))
		if len(docs) != 1 || docs[0].Fields["fixedSalary"] != "20" {
			t.Errorf("Set should replace, got %+v", docs)
		}

		if err := s.Delete(ctx, core.CollectionGoals, id); err != nil {
			t.Fatal(err)
		}
		if _, ok, _ := s.GetSingle(ctx, core.CollectionGoals, id); ok {
			t.Error("document still present after Delete")
		}
		if err := s.Delete(ctx, core.CollectionGoals, id); err != nil {
			t.Errorf("deleting a missing document should succeed, got %v", err)
		}
	})
}

func TestReturnedFieldsAreCopies(t *testing.T) {
	s := NewMemory(Options{})
	defer s.Close()
	ctx := context.Background()
	in := core.Fields{"ownerId": "a", "subgoals": []any{map[string]any{"text": "x"}}}
	id, _ := s.Create(ctx, core.CollectionGoals, in)
	in["ownerId"] = "mutated"

	f, _, _ := s.GetSingle(ctx, core.CollectionGoals, id)
	f["subgoals"].([]any)[0].(map[string]any)["text"] = "changed"

	again, _, _ := s.GetSingle(ctx, core.CollectionGoals, id)
	if again["ownerId"] != "a" {
		t.Errorf("store shares input map")
	}
	if again["subgoals"].([]any)[0].(map[string]any)["text"] != "x" {
		t.Errorf("store shares nested values")
	}
}

type snapshots struct {
	mu   sync.Mutex
	seen [][]Document
	ch   chan struct{}
}

func newSnapshots() *snapshots { return &snapshots{ch: make(chan struct{}, 64)} }

func (s *snapshots) fn(docs []Document, err error) {
	s.mu.Lock()
	s.seen = append(s.seen, docs)
	s.mu.Unlock()
	s.ch <- struct{}{}
}

// waitFor blocks until a delivered snapshot has n documents.
func (s *snapshots) waitFor(t *testing.T, n int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		s.mu.Lock()
		if len(s.seen) > 0 && len(s.seen[len(s.seen)-1]) == n {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		select {
		case <-s.ch:
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot with %d documents", n)
		}
	}
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if _, err := s.Create(ctx, core.CollectionFinance, record("alice", 1, "1")); err != nil {
			t.Fatal(err)
		}
		snaps := newSnapshots()
		sub, err := s.Subscribe(ctx, NewQuery(core.CollectionFinance).Owner("alice"), snaps.fn)
		if err != nil {
			t.Fatal(err)
		}
		defer sub.Cancel()
		snaps.waitFor(t, 1)

		for i := 0; i < 20; i++ {
			if _, err := s.Create(ctx, core.CollectionFinance, record("alice", int64(10+i), "2")); err != nil {
				t.Fatal(err)
			}
		}
		// Writes to other owners and collections do not change the result.
		s.Create(ctx, core.CollectionFinance, record("bob", 5, "9"))
		s.Create(ctx, core.CollectionGoals, core.Fields{"ownerId": "alice", "title": "x"})
		snaps.waitFor(t, 21)

		snaps.mu.Lock()
		defer snaps.mu.Unlock()
		for i := 1; i < len(snaps.seen); i++ {
			if len(snaps.seen[i]) < len(snaps.seen[i-1]) {
				t.Errorf("snapshot %d is older than snapshot %d", i, i-1)
			}
		}
	})
}

func TestCancelStopsDelivery(t *testing.T) {
	s := NewMemory(Options{})
	defer s.Close()
	ctx := context.Background()
	snaps := newSnapshots()
	sub, err := s.Subscribe(ctx, NewQuery(core.CollectionFinance), snaps.fn)
	if err != nil {
		t.Fatal(err)
	}
	snaps.waitFor(t, 0)
	sub.Cancel()
	sub.Cancel()

	snaps.mu.Lock()
	before := len(snaps.seen)
	snaps.mu.Unlock()
	s.Create(ctx, core.CollectionFinance, record("a", 1, "1"))
	time.Sleep(50 * time.Millisecond)
	snaps.mu.Lock()
	after := len(snaps.seen)
	snaps.mu.Unlock()
	if after != before {
		t.Errorf("received %d snapshots after Cancel", after-before)
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (n *recordingNotifier) Publish(_ context.Context, ev ChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func TestNotifierReceivesWrites(t *testing.T) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			n := &recordingNotifier{}
			s := mk(t, Options{Notifier: n, Origin: "proc-1"})
			ctx := context.Background()
			id, _ := s.Create(ctx, core.CollectionFinance, record("alice", 1, "1"))
			s.Update(ctx, core.CollectionFinance, id, core.Fields{"amount": "2"})
			s.Delete(ctx, core.CollectionFinance, id)

			n.mu.Lock()
			defer n.mu.Unlock()
			if len(n.events) != 3 {
				t.Fatalf("got %d events, want 3", len(n.events))
			}
			wantOps := []string{"create", "update", "delete"}
			for i, ev := range n.events {
				if ev.Op != wantOps[i] || ev.OwnerID != "alice" || ev.Origin != "proc-1" || ev.DocumentID != id {
					t.Errorf("event %d = %+v", i, ev)
				}
			}
		})
	}
}

func TestSubscribeAfterClose(t *testing.T) {
	s := NewMemory(Options{})
	s.Close()
	if _, err := s.Subscribe(context.Background(), NewQuery("x"), func([]Document, error) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close error = %v, want ErrClosed", err)
	}
}

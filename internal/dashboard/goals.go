package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"momentum/internal/auth"
	"momentum/internal/core"
	applog "momentum/internal/log"
	"momentum/internal/store"
)

// Goals manages goal documents and their embedded subgoals.
type Goals struct {
	store store.Store
	now   func() time.Time
	log   *applog.Logger
}

func NewGoals(st store.Store) *Goals {
	return &Goals{store: st, now: time.Now, log: applog.Default(applog.ComponentGoals)}
}

func (s *Goals) Create(ctx context.Context, title string) (core.Goal, error) {
	owner, err := auth.Require(ctx)
	if err != nil {
		return core.Goal{}, err
	}
	g := core.Goal{
		OwnerID:   owner,
		Title:     strings.TrimSpace(title),
		CreatedAt: s.now().UnixMilli(),
		Status:    core.GoalInProgress,
	}
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	id, err := s.store.Create(ctx, core.CollectionGoals, g.Fields())
	if err != nil {
		return core.Goal{}, fmt.Errorf("save goal: %w", err)
	}
	g.ID = id
	s.log.InfoContext(ctx, "Goal created", applog.NewFields().WithOwner(owner).WithDocument(core.CollectionGoals, id).ToSlice()...)
	return g, nil
}

func (s *Goals) Rename(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return core.ErrEmptyTitle
	}
	return s.update(ctx, id, func(g *core.Goal) core.Fields {
		g.Title = title
		return core.Fields{"title": title}
	})
}

func (s *Goals) SetStatus(ctx context.Context, id, status string) error {
	st, err := core.ParseGoalStatus(status)
	if err != nil {
		return err
	}
	return s.update(ctx, id, func(g *core.Goal) core.Fields {
		g.Status = st
		return core.Fields{"status": string(st)}
	})
}

// ReplaceSubgoals rewrites the goal's whole subgoal list. Subgoals without
// an id get a new one; a missing status means in progress.
func (s *Goals) ReplaceSubgoals(ctx context.Context, id string, subgoals []core.Subgoal) error {
	subs := make([]core.Subgoal, len(subgoals))
	for i, sg := range subgoals {
		sg.Text = strings.TrimSpace(sg.Text)
		if sg.ID == "" {
			sg.ID = uuid.NewString()
		}
		if sg.Status == "" {
			sg.Status = core.GoalInProgress
		}
		subs[i] = sg
	}
	return s.update(ctx, id, func(g *core.Goal) core.Fields {
		g.Subgoals = subs
		return core.Fields{"subgoals": g.Fields()["subgoals"]}
	})
}

// update applies change to a validated copy of the stored goal and writes
// only the fields change returns.
func (s *Goals) update(ctx context.Context, id string, change func(*core.Goal) core.Fields) error {
	owner, err := auth.Require(ctx)
	if err != nil {
		return err
	}
	f, err := owned(ctx, s.store, core.CollectionGoals, id, owner)
	if err != nil {
		return err
	}
	g := core.GoalFromFields(id, f)
	partial := change(&g)
	if err := g.Validate(); err != nil {
		return err
	}
	if err := s.store.Update(ctx, core.CollectionGoals, id, partial); err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	return nil
}

// Delete removes the goal only. Its motivation logs stay and are shown with
// a placeholder label.
func (s *Goals) Delete(ctx context.Context, id string) error {
	owner, err := auth.Require(ctx)
	if err != nil {
		return err
	}
	if _, err := owned(ctx, s.store, core.CollectionGoals, id, owner); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, core.CollectionGoals, id); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return nil
}

func (s *Goals) Get(ctx context.Context, id string) (core.Goal, error) {
	owner, err := auth.Require(ctx)
	if err != nil {
		return core.Goal{}, err
	}
	f, err := owned(ctx, s.store, core.CollectionGoals, id, owner)
	if err != nil {
		return core.Goal{}, err
	}
	return core.GoalFromFields(id, f), nil
}

// List returns every goal of the owner, oldest first.
func (s *Goals) List(ctx context.Context) ([]core.Goal, error) {
	owner, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	return listGoals(ctx, s.store, owner)
}

// Active returns the goals offered when logging a score.
func (s *Goals) Active(ctx context.Context) ([]core.Goal, error) {
	goals, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return ActiveGoals(goals), nil
}

func listGoals(ctx context.Context, st store.Store, owner string) ([]core.Goal, error) {
	docs, err := st.GetOnce(ctx, GoalQuery(owner))
	if err != nil {
		return nil, fmt.Errorf("load goals: %w", err)
	}
	return GoalsFromDocuments(docs), nil
}

// GoalQuery selects all goals of owner. Status is filtered after decoding
// because goals written before statuses existed have no status field.
func GoalQuery(owner string) store.Query {
	return store.NewQuery(core.CollectionGoals).Owner(owner)
}

// GoalsFromDocuments decodes goals, oldest first.
func GoalsFromDocuments(docs []store.Document) []core.Goal {
	out := make([]core.Goal, len(docs))
	for i, d := range docs {
		out[i] = core.GoalFromFields(d.ID, d.Fields)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

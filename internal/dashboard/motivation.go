package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"momentum/internal/auth"
	"momentum/internal/core"
	applog "momentum/internal/log"
	"momentum/internal/store"
)

// Motivation records scored progress against goals.
type Motivation struct {
	store store.Store
	now   func() time.Time
	log   *applog.Logger
}

func NewMotivation(st store.Store) *Motivation {
	return &Motivation{store: st, now: time.Now, log: applog.Default(applog.ComponentMotivation)}
}

// Log appends a score for an active goal. The goal title is stored on the
// log so it can still be labelled after the goal is deleted.
func (s *Motivation) Log(ctx context.Context, goalID string, score int64, notes string) (string, error) {
	owner, err := auth.Require(ctx)
	if err != nil {
		return "", err
	}
	f, err := owned(ctx, s.store, core.CollectionGoals, goalID, owner)
	if err != nil {
		return "", err
	}
	goal := core.GoalFromFields(goalID, f)
	if !goal.Active() {
		return "", fmt.Errorf("goal is %s: %w", goal.Status, core.ErrInvalidStatus)
	}
	notes = strings.TrimSpace(notes)
	if len(notes) > 500 {
		return "", fmt.Errorf("notes (max 500 characters): %w", core.ErrTooLong)
	}
	entry := core.MotivationLog{
		OwnerID:   owner,
		GoalID:    goalID,
		GoalTitle: goal.Title,
		Score:     score,
		Notes:     notes,
		Timestamp: s.now().UnixMilli(),
	}
	id, err := s.store.Create(ctx, core.CollectionMotivation, entry.Fields())
	if err != nil {
		return "", fmt.Errorf("save motivation log: %w", err)
	}
	s.log.InfoContext(ctx, "Score logged", applog.NewFields().
		WithOwner(owner).
		WithDocument(core.CollectionMotivation, id).
		ToSlice()...)
	return id, nil
}

func (s *Motivation) Delete(ctx context.Context, id string) error {
	owner, err := auth.Require(ctx)
	if err != nil {
		return err
	}
	if _, err := owned(ctx, s.store, core.CollectionMotivation, id, owner); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, core.CollectionMotivation, id); err != nil {
		return fmt.Errorf("delete motivation log: %w", err)
	}
	return nil
}

// Logs returns the owner's motivation logs, newest first.
func (s *Motivation) Logs(ctx context.Context) ([]core.MotivationLog, error) {
	owner, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	return s.logs(ctx, owner)
}

func (s *Motivation) logs(ctx context.Context, owner string) ([]core.MotivationLog, error) {
	docs, err := s.store.GetOnce(ctx, MotivationQuery(owner))
	if err != nil {
		return nil, fmt.Errorf("load motivation logs: %w", err)
	}
	return LogsFromDocuments(docs), nil
}

func (s *Motivation) View(ctx context.Context, window Window) (MotivationView, error) {
	owner, err := auth.Require(ctx)
	if err != nil {
		return MotivationView{}, err
	}
	var (
		logs  []core.MotivationLog
		goals []core.Goal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		logs, err = s.logs(gctx, owner)
		return err
	})
	g.Go(func() error {
		var err error
		goals, err = listGoals(gctx, s.store, owner)
		return err
	})
	if err := g.Wait(); err != nil {
		return MotivationView{}, err
	}
	return ComputeMotivation(logs, goals, window), nil
}

func MotivationQuery(owner string) store.Query {
	return store.NewQuery(core.CollectionMotivation).Owner(owner).Order(store.FieldTimestamp, store.Desc)
}

func LogsFromDocuments(docs []store.Document) []core.MotivationLog {
	out := make([]core.MotivationLog, len(docs))
	for i, d := range docs {
		out[i] = core.MotivationLogFromFields(d.ID, d.Fields)
	}
	return out
}

package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"momentum/internal/auth"
	"momentum/internal/core"
	applog "momentum/internal/log"
	"momentum/internal/metrics"
	"momentum/internal/store"
)

// Debt tracks a single running debt per owner. Every initialisation and
// repayment appends the resulting remaining debt to the repayment log.
type Debt struct {
	store store.Store
	now   func() time.Time
	log   *applog.Logger
}

func NewDebt(st store.Store) *Debt {
	return &Debt{store: st, now: time.Now, log: applog.Default(applog.ComponentDebt)}
}

// Initialise sets both initial and current debt to initial, replacing any
// previous status.
func (s *Debt) Initialise(ctx context.Context, initial decimal.Decimal) error {
	owner, err := auth.Require(ctx)
	if err != nil {
		return err
	}
	if initial.IsNegative() {
		return core.ErrInvalidAmount
	}
	if err := s.record(ctx, owner, core.DebtStatus{
		OwnerID:     owner,
		InitialDebt: initial,
		CurrentDebt: initial,
		LastUpdated: s.now().UnixMilli(),
	}); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Debt initialised", applog.NewFields().
		WithOwner(owner).
		WithOperation(applog.OpCreate).
		WithDocument(core.CollectionDebtStatus, owner).
		ToSlice()...)
	return nil
}

// Repay lowers the current debt by amount, never below zero, and returns
// the new remaining debt.
func (s *Debt) Repay(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	owner, err := auth.Require(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, core.ErrInvalidAmount
	}
	status, err := loadDebtStatus(ctx, s.store, owner)
	if err != nil {
		return decimal.Zero, err
	}
	if status == nil {
		return decimal.Zero, core.ErrNotConfigured
	}
	status.CurrentDebt = metrics.ApplyRepayment(status.CurrentDebt, amount)
	status.LastUpdated = s.now().UnixMilli()
	if err := s.record(ctx, owner, *status); err != nil {
		return decimal.Zero, err
	}
	s.log.InfoContext(ctx, "Repayment recorded", applog.NewFields().
		WithOwner(owner).
		WithOperation(applog.OpRepay).
		WithRecord("repayment", amount.String()).
		ToSlice()...)
	return status.CurrentDebt, nil
}

// record appends the log entry before replacing the status, so a failed
// write never leaves a status change without its entry.
func (s *Debt) record(ctx context.Context, owner string, status core.DebtStatus) error {
	entry := core.RepaymentLogEntry{OwnerID: owner, RemainingDebt: status.CurrentDebt, Timestamp: status.LastUpdated}
	if _, err := s.store.Create(ctx, core.CollectionRepayments, entry.Fields()); err != nil {
		return fmt.Errorf("append repayment log: %w", err)
	}
	if err := s.store.Set(ctx, core.CollectionDebtStatus, owner, status.Fields()); err != nil {
		return fmt.Errorf("save debt status: %w", err)
	}
	return nil
}

// Status returns the owner's debt status, or nil if none was initialised.
func (s *Debt) Status(ctx context.Context) (*core.DebtStatus, error) {
	owner, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	return loadDebtStatus(ctx, s.store, owner)
}

func loadDebtStatus(ctx context.Context, st store.Store, owner string) (*core.DebtStatus, error) {
	f, ok, err := st.GetSingle(ctx, core.CollectionDebtStatus, owner)
	if err != nil {
		return nil, fmt.Errorf("load debt status: %w", err)
	}
	if !ok {
		return nil, nil
	}
	ds := core.DebtStatusFromFields(f)
	return &ds, nil
}

// Log returns the repayment log, oldest first.
func (s *Debt) Log(ctx context.Context) ([]core.RepaymentLogEntry, error) {
	owner, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	return s.entries(ctx, owner)
}

func (s *Debt) entries(ctx context.Context, owner string) ([]core.RepaymentLogEntry, error) {
	docs, err := s.store.GetOnce(ctx, RepaymentQuery(owner))
	if err != nil {
		return nil, fmt.Errorf("load repayment log: %w", err)
	}
	return RepaymentsFromDocuments(docs), nil
}

func (s *Debt) View(ctx context.Context, window Window) (DebtView, error) {
	owner, err := auth.Require(ctx)
	if err != nil {
		return DebtView{}, err
	}
	var (
		status *core.DebtStatus
		log    []core.RepaymentLogEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		status, err = loadDebtStatus(gctx, s.store, owner)
		return err
	})
	g.Go(func() error {
		var err error
		log, err = s.entries(gctx, owner)
		return err
	})
	if err := g.Wait(); err != nil {
		return DebtView{}, err
	}
	return ComputeDebt(status, log, window), nil
}

func RepaymentQuery(owner string) store.Query {
	return store.NewQuery(core.CollectionRepayments).Owner(owner).Order(store.FieldTimestamp, store.Asc)
}

func RepaymentsFromDocuments(docs []store.Document) []core.RepaymentLogEntry {
	out := make([]core.RepaymentLogEntry, len(docs))
	for i, d := range docs {
		out[i] = core.RepaymentFromFields(d.ID, d.Fields)
	}
	return out
}

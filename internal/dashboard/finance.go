package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"momentum/internal/auth"
	"momentum/internal/bucket"
	"momentum/internal/classify"
	"momentum/internal/core"
	applog "momentum/internal/log"
	"momentum/internal/store"
)

// ErrUnknownKind rejects writes whose kind the active classifier table does
// not recognise. Stored records with unknown kinds are still read and ignored.
var ErrUnknownKind = errors.New("unknown record kind")

// Services bundles the store-backed entry points for one store.
type Services struct {
	Finance    *Finance
	Debt       *Debt
	Motivation *Motivation
	Goals      *Goals
}

func NewServices(st store.Store, opts Options) *Services {
	return &Services{
		Finance:    NewFinance(st, opts),
		Debt:       NewDebt(st),
		Motivation: NewMotivation(st),
		Goals:      NewGoals(st),
	}
}

// owned loads a document and checks that it belongs to ownerID. Documents of
// other owners are reported as not found.
func owned(ctx context.Context, st store.Store, collection, id, ownerID string) (core.Fields, error) {
	f, ok, err := st.GetSingle(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", collection, id, err)
	}
	if !ok || core.OwnerOf(f) != ownerID {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, core.ErrNotFound)
	}
	return f, nil
}

// Finance records transactions and fixed settings and computes the finance view.
type Finance struct {
	store store.Store
	opts  Options
	now   func() time.Time
	log   *applog.Logger
	group singleflight.Group
}

func NewFinance(st store.Store, opts Options) *Finance {
	return &Finance{
		store: st,
		opts:  opts.withDefaults(),
		now:   time.Now,
		log:   applog.Default(applog.ComponentFinance),
	}
}

func (s *Finance) Options() Options { return s.opts }

// Add records a transaction stamped with the current time.
func (s *Finance) Add(ctx context.Context, kind string, amount decimal.Decimal, description string) (string, error) {
	owner, err := auth.Require(ctx)
	if err != nil {
		return "", err
	}
	r := core.Record{
		OwnerID:     owner,
		Kind:        strings.TrimSpace(kind),
		Amount:      amount,
		Timestamp:   s.now().UnixMilli(),
		Description: strings.TrimSpace(description),
	}
	if err := r.Validate(); err != nil {
		return "", err
	}
	if s.opts.Table.Classify(r.Kind) == classify.Unrecognized {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}
	id, err := s.store.Create(ctx, core.CollectionFinance, r.Fields())
	if err != nil {
		return "", fmt.Errorf("save record: %w", err)
	}
	s.log.InfoContext(ctx, "Record created", applog.NewFields().
		WithOwner(owner).
		WithDocument(core.CollectionFinance, id).
		WithRecord(r.Kind, r.Amount.String()).
		ToSlice()...)
	return id, nil
}

// RecordChange lists the mutable fields of a record. Nil fields are kept.
type RecordChange struct {
	Amount      *decimal.Decimal
	Description *string
}

func (s *Finance) Edit(ctx context.Context, id string, change RecordChange) error {
	owner, err := auth.Require(ctx)
	if err != nil {
		return err
	}
	partial := core.Fields{}
	if change.Amount != nil {
		if change.Amount.IsNegative() {
			return core.ErrInvalidAmount
		}
		partial["amount"] = change.Amount.String()
	}
	if change.Description != nil {
		d := strings.TrimSpace(*change.Description)
		if len(d) > 200 {
			return fmt.Errorf("description (max 200 characters): %w", core.ErrTooLong)
		}
		partial["description"] = d
	}
	if _, err := owned(ctx, s.store, core.CollectionFinance, id, owner); err != nil {
		return err
	}
	if len(partial) == 0 {
		return nil
	}
	if err := s.store.Update(ctx, core.CollectionFinance, id, partial); err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return nil
}

func (s *Finance) Delete(ctx context.Context, id string) error {
	owner, err := auth.Require(ctx)
	if err != nil {
		return err
	}
	if _, err := owned(ctx, s.store, core.CollectionFinance, id, owner); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, core.CollectionFinance, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// PutSettings creates or replaces the owner's fixed settings.
func (s *Finance) PutSettings(ctx context.Context, salary, debt, savings decimal.Decimal) error {
	owner, err := auth.Require(ctx)
	if err != nil {
		return err
	}
	if salary.IsNegative() || debt.IsNegative() || savings.IsNegative() {
		return core.ErrInvalidAmount
	}
	fs := core.FixedSettings{OwnerID: owner, FixedSalary: salary, FixedDebt: debt, FixedSavings: savings}
	if err := s.store.Set(ctx, core.CollectionSettings, owner, fs.Fields()); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Settings returns the owner's fixed settings, or nil if none were saved.
func (s *Finance) Settings(ctx context.Context) (*core.FixedSettings, error) {
	owner, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	return loadSettings(ctx, s.store, owner)
}

func loadSettings(ctx context.Context, st store.Store, owner string) (*core.FixedSettings, error) {
	f, ok, err := st.GetSingle(ctx, core.CollectionSettings, owner)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !ok {
		return nil, nil
	}
	fs := core.SettingsFromFields(f)
	return &fs, nil
}

// Query selects the owner's records of the rolling period ending now,
// oldest first.
func (s *Finance) Query(owner string, period bucket.Granularity) (store.Query, error) {
	start, err := s.windowStart(s.now(), period)
	if err != nil {
		return store.Query{}, err
	}
	return store.NewQuery(core.CollectionFinance).
		Owner(owner).
		Where(store.Gte(store.FieldTimestamp, start.UnixMilli())).
		Order(store.FieldTimestamp, store.Asc), nil
}

// windowStart is the first instant of the rolling period ending at now.
func (s *Finance) windowStart(now time.Time, period bucket.Granularity) (time.Time, error) {
	if s.opts.Location != nil {
		now = now.In(s.opts.Location)
	}
	return bucket.StartOfRelativePeriod(now, period)
}

func (s *Finance) Records(ctx context.Context, period bucket.Granularity) ([]core.Record, error) {
	owner, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	return s.records(ctx, owner, period)
}

func (s *Finance) records(ctx context.Context, owner string, period bucket.Granularity) ([]core.Record, error) {
	q, err := s.Query(owner, period)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.GetOnce(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	return RecordsFromDocuments(docs), nil
}

// View computes the finance dashboard for period. Concurrent calls for the
// same owner and period share one computation; the result must be treated
// as read-only.
func (s *Finance) View(ctx context.Context, period bucket.Granularity) (FinanceView, error) {
	owner, err := auth.Require(ctx)
	if err != nil {
		return FinanceView{}, err
	}
	if _, err := bucket.GetKeyer(period); err != nil {
		return FinanceView{}, err
	}
	v, err, _ := s.group.Do(owner+"|"+string(period), func() (any, error) {
		var (
			records  []core.Record
			settings *core.FixedSettings
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			records, err = s.records(gctx, owner, period)
			return err
		})
		g.Go(func() error {
			var err error
			settings, err = loadSettings(gctx, s.store, owner)
			return err
		})
		if err := g.Wait(); err != nil {
			return FinanceView{}, err
		}
		opts := s.opts
		opts.Period = period
		return ComputeFinance(records, settings, opts)
	})
	if err != nil {
		return FinanceView{}, err
	}
	return v.(FinanceView), nil
}

// RecordsFromDocuments decodes finance documents.
func RecordsFromDocuments(docs []store.Document) []core.Record {
	out := make([]core.Record, len(docs))
	for i, d := range docs {
		out[i] = core.RecordFromFields(d.ID, d.Fields)
	}
	return out
}

package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	GoalInProgress GoalStatus = "in_progress"
	GoalDone       GoalStatus = "done"
	GoalFailed     GoalStatus = "failed"
)

// Collection names used by the document store.
const (
	CollectionFinance     = "financialData"
	CollectionSettings    = "fixedSettings"
	CollectionDebtStatus  = "debtStatus"
	CollectionRepayments  = "repaymentLog"
	CollectionGoals       = "goals"
	CollectionMotivation  = "motivationLogs"
	KindGoalLog           = "GoalLog"
	MissingGoalLabel      = "(deleted goal)"
	EmptyNotesPlaceholder = "(No notes)"
)

type (
	GoalStatus string

	// Record is one financial or motivational event.
	Record struct {
		ID          string
		OwnerID     string
		Kind        string
		Amount      decimal.Decimal
		Timestamp   int64 // epoch millis
		Description string
		// Ref names the entity the record belongs to (goal id for motivation logs).
		Ref string
	}

	// FixedSettings holds the per-owner recurring baseline values.
	FixedSettings struct {
		OwnerID      string
		FixedSalary  decimal.Decimal
		FixedDebt    decimal.Decimal
		FixedSavings decimal.Decimal
	}

	DebtStatus struct {
		OwnerID     string
		InitialDebt decimal.Decimal
		CurrentDebt decimal.Decimal
		LastUpdated int64
	}

	// RepaymentLogEntry captures the remaining debt after a repayment or initialisation.
	RepaymentLogEntry struct {
		ID            string
		OwnerID       string
		RemainingDebt decimal.Decimal
		Timestamp     int64
	}

	Subgoal struct {
		ID     string
		Text   string
		Status GoalStatus
	}

	Goal struct {
		ID        string
		OwnerID   string
		Title     string
		CreatedAt int64
		Status    GoalStatus
		Subgoals  []Subgoal
	}

	MotivationLog struct {
		ID      string
		OwnerID string
		GoalID  string
		// GoalTitle is the title denormalised at write time, if any.
		GoalTitle string
		Score     int64
		Notes     string
		Timestamp int64
	}
)

var (
	ErrUnauthenticated = errors.New("user not authenticated")
	ErrNotFound        = errors.New("not found")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyTitle      = errors.New("empty title")
	ErrEmptyKind       = errors.New("empty kind")
	ErrInvalidStatus   = errors.New("invalid goal status")
	ErrNotConfigured   = errors.New("not configured")
	ErrTooLong         = errors.New("text too long")
	ErrEmptyText       = errors.New("empty text")
)

// ParseGoalStatus returns the status for s, or ErrInvalidStatus.
func ParseGoalStatus(s string) (GoalStatus, error) {
	switch GoalStatus(strings.TrimSpace(s)) {
	case GoalInProgress:
		return GoalInProgress, nil
	case GoalDone:
		return GoalDone, nil
	case GoalFailed:
		return GoalFailed, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Active reports whether the goal is offered for new motivation logs.
func (g Goal) Active() bool {
	return g.Status == GoalInProgress || g.Status == GoalDone
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Title) == "" {
		return ErrEmptyTitle
	}
	if len(g.Title) > 200 {
		return fmt.Errorf("title (max 200 characters): %w", ErrTooLong)
	}
	if _, err := ParseGoalStatus(string(g.Status)); err != nil {
		return err
	}
	for _, sg := range g.Subgoals {
		if strings.TrimSpace(sg.Text) == "" {
			return fmt.Errorf("subgoal: %w", ErrEmptyText)
		}
		if _, err := ParseGoalStatus(string(sg.Status)); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a record about to be written. Decoded records are never
// validated: bad stored values degrade to zero instead.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Kind) == "" {
		return ErrEmptyKind
	}
	if r.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if len(r.Description) > 200 {
		return fmt.Errorf("description (max 200 characters): %w", ErrTooLong)
	}
	return nil
}

// AsRecord turns a motivation log into a GoalLog record keyed by its goal.
func (l MotivationLog) AsRecord() Record {
	return Record{
		ID:          l.ID,
		OwnerID:     l.OwnerID,
		Kind:        KindGoalLog,
		Amount:      decimal.NewFromInt(l.Score),
		Timestamp:   l.Timestamp,
		Description: l.Notes,
		Ref:         l.GoalID,
	}
}

// AsRecord turns a repayment log entry into a record carrying the remaining debt.
func (e RepaymentLogEntry) AsRecord() Record {
	return Record{
		ID:        e.ID,
		OwnerID:   e.OwnerID,
		Kind:      "Debt_Remaining",
		Amount:    e.RemainingDebt,
		Timestamp: e.Timestamp,
	}
}

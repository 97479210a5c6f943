package http

import (
	"github.com/shopspring/decimal"

	"momentum/internal/core"
)

// Wire shapes. Field names follow the stored documents.

type recordJSON struct {
	ID          string          `json:"id"`
	Kind        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Timestamp   int64           `json:"timestamp"`
}

type settingsJSON struct {
	FixedSalary  decimal.Decimal `json:"fixedSalary"`
	FixedDebt    decimal.Decimal `json:"fixedDebt"`
	FixedSavings decimal.Decimal `json:"fixedSavings"`
}

type debtStatusJSON struct {
	InitialDebt decimal.Decimal `json:"initialDebt"`
	CurrentDebt decimal.Decimal `json:"currentDebt"`
	LastUpdated int64           `json:"lastUpdated"`
}

type repaymentJSON struct {
	ID            string          `json:"id"`
	RemainingDebt decimal.Decimal `json:"remainingDebt"`
	Timestamp     int64           `json:"timestamp"`
}

type subgoalJSON struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Status string `json:"status"`
}

type goalJSON struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Status    string        `json:"status"`
	CreatedAt int64         `json:"createdAt"`
	Subgoals  []subgoalJSON `json:"subgoals"`
}

type motivationLogJSON struct {
	ID        string `json:"id"`
	GoalID    string `json:"goalId"`
	GoalTitle string `json:"goalTitle,omitempty"`
	Score     int64  `json:"score"`
	Notes     string `json:"notes"`
	Timestamp int64  `json:"timestamp"`
}

type idJSON struct {
	ID string `json:"id"`
}

func toRecords(rs []core.Record) []recordJSON {
	out := make([]recordJSON, len(rs))
	for i, r := range rs {
		out[i] = recordJSON{ID: r.ID, Kind: r.Kind, Amount: r.Amount, Description: r.Description, Timestamp: r.Timestamp}
	}
	return out
}

func toSettings(s *core.FixedSettings) *settingsJSON {
	if s == nil {
		return nil
	}
	return &settingsJSON{FixedSalary: s.FixedSalary, FixedDebt: s.FixedDebt, FixedSavings: s.FixedSavings}
}

func toDebtStatus(s *core.DebtStatus) *debtStatusJSON {
	if s == nil {
		return nil
	}
	return &debtStatusJSON{InitialDebt: s.InitialDebt, CurrentDebt: s.CurrentDebt, LastUpdated: s.LastUpdated}
}

func toRepayments(es []core.RepaymentLogEntry) []repaymentJSON {
	out := make([]repaymentJSON, len(es))
	for i, e := range es {
		out[i] = repaymentJSON{ID: e.ID, RemainingDebt: e.RemainingDebt, Timestamp: e.Timestamp}
	}
	return out
}

func toGoal(g core.Goal) goalJSON {
	subs := make([]subgoalJSON, len(g.Subgoals))
	for i, s := range g.Subgoals {
		subs[i] = subgoalJSON{ID: s.ID, Text: s.Text, Status: string(s.Status)}
	}
	return goalJSON{ID: g.ID, Title: g.Title, Status: string(g.Status), CreatedAt: g.CreatedAt, Subgoals: subs}
}

func toGoals(gs []core.Goal) []goalJSON {
	out := make([]goalJSON, len(gs))
	for i, g := range gs {
		out[i] = toGoal(g)
	}
	return out
}

func toLogs(ls []core.MotivationLog) []motivationLogJSON {
	out := make([]motivationLogJSON, len(ls))
	for i, l := range ls {
		out[i] = motivationLogJSON{ID: l.ID, GoalID: l.GoalID, GoalTitle: l.GoalTitle, Score: l.Score, Notes: l.Notes, Timestamp: l.Timestamp}
	}
	return out
}

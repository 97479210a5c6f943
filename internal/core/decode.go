package core

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Fields is the loosely typed shape of a stored document.
type Fields = map[string]any

// first returns the first present value among the given field aliases.
func first(f Fields, keys ...string) any {
	for _, k := range keys {
		if v, ok := f[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringField(f Fields, keys ...string) string {
	v, _ := first(f, keys...).(string)
	return v
}

func intField(f Fields, keys ...string) int64 {
	switch v := first(f, keys...).(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return int64(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if fl, err := v.Float64(); err == nil {
			return int64(fl)
		}
		return 0
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i
		}
		return 0
	default:
		return 0
	}
}

func decimalField(f Fields, keys ...string) decimal.Decimal {
	d, _ := AmountFromAny(first(f, keys...))
	return d
}

// RecordFromFields decodes a financial record. Older documents used userId and
// type instead of ownerId and kind; both spellings are accepted.
func RecordFromFields(id string, f Fields) Record {
	return Record{
		ID:          id,
		OwnerID:     stringField(f, "ownerId", "userId"),
		Kind:        stringField(f, "kind", "type"),
		Amount:      decimalField(f, "amount"),
		Timestamp:   intField(f, "timestamp"),
		Description: stringField(f, "description", "notes"),
	}
}

func (r Record) Fields() Fields {
	return Fields{
		"ownerId":     r.OwnerID,
		"kind":        r.Kind,
		"amount":      r.Amount.String(),
		"timestamp":   r.Timestamp,
		"description": r.Description,
	}
}

func SettingsFromFields(f Fields) FixedSettings {
	return FixedSettings{
		OwnerID:      stringField(f, "ownerId", "userId"),
		FixedSalary:  decimalField(f, "fixedSalary", "salary"),
		FixedDebt:    decimalField(f, "fixedDebt", "debt"),
		FixedSavings: decimalField(f, "fixedSavings", "savings"),
	}
}

func (s FixedSettings) Fields() Fields {
	return Fields{
		"ownerId":      s.OwnerID,
		"fixedSalary":  s.FixedSalary.String(),
		"fixedDebt":    s.FixedDebt.String(),
		"fixedSavings": s.FixedSavings.String(),
	}
}

func DebtStatusFromFields(f Fields) DebtStatus {
	return DebtStatus{
		OwnerID:     stringField(f, "ownerId", "userId"),
		InitialDebt: decimalField(f, "initialDebt"),
		CurrentDebt: decimalField(f, "currentDebt"),
		LastUpdated: intField(f, "lastUpdated"),
	}
}

func (d DebtStatus) Fields() Fields {
	return Fields{
		"ownerId":     d.OwnerID,
		"initialDebt": d.InitialDebt.String(),
		"currentDebt": d.CurrentDebt.String(),
		"lastUpdated": d.LastUpdated,
	}
}

func RepaymentFromFields(id string, f Fields) RepaymentLogEntry {
	return RepaymentLogEntry{
		ID:            id,
		OwnerID:       stringField(f, "ownerId", "userId"),
		RemainingDebt: decimalField(f, "remainingDebt", "amount"),
		Timestamp:     intField(f, "timestamp"),
	}
}

func (e RepaymentLogEntry) Fields() Fields {
	return Fields{
		"ownerId":       e.OwnerID,
		"remainingDebt": e.RemainingDebt.String(),
		"timestamp":     e.Timestamp,
	}
}

func GoalFromFields(id string, f Fields) Goal {
	g := Goal{
		ID:        id,
		OwnerID:   stringField(f, "ownerId", "userId"),
		Title:     stringField(f, "title"),
		CreatedAt: intField(f, "createdAt"),
		Status:    decodeStatus(stringField(f, "status")),
	}
	if raw, ok := f["subgoals"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			g.Subgoals = append(g.Subgoals, Subgoal{
				ID:     stringField(m, "id"),
				Text:   stringField(m, "text"),
				Status: decodeStatus(stringField(m, "status")),
			})
		}
	}
	return g
}

func (g Goal) Fields() Fields {
	subs := make([]any, 0, len(g.Subgoals))
	for _, sg := range g.Subgoals {
		subs = append(subs, map[string]any{
			"id":     sg.ID,
			"text":   sg.Text,
			"status": string(sg.Status),
		})
	}
	return Fields{
		"ownerId":   g.OwnerID,
		"title":     g.Title,
		"createdAt": g.CreatedAt,
		"status":    string(g.Status),
		"subgoals":  subs,
	}
}

// decodeStatus treats goals written before statuses existed as in progress.
func decodeStatus(s string) GoalStatus {
	st, err := ParseGoalStatus(s)
	if err != nil {
		return GoalInProgress
	}
	return st
}

func MotivationLogFromFields(id string, f Fields) MotivationLog {
	score, _ := AmountFromAny(first(f, "score"))
	return MotivationLog{
		ID:        id,
		OwnerID:   stringField(f, "ownerId", "userId"),
		GoalID:    stringField(f, "goalId"),
		GoalTitle: stringField(f, "goalTitle"),
		Score:     score.IntPart(),
		Notes:     stringField(f, "notes", "description"),
		Timestamp: intField(f, "timestamp"),
	}
}

func (l MotivationLog) Fields() Fields {
	return Fields{
		"ownerId":   l.OwnerID,
		"goalId":    l.GoalID,
		"goalTitle": l.GoalTitle,
		"score":     l.Score,
		"notes":     l.Notes,
		"timestamp": l.Timestamp,
	}
}

// OwnerOf returns the owning user of a stored document under either spelling.
func OwnerOf(f Fields) string {
	return stringField(f, "ownerId", "userId")
}

// Package dashboard turns an owner's records into the metrics, charts and
// lists a presentation sink draws.
//
// The Compute functions are pure: they take the full current record set and
// return a view. Services wrap them with store access and authentication, and
// Controller re-runs them on every live snapshot.
package dashboard

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"momentum/internal/aggregate"
	"momentum/internal/bucket"
	"momentum/internal/classify"
	"momentum/internal/core"
	"momentum/internal/metrics"
	"momentum/internal/projection"
	"momentum/internal/render"
)

// Chart and list identifiers.
const (
	ChartIncomeExpense = "income-expense"
	ChartNetWorth      = "net-worth"
	ChartTimeFlow      = "time-flow"
	ChartDebtProgress  = "debt-progress"
	ChartScore         = "score"
	ChartGoalScores    = "goal-scores"
	ListActivity       = "activity"
	ListGoals          = "goals"

	SectionFinance    = "finance"
	SectionDebt       = "debt"
	SectionMotivation = "motivation"
)

// Presentation classes.
const (
	ClassPositive      = "positive"
	ClassNegative      = "negative"
	ClassNeutral       = "neutral"
	ClassZero          = "zero"
	ClassNotConfigured = "not-configured"
)

const (
	colorBlue   = "#3498db"
	colorRed    = "#e74c3c"
	colorYellow = "#f1c40f"
	colorGreen  = "#2ecc71"
	colorPurple = "#9b59b6"
)

var goalPalette = []string{colorPurple, colorBlue, colorGreen, "#e67e22", colorRed, "#1abc9c", colorYellow}

// Options selects how finance records are classified, combined and bucketed.
type Options struct {
	Table   *classify.Table
	Formula metrics.Formula
	Period  bucket.Granularity
	// Location evaluates week, month and year buckets. Nil means UTC.
	Location *time.Location
}

// DefaultOptions uses the default classifier scheme and formula with
// monthly buckets.
func DefaultOptions() Options {
	return Options{
		Table:   classify.Default(),
		Formula: metrics.DefaultFormula(),
		Period:  bucket.Month,
	}
}

func (o Options) withDefaults() Options {
	if o.Table == nil {
		o.Table = classify.Default()
	}
	if o.Formula.Name == "" {
		o.Formula = metrics.DefaultFormula()
	}
	if o.Period == "" {
		o.Period = bucket.Month
	}
	return o
}

// Window is an inclusive display range of calendar days. The zero Window
// shows every date that has data.
type Window struct {
	From, To time.Time
}

// LastDays is the window of n days ending at now. n <= 0 yields the zero Window.
func LastDays(now time.Time, n int) Window {
	if n <= 0 {
		return Window{}
	}
	return Window{From: now.AddDate(0, 0, -(n - 1)), To: now}
}

func (w Window) IsZero() bool { return w.From.IsZero() && w.To.IsZero() }

// Days returns the display dates: the window's day keys, or computed itself
// when the window is zero.
func (w Window) Days(computed []string) []string {
	if w.IsZero() {
		return computed
	}
	return bucket.DayRange(w.From, w.To)
}

var dayBucketer, _ = bucket.New(bucket.Day, time.UTC)

func dayKey(r core.Record) string { return dayBucketer.Key(r.Timestamp) }

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func signClass(d decimal.Decimal, zero string) string {
	switch d.Sign() {
	case 1:
		return ClassPositive
	case -1:
		return ClassNegative
	default:
		return zero
	}
}

func floats(ds ...decimal.Decimal) []float64 {
	return projection.Floats(ds)
}

// FinanceView is the finance dashboard for one period.
type FinanceView struct {
	Period  bucket.Granularity `json:"period"`
	Summary metrics.Summary    `json:"-"`
	Metrics []render.Metric    `json:"metrics"`
	Charts  []render.Chart     `json:"charts"`
}

// ComputeFinance derives the finance summary and its three charts from the
// records of the selected period. Nil settings count as zero.
func ComputeFinance(records []core.Record, settings *core.FixedSettings, opts Options) (FinanceView, error) {
	opts = opts.withDefaults()
	b, err := bucket.New(opts.Period, opts.Location)
	if err != nil {
		return FinanceView{}, err
	}
	agg := aggregate.New(opts.Table)
	sum := metrics.Derive(agg.Totals(records), settings, opts.Formula)

	view := FinanceView{
		Period:  opts.Period,
		Summary: sum,
		Metrics: []render.Metric{
			{Name: "Total Income", Value: money(sum.TotalIncome), Class: ClassPositive},
			{Name: "Total Expenses", Value: money(sum.TotalExpense), Class: ClassNegative},
			{Name: "Net Income (Income - Expenses)", Value: money(sum.NetFlow), Class: signClass(sum.NetFlow, ClassPositive)},
			{Name: "Total Savings", Value: money(sum.Savings), Class: ClassPositive},
			{Name: "Current Financial Balance", Value: money(sum.Balance), Class: signClass(sum.Balance, ClassNeutral)},
			{Name: "Remaining Balance", Value: money(metrics.Display(sum.RemainingBalance)), Class: ClassNeutral},
		},
	}

	view.Charts = append(view.Charts, render.Chart{
		ID:     ChartIncomeExpense,
		Kind:   render.KindBar,
		Labels: []string{"Total Income", "Total Expenses"},
		Datasets: []render.Dataset{{
			Label:     "Amount",
			Values:    floats(sum.TotalIncome, sum.TotalExpense),
			ColorHint: []string{colorBlue, colorRed},
		}},
	})

	view.Charts = append(view.Charts, render.Chart{
		ID:     ChartNetWorth,
		Kind:   render.KindDoughnut,
		Labels: []string{"Remaining Balance", "Savings", "Debt"},
		Datasets: []render.Dataset{{
			Label:     "Share",
			Values:    floats(metrics.Display(sum.RemainingBalance), metrics.Display(sum.Savings), metrics.Display(sum.Debt)),
			ColorHint: []string{colorBlue, colorYellow, colorRed},
		}},
	})

	buckets := agg.Bucketed(records, b)
	labels := make([]string, len(buckets))
	net := make([]float64, len(buckets))
	savings := make([]float64, len(buckets))
	for i, bk := range buckets {
		labels[i] = bk.Key
		net[i] = core.Float(bk.Cells.Get(classify.Income).Sub(bk.Cells.Get(classify.Expense)))
		savings[i] = core.Float(bk.Cells.Get(classify.Savings))
	}
	view.Charts = append(view.Charts, render.Chart{
		ID:     ChartTimeFlow,
		Kind:   render.KindLine,
		Labels: labels,
		Datasets: []render.Dataset{
			{Label: "Net Flow (Income - Expense)", Values: net, ColorHint: []string{colorGreen}},
			{Label: "Savings Change", Values: savings, ColorHint: []string{colorYellow}},
		},
	})
	return view, nil
}

// DebtView is the debt tracker. When Configured is false the metrics carry
// the not-configured class instead of zeros.
type DebtView struct {
	Configured    bool            `json:"configured"`
	Initial       decimal.Decimal `json:"initial"`
	Current       decimal.Decimal `json:"current"`
	RepaidPercent decimal.Decimal `json:"repaid_percent"`
	Metrics       []render.Metric `json:"metrics"`
	Chart         render.Chart    `json:"chart"`
}

// ComputeDebt builds the debt tracker. Each log entry holds the remaining
// debt after an event, so the chart shows the last value of each day carried
// forward across the window.
func ComputeDebt(status *core.DebtStatus, log []core.RepaymentLogEntry, window Window) DebtView {
	chart := render.Chart{ID: ChartDebtProgress, Kind: render.KindLine}
	if status == nil {
		return DebtView{
			Metrics: []render.Metric{
				{Name: "Initial Debt", Value: "Not configured", Class: ClassNotConfigured},
				{Name: "Current Debt", Value: "Not configured", Class: ClassNotConfigured},
				{Name: "Repaid", Value: "Not configured", Class: ClassNotConfigured},
			},
			Chart: chart,
		}
	}

	pct := metrics.RepaymentPercentage(status.InitialDebt, status.CurrentDebt)
	view := DebtView{
		Configured:    true,
		Initial:       status.InitialDebt,
		Current:       status.CurrentDebt,
		RepaidPercent: pct,
		Metrics: []render.Metric{
			{Name: "Initial Debt", Value: money(status.InitialDebt), Class: ClassNeutral},
			{Name: "Current Debt", Value: money(status.CurrentDebt), Class: signClass(status.CurrentDebt.Neg(), ClassPositive)},
			{Name: "Repaid", Value: pct.StringFixed(1) + "%", Class: ClassPositive},
		},
	}

	records := make([]core.Record, len(log))
	for i, e := range log {
		records[i] = e.AsRecord()
	}
	series := make(projection.Series)
	for _, r := range aggregate.SortByTime(records) {
		series[dayKey(r)] = r.Amount
	}
	computed := aggregate.Keys(records, dayKey)
	display := window.Days(computed)

	chart.Labels = display
	chart.Datasets = []render.Dataset{{
		Label:     "Remaining Debt",
		Values:    projection.Floats(projection.ProjectOne(series, computed, display)),
		ColorHint: []string{colorRed},
	}}
	view.Chart = chart
	return view
}

// MotivationView is the goal-tracking dashboard.
type MotivationView struct {
	TotalScore int64             `json:"total_score"`
	ScoreClass string            `json:"score_class"`
	Metrics    []render.Metric   `json:"metrics"`
	Score      render.Chart      `json:"score"`
	GoalScores render.Chart      `json:"goal_scores"`
	Activity   []render.ListItem `json:"activity"`
}

// ComputeMotivation folds motivation logs into a cumulative score. The fold
// runs over every log; window only selects the dates shown. Logs whose goal
// no longer exists are labelled with the title stored on the log, or a
// placeholder.
func ComputeMotivation(logs []core.MotivationLog, goals []core.Goal, window Window) MotivationView {
	titles := make(map[string]string, len(goals))
	for _, g := range goals {
		titles[g.ID] = g.Title
	}
	label := func(l core.MotivationLog) string {
		if t, ok := titles[l.GoalID]; ok && t != "" {
			return t
		}
		if l.GoalTitle != "" {
			return l.GoalTitle
		}
		return core.MissingGoalLabel
	}

	records := make([]core.Record, len(logs))
	goalLabels := make(map[string]string)
	var total int64
	for i, l := range logs {
		records[i] = l.AsRecord()
		total += l.Score
		goalLabels[l.GoalID] = label(l)
	}
	class := signClass(decimal.NewFromInt(total), ClassNeutral)

	computed := aggregate.Keys(records, dayKey)
	display := window.Days(computed)

	view := MotivationView{
		TotalScore: total,
		ScoreClass: class,
		Metrics:    []render.Metric{{Name: "Motivation Score", Value: fmt.Sprint(total), Class: class}},
		Score: render.Chart{
			ID:     ChartScore,
			Kind:   render.KindLine,
			Labels: display,
			Datasets: []render.Dataset{{
				Label:     "Cumulative Motivation Score",
				Values:    projection.Floats(projection.ProjectOne(projection.FromPoints(aggregate.Cumulative(records, dayKey)), computed, display)),
				ColorHint: []string{colorPurple},
			}},
		},
	}

	byGoal := make(map[string]projection.Series)
	for goal, points := range aggregate.CumulativeBy(records, dayKey, aggregate.ByRef) {
		byGoal[goal] = projection.FromPoints(points)
	}
	projected := projection.Project(byGoal, computed, display)
	goalIDs := make([]string, 0, len(projected))
	for id := range projected {
		goalIDs = append(goalIDs, id)
	}
	sort.Slice(goalIDs, func(i, j int) bool {
		a, b := goalLabels[goalIDs[i]], goalLabels[goalIDs[j]]
		if a != b {
			return a < b
		}
		return goalIDs[i] < goalIDs[j]
	})
	view.GoalScores = render.Chart{ID: ChartGoalScores, Kind: render.KindLine, Labels: display}
	for i, id := range goalIDs {
		view.GoalScores.Datasets = append(view.GoalScores.Datasets, render.Dataset{
			Label:     goalLabels[id],
			Values:    projection.Floats(projected[id]),
			ColorHint: []string{goalPalette[i%len(goalPalette)]},
		})
	}

	newest := make([]core.MotivationLog, len(logs))
	copy(newest, logs)
	sort.SliceStable(newest, func(i, j int) bool { return newest[i].Timestamp > newest[j].Timestamp })
	for _, l := range newest {
		view.Activity = append(view.Activity, activityItem(l, label(l)))
	}
	return view
}

func activityItem(l core.MotivationLog, goalLabel string) render.ListItem {
	score := fmt.Sprint(l.Score)
	if l.Score > 0 {
		score = "+" + score
	}
	notes := l.Notes
	if notes == "" {
		notes = core.EmptyNotesPlaceholder
	}
	return render.ListItem{
		ID:     l.ID,
		Title:  score,
		Detail: "[" + goalLabel + "] " + notes,
		Class:  signClass(decimal.NewFromInt(l.Score), ClassZero),
		When:   l.Timestamp,
	}
}

// ActiveGoals returns goals offered for new logs, oldest first.
func ActiveGoals(goals []core.Goal) []core.Goal {
	var out []core.Goal
	for _, g := range goals {
		if g.Active() {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// GoalItems renders goals as a list.
func GoalItems(goals []core.Goal) []render.ListItem {
	items := make([]render.ListItem, 0, len(goals))
	for _, g := range goals {
		done := 0
		for _, sg := range g.Subgoals {
			if sg.Status == core.GoalDone {
				done++
			}
		}
		item := render.ListItem{ID: g.ID, Title: g.Title, Class: string(g.Status), When: g.CreatedAt}
		if len(g.Subgoals) > 0 {
			item.Value = fmt.Sprintf("%d/%d", done, len(g.Subgoals))
		}
		items = append(items, item)
	}
	return items
}

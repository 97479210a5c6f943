package xlsx

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"momentum/internal/render"
)

func TestWorkbookRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "dashboard.xlsx")
	w := New(path)
	ctx := context.Background()

	chart := render.Chart{
		ID:     "income-expense",
		Kind:   render.KindBar,
		Labels: []string{"Income", "Expense"},
		Datasets: []render.Dataset{{
			Label:     "Amount",
			Values:    []float64{3100, 2500},
			ColorHint: []string{"#3498db", "#e74c3c"},
		}},
	}
	if err := w.RenderChart(ctx, chart); err != nil {
		t.Fatalf("RenderChart: %v", err)
	}
	if err := w.RenderMetrics(ctx, "finance", []render.Metric{{Name: "Net Flow", Value: "600.00", Class: "positive"}}); err != nil {
		t.Fatalf("RenderMetrics: %v", err)
	}
	if err := w.RenderList(ctx, "activity", []render.ListItem{{ID: "a", Title: "+3", Detail: "[Run] (No notes)"}}); err != nil {
		t.Fatalf("RenderList: %v", err)
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	for _, want := range []string{"chart income-expense", "finance", "activity"} {
		if !slices.Contains(sheets, want) {
			t.Errorf("sheets = %v, missing %q", sheets, want)
		}
	}
	if slices.Contains(sheets, "Sheet1") {
		t.Errorf("default sheet left behind: %v", sheets)
	}
	if v, _ := f.GetCellValue("chart income-expense", "A3"); v != "Expense" {
		t.Errorf("A3 = %q, want Expense", v)
	}
	if v, _ := f.GetCellValue("chart income-expense", "B2"); v != "3100" {
		t.Errorf("B2 = %q, want 3100", v)
	}
	if v, _ := f.GetCellValue("finance", "B2"); v != "600.00" {
		t.Errorf("finance B2 = %q", v)
	}
}

func TestRenderChartReplacesRows(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "x.xlsx"))
	ctx := context.Background()
	long := render.Chart{ID: "score", Kind: render.KindLine, Labels: []string{"a", "b", "c"},
		Datasets: []render.Dataset{{Label: "s", Values: []float64{1, 2, 3}}}}
	short := render.Chart{ID: "score", Kind: render.KindLine, Labels: []string{"a"},
		Datasets: []render.Dataset{{Label: "s", Values: []float64{9}}}}

	if err := w.RenderChart(ctx, long); err != nil {
		t.Fatal(err)
	}
	if err := w.RenderChart(ctx, short); err != nil {
		t.Fatal(err)
	}
	if v, _ := w.f.GetCellValue("chart score", "A4"); v != "" {
		t.Errorf("stale row survived redraw: A4 = %q", v)
	}
	if v, _ := w.f.GetCellValue("chart score", "B2"); v != "9" {
		t.Errorf("B2 = %q, want 9", v)
	}
}

func TestDestroyChart(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "x.xlsx"))
	ctx := context.Background()
	w.RenderMetrics(ctx, "finance", nil)
	w.RenderChart(ctx, render.Chart{ID: "score"})
	if err := w.DestroyChart(ctx, "score"); err != nil {
		t.Fatal(err)
	}
	if err := w.DestroyChart(ctx, "missing"); err != nil {
		t.Fatal(err)
	}
	if slices.Contains(w.Sheets(), "chart score") {
		t.Errorf("sheets = %v", w.Sheets())
	}
}

func TestSheetName(t *testing.T) {
	if got := SheetName("chart a/b:c"); got != "chart a-b-c" {
		t.Errorf("SheetName = %q", got)
	}
	if got := SheetName(strings.Repeat("x", 40)); len(got) != 31 {
		t.Errorf("len = %d, want 31", len(got))
	}
}

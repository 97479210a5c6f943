// Package xlsx renders dashboards into an Excel workbook. Each chart gets a
// worksheet with its data table and a native chart drawn from that table.
package xlsx

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"momentum/internal/render"
)

const maxSheetName = 31

// Workbook buffers renders in memory and writes the file on Flush.
type Workbook struct {
	path string

	mu sync.Mutex
	f  *excelize.File
}

var (
	_ render.Renderer  = (*Workbook)(nil)
	_ render.Destroyer = (*Workbook)(nil)
	_ render.Flusher   = (*Workbook)(nil)
)

// New returns a workbook that saves to path on Flush.
func New(path string) *Workbook {
	return &Workbook{path: path, f: excelize.NewFile()}
}

func (w *Workbook) RenderChart(_ context.Context, c render.Chart) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	sheet := SheetName("chart " + c.ID)
	if err := w.resetSheet(sheet); err != nil {
		return err
	}
	if err := w.writeRows(sheet, render.ChartTable(c)); err != nil {
		return err
	}
	if len(c.Labels) == 0 || len(c.Datasets) == 0 {
		return nil
	}
	anchor, _ := excelize.CoordinatesToCellName(len(c.Datasets)+3, 2)
	if err := w.f.AddChart(sheet, anchor, chartSpec(sheet, c)); err != nil {
		return fmt.Errorf("add chart %s: %w", c.ID, err)
	}
	return nil
}

func chartSpec(sheet string, c render.Chart) *excelize.Chart {
	ref := "'" + strings.ReplaceAll(sheet, "'", "''") + "'!"
	last := len(c.Labels) + 1
	var series []excelize.ChartSeries
	for i := range c.Datasets {
		col, _ := excelize.ColumnNumberToName(i + 2)
		s := excelize.ChartSeries{
			Name:       fmt.Sprintf("%s$%s$1", ref, col),
			Categories: fmt.Sprintf("%s$A$2:$A$%d", ref, last),
			Values:     fmt.Sprintf("%s$%s$2:$%s$%d", ref, col, col, last),
		}
		if color := strings.TrimPrefix(c.Datasets[i].Color(0), "#"); color != "" && c.Kind != render.KindDoughnut {
			s.Fill = excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1}
		}
		series = append(series, s)
	}
	return &excelize.Chart{
		Type:   chartType(c.Kind),
		Series: series,
		Title:  []excelize.RichTextRun{{Text: c.ID}},
		Legend: excelize.ChartLegend{Position: "bottom"},
	}
}

func chartType(k render.Kind) excelize.ChartType {
	switch k {
	case render.KindBar:
		return excelize.Col
	case render.KindDoughnut:
		return excelize.Doughnut
	default:
		return excelize.Line
	}
}

func (w *Workbook) RenderMetrics(_ context.Context, section string, metrics []render.Metric) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	sheet := SheetName(section)
	if err := w.resetSheet(sheet); err != nil {
		return err
	}
	return w.writeRows(sheet, render.MetricTable(metrics))
}

func (w *Workbook) RenderList(_ context.Context, listID string, items []render.ListItem) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	sheet := SheetName(listID)
	if err := w.resetSheet(sheet); err != nil {
		return err
	}
	if err := w.writeRows(sheet, render.ListTable(items)); err != nil {
		return err
	}
	w.f.SetColWidth(sheet, "B", "C", 30)
	return nil
}

func (w *Workbook) DestroyChart(_ context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	sheet := SheetName("chart " + id)
	if idx, _ := w.f.GetSheetIndex(sheet); idx == -1 {
		return nil
	}
	return w.f.DeleteSheet(sheet)
}

// Flush saves the workbook, replacing the file atomically.
func (w *Workbook) Flush(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	tmp := w.path + ".tmp"
	if err := w.f.SaveAs(tmp); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}

// WriteTo streams the current workbook.
func (w *Workbook) WriteTo(out io.Writer) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.WriteTo(out)
}

// Sheets lists worksheet names in workbook order.
func (w *Workbook) Sheets() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.GetSheetList()
}

// resetSheet recreates sheet empty. The default sheet is replaced on first
// use so the workbook never carries an empty "Sheet1".
func (w *Workbook) resetSheet(sheet string) error {
	if idx, _ := w.f.GetSheetIndex(sheet); idx != -1 {
		if len(w.f.GetSheetList()) == 1 {
			// excelize never deletes the last sheet; swap through a placeholder.
			if _, err := w.f.NewSheet("_tmp"); err != nil {
				return err
			}
			if err := w.f.DeleteSheet(sheet); err != nil {
				return err
			}
			if _, err := w.f.NewSheet(sheet); err != nil {
				return err
			}
			return w.f.DeleteSheet("_tmp")
		}
		if err := w.f.DeleteSheet(sheet); err != nil {
			return fmt.Errorf("delete sheet %s: %w", sheet, err)
		}
	}
	if _, err := w.f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	if idx, _ := w.f.GetSheetIndex("Sheet1"); idx != -1 && sheet != "Sheet1" {
		w.f.DeleteSheet("Sheet1")
	}
	return nil
}

func (w *Workbook) writeRows(sheet string, rows [][]any) error {
	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := w.f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// SheetName makes name a valid worksheet name.
func SheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '-'
		}
		return r
	}, name)
	if len([]rune(name)) > maxSheetName {
		name = string([]rune(name)[:maxSheetName])
	}
	return name
}

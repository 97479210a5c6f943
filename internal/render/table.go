package render

// ChartTable lays a chart out as a table: a header of dataset labels, then one
// row per chart label. Missing values are blank.
func ChartTable(c Chart) [][]any {
	header := []any{"label"}
	for _, d := range c.Datasets {
		header = append(header, d.Label)
	}
	rows := [][]any{header}
	for i, label := range c.Labels {
		row := []any{label}
		for _, d := range c.Datasets {
			if i < len(d.Values) {
				row = append(row, d.Values[i])
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func MetricTable(metrics []Metric) [][]any {
	rows := [][]any{{"metric", "value", "state"}}
	for _, m := range metrics {
		rows = append(rows, []any{m.Name, m.Value, m.Class})
	}
	return rows
}

func ListTable(items []ListItem) [][]any {
	rows := [][]any{{"id", "title", "detail", "value", "class"}}
	for _, it := range items {
		rows = append(rows, []any{it.ID, it.Title, it.Detail, it.Value, it.Class})
	}
	return rows
}

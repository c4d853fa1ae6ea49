package report

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/hed1ad/fraudguard/pkg/dataset"
)

// Preview writes the first n rows of the named columns as a text table.
// Unknown column names are skipped.
func Preview(w io.Writer, t *dataset.Table, columns []string, n int) {
	var keep []string
	for _, c := range columns {
		if t.Has(c) {
			keep = append(keep, c)
		}
	}
	head, err := t.Head(n).Select(keep...)
	if err != nil {
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(head.Columns)
	for _, row := range head.Rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		table.Append(record)
	}
	table.Render()
}

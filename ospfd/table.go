package main

import (
	"fmt"
	"strings"
)

// tabulate lays out one row per item under headers, padding every column
// to its widest cell.
func tabulate[T any](items []T, headers []string, f func(T) []string) ([]string, error) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	cells := make([][]string, len(items))

	for i, item := range items {
		cells[i] = f(item)

		if len(cells[i]) != len(headers) {
			return nil, fmt.Errorf("invalid number of columns for item %d", i)
		}

		for j, cell := range cells[i] {
			widths[j] = max(widths[j], len(cell))
		}
	}

	row := func(cols []string) string {
		var b strings.Builder
		for j, col := range cols {
			if j == len(cols)-1 {
				b.WriteString(col)
				break
			}
			fmt.Fprintf(&b, "%-*s", widths[j]+3, col)
		}
		return b.String()
	}

	separator := make([]string, len(headers))
	for i := range headers {
		separator[i] = strings.Repeat("-", widths[i])
	}

	table := make([]string, 0, len(items)+2)
	table = append(table, row(headers), row(separator))

	for _, cols := range cells {
		table = append(table, row(cols))
	}

	return table, nil
}

package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

var statusColors = map[string]text.Colors{
	"completed":   {text.FgGreen},
	"best_effort": {text.FgYellow},
	"cancelled":   {text.FgYellow},
	"failed":      {text.FgRed},
	"generating":  {text.FgBlue},
	"accepted":    {text.FgGreen},
	"aborted":     {text.FgRed},
}

// renderTable draws rows with a rounded border. When colorize is set, cells
// holding a known run status or attempt outcome are colored.
func renderTable(headers []string, rows [][]string, aligns []columnAlignment, colorize bool) string {
	if len(headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(toRow(headers, len(headers), nil))
	paint := func(cell string) any { return cell }
	if colorize {
		paint = func(cell string) any {
			if colors, ok := statusColors[cell]; ok {
				return colors.Sprint(cell)
			}
			return cell
		}
	}
	for _, row := range rows {
		tw.AppendRow(toRow(row, len(headers), paint))
	}

	configs := make([]table.ColumnConfig, len(headers))
	for i := range configs {
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if i < len(aligns) && aligns[i] == alignRight {
			configs[i].Align = text.AlignRight
		}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render() + "\n"
}

// toRow pads or truncates cells to width.
func toRow(cells []string, width int, paint func(string) any) table.Row {
	row := make(table.Row, width)
	for i := range row {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		if paint != nil {
			row[i] = paint(cell)
		} else {
			row[i] = cell
		}
	}
	return row
}

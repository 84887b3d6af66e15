// Package cliout renders the small tabular reports edc's status and
// doctor subcommands print (daemon reachability, environment hints,
// open sessions) in a consistent, borderless style.
package cliout

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// KeyValueTable prints a borderless two-column report, one row per pair.
func KeyValueTable(w io.Writer, rows [][2]string) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, row := range rows {
		table.Append([]string{row[0], row[1]})
	}
	table.Render()
}

// Section prints a labeled table with a header row, for reports with more
// than two columns (e.g. open sessions: id, path, last touch).
func Section(w io.Writer, headers []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoFormatHeaders(true)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
}

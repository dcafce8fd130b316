package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/nodegraph/provisioner/internal/provision"
)

// KeyValueTable renders a two column table
type KeyValueTable struct {
	writer  io.Writer
	rows    [][2]string
	noColor bool
}

// NewKeyValueTable creates a new key-value table
func NewKeyValueTable(w io.Writer, noColor bool) *KeyValueTable {
	return &KeyValueTable{writer: w, noColor: noColor}
}

// AddRow adds a key-value pair to the table
func (t *KeyValueTable) AddRow(key, value string) {
	t.rows = append(t.rows, [2]string{key, value})
}

// Render renders the key-value table
func (t *KeyValueTable) Render() {
	width := 0
	for _, row := range t.rows {
		if len(row[0]) > width {
			width = len(row[0])
		}
	}

	cyan := color.New(color.FgCyan)
	if t.noColor {
		cyan.DisableColor()
	}
	for _, row := range t.rows {
		cyan.Fprint(t.writer, padRight(row[0]+":", width+1))
		fmt.Fprintf(t.writer, " %s\n", row[1])
	}
}

// padRight pads a string with spaces on the right to reach the target width
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// RenderReport prints the status line and summary of a provisioning run
func RenderReport(w io.Writer, report *provision.Report, noColor bool) {
	WriteSuccess(w, fmt.Sprintf("Provisioned deployment %s", report.Deployment), noColor)

	table := NewKeyValueTable(w, noColor)
	table.AddRow("Run", report.RunID)
	table.AddRow("Types", fmt.Sprintf("%d (%s)", len(report.Types), strings.Join(report.Types, ", ")))
	table.AddRow("Predicates", fmt.Sprintf("%d", report.Predicates))
	table.AddRow("Schema digest", report.Digest)
	table.AddRow("Application", report.ApplicationID)
	table.AddRow("Bootstrap user", report.Username)
	table.AddRow("Duration", report.Duration.String())
	table.Render()
}

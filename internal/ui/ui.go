// Package ui renders the human-readable run report.
//
// Everything here returns strings; nothing writes to a terminal directly.
// The cli package decides where the output goes, which keeps the report
// usable in tests and when stdout is redirected. lipgloss drops the colors
// by itself when the output is not a terminal.
package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/shinji-kodama/mkhosts/internal/model"
)

// Palette, as ANSI 256 color codes.
var (
	purple = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")
)

// Styles shared by the report. AccentStyle marks table headers; the
// others color status words and labels.
var (
	AccentStyle  = lipgloss.NewStyle().Foreground(purple)
	SuccessStyle = lipgloss.NewStyle().Foreground(green)
	ErrorStyle   = lipgloss.NewStyle().Foreground(red)
	WarnStyle    = lipgloss.NewStyle().Foreground(yellow)
	MutedStyle   = lipgloss.NewStyle().Foreground(dim)
	LabelStyle   = lipgloss.NewStyle().Foreground(dim)
)

// Muted renders s in the dim label color.
func Muted(s string) string { return MutedStyle.Render(s) }

// Message helpers return single-line strings without a trailing newline.

// SuccessMsg prefixes a check mark.
func SuccessMsg(format string, a ...any) string {
	return SuccessStyle.Render("✓") + " " + fmt.Sprintf(format, a...)
}

// WarnMsg prefixes an exclamation mark.
func WarnMsg(format string, a ...any) string {
	return WarnStyle.Render("!") + " " + fmt.Sprintf(format, a...)
}

// ErrorMsg prefixes a cross.
func ErrorMsg(format string, a ...any) string {
	return ErrorStyle.Render("✗") + " " + fmt.Sprintf(format, a...)
}

// Pair holds a key-value pair for KeyValues output.
type Pair struct {
	key   string
	value string
}

// KV creates a key-value pair.
func KV(key, value string) Pair {
	return Pair{key: key, value: value}
}

// KeyValues renders aligned "key:  value" lines with a trailing newline.
func KeyValues(indent string, pairs ...Pair) string {
	// Pad every key to the longest one so the values line up.
	maxLen := 0
	for _, p := range pairs {
		if len(p.key) > maxLen {
			maxLen = len(p.key)
		}
	}

	var sb strings.Builder
	for _, p := range pairs {
		label := fmt.Sprintf("%-*s", maxLen+1, p.key+":")
		sb.WriteString(indent + LabelStyle.Render(label) + " " + p.value + "\n")
	}
	return sb.String()
}

// Table renders a styled table with rounded borders.
func Table(headers []string, rows [][]string) string {
	headerStyle := AccentStyle.
		Bold(true).
		Padding(0, 1)

	// Alternate rows are dimmed to keep long target lists readable.
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	oddStyle := cellStyle.Foreground(dim)
	evenStyle := cellStyle

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(faint)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row%2 == 0:
				return evenStyle
			default:
				return oddStyle
			}
		}).
		Headers(headers...).
		Rows(rows...)

	return t.String()
}

// EntriesTable lists host entries as ADDRESS/HOSTNAME rows.
func EntriesTable(entries []model.HostEntry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Address, e.Hostname})
	}
	return Table([]string{"ADDRESS", "HOSTNAME"}, rows)
}

// ResultsTable lists one row per distribution target.
func ResultsTable(results []model.HostResult) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := SuccessStyle.Render("ok")
		if !r.OK() {
			status = ErrorStyle.Render("failed")
		}
		// -1 means no command ran, e.g. the target could not be reached.
		exit := "-"
		if r.ExitStatus >= 0 {
			exit = strconv.Itoa(r.ExitStatus)
		}
		rows = append(rows, []string{r.Target, r.Kind, r.Stage.String(), exit, status, r.Error()})
	}
	return Table([]string{"TARGET", "KIND", "STAGE", "EXIT", "STATUS", "ERROR"}, rows)
}

// Report renders the full text report of a run:
//   - a summary of the name prefix and address counts
//   - the working file entries and, in a local mode, the local entries
//   - one row per target, when any target was processed
//   - a closing status line
func Report(r *model.RunReport) string {
	var sb strings.Builder

	sb.WriteString(KeyValues("",
		KV("Name prefix", r.NamePrefix),
		KV("Private", strconv.Itoa(len(r.Addresses.Private))),
		KV("Public", strconv.Itoa(len(r.Addresses.Public))),
	))

	if len(r.Entries) > 0 {
		sb.WriteString("\n" + EntriesTable(r.Entries) + "\n")
	}
	if len(r.LocalEntries) > 0 {
		sb.WriteString("\n" + Muted("Local hosts file") + "\n")
		sb.WriteString(EntriesTable(r.LocalEntries) + "\n")
	}
	if len(r.Results) > 0 {
		sb.WriteString("\n" + ResultsTable(r.Results) + "\n")
	}

	// The status line distinguishes full success, total failure and a
	// partial run. Any failure also makes the run exit with code 2.
	sb.WriteString("\n")
	failed := len(r.Failed())
	switch {
	case len(r.Results) == 0:
		sb.WriteString(SuccessMsg("%d entries generated", len(r.Entries)+len(r.LocalEntries)))
	case failed == 0:
		sb.WriteString(SuccessMsg("%d of %d targets updated", len(r.Results), len(r.Results)))
	case failed == len(r.Results):
		sb.WriteString(ErrorMsg("all %d targets failed", failed))
	default:
		sb.WriteString(WarnMsg("%d of %d targets updated, %d failed",
			len(r.Results)-failed, len(r.Results), failed))
	}
	sb.WriteString("\n")
	return sb.String()
}

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"switchd/internal/domain"
	"switchd/internal/usecase/catalog"
)

var (
	colorOn    = lipgloss.Color("42")
	colorOff   = lipgloss.Color("245")
	colorError = lipgloss.Color("196")
	colorWarn  = lipgloss.Color("214")
	colorTitle = lipgloss.Color("63")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	onStyle     = lipgloss.NewStyle().Foreground(colorOn).Bold(true)
	offStyle    = lipgloss.NewStyle().Foreground(colorOff)
	errorStyle  = lipgloss.NewStyle().Foreground(colorError)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarn)
	dimStyle    = lipgloss.NewStyle().Foreground(colorOff)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func stateLabel(s domain.SwitchSnapshot) string {
	if s.ControlType == domain.ControlButton {
		return dimStyle.Render("button")
	}
	if s.Active {
		return onStyle.Render("● on")
	}
	return offStyle.Render("○ off")
}

func renderSwitches(list []domain.SwitchSnapshot) string {
	if len(list) == 0 {
		return dimStyle.Render("no switches configured")
	}
	t := newTable("ID", "NAME", "STATE", "COMMANDS")
	for _, s := range list {
		roles := make([]string, 0, len(s.Commands))
		for _, c := range s.Commands {
			roles = append(roles, string(c.Role))
		}
		t.Row(s.ID, s.Name, stateLabel(s), strings.Join(roles, ","))
	}
	return t.String()
}

func renderToggle(id string, controlType domain.ControlType, active bool, actionErr string) string {
	var b strings.Builder
	switch {
	case controlType == domain.ControlButton:
		fmt.Fprintf(&b, "%s %s", titleStyle.Render(id), dimStyle.Render("ran"))
	case active:
		fmt.Fprintf(&b, "%s is now %s", titleStyle.Render(id), onStyle.Render("on"))
	default:
		fmt.Fprintf(&b, "%s is now %s", titleStyle.Render(id), offStyle.Render("off"))
	}
	if actionErr != "" {
		fmt.Fprintf(&b, "\n%s %s", errorStyle.Render("command failed:"), actionErr)
	}
	return b.String()
}

func renderRefresh(res catalog.RefreshResult) string {
	state := offStyle.Render("off")
	if res.Active {
		state = onStyle.Render("on")
	}
	note := dimStyle.Render("(unchanged)")
	if res.Changed {
		note = warnStyle.Render("(changed)")
	}
	return fmt.Sprintf("%s is %s %s", titleStyle.Render(res.SwitchID), state, note)
}

func renderTest(res catalog.TestResult) string {
	var b strings.Builder
	diag := dimStyle.Render(string(res.Diagnostic))
	switch res.Diagnostic {
	case domain.DiagnosticSucceeded:
		diag = onStyle.Render(string(res.Diagnostic))
	case domain.DiagnosticFailed:
		diag = errorStyle.Render(string(res.Diagnostic))
	}
	fmt.Fprintf(&b, "%s %s: %s\n", titleStyle.Render(res.SwitchID), res.Role, diag)
	if res.Output != "" {
		b.WriteString(lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorOff).
			Padding(0, 1).
			Render(res.Output))
		b.WriteString("\n")
	}
	if res.Error != "" {
		fmt.Fprintf(&b, "%s %s\n", errorStyle.Render("error:"), res.Error)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderHistory(recs []domain.HistoryRecord) string {
	if len(recs) == 0 {
		return dimStyle.Render("no history")
	}
	t := newTable("TIME", "ACTION", "ROLE", "RESULT")
	for _, r := range recs {
		result := onStyle.Render("ok")
		if !r.OK {
			result = errorStyle.Render("failed")
			if r.Error != "" {
				result += " " + r.Error
			}
		}
		t.Row(r.CreatedAt.Local().Format(time.DateTime), string(r.Action), string(r.Role), result)
	}
	return t.String()
}

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/keyglow/internal/model"
)

const (
	nameWidth  = 22
	stateWidth = 15
)

// View renders the current state of the model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{m.renderHeader()}
	if m.errMsg != "" {
		sections = append(sections, errorBannerStyle.Render(m.errMsg))
	}
	sections = append(sections, m.renderTable(), m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	active, failing, disabled := m.Counts()
	summary := fmt.Sprintf("%s %d active  %s %d failing  %s %d disabled",
		StateIcon("initialized"), active,
		StateIcon("error"), failing,
		StateIcon("disabled"), disabled)
	if m.loading {
		summary += "  " + m.spinner.View()
	}
	if !m.updatedAt.IsZero() {
		summary += "  " + idleStyle.Render("updated "+m.updatedAt.Local().Format("15:04:05"))
	}
	return headerStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("keyglow devices"), summary))
}

func (m Model) renderTable() string {
	if len(m.devices) == 0 {
		return idleStyle.Italic(true).Render("No devices reported by the daemon.")
	}

	columns := fmt.Sprintf("  %-*s %-*s %8s %10s %10s",
		nameWidth, "DEVICE", stateWidth, "STATE", "FAILURES", "UPDATE MS", "FRAMES")
	rows := []string{columnStyle.Render(columns)}
	for i, d := range m.devices {
		rows = append(rows, m.renderRow(d, i == m.cursor))
		if i == m.cursor && d.LastError != "" {
			rows = append(rows, rowStyle.Render(disabledStyle.Render("  last error: "+truncate(d.LastError, m.width-8))))
		}
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderRow(d model.DeviceStatus, selected bool) string {
	state := d.State
	if m.pending[d.Name] {
		state += "*"
	}
	line := fmt.Sprintf("%s %-*s %s %8d %10.1f %10d",
		StateIcon(d.State),
		nameWidth-2, truncate(d.Name, nameWidth-2),
		StateStyle(d.State).Width(stateWidth).Render(state),
		d.ConsecutiveFailures,
		d.LastUpdateMs,
		d.FramesApplied,
	)
	if selected {
		return selectedStyle.Render(line)
	}
	return rowStyle.Render(line)
}

func (m Model) renderFooter() string {
	help := "↑/↓ select • r refresh • q quit"
	if !m.readOnly {
		help = "↑/↓ select • e enable • d disable • r refresh • q quit"
	}
	return footerStyle.Render(help)
}

func truncate(s string, width int) string {
	if width <= 1 || lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if len(r) > width-1 {
		r = r[:width-1]
	}
	return string(r) + "…"
}

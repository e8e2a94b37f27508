package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/keyglow/internal/device"
)

var (
	primaryColor = lipgloss.Color("99")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("226")
	errorColor   = lipgloss.Color("196")
	mutedColor   = lipgloss.Color("245")
	accentColor  = lipgloss.Color("212")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)

	headerStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(mutedColor).
			MarginBottom(1)

	columnStyle   = lipgloss.NewStyle().Bold(true).Foreground(mutedColor)
	rowStyle      = lipgloss.NewStyle().PaddingLeft(2)
	selectedStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(primaryColor).
			PaddingLeft(1)

	activeStyle   = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	disabledStyle = lipgloss.NewStyle().Foreground(errorColor)
	idleStyle     = lipgloss.NewStyle().Foreground(mutedColor)

	errorBannerStyle = lipgloss.NewStyle().
				Foreground(errorColor).
				Bold(true).
				BorderStyle(lipgloss.ThickBorder()).
				BorderForeground(errorColor).
				Padding(0, 1).
				MarginBottom(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(mutedColor).
			MarginTop(1)

	spinnerStyle = lipgloss.NewStyle().Foreground(primaryColor)
)

// StateStyle returns the style used for a device state.
func StateStyle(state string) lipgloss.Style {
	switch device.State(state) {
	case device.StateInitialized, device.StateUpdating:
		return activeStyle
	case device.StateError:
		return errorStyle
	case device.StateDisabled:
		return disabledStyle
	default:
		return idleStyle
	}
}

// StateIcon returns the glyph shown before a device name.
func StateIcon(state string) string {
	switch device.State(state) {
	case device.StateInitialized, device.StateUpdating:
		return activeStyle.Render("●")
	case device.StateError:
		return errorStyle.Render("▲")
	case device.StateDisabled:
		return disabledStyle.Render("○")
	case device.StateInitializing, device.StateShuttingDown:
		return idleStyle.Render("…")
	default:
		return idleStyle.Render("·")
	}
}

package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles Bubbletea messages and updates model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pollMsg:
		m.loading = true
		return m, fetchCmd(m.source, m.interval)

	case DevicesMsg:
		m.loading = false
		if msg.Err != nil {
			m.errMsg = fmt.Sprintf("poll failed: %v", msg.Err)
		} else {
			m.devices = msg.Snapshot.Devices
			m.updatedAt = msg.Snapshot.GeneratedAt
			if m.errMsg != "" && !m.hasPending() {
				m.errMsg = ""
			}
			if m.cursor >= len(m.devices) {
				m.cursor = max(len(m.devices)-1, 0)
			}
		}
		return m, pollCmd(m.interval)

	case ToggledMsg:
		delete(m.pending, msg.Device)
		if msg.Err != nil {
			verb := "disable"
			if msg.Enabled {
				verb = "enable"
			}
			m.errMsg = fmt.Sprintf("%s %s: %v", verb, msg.Device, msg.Err)
		}
		return m, fetchCmd(m.source, m.interval)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "r":
		m.loading = true
		return m, fetchCmd(m.source, m.interval)
	case "e", "d":
		if m.readOnly {
			return m, nil
		}
		dev, ok := m.Selected()
		if !ok || m.pending[dev.Name] {
			return m, nil
		}
		enable := msg.String() == "e"
		m.pending[dev.Name] = true
		m.errMsg = ""
		return m, toggleCmd(m.source, dev.Name, enable)
	}
	return m, nil
}

func (m Model) hasPending() bool {
	return len(m.pending) > 0
}

package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/keyglow/internal/model"
)

// DevicesMsg carries the result of one poll.
type DevicesMsg struct {
	Snapshot model.CurrentDevices
	Err      error
}

// ToggledMsg reports the outcome of an enable or disable request.
type ToggledMsg struct {
	Device  string
	Enabled bool
	Err     error
}

type pollMsg struct{}

func fetchCmd(source Source, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		snap, err := source.Devices(ctx)
		return DevicesMsg{Snapshot: snap, Err: err}
	}
}

func pollCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg { return pollMsg{} })
}

// toggleTimeout covers a device handshake triggered by enable.
const toggleTimeout = 30 * time.Second

func toggleCmd(source Source, name string, enable bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), toggleTimeout)
		defer cancel()
		var err error
		if enable {
			err = source.EnableDevice(ctx, name)
		} else {
			err = source.DisableDevice(ctx, name)
		}
		return ToggledMsg{Device: name, Enabled: enable, Err: err}
	}
}

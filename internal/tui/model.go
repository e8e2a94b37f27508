// Package tui implements the live device monitor shown by `keyglow watch`.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/keyglow/internal/device"
	"github.com/alexisbeaulieu97/keyglow/internal/model"
)

// DefaultInterval is the polling period of the monitor.
const DefaultInterval = time.Second

// Source provides device snapshots and accepts enable/disable requests.
// ipc.Client satisfies it.
type Source interface {
	Devices(ctx context.Context) (model.CurrentDevices, error)
	EnableDevice(ctx context.Context, name string) error
	DisableDevice(ctx context.Context, name string) error
}

// Model is the Bubbletea state of the monitor.
type Model struct {
	source   Source
	interval time.Duration
	readOnly bool

	devices   []model.DeviceStatus
	updatedAt time.Time
	cursor    int
	loading   bool
	pending   map[string]bool
	errMsg    string
	quitting  bool

	spinner spinner.Model
	width   int
	height  int
}

// NewModel creates a monitor polling source every interval. readOnly hides
// the enable and disable actions.
func NewModel(source Source, interval time.Duration, readOnly bool) Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return Model{
		source:   source,
		interval: interval,
		readOnly: readOnly,
		pending:  make(map[string]bool),
		loading:  true,
		spinner:  s,
		width:    80,
		height:   24,
	}
}

// Init starts the spinner and the first fetch.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, fetchCmd(m.source, m.interval))
}

// Devices returns the rows currently shown.
func (m Model) Devices() []model.DeviceStatus {
	return m.devices
}

// Cursor returns the selected row.
func (m Model) Cursor() int {
	return m.cursor
}

// Selected returns the device under the cursor.
func (m Model) Selected() (model.DeviceStatus, bool) {
	if m.cursor < 0 || m.cursor >= len(m.devices) {
		return model.DeviceStatus{}, false
	}
	return m.devices[m.cursor], true
}

// Counts tallies devices as active, failing or disabled.
func (m Model) Counts() (active, failing, disabled int) {
	for _, d := range m.devices {
		switch device.State(d.State) {
		case device.StateError:
			failing++
		case device.StateDisabled:
			disabled++
		default:
			if device.State(d.State).Active() {
				active++
			}
		}
	}
	return active, failing, disabled
}

func (m *Model) moveCursor(delta int) {
	if len(m.devices) == 0 {
		m.cursor = 0
		return
	}
	m.cursor = (m.cursor + delta + len(m.devices)) % len(m.devices)
}

// Package manager wires discovery, the variable registry, the scheduler and
// the persisted device configuration into the service the IPC layer talks to.
package manager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/keyglow/internal/color"
	"github.com/alexisbeaulieu97/keyglow/internal/config"
	"github.com/alexisbeaulieu97/keyglow/internal/device"
	"github.com/alexisbeaulieu97/keyglow/internal/events"
	"github.com/alexisbeaulieu97/keyglow/internal/instrument"
	"github.com/alexisbeaulieu97/keyglow/internal/ipc"
	"github.com/alexisbeaulieu97/keyglow/internal/logger"
	"github.com/alexisbeaulieu97/keyglow/internal/model"
	"github.com/alexisbeaulieu97/keyglow/internal/scheduler"
	"github.com/alexisbeaulieu97/keyglow/internal/variables"
	kgerrors "github.com/alexisbeaulieu97/keyglow/pkg/errors"
)

// reloadTimeout bounds enable/disable work triggered by an external config
// edit.
const reloadTimeout = 30 * time.Second

// Options collects the collaborators of a Manager.
type Options struct {
	Catalog   *device.Catalog
	Store     *config.Store
	Scheduler scheduler.Options
	Publisher events.Publisher
	Logger    *logger.Logger
}

// Manager is the device manager service. It implements ipc.Backend.
type Manager struct {
	log   *logger.Logger
	vars  *variables.Registry
	store *config.Store
	sched *scheduler.Scheduler
	pub   events.Publisher
	stats *instrument.StatsRecorder

	// reloadMu serializes config reloads against each other.
	reloadMu sync.Mutex

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// New discovers every backend in the catalog, applies the persisted device
// configuration and prepares the scheduler. Devices are not initialized
// until Start.
func New(opts Options) (*Manager, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("manager: catalog is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("manager: config store is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	pub := opts.Publisher
	if pub == nil {
		pub = events.NewLoggingPublisher(log)
	}

	m := &Manager{
		log:      log.WithFields(map[string]any{"component": "manager"}),
		vars:     variables.New(),
		store:    opts.Store,
		pub:      pub,
		stats:    instrument.NewStatsRecorder(),
		shutdown: make(chan struct{}),
	}

	cfg := opts.Store.Snapshot()
	if err := m.vars.Load(cfg.Variables); err != nil {
		m.log.WarnErr(err, "some persisted variables could not be applied")
	}

	schedOpts := opts.Scheduler
	if schedOpts.Logger == nil {
		schedOpts.Logger = log
	}
	schedOpts.Recorder = instrument.Multi(schedOpts.Recorder, m.stats)
	userHook := schedOpts.OnStateChange
	schedOpts.OnStateChange = func(c scheduler.StateChange) {
		m.onStateChange(c)
		if userHook != nil {
			userHook(c)
		}
	}
	m.sched = scheduler.New(schedOpts)

	for _, d := range device.Discover(opts.Catalog, m.vars, log) {
		if d.Err != nil {
			m.sched.AddUnavailable(d.Descriptor.Name, d.Descriptor.Info, d.Err)
			continue
		}
		if err := m.sched.Add(d.Device, !cfg.IsDisabled(d.Descriptor.Name)); err != nil {
			return nil, err
		}
	}
	m.sched.SetMapping(cfg.Mapping)

	m.vars.OnChange(m.onVariableChange)
	return m, nil
}

// Start initializes every enabled device.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.sched.Start(ctx); err != nil {
		return err
	}
	snap := m.sched.Snapshot()
	m.log.WithFields(map[string]any{"devices": len(snap.Devices)}).Info("device manager started")
	return nil
}

// Watch applies external edits of the device config until ctx is done.
func (m *Manager) Watch(ctx context.Context) error {
	return config.Watch(ctx, m.store, m.log, func(cfg model.DeviceConfig) {
		reloadCtx, cancel := context.WithTimeout(ctx, reloadTimeout)
		defer cancel()
		m.applyConfig(reloadCtx, cfg)
	})
}

// Stop shuts every device down.
func (m *Manager) Stop(ctx context.Context) error {
	err := m.sched.Stop(ctx)
	if err != nil {
		m.log.WarnErr(err, "device shutdown finished with errors")
	}
	return err
}

// ShutdownRequested is closed once a client asked the daemon to exit.
func (m *Manager) ShutdownRequested() <-chan struct{} {
	return m.shutdown
}

// Registry exposes the variable registry.
func (m *Manager) Registry() *variables.Registry {
	return m.vars
}

// SetFrame implements ipc.Backend.
func (m *Manager) SetFrame(_ context.Context, frame color.KeyColorMap, forced bool) error {
	return m.sched.Dispatch(frame, forced)
}

// Devices implements ipc.Backend.
func (m *Manager) Devices(context.Context) model.CurrentDevices {
	return m.sched.Snapshot()
}

// Variables implements ipc.Backend. An empty device lists every device.
func (m *Manager) Variables(_ context.Context, name string) ([]ipc.DeviceVariables, error) {
	names := m.sched.Names()
	if name != "" {
		if !slices.Contains(names, name) {
			return nil, fmt.Errorf("%s: %w", name, scheduler.ErrUnknownDevice)
		}
		names = []string{name}
	}

	out := make([]ipc.DeviceVariables, 0, len(names))
	for _, n := range names {
		out = append(out, ipc.DeviceVariables{Device: n, Variables: m.vars.Describe(n)})
	}
	return out, nil
}

// SetVariable implements ipc.Backend. The value is persisted through the
// registry change hook.
func (m *Manager) SetVariable(_ context.Context, name, variable string, value any) error {
	return m.vars.Set(name, variable, value)
}

// ResetVariable implements ipc.Backend.
func (m *Manager) ResetVariable(_ context.Context, name, variable string) error {
	return m.vars.Reset(name, variable)
}

// EnableDevice implements ipc.Backend. The device stays enabled in the
// persisted config even when its handshake fails.
func (m *Manager) EnableDevice(ctx context.Context, name string) error {
	return m.setEnabled(ctx, name, true)
}

// DisableDevice implements ipc.Backend.
func (m *Manager) DisableDevice(ctx context.Context, name string) error {
	return m.setEnabled(ctx, name, false)
}

func (m *Manager) setEnabled(ctx context.Context, name string, enabled bool) error {
	var opErr error
	if enabled {
		opErr = m.sched.Enable(ctx, name)
	} else {
		opErr = m.sched.Disable(ctx, name)
	}
	if errors.Is(opErr, scheduler.ErrUnknownDevice) || errors.Is(opErr, scheduler.ErrUnavailable) ||
		errors.Is(opErr, scheduler.ErrStopped) {
		return opErr
	}

	if err := m.store.Update(func(cfg *model.DeviceConfig) bool {
		return cfg.SetDisabled(name, !enabled)
	}); err != nil {
		m.log.WithDevice(name).WarnErr(err, "failed to persist device state")
		opErr = errors.Join(opErr, err)
	}

	eventType := events.EventDeviceDisabled
	if enabled {
		eventType = events.EventDeviceEnabled
	}
	m.publish(events.New(eventType, "device", name))
	return opErr
}

// Mapping implements ipc.Backend.
func (m *Manager) Mapping(context.Context) model.DeviceMappingConfig {
	return m.store.Snapshot().Mapping
}

// SetMapping implements ipc.Backend. The new table applies to the next
// frame.
func (m *Manager) SetMapping(_ context.Context, mapping model.DeviceMappingConfig) error {
	for name := range mapping {
		if name == "" {
			return fmt.Errorf("mapping: device name is empty")
		}
	}

	if err := m.store.Update(func(cfg *model.DeviceConfig) bool {
		cfg.Mapping = mapping.Clone()
		return true
	}); err != nil {
		return err
	}
	m.sched.SetMapping(mapping)
	m.publish(events.New(events.EventMappingChanged, "devices", len(mapping)))
	return nil
}

// Stats implements ipc.Backend.
func (m *Manager) Stats(context.Context) []instrument.Stats {
	return m.stats.All()
}

// RequestShutdown implements ipc.Backend.
func (m *Manager) RequestShutdown(context.Context) error {
	m.shutdownOnce.Do(func() {
		m.publish(events.New(events.EventShutdownRequested))
		close(m.shutdown)
	})
	return nil
}

// applyConfig brings the live state in line with a reloaded config.
func (m *Manager) applyConfig(ctx context.Context, cfg model.DeviceConfig) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	for dev, vars := range m.vars.Values() {
		for name := range vars {
			if _, kept := cfg.Variables[dev][name]; kept {
				continue
			}
			if err := m.vars.Reset(dev, name); err != nil && !errors.Is(err, variables.ErrUnregisteredVariable) {
				m.log.WithDevice(dev).WithFields(map[string]any{"variable": name}).WarnErr(err, "failed to reset variable")
			}
		}
	}
	if err := m.vars.Load(cfg.Variables); err != nil {
		m.log.WarnErr(err, "some reloaded variables could not be applied")
	}

	m.sched.SetMapping(cfg.Mapping)

	snap := m.sched.Snapshot()
	for _, st := range snap.Devices {
		wantEnabled := !cfg.IsDisabled(st.Name)
		if st.Enabled == wantEnabled {
			continue
		}
		var err error
		if wantEnabled {
			err = m.sched.Enable(ctx, st.Name)
		} else {
			err = m.sched.Disable(ctx, st.Name)
		}
		if err != nil && !errors.Is(err, scheduler.ErrUnavailable) {
			m.log.WithDevice(st.Name).WarnErr(err, "failed to apply reloaded device state")
		}
	}

	m.publish(events.New(events.EventConfigReloaded,
		"disabled", len(cfg.DisabledDevices), "mapped", len(cfg.Mapping)))
}

func (m *Manager) onVariableChange(c variables.Change) {
	m.publish(events.New(events.EventVariableChanged, "device", c.Device, "name", c.Name, "value", c.Value))

	values := m.vars.Values()
	err := m.store.Update(func(cfg *model.DeviceConfig) bool {
		if sameValues(cfg.Variables, values) {
			return false
		}
		cfg.Variables = values
		return true
	})
	if err != nil {
		m.log.WithDevice(c.Device).WithFields(map[string]any{"variable": c.Name}).WarnErr(err, "failed to persist variable")
	}
}

func (m *Manager) onStateChange(c scheduler.StateChange) {
	kv := []any{"device", c.Device, "from", string(c.From), "to", string(c.To)}
	if c.Err != nil {
		kv = append(kv, "error", c.Err.Error())
	}
	if kind, ok := kgerrors.KindOf(c.Err); ok {
		kv = append(kv, "kind", string(kind))
	}
	m.publish(events.New(events.EventDeviceStateChanged, kv...))
}

func (m *Manager) publish(e events.Event) {
	if err := m.pub.Publish(context.Background(), e); err != nil {
		m.log.WarnErr(err, "failed to publish event")
	}
}

// sameValues compares persisted and live variables by their printed form,
// since YAML and the registry may hold different numeric types.
func sameValues(a, b map[string]map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for dev, av := range a {
		bv, ok := b[dev]
		if !ok || len(av) != len(bv) {
			return false
		}
		for name, v := range av {
			w, ok := bv[name]
			if !ok || fmt.Sprint(v) != fmt.Sprint(w) {
				return false
			}
		}
	}
	return true
}

var _ ipc.Backend = (*Manager)(nil)

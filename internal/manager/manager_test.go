package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/keyglow/internal/color"
	"github.com/alexisbeaulieu97/keyglow/internal/config"
	"github.com/alexisbeaulieu97/keyglow/internal/device"
	"github.com/alexisbeaulieu97/keyglow/internal/device/devicetest"
	"github.com/alexisbeaulieu97/keyglow/internal/events"
	"github.com/alexisbeaulieu97/keyglow/internal/instrument"
	"github.com/alexisbeaulieu97/keyglow/internal/ipc"
	"github.com/alexisbeaulieu97/keyglow/internal/logger"
	"github.com/alexisbeaulieu97/keyglow/internal/model"
	"github.com/alexisbeaulieu97/keyglow/internal/scheduler"
	"github.com/alexisbeaulieu97/keyglow/internal/variables"
	kgerrors "github.com/alexisbeaulieu97/keyglow/pkg/errors"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var red = color.RGB(255, 0, 0)

type fixture struct {
	m     *Manager
	store *config.Store
	path  string
	kbd   *devicetest.Fake
	strip *devicetest.Fake
	pub   *events.LoggingPublisher
}

func newFixture(t *testing.T, persisted string) *fixture {
	t.Helper()

	path := filepath.Join(t.TempDir(), "devices.yaml")
	if persisted != "" {
		require.NoError(t, os.WriteFile(path, []byte(persisted), 0o644))
	}
	store, err := config.OpenStore(path)
	require.NoError(t, err)

	f := &fixture{
		store: store,
		path:  path,
		kbd:   devicetest.New("Keyboard"),
		strip: devicetest.New("Strip"),
		pub:   events.NewLoggingPublisher(logger.Nop()),
	}

	catalog := device.NewCatalog()
	require.NoError(t, catalog.Register("Keyboard", func() (device.Device, error) { return f.kbd, nil }))
	require.NoError(t, catalog.Register("Strip", func() (device.Device, error) { return f.strip, nil }))
	require.NoError(t, catalog.Register("Broken", func() (device.Device, error) {
		return nil, errors.New("no driver")
	}))

	f.m, err = New(Options{
		Catalog:   catalog,
		Store:     store,
		Publisher: f.pub,
		Logger:    logger.Nop(),
		Scheduler: scheduler.Options{UpdateTimeout: 100 * time.Millisecond},
	})
	require.NoError(t, err)
	require.NoError(t, f.m.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.m.Stop(ctx)
	})
	return f
}

func (f *fixture) status(name string) model.DeviceStatus {
	st, _ := f.m.Devices(context.Background()).Find(name)
	return st
}

func TestNewAppliesPersistedConfig(t *testing.T) {
	t.Parallel()

	f := newFixture(t, `disabled_devices: [Strip]
variables:
  Keyboard:
    send_delay: 50
mapping:
  Keyboard:
    ESC: F1
`)

	assert.Equal(t, []string{"Broken", "Keyboard", "Strip"}, f.m.Devices(context.Background()).Names())

	kbd := f.status("Keyboard")
	assert.True(t, kbd.Enabled)
	assert.Equal(t, string(device.StateInitialized), kbd.State)

	strip := f.status("Strip")
	assert.False(t, strip.Enabled)
	assert.Equal(t, string(device.StateDisabled), strip.State)
	assert.Zero(t, f.strip.InitCalls())

	broken := f.status("Broken")
	assert.Equal(t, string(device.StateDisabled), broken.State)
	assert.Contains(t, broken.LastError, string(kgerrors.KindConstruction))

	delay, err := variables.Get[int](f.m.Registry(), "Keyboard", device.VarSendDelay)
	require.NoError(t, err)
	assert.Equal(t, 50, delay)

	require.NoError(t, f.m.SetFrame(context.Background(), color.KeyColorMap{color.KeyEscape: red}, false))
	require.Eventually(t, func() bool { return f.kbd.Applied() == 1 }, waitFor, tick)
	assert.Equal(t, color.KeyColorMap{color.KeyF1: red}, f.kbd.Frames()[0])
	assert.Zero(t, f.strip.UpdateCalls())
}

func TestVariableChangesArePersisted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")

	var mu sync.Mutex
	var changed []events.Event
	_, err := f.pub.Subscribe(events.EventVariableChanged, func(_ context.Context, e events.Event) error {
		mu.Lock()
		changed = append(changed, e)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, f.m.SetVariable(ctx, "Strip", device.VarSendDelay, "75"))

	reopened, err := config.OpenStore(f.path)
	require.NoError(t, err)
	assert.Equal(t, 75, reopened.Snapshot().Variables["Strip"][device.VarSendDelay])

	require.NoError(t, f.m.ResetVariable(ctx, "Strip", device.VarSendDelay))
	reopened, err = config.OpenStore(f.path)
	require.NoError(t, err)
	assert.Empty(t, reopened.Snapshot().Variables["Strip"])

	err = f.m.SetVariable(ctx, "Strip", "missing", 1)
	require.ErrorIs(t, err, variables.ErrUnregisteredVariable)

	err = f.m.SetVariable(ctx, "Strip", device.VarSendDelay, "fast")
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, changed, 2)
	assert.Equal(t, events.EventVariableChanged, changed[0].EventType())
}

func TestEnableDisablePersisted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	ctx := context.Background()

	require.NoError(t, f.m.DisableDevice(ctx, "Keyboard"))
	assert.False(t, f.status("Keyboard").Enabled)
	assert.Equal(t, 1, f.kbd.Shutdowns())
	assert.True(t, f.store.Snapshot().IsDisabled("Keyboard"))

	require.NoError(t, f.m.EnableDevice(ctx, "Keyboard"))
	assert.True(t, f.status("Keyboard").Enabled)
	assert.True(t, f.kbd.Initialized())
	assert.False(t, f.store.Snapshot().IsDisabled("Keyboard"))

	require.ErrorIs(t, f.m.EnableDevice(ctx, "Nope"), scheduler.ErrUnknownDevice)
	require.ErrorIs(t, f.m.EnableDevice(ctx, "Broken"), scheduler.ErrUnavailable)
	assert.Empty(t, f.store.Snapshot().DisabledDevices)
}

func TestSetMappingPersistsAndApplies(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	ctx := context.Background()

	mapping := model.DeviceMappingConfig{"Strip": {color.KeyEscape: color.KeyPeripheralLogo}}
	require.NoError(t, f.m.SetMapping(ctx, mapping))
	assert.Equal(t, mapping, f.m.Mapping(ctx))

	reopened, err := config.OpenStore(f.path)
	require.NoError(t, err)
	assert.Equal(t, color.KeyPeripheralLogo, reopened.Snapshot().Mapping["Strip"][color.KeyEscape])

	require.NoError(t, f.m.SetFrame(ctx, color.KeyColorMap{color.KeyEscape: red}, true))
	require.Eventually(t, func() bool { return f.strip.Applied() == 1 }, waitFor, tick)
	assert.Equal(t, color.KeyColorMap{color.KeyPeripheralLogo: red}, f.strip.Frames()[0])

	require.Error(t, f.m.SetMapping(ctx, model.DeviceMappingConfig{"": nil}))
}

func TestVariablesListing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	ctx := context.Background()

	all, err := f.m.Variables(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	one, err := f.m.Variables(ctx, "Strip")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, device.VarSendDelay, one[0].Variables[0].Name)

	_, err = f.m.Variables(ctx, "Nope")
	require.ErrorIs(t, err, scheduler.ErrUnknownDevice)
}

func TestStatsCollectTimings(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	ctx := context.Background()

	require.NoError(t, f.m.SetFrame(ctx, color.Fill(red), true))
	require.Eventually(t, func() bool {
		for _, s := range f.m.Stats(ctx) {
			if s.Device == "Keyboard" && s.Op == instrument.OpUpdate && s.Count >= 1 {
				return true
			}
		}
		return false
	}, waitFor, tick)

	var inits int
	for _, s := range f.m.Stats(ctx) {
		if s.Op == instrument.OpInitialize {
			inits++
		}
	}
	assert.Equal(t, 2, inits)
}

func TestApplyConfigReconcilesLiveState(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "variables:\n  Strip:\n    send_delay: 10\n")
	ctx := context.Background()

	var reloaded bool
	_, err := f.pub.Subscribe(events.EventConfigReloaded, func(context.Context, events.Event) error {
		reloaded = true
		return nil
	})
	require.NoError(t, err)

	f.m.applyConfig(ctx, model.DeviceConfig{
		DisabledDevices: []string{"Keyboard"},
		Variables:       map[string]map[string]any{"Keyboard": {device.VarSendDelay: 5}},
		Mapping:         model.DeviceMappingConfig{"Strip": {color.KeyEscape: color.KeyF2}},
	})

	assert.True(t, reloaded)
	assert.False(t, f.status("Keyboard").Enabled)
	assert.Equal(t, 5, variables.GetOr(f.m.Registry(), "Keyboard", device.VarSendDelay, 0))
	assert.Equal(t, device.DefaultSendDelay, variables.GetOr(f.m.Registry(), "Strip", device.VarSendDelay, 0))

	require.NoError(t, f.m.SetFrame(ctx, color.KeyColorMap{color.KeyEscape: red}, true))
	require.Eventually(t, func() bool { return f.strip.Applied() == 1 }, waitFor, tick)
	assert.Equal(t, color.KeyColorMap{color.KeyF2: red}, f.strip.Frames()[0])
	assert.Zero(t, f.kbd.Applied())
}

func TestReloadForgetsRemovedUnregisteredVariables(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "variables:\n  Ghost:\n    level: 7\n")
	ctx := context.Background()
	require.Equal(t, 7, f.m.Registry().Values()["Ghost"]["level"])

	f.m.applyConfig(ctx, model.DeviceConfig{})
	assert.NotContains(t, f.m.Registry().Values(), "Ghost")

	require.NoError(t, f.m.SetVariable(ctx, "Keyboard", device.VarSendDelay, 10))

	data, err := os.ReadFile(f.path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Ghost")
	assert.Contains(t, string(data), "send_delay: 10")
}

func TestStateChangeEventCarriesErrorKind(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")

	var mu sync.Mutex
	var got map[string]any
	_, err := f.pub.Subscribe(events.EventDeviceStateChanged, func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = e.Payload().(map[string]any)
		return nil
	})
	require.NoError(t, err)

	f.m.onStateChange(scheduler.StateChange{
		Device: "Strip",
		From:   device.StateUpdating,
		To:     device.StateError,
		Err:    fmt.Errorf("tick: %w", kgerrors.NewDeviceError("Strip", "update", kgerrors.KindUpdateTimeout, context.DeadlineExceeded)),
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Strip", got["device"])
	assert.Equal(t, string(kgerrors.KindUpdateTimeout), got["kind"])
}

func TestRequestShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	require.NoError(t, f.m.RequestShutdown(context.Background()))
	require.NoError(t, f.m.RequestShutdown(context.Background()))

	select {
	case <-f.m.ShutdownRequested():
	default:
		t.Fatal("shutdown channel not closed")
	}
}

func TestServedOverIPC(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")

	dir, err := os.MkdirTemp("", "kgmgr")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	srv, err := ipc.NewServer(ipc.Options{Dir: dir, Backend: f.m, Logger: logger.Nop()})
	require.NoError(t, err)
	require.NoError(t, srv.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	client, err := ipc.Dial(context.Background(), dir, ipc.ChannelControl)
	require.NoError(t, err)
	defer client.Close()

	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()

	require.NoError(t, client.SetFrame(callCtx, color.KeyColorMap{color.KeyEscape: red}, true))
	require.Eventually(t, func() bool { return f.kbd.Applied() == 1 }, waitFor, tick)

	require.NoError(t, client.SetVariable(callCtx, "Keyboard", device.VarSendDelay, 64))
	assert.Equal(t, 64, variables.GetOr(f.m.Registry(), "Keyboard", device.VarSendDelay, 0))

	require.Eventually(t, func() bool {
		devices, err := client.Devices(callCtx)
		if err != nil {
			return false
		}
		st, ok := devices.Find("Keyboard")
		return ok && st.FramesApplied == 1
	}, waitFor, 20*time.Millisecond)

	err = client.EnableDevice(callCtx, "Broken")
	var remote *ipc.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "unavailable")
}

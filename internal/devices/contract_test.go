package devices_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/keyglow/internal/color"
	"github.com/alexisbeaulieu97/keyglow/internal/device"
	"github.com/alexisbeaulieu97/keyglow/internal/devices/mqttlight"
	"github.com/alexisbeaulieu97/keyglow/internal/devices/udpstrip"
	virtualdevice "github.com/alexisbeaulieu97/keyglow/internal/devices/virtual"
	"github.com/alexisbeaulieu97/keyglow/internal/logger"
	"github.com/alexisbeaulieu97/keyglow/internal/variables"
)

// allBackends returns fresh instances of every bundled backend.
func allBackends() []device.Device {
	return []device.Device{
		virtualdevice.New(),
		udpstrip.New(),
		mqttlight.New(),
	}
}

func TestShutdownBeforeInitializeIsNoop(t *testing.T) {
	t.Parallel()

	for _, d := range allBackends() {
		t.Run(d.Name(), func(t *testing.T) {
			t.Parallel()
			d.RegisterVariables(variables.New())
			require.NoError(t, d.Shutdown(context.Background()))
			require.NoError(t, d.Shutdown(context.Background()))
		})
	}
}

func TestUpdateBeforeInitializeFails(t *testing.T) {
	t.Parallel()

	for _, d := range allBackends() {
		t.Run(d.Name(), func(t *testing.T) {
			t.Parallel()
			d.RegisterVariables(variables.New())
			applied, err := d.Update(context.Background(), color.Fill(color.White), true)
			require.Error(t, err)
			require.False(t, applied)
		})
	}
}

func TestRegisterVariablesDeclaresSendDelay(t *testing.T) {
	t.Parallel()

	for _, d := range allBackends() {
		t.Run(d.Name(), func(t *testing.T) {
			t.Parallel()
			reg := variables.New()
			d.RegisterVariables(reg)

			delay, err := variables.Get[int](reg, d.Name(), device.VarSendDelay)
			require.NoError(t, err)
			require.Positive(t, delay)
		})
	}
}

func TestBundledBackendsAreDiscovered(t *testing.T) {
	t.Parallel()

	found := device.Discover(device.Default(), variables.New(), logger.Nop())
	names := make([]string, 0, len(found))
	for _, d := range found {
		require.NoError(t, d.Err)
		names = append(names, d.Descriptor.Name)
	}
	require.Equal(t, []string{mqttlight.Name, udpstrip.Name, virtualdevice.Name}, names)
}

package virtualdevice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/keyglow/internal/color"
	"github.com/alexisbeaulieu97/keyglow/internal/device"
	"github.com/alexisbeaulieu97/keyglow/internal/variables"
)

func TestKeepsLastColors(t *testing.T) {
	t.Parallel()

	d := New()
	reg := variables.New()
	d.RegisterVariables(reg)

	_, err := d.Update(context.Background(), color.Fill(color.White), true)
	require.ErrorIs(t, err, errNotInitialized)

	ok, err := d.Initialize(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, d.Info(), "in-memory")

	applied, err := d.Update(context.Background(), color.KeyColorMap{color.KeyEscape: color.RGB(255, 0, 0)}, false)
	require.NoError(t, err)
	require.True(t, applied)

	require.NoError(t, reg.Set(Name, VarBrightness, 0.5))
	applied, err = d.Update(context.Background(), color.KeyColorMap{color.KeyF1: color.RGB(200, 100, 0)}, true)
	require.NoError(t, err)
	require.True(t, applied)

	require.Equal(t, color.KeyColorMap{
		color.KeyEscape: color.RGB(255, 0, 0),
		color.KeyF1:     {R: 100, G: 50, B: 0, A: 127},
	}, d.Keys())
	require.Equal(t, 2, d.Writes())

	require.NoError(t, d.Shutdown(context.Background()))
	require.Empty(t, d.Keys())
}

func TestThrottledWithoutForce(t *testing.T) {
	t.Parallel()

	d := New()
	reg := variables.New()
	d.RegisterVariables(reg)
	require.NoError(t, reg.Set(Name, device.VarSendDelay, 1000))
	_, err := d.Initialize(context.Background())
	require.NoError(t, err)

	frame := color.Fill(color.White)
	first, _ := d.Update(context.Background(), frame, false)
	second, _ := d.Update(context.Background(), frame, false)
	require.True(t, first)
	require.False(t, second)
	require.Equal(t, 1, d.Writes())
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()

	d := New()
	d.RegisterVariables(variables.New())
	_, err := d.Initialize(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Update(ctx, color.Fill(color.White), true)
	require.ErrorIs(t, err, context.Canceled)
}

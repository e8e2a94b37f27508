package udpstrip

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/keyglow/internal/color"
	"github.com/alexisbeaulieu97/keyglow/internal/variables"
)

func listen(t *testing.T) net.PacketConn {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

func receive(t *testing.T, pc net.PacketConn) []byte {
	t.Helper()
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 2048)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	return buf[:n]
}

func newStrip(t *testing.T, addr, keys string) (*Device, *variables.Registry) {
	t.Helper()
	d := New()
	reg := variables.New()
	d.RegisterVariables(reg)
	require.NoError(t, reg.Set(Name, VarAddress, addr))
	require.NoError(t, reg.Set(Name, VarKeys, keys))
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })
	return d, reg
}

func TestEncode(t *testing.T) {
	t.Parallel()

	frame := color.KeyColorMap{
		color.KeyEscape: color.RGB(255, 0, 0),
		color.KeyF1:     {R: 200, G: 100, B: 50, A: 0},
	}
	packet := Encode(frame, []color.Key{color.KeyEscape, color.KeyF1, color.KeyF2}, 5, 1)
	require.Equal(t, []byte{0x02, 5, 255, 0, 0, 0, 0, 0, 0, 0, 0}, packet)

	dimmed := Encode(frame, []color.Key{color.KeyEscape}, 1, 0.5)
	require.Equal(t, []byte{0x02, 1, 127, 0, 0}, dimmed)
}

func TestSendsDatagramInKeyOrder(t *testing.T) {
	t.Parallel()

	pc := listen(t)
	d, reg := newStrip(t, pc.LocalAddr().String(), "F1,ESC")
	require.NoError(t, reg.Set(Name, VarHold, 255))

	ok, err := d.Initialize(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, d.Info(), "2 leds")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	applied, err := d.Update(ctx, color.KeyColorMap{
		color.KeyEscape: color.RGB(1, 2, 3),
		color.KeyF1:     color.RGB(4, 5, 6),
	}, false)
	require.NoError(t, err)
	require.True(t, applied)

	require.Equal(t, []byte{0x02, 255, 4, 5, 6, 1, 2, 3}, receive(t, pc))
}

func TestThrottleSuppressesRapidFrames(t *testing.T) {
	t.Parallel()

	pc := listen(t)
	d, reg := newStrip(t, pc.LocalAddr().String(), "ESC")
	require.NoError(t, reg.Set(Name, "send_delay", 1000))
	_, err := d.Initialize(context.Background())
	require.NoError(t, err)

	frame := color.KeyColorMap{color.KeyEscape: color.White}
	first, err := d.Update(context.Background(), frame, false)
	require.NoError(t, err)
	second, err := d.Update(context.Background(), frame, false)
	require.NoError(t, err)
	forced, err := d.Update(context.Background(), frame, true)
	require.NoError(t, err)

	require.True(t, first)
	require.False(t, second)
	require.True(t, forced)
}

func TestFailedSendDoesNotThrottleNextFrame(t *testing.T) {
	t.Parallel()

	pc := listen(t)
	d, reg := newStrip(t, pc.LocalAddr().String(), "ESC")
	require.NoError(t, reg.Set(Name, "send_delay", 1000))
	_, err := d.Initialize(context.Background())
	require.NoError(t, err)

	frame := color.KeyColorMap{color.KeyEscape: color.White}
	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	applied, err := d.Update(expired, frame, false)
	require.Error(t, err)
	require.False(t, applied)

	applied, err = d.Update(context.Background(), frame, false)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, []byte{0x02, defaultHold, 255, 255, 255}, receive(t, pc))
}

func TestInitializeRequiresAddress(t *testing.T) {
	t.Parallel()

	d, _ := newStrip(t, "", "")
	ok, err := d.Initialize(context.Background())
	require.ErrorIs(t, err, ErrNoAddress)
	require.False(t, ok)

	_, err = d.Update(context.Background(), color.Fill(color.White), true)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestInvalidKeyListFailsInitialize(t *testing.T) {
	t.Parallel()

	pc := listen(t)
	d, _ := newStrip(t, pc.LocalAddr().String(), "ESC,NOT_A_KEY")
	_, err := d.Initialize(context.Background())
	require.Error(t, err)
}

func TestEmptyKeyListCoversEveryKey(t *testing.T) {
	t.Parallel()

	pc := listen(t)
	d, _ := newStrip(t, pc.LocalAddr().String(), "")
	_, err := d.Initialize(context.Background())
	require.NoError(t, err)

	_, err = d.Update(context.Background(), color.Fill(color.White), true)
	require.NoError(t, err)
	leds := min(len(color.AllKeys()), MaxLEDs)
	require.Len(t, receive(t, pc), 2+3*leds)
}

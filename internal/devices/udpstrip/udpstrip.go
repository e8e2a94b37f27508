// Package udpstrip drives an addressable LED strip controller that accepts
// the WLED realtime DRGB protocol over UDP.
//
// Each datagram is a protocol byte (0x02), a timeout byte telling the
// controller how many seconds to hold the frame before returning to its own
// program, then one RGB triplet per LED. LED i shows the color of the i-th
// key of the "keys" variable.
package udpstrip

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/keyglow/internal/color"
	"github.com/alexisbeaulieu97/keyglow/internal/device"
	"github.com/alexisbeaulieu97/keyglow/internal/variables"
)

const (
	Name = "UDP LED Strip"

	VarAddress    = "address"
	VarKeys       = "keys"
	VarBrightness = "brightness"
	VarHold       = "hold_seconds"

	protocolDRGB = 0x02
	// MaxLEDs is the DRGB limit of one datagram.
	MaxLEDs = 490

	defaultSendDelay = 20
	defaultHold      = 2
)

var (
	ErrNoAddress      = errors.New("udp strip address not configured")
	ErrNotInitialized = errors.New("udp strip not initialized")
)

func init() {
	device.MustRegister(Name, func() (device.Device, error) {
		return New(), nil
	})
}

// Device sends frames to one controller.
type Device struct {
	device.Base

	mu   sync.Mutex
	conn net.Conn

	// parsed keys, cached by the raw variable value
	keysRaw string
	keys    []color.Key
}

// New creates an unconnected strip.
func New() *Device {
	return &Device{Base: device.Base{DeviceName: Name, SendDelay: defaultSendDelay}}
}

// RegisterVariables implements device.Device.
func (d *Device) RegisterVariables(reg *variables.Registry) {
	d.Base.RegisterVariables(reg)
	reg.Register(Name, VarAddress, "", "Controller host:port, e.g. 192.168.1.40:21324")
	reg.Register(Name, VarKeys, "", "Comma separated keys in LED order; empty maps every key")
	reg.Register(Name, VarBrightness, 1.0, "Brightness factor, 0 to 1")
	reg.Register(Name, VarHold, defaultHold, "Seconds the controller holds a frame, 255 holds forever")
}

// Initialize implements device.Device. It resolves the address and opens the
// socket; UDP has no handshake so an unreachable controller is not detected
// here.
func (d *Device) Initialize(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != nil {
		return true, nil
	}

	addr := variables.GetOr(d.Vars(), Name, VarAddress, "")
	if addr == "" {
		return false, ErrNoAddress
	}
	keys, err := d.keysLocked()
	if err != nil {
		return false, err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", addr, err)
	}
	d.conn = conn
	d.Throttle().Reset()
	d.SetInfo(fmt.Sprintf("udp %s, %d leds", conn.RemoteAddr(), len(keys)))
	return true, nil
}

// Shutdown implements device.Device.
func (d *Device) Shutdown(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

// Update implements device.Device.
func (d *Device) Update(ctx context.Context, frame color.KeyColorMap, forced bool) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return false, ErrNotInitialized
	}
	if !d.Throttle().Allow(forced) {
		return false, nil
	}

	keys, err := d.keysLocked()
	if err != nil {
		return false, err
	}
	packet := Encode(frame, keys, d.hold(), variables.GetOr(d.Vars(), Name, VarBrightness, 1.0))

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := d.send(packet, deadline); err != nil {
		// Nothing reached the controller, so the next frame may go out at once.
		d.Throttle().Reset()
		return false, err
	}
	return true, nil
}

func (d *Device) send(packet []byte, deadline time.Time) error {
	if err := d.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if _, err := d.conn.Write(packet); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

func (d *Device) hold() byte {
	v := variables.GetOr(d.Vars(), Name, VarHold, defaultHold)
	switch {
	case v < 1:
		return 1
	case v > 255:
		return 255
	}
	return byte(v)
}

func (d *Device) keysLocked() ([]color.Key, error) {
	raw := variables.GetOr(d.Vars(), Name, VarKeys, "")
	if d.keys != nil && raw == d.keysRaw {
		return d.keys, nil
	}

	var keys []color.Key
	if raw == "" {
		keys = color.AllKeys()
	} else {
		parsed, err := color.ParseKeyList(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", VarKeys, err)
		}
		keys = parsed
	}
	if len(keys) > MaxLEDs {
		keys = keys[:MaxLEDs]
	}
	d.keys, d.keysRaw = keys, raw
	return keys, nil
}

// Encode builds one DRGB datagram. Keys missing from frame are sent black;
// alpha is folded into the channels.
func Encode(frame color.KeyColorMap, keys []color.Key, hold byte, brightness float64) []byte {
	if len(keys) > MaxLEDs {
		keys = keys[:MaxLEDs]
	}
	packet := make([]byte, 2, 2+3*len(keys))
	packet[0] = protocolDRGB
	packet[1] = hold
	for _, k := range keys {
		c := color.Scale(color.CorrectAlpha(frame[k]), brightness)
		packet = append(packet, c.R, c.G, c.B)
	}
	return packet
}

var _ device.Device = (*Device)(nil)

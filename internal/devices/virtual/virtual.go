// Package virtualdevice provides an in-memory keyboard used for demos and
// for exercising the daemon without hardware.
package virtualdevice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alexisbeaulieu97/keyglow/internal/color"
	"github.com/alexisbeaulieu97/keyglow/internal/device"
	"github.com/alexisbeaulieu97/keyglow/internal/variables"
)

// Name is the registered device name.
const Name = "Virtual Keyboard"

// VarBrightness scales every written color.
const VarBrightness = "brightness"

var errNotInitialized = errors.New("virtual keyboard not initialized")

func init() {
	device.MustRegister(Name, func() (device.Device, error) {
		return New(), nil
	})
}

// Device keeps the last written color of every key.
type Device struct {
	device.Base

	mu          sync.Mutex
	initialized bool
	keys        color.KeyColorMap
	writes      int
}

// New creates an uninitialized virtual keyboard.
func New() *Device {
	return &Device{Base: device.Base{DeviceName: Name}}
}

// RegisterVariables implements device.Device.
func (d *Device) RegisterVariables(reg *variables.Registry) {
	d.Base.RegisterVariables(reg)
	reg.Register(Name, VarBrightness, 1.0, "Brightness factor applied to every key, 0 to 1")
}

// Initialize implements device.Device.
func (d *Device) Initialize(context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		d.keys = make(color.KeyColorMap)
		d.initialized = true
		d.Throttle().Reset()
		d.SetInfo(fmt.Sprintf("in-memory, %d keys", len(color.AllKeys())))
	}
	return true, nil
}

// Shutdown implements device.Device.
func (d *Device) Shutdown(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.initialized = false
	d.keys = nil
	return nil
}

// Update implements device.Device.
func (d *Device) Update(ctx context.Context, frame color.KeyColorMap, forced bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return false, errNotInitialized
	}
	if !d.Throttle().Allow(forced) {
		return false, nil
	}

	brightness := variables.GetOr(d.Vars(), Name, VarBrightness, 1.0)
	for k, c := range frame {
		d.keys[k] = color.Scale(c, brightness)
	}
	d.writes++
	return true, nil
}

// Keys returns a copy of the current key colors.
func (d *Device) Keys() color.KeyColorMap {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keys.Clone()
}

// Writes counts accepted updates since construction.
func (d *Device) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

var _ device.Device = (*Device)(nil)

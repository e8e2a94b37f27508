package device

import (
	"sync"

	"github.com/alexisbeaulieu97/keyglow/internal/variables"
)

// Base carries the bookkeeping every backend needs: identity, the variable
// registry and a send_delay throttle. Backends embed it and override Info
// and RegisterVariables as needed.
type Base struct {
	DeviceName string
	SendDelay  int

	mu       sync.RWMutex
	info     string
	vars     *variables.Registry
	throttle *Throttle
}

// Name implements Device.
func (b *Base) Name() string {
	return b.DeviceName
}

// Info implements Device.
func (b *Base) Info() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.info
}

// SetInfo updates the diagnostic string, typically after a handshake.
func (b *Base) SetInfo(info string) {
	b.mu.Lock()
	b.info = info
	b.mu.Unlock()
}

// RegisterVariables registers send_delay and binds the throttle.
func (b *Base) RegisterVariables(reg *variables.Registry) {
	def := b.SendDelay
	if def <= 0 {
		def = DefaultSendDelay
	}
	reg.Register(b.DeviceName, VarSendDelay, def, "Minimum delay between hardware writes, in milliseconds")

	b.mu.Lock()
	b.vars = reg
	b.throttle = NewThrottle(b.DeviceName, reg, def)
	b.mu.Unlock()
}

// Vars returns the registry passed to RegisterVariables.
func (b *Base) Vars() *variables.Registry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.vars
}

// Throttle returns the device throttle, creating a default one when
// RegisterVariables has not run.
func (b *Base) Throttle() *Throttle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.throttle == nil {
		def := b.SendDelay
		if def <= 0 {
			def = DefaultSendDelay
		}
		b.throttle = NewThrottle(b.DeviceName, b.vars, def)
	}
	return b.throttle
}

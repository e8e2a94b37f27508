// Package devicetest provides a scriptable device for tests.
package devicetest

import (
	"context"
	"sync"

	"github.com/alexisbeaulieu97/keyglow/internal/color"
	"github.com/alexisbeaulieu97/keyglow/internal/device"
	"github.com/alexisbeaulieu97/keyglow/internal/variables"
)

// Option configures a Fake.
type Option func(*Fake)

// Fake is an in-memory device whose behaviour is set by hooks. It records
// every call it receives.
type Fake struct {
	device.Base

	mu          sync.Mutex
	initialized bool
	initCalls   int
	updateCalls int
	applied     int
	shutdowns   int
	frames      []color.KeyColorMap
	forced      []bool

	initFn     func(ctx context.Context) error
	updateFn   func(ctx context.Context, frame color.KeyColorMap) error
	shutdownFn func(ctx context.Context) error
	throttled  bool
	registerFn func(reg *variables.Registry)
}

// New creates a fake named name. By default it initializes and applies
// every frame without throttling.
func New(name string, opts ...Option) *Fake {
	f := &Fake{Base: device.Base{DeviceName: name}}
	f.SetInfo("fake device")
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithInit replaces the handshake.
func WithInit(fn func(ctx context.Context) error) Option {
	return func(f *Fake) { f.initFn = fn }
}

// WithUpdate replaces the frame write.
func WithUpdate(fn func(ctx context.Context, frame color.KeyColorMap) error) Option {
	return func(f *Fake) { f.updateFn = fn }
}

// WithShutdown replaces the release.
func WithShutdown(fn func(ctx context.Context) error) Option {
	return func(f *Fake) { f.shutdownFn = fn }
}

// WithThrottle enables the send_delay throttle.
func WithThrottle(sendDelay int) Option {
	return func(f *Fake) {
		f.throttled = true
		f.SendDelay = sendDelay
	}
}

// WithVariables registers extra variables.
func WithVariables(fn func(reg *variables.Registry)) Option {
	return func(f *Fake) { f.registerFn = fn }
}

// RegisterVariables implements device.Device.
func (f *Fake) RegisterVariables(reg *variables.Registry) {
	f.Base.RegisterVariables(reg)
	if f.registerFn != nil {
		f.registerFn(reg)
	}
}

// Initialize implements device.Device.
func (f *Fake) Initialize(ctx context.Context) (bool, error) {
	f.mu.Lock()
	f.initCalls++
	if f.initialized {
		f.mu.Unlock()
		return true, nil
	}
	fn := f.initFn
	f.mu.Unlock()

	if fn != nil {
		if err := fn(ctx); err != nil {
			return false, err
		}
	}

	f.mu.Lock()
	f.initialized = true
	f.mu.Unlock()
	return true, nil
}

// Shutdown implements device.Device.
func (f *Fake) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	f.shutdowns++
	wasInitialized := f.initialized
	f.initialized = false
	fn := f.shutdownFn
	f.mu.Unlock()

	if !wasInitialized || fn == nil {
		return nil
	}
	return fn(ctx)
}

// Update implements device.Device.
func (f *Fake) Update(ctx context.Context, frame color.KeyColorMap, forced bool) (bool, error) {
	f.mu.Lock()
	f.updateCalls++
	fn := f.updateFn
	f.mu.Unlock()

	if f.throttled && !f.Throttle().Allow(forced) {
		return false, nil
	}
	if fn != nil {
		if err := fn(ctx, frame); err != nil {
			return false, err
		}
	}

	f.mu.Lock()
	f.applied++
	f.frames = append(f.frames, frame)
	f.forced = append(f.forced, forced)
	f.mu.Unlock()
	return true, nil
}

// Initialized reports whether the fake holds its handle.
func (f *Fake) Initialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initialized
}

// InitCalls counts Initialize calls.
func (f *Fake) InitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls
}

// UpdateCalls counts Update calls, applied or not.
func (f *Fake) UpdateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateCalls
}

// Applied counts frames that were written.
func (f *Fake) Applied() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applied
}

// Shutdowns counts Shutdown calls.
func (f *Fake) Shutdowns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdowns
}

// Frames returns a copy of the applied frames in order.
func (f *Fake) Frames() []color.KeyColorMap {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]color.KeyColorMap(nil), f.frames...)
}

// Forced returns the forced flag of each applied frame.
func (f *Fake) Forced() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.forced...)
}

var _ device.Device = (*Fake)(nil)

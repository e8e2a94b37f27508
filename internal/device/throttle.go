package device

import (
	"sync"
	"time"

	"github.com/alexisbeaulieu97/keyglow/internal/variables"
)

const (
	// VarSendDelay is the per-device throttle interval in milliseconds.
	VarSendDelay = "send_delay"

	// DefaultSendDelay is the throttle interval used when a backend does not
	// pick its own.
	DefaultSendDelay = 32
)

// Throttle enforces a minimum interval between accepted hardware writes.
// The interval is read from the device's send_delay variable on every call
// so changes apply immediately.
type Throttle struct {
	mu     sync.Mutex
	device string
	vars   *variables.Registry
	def    int
	now    func() time.Time
	last   time.Time
}

// NewThrottle creates a throttle bound to device's send_delay variable.
// vars may be nil, in which case def is always used.
func NewThrottle(device string, vars *variables.Registry, def int) *Throttle {
	return &Throttle{device: device, vars: vars, def: def, now: time.Now}
}

// SetClock replaces the time source, for tests.
func (t *Throttle) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Delay returns the current throttle interval.
func (t *Throttle) Delay() time.Duration {
	ms := variables.GetOr(t.vars, t.device, VarSendDelay, t.def)
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

// Allow reports whether a write may happen now and, if so, records it.
func (t *Throttle) Allow(forced bool) bool {
	delay := t.Delay()

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if !forced && !t.last.IsZero() && now.Sub(t.last) < delay {
		return false
	}
	t.last = now
	return true
}

// Reset forgets the last write so the next call is accepted.
func (t *Throttle) Reset() {
	t.mu.Lock()
	t.last = time.Time{}
	t.mu.Unlock()
}

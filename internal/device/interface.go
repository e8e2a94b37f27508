package device

import (
	"context"

	"github.com/alexisbeaulieu97/keyglow/internal/color"
	"github.com/alexisbeaulieu97/keyglow/internal/variables"
)

// Device is the contract every hardware backend implements.
//
// Implementations only manage their own hardware handle. They report success
// or failure; the scheduler owns the lifecycle state. Calls on one device
// are never made concurrently.
type Device interface {
	// Name is the stable display name, also used to namespace variables.
	Name() string

	// Info is a short diagnostic string such as a firmware or endpoint.
	Info() string

	// RegisterVariables declares configurable variables with their
	// defaults. It runs once at discovery, before the first Initialize.
	RegisterVariables(reg *variables.Registry)

	// Initialize performs the hardware handshake. Calling it on an
	// initialized device returns true without a new handshake. On failure
	// the device must be left uninitialized.
	Initialize(ctx context.Context) (bool, error)

	// Shutdown releases the hardware handle. It is a no-op on a device that
	// is not initialized.
	Shutdown(ctx context.Context) error

	// Update applies one frame. It returns false without error when the
	// write was suppressed by throttling; forced bypasses the throttle.
	// Implementations should return promptly once ctx is done.
	Update(ctx context.Context, frame color.KeyColorMap, forced bool) (bool, error)
}

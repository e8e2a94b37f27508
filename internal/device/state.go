package device

// State is the lifecycle state of one device instance as tracked by the
// scheduler.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateInitialized   State = "initialized"
	StateUpdating      State = "updating"
	StateShuttingDown  State = "shutting_down"
	StateError         State = "error"
	StateDisabled      State = "disabled"
)

// Active reports whether a device in this state receives frames.
func (s State) Active() bool {
	switch s {
	case StateInitialized, StateUpdating, StateError:
		return true
	}
	return false
}

// IsValid reports whether s is a known state.
func (s State) IsValid() bool {
	switch s {
	case StateUninitialized, StateInitializing, StateInitialized, StateUpdating,
		StateShuttingDown, StateError, StateDisabled:
		return true
	}
	return false
}

package events

import (
	"context"
)

const (
	// EventDeviceStateChanged is emitted on every device lifecycle transition.
	EventDeviceStateChanged = "device.state_changed"
	// EventDeviceEnabled is emitted when a device is re-admitted.
	EventDeviceEnabled = "device.enabled"
	// EventDeviceDisabled is emitted when a device is excluded, by request or
	// after repeated failures.
	EventDeviceDisabled = "device.disabled"
	// EventVariableChanged is emitted after a variable is set or reset.
	EventVariableChanged = "variable.changed"
	// EventMappingChanged is emitted when the key remap table is replaced.
	EventMappingChanged = "mapping.changed"
	// EventConfigReloaded is emitted after the device config file changed on disk.
	EventConfigReloaded = "config.reloaded"
	// EventShutdownRequested is emitted when a client asks the daemon to stop.
	EventShutdownRequested = "daemon.shutdown_requested"
)

// Event is something that happened inside the daemon.
type Event interface {
	EventType() string
	Payload() any
}

// Handler processes one event. Returned errors are logged and do not stop
// delivery to other handlers.
type Handler func(context.Context, Event) error

// Subscription stops delivery when Unsubscribe is called.
type Subscription interface {
	Unsubscribe()
}

// Publisher distributes events. Publish blocks until every handler ran.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType string, handler Handler) (Subscription, error)
}

// Fields is the common event implementation: a type plus flat fields.
type Fields struct {
	Type   string
	Values map[string]any
}

// New builds an event from alternating key/value pairs.
func New(eventType string, kv ...any) Fields {
	values := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		values[key] = kv[i+1]
	}
	return Fields{Type: eventType, Values: values}
}

// EventType implements Event.
func (f Fields) EventType() string { return f.Type }

// Payload implements Event.
func (f Fields) Payload() any { return f.Values }

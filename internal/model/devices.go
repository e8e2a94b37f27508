package model

import (
	"time"
)

// DeviceStatus captures the observable state of a single device.
type DeviceStatus struct {
	Name                string  `json:"name"`
	Info                string  `json:"info"`
	State               string  `json:"state"`
	Enabled             bool    `json:"enabled"`
	Initialized         bool    `json:"initialized"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	LastError           string  `json:"last_error,omitempty"`
	LastUpdateMs        float64 `json:"last_update_ms"`
	LastInitMs          float64 `json:"last_init_ms"`
	FramesApplied       int64   `json:"frames_applied"`
	FramesSkipped       int64   `json:"frames_skipped"`
}

// CurrentDevices is a point-in-time copy of every known device.
type CurrentDevices struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Devices     []DeviceStatus `json:"devices"`
}

// Find returns the status of the named device.
func (c CurrentDevices) Find(name string) (DeviceStatus, bool) {
	for _, d := range c.Devices {
		if d.Name == name {
			return d, true
		}
	}
	return DeviceStatus{}, false
}

// Names lists device names in snapshot order.
func (c CurrentDevices) Names() []string {
	out := make([]string, len(c.Devices))
	for i, d := range c.Devices {
		out[i] = d.Name
	}
	return out
}


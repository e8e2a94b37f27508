package model

import (
	"sort"

	"github.com/alexisbeaulieu97/keyglow/internal/color"
)

// DeviceLedMap translates frame keys to the keys a device actually lights.
type DeviceLedMap map[color.Key]color.Key

// DeviceMappingConfig holds one remap table per device.
type DeviceMappingConfig map[string]DeviceLedMap

// For returns the table of device, or nil.
func (m DeviceMappingConfig) For(device string) DeviceLedMap {
	if m == nil {
		return nil
	}
	return m[device]
}

// Clone deep-copies the mapping.
func (m DeviceMappingConfig) Clone() DeviceMappingConfig {
	if m == nil {
		return nil
	}
	out := make(DeviceMappingConfig, len(m))
	for dev, table := range m {
		cp := make(DeviceLedMap, len(table))
		for k, v := range table {
			cp[k] = v
		}
		out[dev] = cp
	}
	return out
}

// DeviceConfig is the persisted device configuration.
type DeviceConfig struct {
	DisabledDevices []string                  `json:"disabled_devices" yaml:"disabled_devices"`
	Variables       map[string]map[string]any `json:"variables" yaml:"variables"`
	Mapping         DeviceMappingConfig       `json:"mapping" yaml:"mapping"`
}

// IsDisabled reports whether name is in the disabled list.
func (c DeviceConfig) IsDisabled(name string) bool {
	for _, d := range c.DisabledDevices {
		if d == name {
			return true
		}
	}
	return false
}

// SetDisabled adds or removes name from the disabled list. It reports
// whether the list changed.
func (c *DeviceConfig) SetDisabled(name string, disabled bool) bool {
	if c.IsDisabled(name) == disabled {
		return false
	}
	if disabled {
		c.DisabledDevices = append(c.DisabledDevices, name)
		sort.Strings(c.DisabledDevices)
		return true
	}
	out := c.DisabledDevices[:0]
	for _, d := range c.DisabledDevices {
		if d != name {
			out = append(out, d)
		}
	}
	c.DisabledDevices = out
	return true
}

// Clone deep-copies the configuration.
func (c DeviceConfig) Clone() DeviceConfig {
	out := DeviceConfig{
		DisabledDevices: append([]string(nil), c.DisabledDevices...),
		Mapping:         c.Mapping.Clone(),
	}
	if c.Variables != nil {
		out.Variables = make(map[string]map[string]any, len(c.Variables))
		for dev, vals := range c.Variables {
			cp := make(map[string]any, len(vals))
			for k, v := range vals {
				cp[k] = v
			}
			out.Variables[dev] = cp
		}
	}
	return out
}

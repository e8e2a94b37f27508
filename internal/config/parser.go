package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/alexisbeaulieu97/keyglow/internal/model"
	kgerrors "github.com/alexisbeaulieu97/keyglow/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParseDeviceConfig loads a device configuration file from disk.
func ParseDeviceConfig(path string) (*model.DeviceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kgerrors.NewParseError(path, 0, err)
	}
	return decodeDeviceConfig(path, data)
}

func decodeDeviceConfig(path string, data []byte) (*model.DeviceConfig, error) {
	var cfg model.DeviceConfig
	if len(bytes.TrimSpace(data)) == 0 {
		return &cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, kgerrors.NewParseError(path, extractLine(err), err)
	}
	if err := ValidateDeviceConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateDeviceConfig rejects entries that cannot name a device.
func ValidateDeviceConfig(cfg *model.DeviceConfig) error {
	for i, name := range cfg.DisabledDevices {
		if name == "" {
			return kgerrors.NewValidationError(fmt.Sprintf("disabled_devices[%d]", i), "device name is empty", nil)
		}
	}
	for dev := range cfg.Variables {
		if dev == "" {
			return kgerrors.NewValidationError("variables", "device name is empty", nil)
		}
	}
	for dev := range cfg.Mapping {
		if dev == "" {
			return kgerrors.NewValidationError("mapping", "device name is empty", nil)
		}
	}
	return nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	_, scanErr := fmt.Sscanf(matches[1], "%d", &line)
	if scanErr != nil {
		return 0
	}

	return line
}

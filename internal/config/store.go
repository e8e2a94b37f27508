package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/alexisbeaulieu97/keyglow/internal/model"
)

// Store persists the device configuration as YAML.
type Store struct {
	path string

	mu          sync.RWMutex
	cfg         model.DeviceConfig
	lastWritten []byte
}

// OpenStore loads path, creating its directory. A missing file yields an
// empty configuration.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	s := &Store{path: path}
	cfg, err := ParseDeviceConfig(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = &model.DeviceConfig{}
	}
	s.cfg = *cfg
	return s, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns a deep copy of the current configuration.
func (s *Store) Snapshot() model.DeviceConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Update applies fn and saves when it reports a change.
func (s *Store) Update(fn func(cfg *model.DeviceConfig) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.Clone()
	if !fn(&next) {
		return nil
	}
	if err := s.saveLocked(next); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

// Save writes the current configuration to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(s.cfg)
}

// Reload re-reads the file. It reports false when the content is what this
// store last wrote, so its own saves do not trigger reloads.
func (s *Store) Reload() (model.DeviceConfig, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return model.DeviceConfig{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastWritten != nil && bytes.Equal(data, s.lastWritten) {
		return s.cfg.Clone(), false, nil
	}
	cfg, err := decodeDeviceConfig(s.path, data)
	if err != nil {
		return model.DeviceConfig{}, false, err
	}
	s.cfg = *cfg
	s.lastWritten = data
	return s.cfg.Clone(), true, nil
}

// saveLocked writes through a temporary file and an atomic rename.
func (s *Store) saveLocked(cfg model.DeviceConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal device config: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	s.lastWritten = data
	return nil
}

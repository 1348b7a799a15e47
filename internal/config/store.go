package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"transcription-studio/internal/domain"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// TOMLStore persists settings in a single TOML file on disk.
type TOMLStore struct {
	path string
}

// NewTOMLStore creates a TOML-backed settings store.
func NewTOMLStore(path string) *TOMLStore {
	return &TOMLStore{path: path}
}

// Path returns the settings file location.
func (s *TOMLStore) Path() string {
	return s.path
}

// Load reads settings from disk over the defaults. A missing file yields defaults.
func (s *TOMLStore) Load() (domain.Settings, error) {
	cfg := DefaultSettings()
	if _, err := toml.DecodeFile(s.path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}
		return domain.Settings{}, fmt.Errorf("decode settings %s: %w", s.path, err)
	}
	return cfg, nil
}

// Save writes settings as TOML and creates parent directories.
// The file holds credentials so it is written owner-only.
func (s *TOMLStore) Save(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	return os.WriteFile(s.path, buf.Bytes(), 0o600)
}

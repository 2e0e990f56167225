package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// GeminiAPIKey is the preferences key holding the model credential.
	GeminiAPIKey = "GeminiApiKey"
	// GeminiAPIKeyEnv is read when the preferences do not hold a key.
	GeminiAPIKeyEnv = "GEMINI_API_KEY"
)

// Preferences is the flat key/value store of user settings.
type Preferences map[string]string

func DefaultPreferencesPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "zegion", "preferences.yaml")
}

// LoadPreferences reads path. A missing file is an empty store.
func LoadPreferences(path string) (Preferences, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Preferences{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("preferences: read %q: %w", path, err)
	}

	prefs := Preferences{}
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return nil, fmt.Errorf("preferences: decode %q: %w", path, err)
	}
	return prefs, nil
}

// Save writes the store to path, creating its directory.
func (p Preferences) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("preferences: %w", err)
	}

	data, err := yaml.Marshal(map[string]string(p))
	if err != nil {
		return fmt.Errorf("preferences: encode: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// APIKey returns the model credential, falling back to the environment. The
// result may be empty.
func (p Preferences) APIKey() string {
	if key := p[GeminiAPIKey]; key != "" {
		return key
	}
	return os.Getenv(GeminiAPIKeyEnv)
}

// LoadEnv loads a .env file into the process environment without
// overriding variables already set. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("env: load %q: %w", path, err)
	}
	return nil
}

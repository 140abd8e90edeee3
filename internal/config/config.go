// Package config persists machine-level tunables across runs, grounded on
// the teacher's internal/settings manager: read, fall back to defaults on a
// missing file or a parse error, write back as indented JSON.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Settings holds the tunables a machine assembly reads at startup. KeyMap
// overrides the CHIP-8 logical-to-physical key binding described in
// chip8input; a logical key absent from the map falls back to the identity
// mapping.
type Settings struct {
	ClockSpeedHz int            `json:"clockSpeedHz"`
	RomsPath     string         `json:"romsPath"`
	KeyMap       map[string]int `json:"keyMap"`
}

// defaultKeyMap is the same identity binding chip8input.ToPhysical returns:
// each hex digit maps to the physical key of the same ordinal (0-9 ->
// Numpad0-9, a-f -> KeyboardA-F). Settings seeds it
// explicitly rather than leaving KeyMap empty, so a saved settings.json is a
// legible starting point for hand-editing instead of an empty object.
var defaultKeyMap = map[string]int{
	"0": 0, "1": 1, "2": 2, "3": 3, "4": 4,
	"5": 5, "6": 6, "7": 7, "8": 8, "9": 9,
	"a": 10, "b": 11, "c": 12, "d": 13, "e": 14, "f": 15,
}

// DefaultSettings returns the settings a fresh install starts with.
func DefaultSettings() Settings {
	km := make(map[string]int, len(defaultKeyMap))
	for k, v := range defaultKeyMap {
		km[k] = v
	}
	return Settings{
		ClockSpeedHz: 700,
		RomsPath:     "./roms",
		KeyMap:       km,
	}
}

// Manager loads and saves Settings at a fixed path on disk.
type Manager struct {
	path string
}

// NewManager returns a Manager backed by path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Load reads settings from disk. If the file doesn't exist, it creates one
// with default settings and returns those defaults.
func (m *Manager) Load() (Settings, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			s := DefaultSettings()
			return s, m.Save(s)
		}
		return Settings{}, fmt.Errorf("config: failed to read settings file: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		log.Printf("config: could not parse %s, falling back to defaults: %v", m.path, err)
		s = DefaultSettings()
	}
	if s.RomsPath == "" {
		s.RomsPath = "./roms"
	}
	if s.KeyMap == nil {
		s.KeyMap = map[string]int{}
	}
	return s, nil
}

// Save writes s to disk as indented JSON, creating the parent directory if
// necessary.
func (m *Manager) Save(s Settings) error {
	dir := filepath.Dir(m.path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: could not create config directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("config: failed to marshal settings: %w", err)
	}
	return os.WriteFile(m.path, data, 0o644)
}

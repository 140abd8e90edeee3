package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m := NewManager(path)

	s, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.ClockSpeedHz != 700 || s.RomsPath != "./roms" {
		t.Fatalf("unexpected defaults: %+v", s)
	}

	again, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if again.ClockSpeedHz != s.ClockSpeedHz || again.RomsPath != s.RomsPath {
		t.Fatalf("expected persisted defaults to round-trip, got %+v vs %+v", again, s)
	}
}

func TestDefaultSettingsSeedsIdentityKeyMap(t *testing.T) {
	s := DefaultSettings()
	if len(s.KeyMap) != 16 {
		t.Fatalf("expected all 16 CHIP-8 keys bound by default, got %d entries: %+v", len(s.KeyMap), s.KeyMap)
	}
	for digit, want := range map[string]int{"0": 0, "9": 9, "a": 10, "f": 15} {
		if got, ok := s.KeyMap[digit]; !ok || got != want {
			t.Fatalf("expected default binding %q -> %d, got %d, ok=%v", digit, want, got, ok)
		}
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	m := NewManager(path)

	want := Settings{ClockSpeedHz: 1000000, RomsPath: "/roms", KeyMap: map[string]int{"q": 4}}
	if err := m.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ClockSpeedHz != want.ClockSpeedHz || got.RomsPath != want.RomsPath || got.KeyMap["q"] != 4 {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestLoadFallsBackOnParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	s, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.ClockSpeedHz != 700 {
		t.Fatalf("expected default fallback, got %+v", s)
	}
}

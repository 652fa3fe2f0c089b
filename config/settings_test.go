package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m := NewManager(path)

	settings, err := m.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.Server.Port != 8080 {
		t.Errorf("unexpected default port: %d", settings.Server.Port)
	}
	if settings.Library.Mode != LibraryModeDebrid {
		t.Errorf("unexpected default mode: %q", settings.Library.Mode)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("defaults not persisted: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m := NewManager(path)

	settings := DefaultSettings()
	settings.RealDebrid.APIKey = "rd-key"
	settings.Streaming.Mode = StreamingModeProxy
	if err := m.Save(settings); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := m.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.RealDebrid.APIKey != "rd-key" {
		t.Errorf("api key lost: %q", loaded.RealDebrid.APIKey)
	}
	if loaded.Streaming.Mode != StreamingModeProxy {
		t.Errorf("streaming mode lost: %q", loaded.Streaming.Mode)
	}
}

func TestLoadBackfillsOlderConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"realDebrid":{"apiKey":"rd-key"}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	settings, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.RealDebrid.APIKey != "rd-key" {
		t.Errorf("existing value lost: %q", settings.RealDebrid.APIKey)
	}
	if settings.Server.Port != 8080 || settings.Sync.IntervalSeconds != 60 {
		t.Errorf("missing fields not backfilled: port=%d interval=%d",
			settings.Server.Port, settings.Sync.IntervalSeconds)
	}
	if settings.Torrentio.Options == "" {
		t.Error("torrentio options not backfilled")
	}
}

func TestBaseURLFallsBackToPort(t *testing.T) {
	s := DefaultSettings()
	if got := s.BaseURL(); got != "http://localhost:8080" {
		t.Errorf("unexpected base URL: %q", got)
	}
	s.Server.PublicURL = "https://media.example.com/"
	if got := s.BaseURL(); got != "https://media.example.com" {
		t.Errorf("unexpected base URL: %q", got)
	}
}

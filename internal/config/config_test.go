package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("default backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Scraper.Interval != 6*time.Hour {
		t.Errorf("default interval = %v, want 6h", cfg.Scraper.Interval)
	}
	if len(cfg.Scraper.EnabledDrivers) == 0 {
		t.Error("expected default enabled drivers")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hamrss.yaml")

	yaml := `
scraper:
  max_items: 50
  enabled_drivers: [qth, randl]
storage:
  backend: mongodb
  uri: mongodb://localhost:27017
publisher:
  max_feed_items: 25
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Scraper.MaxItems != 50 {
		t.Errorf("max_items = %d, want 50", cfg.Scraper.MaxItems)
	}
	if len(cfg.Scraper.EnabledDrivers) != 2 || cfg.Scraper.EnabledDrivers[0] != "qth" {
		t.Errorf("enabled_drivers = %v, want [qth randl]", cfg.Scraper.EnabledDrivers)
	}
	if cfg.Storage.Backend != "mongodb" {
		t.Errorf("backend = %q, want mongodb", cfg.Storage.Backend)
	}
	// Unset keys keep defaults.
	if cfg.Fetcher.RequestTimeout != 30*time.Second {
		t.Errorf("request_timeout = %v, want 30s default", cfg.Fetcher.RequestTimeout)
	}
	if cfg.Publisher.MaxFeedItems != 25 {
		t.Errorf("max_feed_items = %d, want 25", cfg.Publisher.MaxFeedItems)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hamrss.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  backend: cassandra\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("backend = %q, want sqlite", cfg.Storage.Backend)
	}
}

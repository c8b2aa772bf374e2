// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithKoanfDefaults(t *testing.T) {
	t.Setenv("SOCRATA_URL", "https://data.example.gov/resource/cams.json")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Server.Port != 4326 {
		t.Errorf("Server.Port = %d, want 4326", cfg.Server.Port)
	}
	if cfg.Feeds.DefaultSource != "socrata" {
		t.Errorf("Feeds.DefaultSource = %q, want %q", cfg.Feeds.DefaultSource, "socrata")
	}
	if cfg.Feeds.Socrata.Timeout != 10*time.Second {
		t.Errorf("Feeds.Socrata.Timeout = %v, want 10s", cfg.Feeds.Socrata.Timeout)
	}
	if cfg.Feeds.ArcGIS.Timeout != 15*time.Second {
		t.Errorf("Feeds.ArcGIS.Timeout = %v, want 15s", cfg.Feeds.ArcGIS.Timeout)
	}
	if cfg.Registry.RevalidateInterval != 5*time.Minute {
		t.Errorf("Registry.RevalidateInterval = %v, want 5m", cfg.Registry.RevalidateInterval)
	}
	if cfg.Media.SnapshotInterval != 30*time.Second {
		t.Errorf("Media.SnapshotInterval = %v, want 30s", cfg.Media.SnapshotInterval)
	}
	if cfg.Media.MaxRecoveries != 3 {
		t.Errorf("Media.MaxRecoveries = %d, want 3", cfg.Media.MaxRecoveries)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoadWithKoanfEnvOverrides(t *testing.T) {
	t.Setenv("SOCRATA_URL", "https://data.example.gov/resource/cams.json")
	t.Setenv("ARCGIS_URL", "https://gis.example.gov/arcgis/rest/services/Cameras/FeatureServer/0")
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("DEFAULT_SOURCE", "arcgis")
	t.Setenv("SNAPSHOT_INTERVAL", "45s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Feeds.DefaultSource != "arcgis" {
		t.Errorf("Feeds.DefaultSource = %q, want %q", cfg.Feeds.DefaultSource, "arcgis")
	}
	if cfg.Feeds.ArcGIS.URL == "" {
		t.Error("Feeds.ArcGIS.URL not populated from ARCGIS_URL")
	}
	if cfg.Media.SnapshotInterval != 45*time.Second {
		t.Errorf("Media.SnapshotInterval = %v, want 45s", cfg.Media.SnapshotInterval)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoadWithKoanfCORSOriginsFromEnv(t *testing.T) {
	t.Setenv("SOCRATA_URL", "https://data.example.gov/resource/cams.json")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.API.CORSOrigins) != len(want) {
		t.Fatalf("API.CORSOrigins = %v, want %v", cfg.API.CORSOrigins, want)
	}
	for i, origin := range want {
		if cfg.API.CORSOrigins[i] != origin {
			t.Errorf("API.CORSOrigins[%d] = %q, want %q", i, cfg.API.CORSOrigins[i], origin)
		}
	}
}

func TestLoadWithKoanfConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
feeds:
  socrata:
    url: https://data.example.gov/resource/cams.json
    timeout: 20s
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Feeds.Socrata.Timeout != 20*time.Second {
		t.Errorf("Feeds.Socrata.Timeout = %v, want 20s", cfg.Feeds.Socrata.Timeout)
	}
}

func TestValidateRejectsMissingFeeds(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error when no feed URL is configured")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"invalid default source", func(c *Config) { c.Feeds.DefaultSource = "rss" }},
		{"port out of range", func(c *Config) { c.Server.Port = 0 }},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"non-url socrata endpoint", func(c *Config) { c.Feeds.Socrata.URL = "not a url" }},
		{"zero max recoveries", func(c *Config) { c.Media.MaxRecoveries = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Feeds.Socrata.URL = "https://data.example.gov/resource/cams.json"
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

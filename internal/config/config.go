// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

// Package config loads and validates TrafficLens configuration using Koanf v2
// with layered sources: built-in defaults, an optional YAML config file, and
// environment variables (highest priority).
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the TrafficLens server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Feeds    FeedsConfig    `koanf:"feeds"`
	Registry RegistryConfig `koanf:"registry"`
	Media    MediaConfig    `koanf:"media"`
	API      APIConfig      `koanf:"api"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Port defaults to 4326, after EPSG:4326 (WGS 84), the coordinate
	// system the canonical camera record's location uses.
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Host    string        `koanf:"host" validate:"required"`
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`
}

// FeedsConfig holds upstream feed endpoints and per-adapter bounds.
type FeedsConfig struct {
	// DefaultSource is the feed served when a client does not pick one.
	DefaultSource string `koanf:"default_source" validate:"oneof=socrata arcgis"`

	Socrata SocrataConfig `koanf:"socrata"`
	ArcGIS  ArcGISConfig  `koanf:"arcgis"`
}

// SocrataConfig configures the Socrata (tabular) feed adapter.
type SocrataConfig struct {
	URL string `koanf:"url" validate:"omitempty,url"`

	// Timeout bounds one fetch; the in-flight request is cancelled on expiry.
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`
}

// ArcGISConfig configures the ArcGIS (GeoJSON feature service) feed adapter.
type ArcGISConfig struct {
	URL     string        `koanf:"url" validate:"omitempty,url"`
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`
}

// RegistryConfig configures the camera registry's revalidation behavior.
type RegistryConfig struct {
	// RevalidateInterval is the automatic revalidation cadence for the
	// active feed key.
	RevalidateInterval time.Duration `koanf:"revalidate_interval" validate:"min=10s"`

	// ManualRevalidatePerMinute caps manual revalidation triggers so a
	// dashboard refresh loop cannot hammer the upstream feeds.
	ManualRevalidatePerMinute int `koanf:"manual_revalidate_per_minute" validate:"min=1"`
}

// MediaConfig configures per-camera media lifecycle controllers.
type MediaConfig struct {
	// SnapshotInterval is the cache-busting snapshot refresh cadence while a
	// visible card is not streaming.
	SnapshotInterval time.Duration `koanf:"snapshot_interval" validate:"min=1s"`

	// AttachTimeout bounds the manifest/metadata load when attaching a stream.
	AttachTimeout time.Duration `koanf:"attach_timeout" validate:"min=1s"`

	// PollInterval is the live-playlist liveness poll cadence while streaming.
	PollInterval time.Duration `koanf:"poll_interval" validate:"min=1s"`

	// MaxRecoveries is the number of consecutive recoverable-error resync
	// attempts before a stream failure becomes fatal.
	MaxRecoveries int `koanf:"max_recoveries" validate:"min=1"`
}

// APIConfig holds API middleware settings.
type APIConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"min=1s"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are applied
// first, then overridden by config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    4326,
			Host:    "0.0.0.0",
			Timeout: 30 * time.Second,
		},
		Feeds: FeedsConfig{
			DefaultSource: "socrata",
			Socrata: SocrataConfig{
				URL:     "",
				Timeout: 10 * time.Second,
			},
			ArcGIS: ArcGISConfig{
				URL:     "",
				Timeout: 15 * time.Second,
			},
		},
		Registry: RegistryConfig{
			RevalidateInterval:        5 * time.Minute,
			ManualRevalidatePerMinute: 12,
		},
		Media: MediaConfig{
			SnapshotInterval: 30 * time.Second,
			AttachTimeout:    10 * time.Second,
			PollInterval:     6 * time.Second,
			MaxRecoveries:    3,
		},
		API: APIConfig{
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Feeds.Socrata.URL == "" && c.Feeds.ArcGIS.URL == "" {
		return fmt.Errorf("invalid configuration: at least one feed URL must be set (SOCRATA_URL or ARCGIS_URL)")
	}
	return nil
}

// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

// Package models defines the canonical camera record shared by every layer of
// TrafficLens. Both feed adapters normalize into this shape; the registry,
// media controllers, API, and WebSocket push all consume it unchanged.
package models

import (
	"math"
	"strconv"
)

// Coordinate is the raw projected/display coordinate of a camera, kept as
// strings in source-specific units. Display-only; never used for map placement.
type Coordinate struct {
	X string `json:"x"`
	Y string `json:"y"`
}

// GeoLocation is the geographic coordinate of a camera as decimal-degree
// strings. Required for map placement; map rendering skips records whose
// values do not parse as finite numbers.
type GeoLocation struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// Valid reports whether both latitude and longitude parse as finite numbers.
func (g GeoLocation) Valid() bool {
	return isFinite(g.Latitude) && isFinite(g.Longitude)
}

// CameraRecord is the normalized, source-independent representation of one
// traffic camera.
//
// Invariants:
//   - Label is always non-empty (synthesized by the adapter when absent).
//   - SnapshotURL is always non-empty; a record without one never survives
//     normalization.
//   - SnapshotURL doubles as the stable per-camera identity key for list
//     rendering and snapshot cache-busting; Label uniqueness is not required.
//
// Records are immutable once emitted: a fetch always produces a fresh list
// that replaces the previous one wholesale.
type CameraRecord struct {
	Label       string      `json:"label"`
	SnapshotURL string      `json:"snapshot_url"`
	StreamURL   string      `json:"stream_url,omitempty"`
	DetailURL   string      `json:"detail_url,omitempty"`
	Coordinate  Coordinate  `json:"coordinate"`
	Location    GeoLocation `json:"location"`
}

// HasStream reports whether the camera offers an adaptive-video endpoint.
// Cards without one never offer a play action.
func (c CameraRecord) HasStream() bool {
	return c.StreamURL != ""
}

// Mappable reports whether the record carries a usable geographic coordinate.
func (c CameraRecord) Mappable() bool {
	return c.Location.Valid()
}

// isFinite reports whether s parses as a finite float64.
func isFinite(s string) bool {
	if s == "" {
		return false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false
	}
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

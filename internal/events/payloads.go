// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

package events

import (
	"time"

	"github.com/tomtom215/trafficlens/internal/models"
)

// CamerasUpdated is published on TopicCamerasUpdated when the registry
// replaces the camera list for its active key.
type CamerasUpdated struct {
	Source    string                `json:"source"`
	Endpoint  string                `json:"endpoint"`
	Cameras   []models.CameraRecord `json:"cameras"`
	FetchedAt time.Time             `json:"fetched_at"`
}

// FeedError is published on TopicFeedError when a revalidation fails. The
// registry keeps serving its last good list; this event lets the dashboard
// show a non-blocking error banner.
type FeedError struct {
	Source   string `json:"source"`
	Endpoint string `json:"endpoint"`
	Error    string `json:"error"`
	Stale    bool   `json:"stale"` // true when a previous good list is still being served
}

// MediaState is published on TopicMediaState on every media lifecycle
// transition. Camera is the record's snapshot URL, its identity key.
type MediaState struct {
	Camera string `json:"camera"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

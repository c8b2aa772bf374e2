// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

// Package media owns the per-camera media lifecycle: the transition between
// still snapshots and live stream playback for one camera card.
//
// Each card gets one Controller, the sole owner of its lifecycle state. The
// view layer reports intents (play pressed, card scrolled away) and renders
// whatever state the controller settles on; it never flips state itself. A
// camera without a stream URL never leaves the Snapshot/Suspended pair.
package media

// State is the media lifecycle state of one camera card.
type State int

const (
	// StateSnapshot shows periodically refreshed stills. Initial state.
	StateSnapshot State = iota

	// StateStreamAttaching is the window between a requested stream start
	// and a loaded manifest.
	StateStreamAttaching

	// StateStreamActive is live playback.
	StateStreamActive

	// StateSuspended is off-viewport: no playback, no snapshot refreshes,
	// all media resources released.
	StateSuspended
)

// String returns the state name for logs and events.
func (s State) String() string {
	switch s {
	case StateSnapshot:
		return "snapshot"
	case StateStreamAttaching:
		return "stream_attaching"
	case StateStreamActive:
		return "stream_active"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Streaming reports whether s holds stream resources that must be released
// on exit.
func (s State) Streaming() bool {
	return s == StateStreamAttaching || s == StateStreamActive
}

// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

// Package registry holds the canonical camera lists fetched from upstream
// feeds and keeps them fresh.
//
// The registry is a stale-while-revalidate cache keyed by (source, endpoint).
// A revalidation never blanks what is already on screen: the previous list is
// served until the replacement arrives, and a failed fetch retains the last
// good list while surfacing the error alongside it. Lists are replaced
// wholesale; readers never observe a partially updated list.
//
// Concurrent revalidations of the same key resolve last-request-wins: every
// revalidation bumps the key's generation, and a fetch result carrying a
// stale generation is discarded no matter when it arrives. Switching the
// active key cancels the superseded key's in-flight fetch.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/trafficlens/internal/events"
	"github.com/tomtom215/trafficlens/internal/feed"
	"github.com/tomtom215/trafficlens/internal/logging"
	"github.com/tomtom215/trafficlens/internal/metrics"
	"github.com/tomtom215/trafficlens/internal/models"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned by Revalidate when manual refreshes arrive
// faster than the configured budget.
var ErrRateLimited = errors.New("registry: manual revalidation rate limit exceeded")

// ErrUnknownSource is returned when a key names a source with no registered
// adapter.
var ErrUnknownSource = errors.New("registry: unknown feed source")

// Key identifies one upstream feed.
type Key struct {
	Source   feed.Source `json:"source"`
	Endpoint string      `json:"endpoint"`
}

// Trigger names what started a revalidation, for logs and metrics.
type Trigger string

const (
	// TriggerSwitch is a revalidation caused by the active key changing.
	TriggerSwitch Trigger = "switch"

	// TriggerInterval is the periodic background revalidation.
	TriggerInterval Trigger = "interval"

	// TriggerManual is a user-requested refresh.
	TriggerManual Trigger = "manual"
)

// Snapshot is a point-in-time view of one key's state. Cameras is a copy;
// callers may hold it indefinitely.
type Snapshot struct {
	Key       Key
	Cameras   []models.CameraRecord
	Err       error
	Loading   bool
	FetchedAt time.Time
}

// entry is the per-key cache state. generation guards last-request-wins:
// apply paths compare their captured generation against the current one and
// drop the result on mismatch.
type entry struct {
	cameras    []models.CameraRecord
	err        error
	fetchedAt  time.Time
	loading    bool
	generation uint64
	cancel     context.CancelFunc
}

// Registry owns the cached camera lists and their revalidation.
type Registry struct {
	adapters map[feed.Source]feed.Adapter
	bus      *events.Bus
	limiter  *rate.Limiter

	mu      sync.Mutex
	entries map[Key]*entry
	active  Key
	closed  bool
}

// New creates a registry over the given adapters. manualPerMinute caps
// user-triggered revalidations; bus may be nil in tests.
func New(adapters map[feed.Source]feed.Adapter, bus *events.Bus, manualPerMinute int) *Registry {
	if manualPerMinute <= 0 {
		manualPerMinute = 12
	}
	return &Registry{
		adapters: adapters,
		bus:      bus,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(manualPerMinute)), manualPerMinute),
		entries:  make(map[Key]*entry),
	}
}

// Use makes key the active feed. If the key changes, the superseded key's
// in-flight fetch is cancelled and a revalidation of the new key starts.
// Cached cameras for the new key keep being served while it revalidates.
func (r *Registry) Use(key Key) error {
	if _, ok := r.adapters[key.Source]; !ok {
		return ErrUnknownSource
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	if r.active == key {
		r.mu.Unlock()
		return nil
	}
	if prev, ok := r.entries[r.active]; ok && prev.cancel != nil {
		// Bump the generation too so the cancelled fetch's error result is
		// discarded instead of landing in the superseded entry.
		prev.cancel()
		prev.cancel = nil
		prev.generation++
		prev.loading = false
	}
	r.active = key
	r.mu.Unlock()

	r.revalidate(key, TriggerSwitch)
	return nil
}

// Active returns the currently active key.
func (r *Registry) Active() Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Revalidate starts a manual revalidation of key. Manual refreshes are rate
// limited; within budget they supersede any in-flight automatic fetch of the
// same key.
func (r *Registry) Revalidate(key Key) error {
	if _, ok := r.adapters[key.Source]; !ok {
		return ErrUnknownSource
	}
	if !r.limiter.Allow() {
		return ErrRateLimited
	}
	r.revalidate(key, TriggerManual)
	return nil
}

// RevalidateActive revalidates the current active key. Used by the periodic
// revalidation service; a zero-value active key means Use was never called
// and there is nothing to refresh.
func (r *Registry) RevalidateActive() {
	r.mu.Lock()
	key := r.active
	r.mu.Unlock()
	if key == (Key{}) {
		return
	}
	r.revalidate(key, TriggerInterval)
}

// Snapshot returns the current view of key. The camera slice is a copy.
func (r *Registry) Snapshot(key Key) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return Snapshot{Key: key}
	}
	cameras := make([]models.CameraRecord, len(e.cameras))
	copy(cameras, e.cameras)
	return Snapshot{
		Key:       key,
		Cameras:   cameras,
		Err:       e.err,
		Loading:   e.loading,
		FetchedAt: e.fetchedAt,
	}
}

// Close cancels every in-flight fetch. The registry serves its cached state
// afterwards but starts no new fetches.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for _, e := range r.entries {
		if e.cancel != nil {
			// Bump the generation so the cancelled fetch's context.Canceled
			// result is discarded instead of landing as the entry's error.
			e.cancel()
			e.cancel = nil
			e.generation++
		}
		e.loading = false
	}
}

// revalidate bumps key's generation, cancels the key's previous in-flight
// fetch, and fetches in the background. The result is applied only if the
// generation still matches when it arrives.
func (r *Registry) revalidate(key Key, trigger Trigger) {
	adapter := r.adapters[key.Source]

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.generation++
	gen := e.generation
	e.loading = true
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	r.mu.Unlock()

	go func() {
		records, err := adapter.Fetch(ctx, key.Endpoint)
		cancel()
		r.apply(key, gen, trigger, records, err)
	}()
}

// apply installs a fetch result, unless a newer revalidation of the same key
// superseded it.
func (r *Registry) apply(key Key, gen uint64, trigger Trigger, records []models.CameraRecord, err error) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok || e.generation != gen {
		r.mu.Unlock()
		metrics.RegistryStaleResultsDiscarded.WithLabelValues(string(key.Source)).Inc()
		logging.Debug().
			Str("source", string(key.Source)).
			Str("endpoint", key.Endpoint).
			Msg("discarding stale fetch result")
		return
	}

	e.loading = false
	e.cancel = nil

	if err != nil {
		// Keep the last good list; the error rides alongside it.
		e.err = err
		stale := len(e.cameras) > 0
		r.mu.Unlock()

		metrics.RegistryRevalidations.WithLabelValues(string(key.Source), string(trigger), "error").Inc()
		logging.Err(err).
			Str("source", string(key.Source)).
			Str("endpoint", key.Endpoint).
			Str("trigger", string(trigger)).
			Bool("serving_stale", stale).
			Msg("feed revalidation failed")

		if r.bus != nil {
			_ = r.bus.Publish(events.TopicFeedError, events.FeedError{
				Source:   string(key.Source),
				Endpoint: key.Endpoint,
				Error:    err.Error(),
				Stale:    stale,
			})
		}
		return
	}

	now := time.Now().UTC()
	e.cameras = records
	e.err = nil
	e.fetchedAt = now
	r.mu.Unlock()

	metrics.RegistryRevalidations.WithLabelValues(string(key.Source), string(trigger), "success").Inc()
	metrics.RegistryCameras.WithLabelValues(string(key.Source)).Set(float64(len(records)))
	logging.Info().
		Str("source", string(key.Source)).
		Str("endpoint", key.Endpoint).
		Str("trigger", string(trigger)).
		Int("cameras", len(records)).
		Msg("camera list refreshed")

	if r.bus != nil {
		_ = r.bus.Publish(events.TopicCamerasUpdated, events.CamerasUpdated{
			Source:    string(key.Source),
			Endpoint:  key.Endpoint,
			Cameras:   records,
			FetchedAt: now,
		})
	}
}

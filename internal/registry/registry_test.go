// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

package registry

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/trafficlens/internal/feed"
	"github.com/tomtom215/trafficlens/internal/logging"
	"github.com/tomtom215/trafficlens/internal/models"
)

//nolint:gochecknoinits // silence log output during tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// scriptedAdapter resolves fetches on demand so tests control exactly when
// and in what order results arrive.
type scriptedAdapter struct {
	source feed.Source

	mu      sync.Mutex
	pending map[string]chan fetchResult
}

type fetchResult struct {
	records []models.CameraRecord
	err     error
}

func newScriptedAdapter(source feed.Source) *scriptedAdapter {
	return &scriptedAdapter{source: source, pending: make(map[string]chan fetchResult)}
}

func (a *scriptedAdapter) Source() feed.Source { return a.source }

func (a *scriptedAdapter) Fetch(ctx context.Context, endpoint string) ([]models.CameraRecord, error) {
	a.mu.Lock()
	ch, ok := a.pending[endpoint]
	if !ok {
		ch = make(chan fetchResult, 1)
		a.pending[endpoint] = ch
	}
	a.mu.Unlock()

	select {
	case res := <-ch:
		return res.records, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolve completes the in-flight (or next) fetch for endpoint.
func (a *scriptedAdapter) resolve(endpoint string, records []models.CameraRecord, err error) {
	a.mu.Lock()
	ch, ok := a.pending[endpoint]
	if !ok {
		ch = make(chan fetchResult, 1)
		a.pending[endpoint] = ch
	}
	a.mu.Unlock()
	ch <- fetchResult{records: records, err: err}
}

func cameras(labels ...string) []models.CameraRecord {
	recs := make([]models.CameraRecord, len(labels))
	for i, l := range labels {
		recs[i] = models.CameraRecord{Label: l, SnapshotURL: "http://x/" + l + ".jpg"}
	}
	return recs
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func newTestRegistry(adapter *scriptedAdapter) *Registry {
	return New(map[feed.Source]feed.Adapter{adapter.source: adapter}, nil, 100)
}

func TestUseFetchesAndServes(t *testing.T) {
	adapter := newScriptedAdapter(feed.SourceSocrata)
	r := newTestRegistry(adapter)
	defer r.Close()

	key := Key{Source: feed.SourceSocrata, Endpoint: "http://feed/a"}
	if err := r.Use(key); err != nil {
		t.Fatalf("Use() error = %v", err)
	}

	if snap := r.Snapshot(key); !snap.Loading {
		t.Error("Snapshot().Loading = false during initial fetch")
	}

	adapter.resolve("http://feed/a", cameras("one", "two"), nil)
	waitFor(t, func() bool { return len(r.Snapshot(key).Cameras) == 2 })

	snap := r.Snapshot(key)
	if snap.Loading || snap.Err != nil {
		t.Errorf("Snapshot() = %+v, want settled without error", snap)
	}
}

func TestUseUnknownSource(t *testing.T) {
	adapter := newScriptedAdapter(feed.SourceSocrata)
	r := newTestRegistry(adapter)
	defer r.Close()

	err := r.Use(Key{Source: "rss", Endpoint: "http://feed"})
	if !errors.Is(err, ErrUnknownSource) {
		t.Errorf("Use() error = %v, want ErrUnknownSource", err)
	}
}

func TestFailedRevalidationServesStale(t *testing.T) {
	adapter := newScriptedAdapter(feed.SourceSocrata)
	r := newTestRegistry(adapter)
	defer r.Close()

	key := Key{Source: feed.SourceSocrata, Endpoint: "http://feed/a"}
	if err := r.Use(key); err != nil {
		t.Fatalf("Use() error = %v", err)
	}
	adapter.resolve("http://feed/a", cameras("one"), nil)
	waitFor(t, func() bool { return len(r.Snapshot(key).Cameras) == 1 })

	if err := r.Revalidate(key); err != nil {
		t.Fatalf("Revalidate() error = %v", err)
	}
	// Stale list keeps serving while the refetch is in flight.
	if snap := r.Snapshot(key); len(snap.Cameras) != 1 || !snap.Loading {
		t.Errorf("mid-revalidation Snapshot() = %+v, want stale list with Loading", snap)
	}

	adapter.resolve("http://feed/a", nil, errors.New("upstream down"))
	waitFor(t, func() bool { return r.Snapshot(key).Err != nil })

	snap := r.Snapshot(key)
	if len(snap.Cameras) != 1 {
		t.Errorf("Snapshot().Cameras = %d records after failure, want last good list", len(snap.Cameras))
	}
	if snap.Err == nil || snap.Loading {
		t.Errorf("Snapshot() = %+v, want surfaced error and settled state", snap)
	}
}

func TestRecoveryClearsError(t *testing.T) {
	adapter := newScriptedAdapter(feed.SourceSocrata)
	r := newTestRegistry(adapter)
	defer r.Close()

	key := Key{Source: feed.SourceSocrata, Endpoint: "http://feed/a"}
	if err := r.Use(key); err != nil {
		t.Fatalf("Use() error = %v", err)
	}
	adapter.resolve("http://feed/a", nil, errors.New("upstream down"))
	waitFor(t, func() bool { return r.Snapshot(key).Err != nil })

	if err := r.Revalidate(key); err != nil {
		t.Fatalf("Revalidate() error = %v", err)
	}
	adapter.resolve("http://feed/a", cameras("one"), nil)
	waitFor(t, func() bool { return r.Snapshot(key).Err == nil && len(r.Snapshot(key).Cameras) == 1 })
}

func TestKeySwitchRace(t *testing.T) {
	adapter := newScriptedAdapter(feed.SourceArcGIS)
	r := newTestRegistry(adapter)
	defer r.Close()

	keyA := Key{Source: feed.SourceArcGIS, Endpoint: "http://feed/a"}
	keyB := Key{Source: feed.SourceArcGIS, Endpoint: "http://feed/b"}

	// Request A, then switch to B before A resolves.
	if err := r.Use(keyA); err != nil {
		t.Fatalf("Use(A) error = %v", err)
	}
	if err := r.Use(keyB); err != nil {
		t.Fatalf("Use(B) error = %v", err)
	}

	// B resolves first, then A straggles in.
	adapter.resolve("http://feed/b", cameras("b1", "b2"), nil)
	waitFor(t, func() bool { return len(r.Snapshot(keyB).Cameras) == 2 })
	adapter.resolve("http://feed/a", cameras("a1"), nil)

	time.Sleep(50 * time.Millisecond)

	if r.Active() != keyB {
		t.Errorf("Active() = %+v, want keyB", r.Active())
	}
	snapB := r.Snapshot(keyB)
	if len(snapB.Cameras) != 2 || snapB.Cameras[0].Label != "b1" {
		t.Errorf("Snapshot(B) = %+v, want B's cameras untouched by A's late result", snapB)
	}
	// A's fetch was cancelled on the switch; its straggling result must not
	// have been installed.
	snapA := r.Snapshot(keyA)
	if len(snapA.Cameras) != 0 {
		t.Errorf("Snapshot(A).Cameras = %d records, want superseded result discarded", len(snapA.Cameras))
	}
}

func TestLastRequestWinsSameKey(t *testing.T) {
	adapter := newScriptedAdapter(feed.SourceSocrata)
	r := newTestRegistry(adapter)
	defer r.Close()

	key := Key{Source: feed.SourceSocrata, Endpoint: "http://feed/a"}
	if err := r.Use(key); err != nil {
		t.Fatalf("Use() error = %v", err)
	}

	// The first fetch is superseded by a manual refresh before resolving.
	// Its context is cancelled, so resolve the second fetch and verify the
	// first never lands.
	if err := r.Revalidate(key); err != nil {
		t.Fatalf("Revalidate() error = %v", err)
	}
	adapter.resolve("http://feed/a", cameras("fresh"), nil)
	waitFor(t, func() bool {
		snap := r.Snapshot(key)
		return len(snap.Cameras) == 1 && snap.Cameras[0].Label == "fresh"
	})

	adapter.resolve("http://feed/a", cameras("stale-one", "stale-two"), nil)
	time.Sleep(50 * time.Millisecond)

	snap := r.Snapshot(key)
	if len(snap.Cameras) != 1 || snap.Cameras[0].Label != "fresh" {
		t.Errorf("Snapshot() = %+v, want superseded fetch discarded", snap)
	}
}

func TestManualRevalidateRateLimit(t *testing.T) {
	adapter := newScriptedAdapter(feed.SourceSocrata)
	r := New(map[feed.Source]feed.Adapter{adapter.source: adapter}, nil, 2)
	defer r.Close()

	key := Key{Source: feed.SourceSocrata, Endpoint: "http://feed/a"}

	var limited bool
	for i := 0; i < 5; i++ {
		if err := r.Revalidate(key); errors.Is(err, ErrRateLimited) {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("Revalidate() never returned ErrRateLimited under a burst")
	}
}

func TestSnapshotReturnsCopy(t *testing.T) {
	adapter := newScriptedAdapter(feed.SourceSocrata)
	r := newTestRegistry(adapter)
	defer r.Close()

	key := Key{Source: feed.SourceSocrata, Endpoint: "http://feed/a"}
	if err := r.Use(key); err != nil {
		t.Fatalf("Use() error = %v", err)
	}
	adapter.resolve("http://feed/a", cameras("one"), nil)
	waitFor(t, func() bool { return len(r.Snapshot(key).Cameras) == 1 })

	snap := r.Snapshot(key)
	snap.Cameras[0].Label = "mutated"

	if got := r.Snapshot(key).Cameras[0].Label; got != "one" {
		t.Errorf("registry state mutated through a snapshot: Label = %q", got)
	}
}

func TestCloseDiscardsInFlightResult(t *testing.T) {
	adapter := newScriptedAdapter(feed.SourceSocrata)
	r := newTestRegistry(adapter)

	key := Key{Source: feed.SourceSocrata, Endpoint: "http://feed/a"}
	if err := r.Use(key); err != nil {
		t.Fatalf("Use() error = %v", err)
	}
	adapter.resolve("http://feed/a", cameras("one"), nil)
	waitFor(t, func() bool { return len(r.Snapshot(key).Cameras) == 1 })

	// Start a second revalidation and close while it is in flight; Close
	// cancels the fetch, and its context.Canceled result must be discarded
	// rather than installed as the entry's error.
	if err := r.Revalidate(key); err != nil {
		t.Fatalf("Revalidate() error = %v", err)
	}
	waitFor(t, func() bool { return r.Snapshot(key).Loading })

	r.Close()

	// The cancelled fetch unblocks on its context; give its result path a
	// beat to run before checking it left no trace.
	time.Sleep(50 * time.Millisecond)
	snap := r.Snapshot(key)
	if snap.Err != nil {
		t.Errorf("Snapshot().Err = %v after Close, want the cached state untouched", snap.Err)
	}
	if snap.Loading {
		t.Error("Snapshot().Loading = true after Close")
	}
	if len(snap.Cameras) != 1 || snap.Cameras[0].Label != "one" {
		t.Errorf("cameras after Close = %+v, want the last good list", snap.Cameras)
	}
}

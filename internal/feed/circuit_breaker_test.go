// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

package feed

import (
	"context"
	"errors"
	"testing"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/tomtom215/trafficlens/internal/models"
)

// fakeAdapter returns canned results for breaker tests.
type fakeAdapter struct {
	source  Source
	records []models.CameraRecord
	err     error
	calls   int
}

func (f *fakeAdapter) Source() Source { return f.source }

func (f *fakeAdapter) Fetch(_ context.Context, endpoint string) ([]models.CameraRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, &FetchError{Source: f.source, Endpoint: endpoint, Err: f.err}
	}
	return f.records, nil
}

func TestBreakerPassesThroughSuccess(t *testing.T) {
	want := []models.CameraRecord{{Label: "A", SnapshotURL: "http://x/a.jpg"}}
	adapter := &fakeAdapter{source: SourceSocrata, records: want}
	b := NewBreaker(adapter)

	got, err := b.Fetch(context.Background(), "http://feed")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("Fetch() = %+v, want %+v", got, want)
	}
	if b.Source() != SourceSocrata {
		t.Errorf("Source() = %q, want socrata", b.Source())
	}
}

func TestBreakerOpensAfterSustainedFailures(t *testing.T) {
	adapter := &fakeAdapter{source: SourceArcGIS, err: errors.New("connection refused")}
	b := NewBreaker(adapter)

	// Ten consecutive failures cross the 60%-of-10 trip threshold.
	for i := 0; i < 10; i++ {
		if _, err := b.Fetch(context.Background(), "http://feed"); err == nil {
			t.Fatalf("Fetch() %d = nil error, want failure", i)
		}
	}

	callsBefore := adapter.calls
	_, err := b.Fetch(context.Background(), "http://feed")

	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("Fetch() error = %v, want *FetchError", err)
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Fetch() error = %v, want ErrOpenState in chain", err)
	}
	if adapter.calls != callsBefore {
		t.Error("open breaker must reject without calling the adapter")
	}
}

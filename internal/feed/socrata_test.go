// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/trafficlens/internal/models"
)

const socrataFixture = `[
	{
		"cameralabel": "1 Ave S & S Spokane St",
		"imageurl": {"url": "https://cams.example.gov/1.jpg"},
		"video_url": {"url": "https://cams.example.gov/1.m3u8"},
		"web_url": {"url": "https://example.gov/cameras/1"},
		"x_coord": "1267526",
		"y_coord": "212897",
		"location": {"latitude": "47.571984", "longitude": "-122.334522"}
	},
	{
		"cameralabel": "No Snapshot Camera",
		"x_coord": "1267000",
		"y_coord": "212000",
		"location": {"latitude": "47.57", "longitude": "-122.33"}
	},
	{
		"cameralabel": "",
		"imageurl": {"url": "https://cams.example.gov/3.jpg"},
		"location": {"latitude": "47.58", "longitude": "-122.32"}
	}
]`

func TestSocrataAdapterFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(socrataFixture))
	}))
	defer srv.Close()

	adapter := NewSocrataAdapter(0)
	records, err := adapter.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	// Row 2 has no snapshot and is dropped; row 3 gets a synthesized label.
	if len(records) != 2 {
		t.Fatalf("Fetch() returned %d records, want 2", len(records))
	}

	want := models.CameraRecord{
		Label:       "1 Ave S & S Spokane St",
		SnapshotURL: "https://cams.example.gov/1.jpg",
		StreamURL:   "https://cams.example.gov/1.m3u8",
		DetailURL:   "https://example.gov/cameras/1",
		Coordinate:  models.Coordinate{X: "1267526", Y: "212897"},
		Location:    models.GeoLocation{Latitude: "47.571984", Longitude: "-122.334522"},
	}
	if records[0] != want {
		t.Errorf("Fetch()[0] = %+v, want %+v", records[0], want)
	}

	if records[1].Label != "Camera 3" {
		t.Errorf("Fetch()[1].Label = %q, want synthesized %q", records[1].Label, "Camera 3")
	}
	if !records[1].Mappable() {
		t.Error("Fetch()[1] should carry a valid geographic coordinate")
	}
	if records[1].HasStream() {
		t.Error("Fetch()[1] has no video_url and must not report a stream")
	}
}

func TestSocrataAdapterFetchStatusError(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"rate limited", http.StatusTooManyRequests},
		{"upstream down", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			adapter := NewSocrataAdapter(0)
			_, err := adapter.Fetch(context.Background(), srv.URL)

			var ferr *FetchError
			if !errors.As(err, &ferr) {
				t.Fatalf("Fetch() error = %v, want *FetchError", err)
			}
			if ferr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", ferr.StatusCode, tt.status)
			}
		})
	}
}

func TestSocrataAdapterFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	adapter := NewSocrataAdapter(50 * time.Millisecond)
	start := time.Now()
	_, err := adapter.Fetch(context.Background(), srv.URL)
	elapsed := time.Since(start)

	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("Fetch() error = %v, want *FetchError", err)
	}
	if !ferr.Timeout() {
		t.Errorf("Timeout() = false, want true; err = %v", ferr.Err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("fetch took %v; the timeout must cancel the in-flight request", elapsed)
	}
}

func TestSocrataAdapterFetchDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not": "an array"}`))
	}))
	defer srv.Close()

	adapter := NewSocrataAdapter(0)
	_, err := adapter.Fetch(context.Background(), srv.URL)

	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("Fetch() error = %v, want *FetchError", err)
	}
	if ferr.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0 for decode failure", ferr.StatusCode)
	}
}

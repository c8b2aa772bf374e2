// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

package feed

import (
	"context"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tomtom215/trafficlens/internal/logging"
	"github.com/tomtom215/trafficlens/internal/metrics"
	"github.com/tomtom215/trafficlens/internal/models"
)

// DefaultSocrataTimeout bounds one Socrata fetch.
const DefaultSocrataTimeout = 10 * time.Second

// socrataURL is the nested URL object Socrata uses for media columns.
type socrataURL struct {
	URL string `json:"url"`
}

// socrataCamera mirrors one row of the curated dataset. The columns already
// align with the canonical record; no heuristic scanning is needed here.
type socrataCamera struct {
	CameraLabel string      `json:"cameralabel"`
	ImageURL    *socrataURL `json:"imageurl"`
	VideoURL    *socrataURL `json:"video_url"`
	WebURL      *socrataURL `json:"web_url"`
	XCoord      string      `json:"x_coord"`
	YCoord      string      `json:"y_coord"`
	Location    struct {
		Latitude  string `json:"latitude"`
		Longitude string `json:"longitude"`
	} `json:"location"`
}

// SocrataAdapter fetches a curated Socrata camera dataset.
type SocrataAdapter struct {
	client  *http.Client
	timeout time.Duration
}

// NewSocrataAdapter creates a Socrata adapter with the given per-fetch
// timeout. A non-positive timeout falls back to DefaultSocrataTimeout.
func NewSocrataAdapter(timeout time.Duration) *SocrataAdapter {
	if timeout <= 0 {
		timeout = DefaultSocrataTimeout
	}
	return &SocrataAdapter{
		client:  &http.Client{},
		timeout: timeout,
	}
}

// Source identifies the adapter family.
func (a *SocrataAdapter) Source() Source {
	return SourceSocrata
}

// Fetch retrieves the dataset and maps each row onto the canonical record.
// Rows without a snapshot URL are dropped; labels are synthesized when the
// dataset leaves them blank.
func (a *SocrataAdapter) Fetch(ctx context.Context, endpoint string) ([]models.CameraRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Source: SourceSocrata, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		ferr := wrapTransportError(err, SourceSocrata, endpoint)
		metrics.FeedFetchErrors.WithLabelValues(string(SourceSocrata), errorReason(ferr.(*FetchError))).Inc()
		return nil, ferr
	}
	defer resp.Body.Close() //nolint:errcheck // read-side close

	if err := checkStatus(resp, SourceSocrata, endpoint); err != nil {
		metrics.FeedFetchErrors.WithLabelValues(string(SourceSocrata), "status").Inc()
		return nil, err
	}

	var rows []socrataCamera
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		metrics.FeedFetchErrors.WithLabelValues(string(SourceSocrata), "decode").Inc()
		return nil, &FetchError{Source: SourceSocrata, Endpoint: endpoint, Err: err}
	}

	records := make([]models.CameraRecord, 0, len(rows))
	for i, row := range rows {
		if row.ImageURL == nil || row.ImageURL.URL == "" {
			metrics.FeedRecordsSkipped.WithLabelValues(string(SourceSocrata), "no_snapshot").Inc()
			continue
		}

		label := row.CameraLabel
		if label == "" {
			label = "Camera " + strconv.Itoa(i+1)
		}

		rec := models.CameraRecord{
			Label:       label,
			SnapshotURL: row.ImageURL.URL,
			Coordinate:  models.Coordinate{X: row.XCoord, Y: row.YCoord},
			Location: models.GeoLocation{
				Latitude:  row.Location.Latitude,
				Longitude: row.Location.Longitude,
			},
		}
		if row.VideoURL != nil {
			rec.StreamURL = row.VideoURL.URL
		}
		if row.WebURL != nil {
			rec.DetailURL = row.WebURL.URL
		}
		records = append(records, rec)
	}

	metrics.RecordFeedFetch(string(SourceSocrata), time.Since(start))
	metrics.FeedRecordsNormalized.WithLabelValues(string(SourceSocrata)).Add(float64(len(records)))
	logging.Debug().
		Str("endpoint", endpoint).
		Int("rows", len(rows)).
		Int("cameras", len(records)).
		Dur("elapsed", time.Since(start)).
		Msg("socrata fetch complete")

	return records, nil
}

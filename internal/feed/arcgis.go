// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

package feed

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tomtom215/trafficlens/internal/logging"
	"github.com/tomtom215/trafficlens/internal/metrics"
	"github.com/tomtom215/trafficlens/internal/models"
)

// DefaultArcGISTimeout bounds one feature-service fetch. Feature services are
// slower than curated datasets, so the bound is looser than Socrata's.
const DefaultArcGISTimeout = 15 * time.Second

// Candidate property names, in priority order. The first present candidate
// wins; order here is load-bearing, because schemas that carry both a
// dedicated camera label and a generic name field want the dedicated one.
var (
	labelCandidates = []string{
		"cameralabel", "camera_label", "label", "name",
		"description", "camera_name", "title",
	}
	snapshotCandidates = []string{
		"imageurl", "image_url", "imagelink", "photo_url", "snapshot_url",
	}
	streamCandidates = []string{
		"video_url", "videourl", "stream_url", "hls_url", "hlsurl",
	}
	detailCandidates = []string{
		"web_url", "weburl", "link", "url",
	}
	longitudeCandidates = []string{"longitude", "lon", "long", "x"}
	latitudeCandidates  = []string{"latitude", "lat", "y"}
	xDisplayCandidates  = []string{"x_coord", "xcoord", "x"}
	yDisplayCandidates  = []string{"y_coord", "ycoord", "y"}
)

// geoJSONGeometry is the point geometry of one feature. Coordinates are
// [longitude, latitude] per the GeoJSON spec.
type geoJSONGeometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// geoJSONFeature is one feature of a query response. ID may be a number, a
// string, or absent depending on the service.
type geoJSONFeature struct {
	ID         any              `json:"id"`
	Geometry   *geoJSONGeometry `json:"geometry"`
	Properties map[string]any   `json:"properties"`
}

type geoJSONCollection struct {
	Features []geoJSONFeature `json:"features"`
}

// ArcGISAdapter fetches an ArcGIS feature service layer and normalizes its
// features through a priority-ordered key scan.
type ArcGISAdapter struct {
	client  *http.Client
	timeout time.Duration
}

// NewArcGISAdapter creates an ArcGIS adapter with the given per-fetch
// timeout. A non-positive timeout falls back to DefaultArcGISTimeout.
func NewArcGISAdapter(timeout time.Duration) *ArcGISAdapter {
	if timeout <= 0 {
		timeout = DefaultArcGISTimeout
	}
	return &ArcGISAdapter{
		client:  &http.Client{},
		timeout: timeout,
	}
}

// Source identifies the adapter family.
func (a *ArcGISAdapter) Source() Source {
	return SourceArcGIS
}

// QueryURL returns the query endpoint for a feature-service layer URL,
// requesting every feature and every field as GeoJSON.
func QueryURL(serviceURL string) string {
	return strings.TrimRight(serviceURL, "/") + "/query?where=1%3D1&outFields=*&f=geojson"
}

// Fetch retrieves the feature service layer at serviceURL and normalizes
// every feature. Features without a snapshot URL or without a resolvable
// geographic coordinate are dropped rather than rendered as broken cards.
func (a *ArcGISAdapter) Fetch(ctx context.Context, serviceURL string) ([]models.CameraRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, QueryURL(serviceURL), nil)
	if err != nil {
		return nil, &FetchError{Source: SourceArcGIS, Endpoint: serviceURL, Err: err}
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		ferr := wrapTransportError(err, SourceArcGIS, serviceURL)
		metrics.FeedFetchErrors.WithLabelValues(string(SourceArcGIS), errorReason(ferr.(*FetchError))).Inc()
		return nil, ferr
	}
	defer resp.Body.Close() //nolint:errcheck // read-side close

	if err := checkStatus(resp, SourceArcGIS, serviceURL); err != nil {
		metrics.FeedFetchErrors.WithLabelValues(string(SourceArcGIS), "status").Inc()
		return nil, err
	}

	var fc geoJSONCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		metrics.FeedFetchErrors.WithLabelValues(string(SourceArcGIS), "decode").Inc()
		return nil, &FetchError{Source: SourceArcGIS, Endpoint: serviceURL, Err: err}
	}

	records := make([]models.CameraRecord, 0, len(fc.Features))
	for i, f := range fc.Features {
		rec, ok := normalizeFeature(f, i)
		if !ok {
			continue
		}
		records = append(records, rec)
	}

	metrics.RecordFeedFetch(string(SourceArcGIS), time.Since(start))
	metrics.FeedRecordsNormalized.WithLabelValues(string(SourceArcGIS)).Add(float64(len(records)))
	logging.Debug().
		Str("endpoint", serviceURL).
		Int("features", len(fc.Features)).
		Int("cameras", len(records)).
		Dur("elapsed", time.Since(start)).
		Msg("arcgis fetch complete")

	return records, nil
}

// normalizeFeature maps one feature onto the canonical record. index is the
// feature's position in the collection, used for label synthesis when the
// service assigns no feature ID.
func normalizeFeature(f geoJSONFeature, index int) (models.CameraRecord, bool) {
	idx := newPropertyIndex(f.Properties)

	// Geographic coordinate: geometry first, property scan second.
	var lng, lat float64
	switch {
	case f.Geometry != nil && len(f.Geometry.Coordinates) >= 2:
		lng = f.Geometry.Coordinates[0]
		lat = f.Geometry.Coordinates[1]
	default:
		var lngOK, latOK bool
		lng, lngOK = idx.findNumber(longitudeCandidates...)
		lat, latOK = idx.findNumber(latitudeCandidates...)
		if !lngOK || !latOK {
			metrics.FeedRecordsSkipped.WithLabelValues(string(SourceArcGIS), "no_location").Inc()
			return models.CameraRecord{}, false
		}
	}
	lngStr, latStr := formatFloat(lng), formatFloat(lat)

	// Snapshot URL is the record's identity; a feature without one is not a
	// renderable camera.
	snapshot, ok := idx.findHTTPURL(snapshotCandidates...)
	if !ok {
		snapshot, ok = idx.nestedURL("imageurl")
	}
	if !ok {
		metrics.FeedRecordsSkipped.WithLabelValues(string(SourceArcGIS), "no_snapshot").Inc()
		return models.CameraRecord{}, false
	}

	label, ok := idx.findString(labelCandidates...)
	if !ok {
		label = synthesizeLabel(f.ID, index)
	}

	rec := models.CameraRecord{
		Label:       label,
		SnapshotURL: snapshot,
		Location:    models.GeoLocation{Latitude: latStr, Longitude: lngStr},
	}

	if stream, ok := idx.findHTTPURL(streamCandidates...); ok {
		rec.StreamURL = stream
	} else if stream, ok := idx.nestedURL("video_url"); ok {
		rec.StreamURL = stream
	}

	if detail, ok := idx.findHTTPURL(detailCandidates...); ok {
		rec.DetailURL = detail
	} else if detail, ok := idx.nestedURL("web_url"); ok {
		rec.DetailURL = detail
	}

	// Display coordinate: dedicated projected columns when present, the
	// geographic strings otherwise.
	rec.Coordinate.X, ok = idx.findStringOrNumber(xDisplayCandidates...)
	if !ok {
		rec.Coordinate.X = lngStr
	}
	rec.Coordinate.Y, ok = idx.findStringOrNumber(yDisplayCandidates...)
	if !ok {
		rec.Coordinate.Y = latStr
	}

	return rec, true
}

// synthesizeLabel builds a stable label for a feature with no usable label
// property. Feature IDs come back as numbers, strings, or nothing at all.
func synthesizeLabel(id any, index int) string {
	switch v := id.(type) {
	case nil:
		return "Camera " + strconv.Itoa(index+1)
	case string:
		if v == "" {
			return "Camera " + strconv.Itoa(index+1)
		}
		return "Camera " + v
	case float64:
		return "Camera " + formatFloat(v)
	default:
		return fmt.Sprintf("Camera %v", v)
	}
}

// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tomtom215/trafficlens/internal/models"
)

// Source identifies a feed adapter family.
type Source string

const (
	// SourceSocrata is the curated tabular dataset adapter.
	SourceSocrata Source = "socrata"

	// SourceArcGIS is the GeoJSON feature-service adapter.
	SourceArcGIS Source = "arcgis"
)

// Valid reports whether s names a known adapter family.
func (s Source) Valid() bool {
	return s == SourceSocrata || s == SourceArcGIS
}

// Adapter fetches one upstream endpoint and normalizes it into canonical
// camera records. Implementations must honor ctx cancellation: the registry
// cancels in-flight fetches when the active feed key changes.
type Adapter interface {
	// Source identifies the adapter family.
	Source() Source

	// Fetch retrieves and normalizes the given endpoint. The returned slice
	// is owned by the caller. Failures are reported as *FetchError.
	Fetch(ctx context.Context, endpoint string) ([]models.CameraRecord, error)
}

// FetchError describes a failed feed fetch. StatusCode is zero when the
// failure happened before an HTTP response was received (network error,
// timeout, decode failure).
type FetchError struct {
	Source     Source
	Endpoint   string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetch %s: unexpected status %d", e.Source, e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s fetch %s: %v", e.Source, e.Endpoint, e.Err)
}

// Unwrap returns the underlying cause, if any.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the fetch failed because its deadline elapsed.
func (e *FetchError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// errorReason classifies a fetch failure for metrics labels.
func errorReason(e *FetchError) string {
	switch {
	case e.StatusCode != 0:
		return "status"
	case e.Timeout():
		return "timeout"
	default:
		return "network"
	}
}

// checkStatus converts a non-2xx response into a *FetchError, draining a
// bounded amount of the body so the connection can be reused.
func checkStatus(resp *http.Response, source Source, endpoint string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	// 64KB cap keeps a misbehaving upstream from holding us hostage.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return &FetchError{Source: source, Endpoint: endpoint, StatusCode: resp.StatusCode}
}

// wrapTransportError wraps a transport-level failure. net/http preserves the
// context cause in its error chain, so FetchError.Timeout still reports
// deadline expiry through the wrapping.
func wrapTransportError(err error, source Source, endpoint string) error {
	return &FetchError{Source: source, Endpoint: endpoint, Err: err}
}

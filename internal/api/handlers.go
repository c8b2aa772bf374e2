// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/tomtom215/trafficlens/internal/config"
	"github.com/tomtom215/trafficlens/internal/feed"
	"github.com/tomtom215/trafficlens/internal/logging"
	"github.com/tomtom215/trafficlens/internal/models"
	"github.com/tomtom215/trafficlens/internal/registry"
	ws "github.com/tomtom215/trafficlens/internal/websocket"
)

// Handlers holds the dependencies for all API endpoints.
type Handlers struct {
	registry *registry.Registry
	hub      *ws.Hub
	cfg      *config.Config
	validate *validator.Validate
	upgrader websocket.Upgrader
}

// NewHandlers creates the API handler set.
func NewHandlers(reg *registry.Registry, hub *ws.Hub, cfg *config.Config) *Handlers {
	return &Handlers{
		registry: reg,
		hub:      hub,
		cfg:      cfg,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin enforcement happens in the CORS middleware; the
			// upgrader accepts whatever made it through.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// feedQuery is the validated (source, endpoint) pair shared by the camera
// endpoints.
type feedQuery struct {
	Source   string `validate:"required,oneof=socrata arcgis"`
	Endpoint string `validate:"required,url"`
}

// resolveFeedQuery reads source/endpoint query parameters, filling in the
// configured defaults for whatever the client omitted.
func (h *Handlers) resolveFeedQuery(r *http.Request) (feedQuery, error) {
	q := feedQuery{
		Source:   r.URL.Query().Get("source"),
		Endpoint: r.URL.Query().Get("endpoint"),
	}
	if q.Source == "" {
		q.Source = h.cfg.Feeds.DefaultSource
	}
	if q.Endpoint == "" {
		switch feed.Source(q.Source) {
		case feed.SourceSocrata:
			q.Endpoint = h.cfg.Feeds.Socrata.URL
		case feed.SourceArcGIS:
			q.Endpoint = h.cfg.Feeds.ArcGIS.URL
		}
	}
	if err := h.validate.Struct(q); err != nil {
		return feedQuery{}, err
	}
	return q, nil
}

// CamerasResponse is the payload for GET /api/v1/cameras.
type CamerasResponse struct {
	Source    string                `json:"source"`
	Endpoint  string                `json:"endpoint"`
	Cameras   []models.CameraRecord `json:"cameras"`
	FetchedAt *time.Time            `json:"fetched_at,omitempty"`

	// Loading is true while a revalidation is in flight; the cameras listed
	// are the previous list, served stale.
	Loading bool `json:"loading"`

	// Stale is true when the last revalidation failed and the cameras listed
	// are the last good list. FeedError carries the failure.
	Stale     bool   `json:"stale"`
	FeedError string `json:"feed_error,omitempty"`
}

// GetCameras handles GET /api/v1/cameras. It makes the requested feed the
// active one and returns whatever the registry holds for it right now; a
// fresh key returns loading=true with an empty list while the first fetch
// runs.
func (h *Handlers) GetCameras(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	q, err := h.resolveFeedQuery(r)
	if err != nil {
		rw.ValidationError("invalid feed selection", err.Error())
		return
	}

	key := registry.Key{Source: feed.Source(q.Source), Endpoint: q.Endpoint}
	if err := h.registry.Use(key); err != nil {
		if errors.Is(err, registry.ErrUnknownSource) {
			rw.BadRequest("no adapter configured for source: " + q.Source)
			return
		}
		rw.InternalError("failed to activate feed")
		return
	}

	snap := h.registry.Snapshot(key)

	// A feed that has never succeeded and is not mid-fetch is a hard upstream
	// failure; everything else serves what we have.
	if snap.Err != nil && len(snap.Cameras) == 0 && !snap.Loading {
		rw.ExternalServiceError(q.Source, snap.Err)
		return
	}

	resp := CamerasResponse{
		Source:   q.Source,
		Endpoint: q.Endpoint,
		Cameras:  snap.Cameras,
		Loading:  snap.Loading,
	}
	if resp.Cameras == nil {
		resp.Cameras = []models.CameraRecord{}
	}
	if !snap.FetchedAt.IsZero() {
		t := snap.FetchedAt
		resp.FetchedAt = &t
	}
	if snap.Err != nil {
		resp.Stale = true
		resp.FeedError = snap.Err.Error()
	}

	rw.Success(resp)
}

// RevalidateCameras handles POST /api/v1/cameras/revalidate. The fetch runs
// in the background; clients observe the result via polling or the WebSocket
// feed.
func (h *Handlers) RevalidateCameras(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	q, err := h.resolveFeedQuery(r)
	if err != nil {
		rw.ValidationError("invalid feed selection", err.Error())
		return
	}

	key := registry.Key{Source: feed.Source(q.Source), Endpoint: q.Endpoint}
	err = h.registry.Revalidate(key)
	switch {
	case errors.Is(err, registry.ErrRateLimited):
		rw.TooManyRequests("manual refresh rate limit exceeded, try again later")
	case errors.Is(err, registry.ErrUnknownSource):
		rw.BadRequest("no adapter configured for source: " + q.Source)
	case err != nil:
		rw.InternalError("failed to start revalidation")
	default:
		rw.Accepted(map[string]string{
			"status":   "revalidating",
			"source":   q.Source,
			"endpoint": q.Endpoint,
		})
	}
}

// SourceInfo describes one configured feed source.
type SourceInfo struct {
	Source   string `json:"source"`
	Endpoint string `json:"endpoint"`
	Default  bool   `json:"default"`
}

// GetSources handles GET /api/v1/sources, listing the feeds this deployment
// is configured to serve.
func (h *Handlers) GetSources(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	sources := make([]SourceInfo, 0, 2)
	if h.cfg.Feeds.Socrata.URL != "" {
		sources = append(sources, SourceInfo{
			Source:   string(feed.SourceSocrata),
			Endpoint: h.cfg.Feeds.Socrata.URL,
			Default:  h.cfg.Feeds.DefaultSource == string(feed.SourceSocrata),
		})
	}
	if h.cfg.Feeds.ArcGIS.URL != "" {
		sources = append(sources, SourceInfo{
			Source:   string(feed.SourceArcGIS),
			Endpoint: h.cfg.Feeds.ArcGIS.URL,
			Default:  h.cfg.Feeds.DefaultSource == string(feed.SourceArcGIS),
		})
	}

	rw.Success(map[string]interface{}{"sources": sources})
}

// ClientConfig is the payload for GET /api/v1/config: the media timing
// knobs a dashboard needs to drive its camera cards.
type ClientConfig struct {
	SnapshotIntervalSeconds int `json:"snapshot_interval_seconds"`
	AttachTimeoutSeconds    int `json:"attach_timeout_seconds"`
	PollIntervalSeconds     int `json:"poll_interval_seconds"`
	MaxRecoveries           int `json:"max_recoveries"`
}

// GetConfig handles GET /api/v1/config.
func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(ClientConfig{
		SnapshotIntervalSeconds: int(h.cfg.Media.SnapshotInterval / time.Second),
		AttachTimeoutSeconds:    int(h.cfg.Media.AttachTimeout / time.Second),
		PollIntervalSeconds:     int(h.cfg.Media.PollInterval / time.Second),
		MaxRecoveries:           h.cfg.Media.MaxRecoveries,
	})
}

// HealthLive handles GET /api/v1/health/live. The process is up; nothing
// else is checked.
func (h *Handlers) HealthLive(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(map[string]string{"status": "ok"})
}

// HealthReady handles GET /api/v1/health/ready. Ready means at least one
// feed is configured; the registry itself needs no warm-up.
func (h *Handlers) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.cfg.Feeds.Socrata.URL == "" && h.cfg.Feeds.ArcGIS.URL == "" {
		rw.ServiceUnavailable("no feed sources configured")
		return
	}
	rw.Success(map[string]string{"status": "ready"})
}

// ServeWebSocket handles GET /api/v1/ws, upgrading the connection and
// registering the client with the hub.
func (h *Handlers) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error to the client.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()

	logging.Ctx(r.Context()).Debug().
		Str("remote_addr", r.RemoteAddr).
		Msg("websocket client connected")
}

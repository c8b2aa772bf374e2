// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

// Package main is the entry point for the TrafficLens server.
//
// TrafficLens is a self-hosted live traffic camera dashboard. It normalizes
// municipal camera feeds (a curated Socrata dataset and heterogeneous ArcGIS
// feature services) into one canonical camera record, keeps the list fresh
// with stale-while-revalidate caching, and pushes updates to connected
// dashboards over WebSocket.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 with defaults, config file, and env overrides
//  2. Feed adapters: Socrata and ArcGIS, each behind a circuit breaker
//  3. Event bus: Watermill in-process pub/sub connecting registry to clients
//  4. Camera registry: stale-while-revalidate cache over the adapters
//  5. WebSocket hub: real-time updates to connected dashboards
//  6. HTTP server: camera API, health probes, and Prometheus metrics
//
// Everything runs under a suture supervision tree with three layers (data,
// messaging, api) so a crash in one layer does not take down the others.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (SOCRATA_URL, ARCGIS_URL, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// At least one of SOCRATA_URL or ARCGIS_URL must be set.
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: it stops
// accepting new connections, waits for in-flight requests (10s timeout),
// cancels in-flight feed fetches, and closes WebSocket clients.
//
// # Example Usage
//
// Serve the Seattle Socrata camera dataset:
//
//	export SOCRATA_URL=https://data.seattle.gov/resource/xxxx.json
//	./trafficlens
//
// Serve an ArcGIS feature service instead:
//
//	export DEFAULT_SOURCE=arcgis
//	export ARCGIS_URL=https://services.arcgis.com/.../FeatureServer/0
//	./trafficlens
//
// # Port 4326
//
// The default port 4326 references EPSG:4326 (WGS 84), the coordinate
// system the camera records' locations use.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/trafficlens/internal/api"
	"github.com/tomtom215/trafficlens/internal/config"
	"github.com/tomtom215/trafficlens/internal/events"
	"github.com/tomtom215/trafficlens/internal/feed"
	"github.com/tomtom215/trafficlens/internal/logging"
	"github.com/tomtom215/trafficlens/internal/registry"
	"github.com/tomtom215/trafficlens/internal/supervisor"
	"github.com/tomtom215/trafficlens/internal/supervisor/services"
	ws "github.com/tomtom215/trafficlens/internal/websocket"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting TrafficLens with supervisor tree")
	logging.Info().
		Str("default_source", cfg.Feeds.DefaultSource).
		Bool("socrata_configured", cfg.Feeds.Socrata.URL != "").
		Bool("arcgis_configured", cfg.Feeds.ArcGIS.URL != "").
		Msg("Configuration loaded")

	// Feed adapters, each behind a circuit breaker so a flapping upstream
	// cannot soak every revalidation in timeouts.
	adapters := make(map[feed.Source]feed.Adapter)
	if cfg.Feeds.Socrata.URL != "" {
		adapters[feed.SourceSocrata] = feed.NewBreaker(feed.NewSocrataAdapter(cfg.Feeds.Socrata.Timeout))
	}
	if cfg.Feeds.ArcGIS.URL != "" {
		adapters[feed.SourceArcGIS] = feed.NewBreaker(feed.NewArcGISAdapter(cfg.Feeds.ArcGIS.Timeout))
	}

	// Event bus connects the registry and media layers to WebSocket clients.
	bus := events.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	// Camera registry and its periodic revalidator.
	reg := registry.New(adapters, bus, cfg.Registry.ManualRevalidatePerMinute)
	revalidator := registry.NewService(reg, cfg.Registry.RevalidateInterval)

	// Activate the default feed so the first dashboard request is already
	// warm (or at least in flight).
	defaultKey := defaultFeedKey(cfg)
	if defaultKey != (registry.Key{}) {
		if err := reg.Use(defaultKey); err != nil {
			logging.Warn().Err(err).
				Str("source", string(defaultKey.Source)).
				Msg("Failed to activate default feed")
		}
	}

	// WebSocket hub and the bus-to-hub bridge. A dashboard may request a
	// manual refresh over the socket; it goes through the same rate-limited
	// path as the REST trigger.
	hub := ws.NewHub()
	bridge := ws.NewBridge(bus, hub)
	hub.SetRevalidateFunc(func() {
		key := reg.Active()
		if key == (registry.Key{}) {
			return
		}
		if err := reg.Revalidate(key); err != nil {
			logging.Debug().Err(err).Msg("websocket revalidate request not honored")
		}
	})

	// HTTP server.
	handlers := api.NewHandlers(reg, hub, cfg)
	router := api.NewRouter(handlers, cfg)
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       120 * time.Second,
	}

	// Supervision tree: data, messaging, api.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddDataService(revalidator)
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(bridge)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().
		Str("addr", server.Addr).
		Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}

// defaultFeedKey resolves the configured default source to a registry key. A
// zero key means the default source has no URL configured; validation
// guarantees at least one feed exists, so the dashboard can still select the
// other source explicitly.
func defaultFeedKey(cfg *config.Config) registry.Key {
	switch feed.Source(cfg.Feeds.DefaultSource) {
	case feed.SourceSocrata:
		if cfg.Feeds.Socrata.URL != "" {
			return registry.Key{Source: feed.SourceSocrata, Endpoint: cfg.Feeds.Socrata.URL}
		}
	case feed.SourceArcGIS:
		if cfg.Feeds.ArcGIS.URL != "" {
			return registry.Key{Source: feed.SourceArcGIS, Endpoint: cfg.Feeds.ArcGIS.URL}
		}
	}
	return registry.Key{}
}

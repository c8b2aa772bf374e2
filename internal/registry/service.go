// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

package registry

import (
	"context"
	"time"

	"github.com/tomtom215/trafficlens/internal/logging"
)

// DefaultRevalidateInterval is the automatic revalidation cadence. Municipal
// feeds update on the order of minutes; five keeps the list current without
// hammering the upstream.
const DefaultRevalidateInterval = 5 * time.Minute

// Service periodically revalidates the registry's active key. It implements
// suture.Service and runs under the supervisor tree.
type Service struct {
	registry *Registry
	interval time.Duration
}

// NewService creates the revalidation service. A non-positive interval falls
// back to DefaultRevalidateInterval.
func NewService(registry *Registry, interval time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultRevalidateInterval
	}
	return &Service{registry: registry, interval: interval}
}

// Serve runs the revalidation loop until ctx is cancelled.
func (s *Service) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", s.interval).Msg("registry revalidation service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("registry revalidation service stopping")
			s.registry.Close()
			return ctx.Err()
		case <-ticker.C:
			s.registry.RevalidateActive()
		}
	}
}

// String names the service in supervisor logs.
func (s *Service) String() string {
	return "registry-revalidator"
}

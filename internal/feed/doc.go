// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

// Package feed implements the upstream feed adapters that turn heterogeneous
// municipal camera catalogs into the canonical camera record.
//
// Two adapter families are supported:
//
//   - Socrata: a curated tabular dataset whose columns already align with the
//     canonical record. The adapter is a thin pass-through that lifts nested
//     URL objects and enforces the snapshot-URL invariant.
//
//   - ArcGIS: arbitrary GeoJSON feature services whose property schemas vary
//     wildly between municipalities. The adapter runs a heuristic,
//     priority-ordered key scan over each feature's properties to recover
//     coordinates, labels, and media URLs.
//
// Both adapters honor context cancellation, bound each fetch with a
// per-source timeout, and report failures as *FetchError. A generic
// circuit breaker wrapper (Breaker) protects the registry from flapping
// upstreams.
package feed

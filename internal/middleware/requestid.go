// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

// Package middleware holds the HTTP middleware shared by the API router:
// request identification and Prometheus instrumentation.
package middleware

import (
	"net/http"

	"github.com/tomtom215/trafficlens/internal/logging"
)

// RequestIDHeader is the canonical request ID header.
const RequestIDHeader = "X-Request-ID"

// RequestID attaches a request ID to every request: incoming IDs from
// proxies are trusted and propagated, otherwise a fresh one is generated.
// The ID rides the response header and the request context, so handler logs
// via logging.Ctx carry it automatically.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = logging.GenerateRequestID()
		}

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		ctx = logging.ContextWithNewCorrelationID(ctx)

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

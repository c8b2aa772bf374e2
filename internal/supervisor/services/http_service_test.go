// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

// mockServer blocks in ListenAndServe until Shutdown is called.
type mockServer struct {
	listenErr error
	shutdown  chan struct{}
}

func newMockServer() *mockServer {
	return &mockServer{shutdown: make(chan struct{})}
}

func (m *mockServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.shutdown
	return http.ErrServerClosed
}

func (m *mockServer) Shutdown(context.Context) error {
	close(m.shutdown)
	return nil
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	svc := NewHTTPServerService(newMockServer(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() never returned after cancel")
	}
}

func TestHTTPServerServiceListenFailure(t *testing.T) {
	srv := newMockServer()
	srv.listenErr = errors.New("bind: address already in use")
	svc := NewHTTPServerService(srv, time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, srv.listenErr) {
		t.Errorf("Serve() error = %v, want the listen failure wrapped", err)
	}
}

func TestServiceNames(t *testing.T) {
	if got := NewHTTPServerService(newMockServer(), 0).String(); got != "http-server" {
		t.Errorf("String() = %q", got)
	}
	hub := hubFunc(func(ctx context.Context) error { return ctx.Err() })
	if got := NewWebSocketHubService(hub).String(); got != "websocket-hub" {
		t.Errorf("String() = %q", got)
	}
}

type hubFunc func(context.Context) error

func (f hubFunc) RunWithContext(ctx context.Context) error { return f(ctx) }

func TestWebSocketHubServiceDelegates(t *testing.T) {
	called := false
	hub := hubFunc(func(ctx context.Context) error {
		called = true
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewWebSocketHubService(hub).Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
	if !called {
		t.Error("hub.RunWithContext was never called")
	}
}

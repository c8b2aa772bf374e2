// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultPollInterval is the playlist liveness poll cadence. HLS target
// durations for traffic cameras sit around 2-6 seconds; polling at 6 notices
// a dead stream within one segment window without hammering the origin.
const DefaultPollInterval = 6 * time.Second

// maxPlaylistBytes caps how much playlist we read. Live playlists are tiny;
// anything bigger is not a playlist.
const maxPlaylistBytes = 1 << 20

// consecutivePollFailures is how many liveness polls may fail in a row
// before the session gives up and surfaces a recoverable error.
const consecutivePollFailures = 3

// HLSSession validates and watches one HLS stream. Attach loads the playlist
// and verifies it is HLS; a background poll then watches for the stream
// going dark. Polls absorb transient failures up to a budget before
// surfacing a recoverable error.
type HLSSession struct {
	client       *http.Client
	pollInterval time.Duration

	errs chan error
	wg   sync.WaitGroup
	once sync.Once

	// mu guards the attach/detach handoff: a Detach racing an in-flight
	// Attach must either cancel the poll goroutine or prevent it from
	// starting at all.
	mu       sync.Mutex
	cancel   context.CancelFunc
	detached bool
}

// NewHLSSession creates a session. A non-positive pollInterval falls back to
// DefaultPollInterval.
func NewHLSSession(pollInterval time.Duration) *HLSSession {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &HLSSession{
		client:       &http.Client{},
		pollInterval: pollInterval,
		errs:         make(chan error, 1),
	}
}

// NewHLSSessionFactory returns a SessionFactory producing HLS sessions.
func NewHLSSessionFactory(pollInterval time.Duration) SessionFactory {
	return func() Session {
		return NewHLSSession(pollInterval)
	}
}

// Attach loads the playlist at url and starts liveness polling on success.
func (s *HLSSession) Attach(ctx context.Context, url string) error {
	if err := s.probe(ctx, url); err != nil {
		return err
	}

	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return &StreamError{Recoverable: false, Err: fmt.Errorf("session detached")}
	}
	pollCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.poll(pollCtx, url)
	return nil
}

// Errors delivers playback failures the session could not absorb.
func (s *HLSSession) Errors() <-chan error {
	return s.errs
}

// Detach stops polling and releases the session. Idempotent.
func (s *HLSSession) Detach() {
	s.once.Do(func() {
		s.mu.Lock()
		s.detached = true
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.wg.Wait()
	})
}

// probe fetches the playlist once and classifies the outcome.
func (s *HLSSession) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &StreamError{Recoverable: false, Err: err}
	}
	req.Header.Set("Accept", "application/vnd.apple.mpegurl, application/x-mpegurl, */*")

	resp, err := s.client.Do(req)
	if err != nil {
		// Transport failures are transient by assumption; the stream may be
		// fine on the next attempt.
		return &StreamError{Recoverable: true, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // read-side close

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to content check
	case resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPlaylistBytes))
		return &StreamError{Recoverable: true, Err: fmt.Errorf("playlist fetch: status %d", resp.StatusCode)}
	default:
		// 4xx means the URL itself is wrong or gone; retrying won't help.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPlaylistBytes))
		return &StreamError{Recoverable: false, Err: fmt.Errorf("playlist fetch: status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistBytes))
	if err != nil {
		return &StreamError{Recoverable: true, Err: err}
	}
	if !strings.HasPrefix(strings.TrimLeft(string(body), "\uFEFF \t\r\n"), "#EXTM3U") {
		return &StreamError{Recoverable: false, Err: fmt.Errorf("not an HLS playlist")}
	}
	return nil
}

// poll re-fetches the playlist until cancelled, surfacing an error once the
// failure budget is spent or the playlist stops being HLS.
func (s *HLSSession) poll(ctx context.Context, url string) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := s.probe(ctx, url)
		if err == nil {
			failures = 0
			continue
		}
		if ctx.Err() != nil {
			return // detached mid-probe
		}

		if !Recoverable(err) {
			s.report(err)
			return
		}
		failures++
		if failures >= consecutivePollFailures {
			s.report(err)
			return
		}
	}
}

// report delivers err without blocking; the channel holds one error and the
// controller detaches after the first.
func (s *HLSSession) report(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

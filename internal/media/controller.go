// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

package media

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/tomtom215/trafficlens/internal/events"
	"github.com/tomtom215/trafficlens/internal/logging"
	"github.com/tomtom215/trafficlens/internal/metrics"
	"github.com/tomtom215/trafficlens/internal/models"
)

// Defaults for Config fields left zero.
const (
	DefaultSnapshotInterval = 30 * time.Second
	DefaultAttachTimeout    = 10 * time.Second
	DefaultMaxRecoveries    = 3
)

// Callbacks notify the view layer of lifecycle outcomes. All callbacks run
// on the controller's event loop goroutine and must not block.
type Callbacks struct {
	// OnLoad fires when a stream attach succeeds (manifest loaded).
	OnLoad func()

	// OnError fires when a playback attempt ends fatally. The controller has
	// already fallen back to snapshots when this runs.
	OnError func(err error)

	// OnSnapshot fires with a fresh cache-busted snapshot URL on every
	// refresh cycle.
	OnSnapshot func(url string)
}

// Config configures one camera card's controller.
type Config struct {
	Camera models.CameraRecord

	// Sessions builds a playback session per attempt. Required when the
	// camera has a stream URL.
	Sessions SessionFactory

	// Visibility delivers viewport entry (true) and exit (false) signals.
	// Optional; a nil channel means always visible.
	Visibility <-chan bool

	SnapshotInterval time.Duration
	AttachTimeout    time.Duration

	// MaxRecoveries bounds consecutive recoverable-error retries before a
	// playback attempt is declared dead.
	MaxRecoveries int

	// Bus receives MediaState events on every transition. Optional.
	Bus *events.Bus

	Callbacks Callbacks
}

// command is an intent reported by the view layer.
type command int

const (
	cmdActivate command = iota
	cmdDeactivate
)

// Controller owns one camera card's media lifecycle. A single event-loop
// goroutine serializes every transition; the view layer only reports intents
// and renders the resulting state.
type Controller struct {
	cfg Config

	cmds    chan command
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once

	mu    sync.RWMutex
	state State
}

// NewController creates a controller in StateSnapshot. Call Start to begin
// the event loop and Close to tear it down.
func NewController(cfg Config) *Controller {
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = DefaultSnapshotInterval
	}
	if cfg.AttachTimeout <= 0 {
		cfg.AttachTimeout = DefaultAttachTimeout
	}
	if cfg.MaxRecoveries <= 0 {
		cfg.MaxRecoveries = DefaultMaxRecoveries
	}
	return &Controller{
		cfg:     cfg,
		cmds:    make(chan command, 4),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		state:   StateSnapshot,
	}
}

// Start launches the event loop.
func (c *Controller) Start() {
	go c.run()
}

// Close tears the controller down, detaching any live session. Safe to call
// multiple times; blocks until the event loop has exited.
func (c *Controller) Close() {
	c.once.Do(func() { close(c.stop) })
	<-c.stopped
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Activate requests stream playback. Ignored unless the card is showing
// snapshots, is visible, and the camera has a stream URL.
func (c *Controller) Activate() {
	select {
	case c.cmds <- cmdActivate:
	case <-c.stopped:
	}
}

// Deactivate requests a return to snapshots from any streaming state.
func (c *Controller) Deactivate() {
	select {
	case c.cmds <- cmdDeactivate:
	case <-c.stopped:
	}
}

// run is the event loop. It is the only goroutine that mutates state.
func (c *Controller) run() {
	defer close(c.stopped)

	ticker := time.NewTicker(c.cfg.SnapshotInterval)
	defer ticker.Stop()

	var (
		session      Session
		sessionErrs  <-chan error
		attachResult chan error
		attachCancel context.CancelFunc
		recoveries   int
	)

	// detach releases the active session and any in-flight attach. Runs on
	// every streaming-state exit and on teardown, unconditionally.
	detach := func() {
		if attachCancel != nil {
			attachCancel()
			attachCancel = nil
		}
		attachResult = nil
		if session != nil {
			session.Detach()
			session = nil
			sessionErrs = nil
		}
	}
	defer detach()

	startAttach := func() {
		session = c.cfg.Sessions()
		sessionErrs = session.Errors()

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.AttachTimeout)
		attachCancel = cancel
		result := make(chan error, 1)
		attachResult = result
		go func(s Session) {
			result <- s.Attach(ctx, c.cfg.Camera.StreamURL)
		}(session)
	}

	refreshSnapshot := func() {
		metrics.MediaSnapshotRefreshes.Inc()
		if c.cfg.Callbacks.OnSnapshot != nil {
			c.cfg.Callbacks.OnSnapshot(CacheBust(c.cfg.Camera.SnapshotURL, time.Now()))
		}
	}

	visibility := c.cfg.Visibility

	for {
		select {
		case <-c.stop:
			return

		case cmd := <-c.cmds:
			switch cmd {
			case cmdActivate:
				// Activation is only valid from Snapshot; a card without a
				// stream URL stays a snapshot card forever.
				if c.State() != StateSnapshot || !c.cfg.Camera.HasStream() {
					continue
				}
				recoveries = 0
				c.setState(StateStreamAttaching, "play_requested")
				startAttach()

			case cmdDeactivate:
				if !c.State().Streaming() {
					continue
				}
				detach()
				c.setState(StateSnapshot, "stopped")
				refreshSnapshot()
			}

		case visible, ok := <-visibility:
			if !ok {
				visibility = nil
				continue
			}
			if !visible {
				if c.State() == StateSuspended {
					continue
				}
				detach()
				c.setState(StateSuspended, "viewport_exit")
			} else if c.State() == StateSuspended {
				// Re-entry always lands on snapshots; a previously active
				// stream needs a fresh explicit activation.
				c.setState(StateSnapshot, "viewport_enter")
				refreshSnapshot()
			}

		case err := <-attachResult:
			attachResult = nil
			if attachCancel != nil {
				attachCancel()
				attachCancel = nil
			}
			if !c.State().Streaming() {
				// Suspended or deactivated while attaching; the session is
				// already detached.
				continue
			}
			if err == nil {
				recoveries = 0
				if c.State() == StateStreamAttaching {
					c.setState(StateStreamActive, "manifest_loaded")
				}
				if c.cfg.Callbacks.OnLoad != nil {
					c.cfg.Callbacks.OnLoad()
				}
				continue
			}

			session.Detach()
			session = nil
			sessionErrs = nil

			if Recoverable(err) && recoveries < c.cfg.MaxRecoveries {
				recoveries++
				metrics.MediaStreamFailures.WithLabelValues("recoverable").Inc()
				logging.Debug().
					Str("camera", c.cfg.Camera.Label).
					Int("attempt", recoveries).
					Err(err).
					Msg("stream attach retry")
				startAttach()
				continue
			}

			metrics.MediaStreamFailures.WithLabelValues("fatal").Inc()
			c.setState(StateSnapshot, "stream_failed")
			if c.cfg.Callbacks.OnError != nil {
				c.cfg.Callbacks.OnError(err)
			}
			refreshSnapshot()

		case err := <-sessionErrs:
			// Live playback failed after a successful attach. Recoverable
			// failures resync with a fresh session without leaving
			// StreamActive; the viewer just sees a stall.
			if Recoverable(err) && recoveries < c.cfg.MaxRecoveries {
				recoveries++
				metrics.MediaStreamFailures.WithLabelValues("recoverable").Inc()
				logging.Debug().
					Str("camera", c.cfg.Camera.Label).
					Int("attempt", recoveries).
					Err(err).
					Msg("stream resync")
				session.Detach()
				startAttach()
				continue
			}

			metrics.MediaStreamFailures.WithLabelValues("fatal").Inc()
			detach()
			c.setState(StateSnapshot, "stream_failed")
			if c.cfg.Callbacks.OnError != nil {
				c.cfg.Callbacks.OnError(err)
			}
			refreshSnapshot()

		case <-ticker.C:
			// Snapshots refresh only in the snapshot state: an attaching or
			// active stream keeps its frame, and Suspended stays quiet.
			if c.State() == StateSnapshot {
				refreshSnapshot()
			}
		}
	}
}

// setState records a transition and publishes it.
func (c *Controller) setState(to State, reason string) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()

	if from == to {
		return
	}

	metrics.RecordMediaTransition(from.String(), to.String())
	if to == StateStreamActive {
		metrics.MediaActiveStreams.Inc()
	}
	if from == StateStreamActive {
		metrics.MediaActiveStreams.Dec()
	}

	logging.Debug().
		Str("camera", c.cfg.Camera.Label).
		Str("from", from.String()).
		Str("to", to.String()).
		Str("reason", reason).
		Msg("media state transition")

	if c.cfg.Bus != nil {
		_ = c.cfg.Bus.Publish(events.TopicMediaState, events.MediaState{
			Camera: c.cfg.Camera.SnapshotURL,
			From:   from.String(),
			To:     to.String(),
			Reason: reason,
		})
	}
}

// CacheBust appends a timestamp query parameter so intermediaries re-fetch
// the snapshot instead of serving a cached frame.
func CacheBust(rawURL string, t time.Time) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(t.Unix(), 10))
	u.RawQuery = q.Encode()
	return u.String()
}

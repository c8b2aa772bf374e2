// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

package media

import (
	"context"
	"errors"
	"fmt"
)

// Session is one playback attempt against a stream URL. Implementations own
// the transport (manifest loading, liveness polling) and report errors they
// could not absorb themselves on Errors.
//
// The contract with the Controller:
//   - Attach blocks until the manifest is loaded or fails. Success means
//     playback is live.
//   - Errors delivers at most the errors the session could not recover from
//     internally; each is a *StreamError.
//   - Detach releases every resource the session holds. It is idempotent and
//     the Controller guarantees it is called on every streaming-state exit.
type Session interface {
	Attach(ctx context.Context, url string) error
	Errors() <-chan error
	Detach()
}

// SessionFactory builds a fresh Session per playback attempt. Sessions are
// single-use; a retry gets a new one.
type SessionFactory func() Session

// StreamError classifies a playback failure. Recoverable errors (transient
// transport hiccups) may be retried without surfacing to the lifecycle;
// fatal errors (unsupported format, 4xx manifest) end the attempt.
type StreamError struct {
	Recoverable bool
	Err         error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	kind := "fatal"
	if e.Recoverable {
		kind = "recoverable"
	}
	return fmt.Sprintf("stream error (%s): %v", kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether err is a recoverable stream error. Unknown
// error types are treated as fatal; guessing recoverable would retry forever
// on a broken stream.
func Recoverable(err error) bool {
	var serr *StreamError
	if errors.As(err, &serr) {
		return serr.Recoverable
	}
	return false
}

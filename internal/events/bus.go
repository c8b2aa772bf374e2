// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

// Package events provides the in-process pub/sub bus connecting the camera
// registry and media controllers to the WebSocket push layer. The bus is a
// Watermill GoChannel: no broker, no persistence, messages are dropped when
// the process exits. That matches the data's nature; everything here is
// re-derivable from the next feed fetch.
package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/tomtom215/trafficlens/internal/logging"
)

// Topics published on the bus.
const (
	// TopicCamerasUpdated carries a CamerasUpdated payload whenever the
	// registry replaces the camera list for its active key.
	TopicCamerasUpdated = "cameras.updated"

	// TopicFeedError carries a FeedError payload when a revalidation fails
	// and the registry keeps serving its last good list.
	TopicFeedError = "feed.error"

	// TopicMediaState carries a MediaState payload on every media lifecycle
	// transition.
	TopicMediaState = "media.state"
)

// Bus wraps a GoChannel pub/sub with JSON payload marshaling.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates an in-process bus. Subscribers registered after a publish do
// not receive earlier messages.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			newWatermillLogger(logging.WithComponent("events")),
		),
	}
}

// Publish marshals payload to JSON and publishes it on topic.
func (b *Bus) Publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.pubsub.Publish(topic, message.NewMessage(watermill.NewUUID(), data))
}

// Subscribe returns a channel of messages for topic. The channel closes when
// ctx is cancelled or the bus is closed. Callers must Ack or Nack every
// message.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// watermillLogger adapts zerolog to watermill.LoggerAdapter so bus internals
// log through the same pipeline as the rest of the process.
type watermillLogger struct {
	logger zerolog.Logger
}

func newWatermillLogger(logger zerolog.Logger) watermillLogger {
	return watermillLogger{logger: logger}
}

func (l watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(l.logger.Error().Err(err), fields).Msg(msg)
}

func (l watermillLogger) Info(msg string, fields watermill.LogFields) {
	// Watermill is chatty at info level; keep bus internals at debug.
	l.event(l.logger.Debug(), fields).Msg(msg)
}

func (l watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.event(l.logger.Debug(), fields).Msg(msg)
}

func (l watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.event(l.logger.Trace(), fields).Msg(msg)
}

func (l watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return watermillLogger{logger: ctx.Logger()}
}

func (l watermillLogger) event(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}

var _ watermill.LoggerAdapter = watermillLogger{}

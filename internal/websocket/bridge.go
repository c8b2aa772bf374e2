// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

package websocket

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/tomtom215/trafficlens/internal/events"
	"github.com/tomtom215/trafficlens/internal/logging"
)

// Bridge forwards bus events to the hub so browsers see registry refreshes
// and media transitions as they happen. It implements suture.Service.
type Bridge struct {
	bus *events.Bus
	hub *Hub
}

// NewBridge creates a bridge between bus and hub.
func NewBridge(bus *events.Bus, hub *Hub) *Bridge {
	return &Bridge{bus: bus, hub: hub}
}

// busTopicMessageTypes maps bus topics to the WebSocket message types they
// fan out as.
var busTopicMessageTypes = map[string]string{
	events.TopicCamerasUpdated: MessageTypeCamerasUpdated,
	events.TopicFeedError:      MessageTypeFeedError,
	events.TopicMediaState:     MessageTypeMediaState,
}

// Serve subscribes to every bridged topic and forwards messages until ctx is
// cancelled.
func (b *Bridge) Serve(ctx context.Context) error {
	for topic, messageType := range busTopicMessageTypes {
		msgs, err := b.bus.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		go b.forward(msgs, messageType)
	}

	logging.Info().Int("topics", len(busTopicMessageTypes)).Msg("websocket bridge started")
	<-ctx.Done()
	return ctx.Err()
}

// forward relays one topic's messages to the hub. The subscriber channel
// closes when the bridge's context is cancelled.
func (b *Bridge) forward(msgs <-chan *message.Message, messageType string) {
	for msg := range msgs {
		var data map[string]interface{}
		if err := json.Unmarshal(msg.Payload, &data); err != nil {
			logging.Warn().Err(err).Str("message_type", messageType).Msg("dropping malformed bus event")
			msg.Ack()
			continue
		}
		b.hub.BroadcastJSON(messageType, data)
		msg.Ack()
	}
}

// String names the service in supervisor logs.
func (b *Bridge) String() string {
	return "websocket-bridge"
}

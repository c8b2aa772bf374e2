// TrafficLens - Live Traffic Camera Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trafficlens

package events

import (
	"context"
	"io"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tomtom215/trafficlens/internal/logging"
	"github.com/tomtom215/trafficlens/internal/models"
)

//nolint:gochecknoinits // silence log output during tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.Subscribe(ctx, TopicCamerasUpdated)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	payload := CamerasUpdated{
		Source:   "socrata",
		Endpoint: "https://data.example.gov/resource/cams.json",
		Cameras: []models.CameraRecord{
			{Label: "5th Ave", SnapshotURL: "http://x/img.jpg"},
		},
		FetchedAt: time.Now().UTC(),
	}
	if err := bus.Publish(TopicCamerasUpdated, payload); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-msgs:
		var got CamerasUpdated
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		msg.Ack()
		if got.Source != "socrata" || len(got.Cameras) != 1 || got.Cameras[0].Label != "5th Ave" {
			t.Errorf("payload = %+v, want round-tripped CamerasUpdated", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestBusSubscriberIsolation(t *testing.T) {
	bus := NewBus()
	defer bus.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stateMsgs, err := bus.Subscribe(ctx, TopicMediaState)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := bus.Publish(TopicFeedError, FeedError{Source: "arcgis", Error: "boom"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-stateMsgs:
		t.Errorf("media.state subscriber received a feed.error message: %s", msg.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}

// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/waveframe-studio/waveframe/internal/models"
	"github.com/waveframe-studio/waveframe/internal/session"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.RunWithContext(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("Hub did not stop")
		}
	})
	return hub, cancel
}

// testClient builds a registered client without a real connection.
func testClient(t *testing.T, hub *Hub, token string) *Client {
	t.Helper()
	client := NewClient(hub, nil, token)
	hub.Register <- client

	deadline := time.Now().Add(time.Second)
	for hub.SessionSubscribers(token) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if hub.SessionSubscribers(token) == 0 {
		t.Fatal("Client never registered")
	}
	return client
}

func snapshot(waveform bool) session.StatusSnapshot {
	return session.StatusSnapshot{
		Readiness:    models.Readiness{PhotoReady: true, AudioReady: true, WaveformReady: waveform},
		PreviewStale: true,
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("Send channel closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("No message pushed")
		return Message{}
	}
}

func TestNotifyStatusReachesSubscriber(t *testing.T) {
	hub, _ := startHub(t)
	client := testClient(t, hub, "tok-a")

	hub.NotifyStatus("tok-a", snapshot(true))

	msg := receive(t, client)
	if msg.Type != MessageTypeStatus {
		t.Errorf("Type = %q, want status", msg.Type)
	}
	snap, ok := msg.Data.(session.StatusSnapshot)
	if !ok {
		t.Fatalf("Data has type %T", msg.Data)
	}
	if !snap.Readiness.WaveformReady {
		t.Error("Snapshot content lost in fan-out")
	}
}

func TestPushScopedToSession(t *testing.T) {
	hub, _ := startHub(t)
	a := testClient(t, hub, "tok-a")
	b := testClient(t, hub, "tok-b")

	hub.NotifyStatus("tok-a", snapshot(false))
	receive(t, a)

	select {
	case msg := <-b.send:
		t.Errorf("Other session received push: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMultipleSubscribersSameSession(t *testing.T) {
	hub, _ := startHub(t)
	a := testClient(t, hub, "tok-a")
	b := testClient(t, hub, "tok-a")

	hub.NotifyStatus("tok-a", snapshot(true))
	receive(t, a)
	receive(t, b)
}

func TestUnregisterClosesSend(t *testing.T) {
	hub, _ := startHub(t)
	client := testClient(t, hub, "tok-a")

	hub.Unregister <- client

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("Expected closed channel after unregister")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send channel not closed")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount = %d after unregister", hub.ClientCount())
	}
}

func TestSlowSubscriberDropped(t *testing.T) {
	hub, _ := startHub(t)
	client := testClient(t, hub, "tok-a")

	// Fill the send buffer without draining; the next push drops the client.
	for i := 0; i < cap(client.send)+1; i++ {
		hub.NotifyStatus("tok-a", snapshot(false))
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.SessionSubscribers("tok-a") != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := hub.SessionSubscribers("tok-a"); got != 0 {
		t.Errorf("Slow subscriber still registered, count = %d", got)
	}
}

func TestShutdownClosesClients(t *testing.T) {
	hub, cancel := startHub(t)
	client := testClient(t, hub, "tok-a")

	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case _, ok := <-client.send:
			if !ok {
				return
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatal("Client channel not closed on shutdown")
}

func TestRunReturnsContextError(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := hub.RunWithContext(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("RunWithContext returned %v", err)
	}
}

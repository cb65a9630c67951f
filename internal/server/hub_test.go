package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vinay-511/Code-collab/internal/protocol"
	"github.com/vinay-511/Code-collab/internal/rooms"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHubEmitQueuesEncodedFrame(t *testing.T) {
	hub := NewHub(HubConfig{SendBuffer: 4})
	registered := hub.register(rooms.ConnID("conn-1"))

	hub.Emit(rooms.ConnID("conn-1"), protocol.Outbound{
		Event: protocol.EventCodeUpdate,
		Data:  protocol.CodeUpdatePayload{FileName: "main.js", Code: "x"},
	})

	select {
	case frame := <-registered.send:
		var envelope protocol.Envelope
		if err := json.Unmarshal(frame, &envelope); err != nil {
			t.Fatalf("failed to decode frame: %v", err)
		}
		if envelope.Event != protocol.EventCodeUpdate {
			t.Fatalf("unexpected event %q", envelope.Event)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected a queued frame")
	}
}

func TestHubEmitIgnoresUnknownConnection(t *testing.T) {
	hub := NewHub(HubConfig{})
	hub.Emit(rooms.ConnID("missing"), protocol.Outbound{Event: protocol.EventRoomUpdate, Data: []string{}})
	if hub.Count() != 0 {
		t.Fatalf("expected no connections, got %d", hub.Count())
	}
}

func TestHubClosesSlowConsumer(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	hub := NewHub(HubConfig{SendBuffer: 1, Logger: zap.New(core)})
	registered := hub.register(rooms.ConnID("slow"))

	message := protocol.Outbound{Event: protocol.EventRoomUpdate, Data: []string{"alice"}}
	hub.Emit(rooms.ConnID("slow"), message)
	hub.Emit(rooms.ConnID("slow"), message)

	select {
	case <-registered.done:
	default:
		t.Fatal("expected the slow connection to be closed")
	}
	if logs.FilterMessage("slow consumer disconnected").Len() != 1 {
		t.Fatalf("expected one slow consumer log entry, got %v", logs.All())
	}

	// A closed connection swallows further frames without blocking.
	hub.Emit(rooms.ConnID("slow"), message)
}

func TestHubRegisterReplacesPreviousConnection(t *testing.T) {
	hub := NewHub(HubConfig{})
	first := hub.register(rooms.ConnID("conn-1"))
	second := hub.register(rooms.ConnID("conn-1"))

	select {
	case <-first.done:
	default:
		t.Fatal("expected the replaced connection to be closed")
	}
	if hub.Count() != 1 {
		t.Fatalf("expected one connection, got %d", hub.Count())
	}

	hub.unregister(first)
	if hub.Count() != 1 {
		t.Fatalf("unregistering a stale connection must keep the current one")
	}
	hub.unregister(second)
	if hub.Count() != 0 {
		t.Fatalf("expected no connections, got %d", hub.Count())
	}
}

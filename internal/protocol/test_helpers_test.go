package protocol

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/vinay-511/Code-collab/internal/rooms"
)

const (
	testRoom     = "ROOM1"
	testPassword = "secret"
	aliceConn    = rooms.ConnID("conn-alice")
	bobConn      = rooms.ConnID("conn-bob")
	carolConn    = rooms.ConnID("conn-carol")
)

type recordingEmitter struct {
	mu     sync.Mutex
	frames map[rooms.ConnID][]Outbound
	hook   func(rooms.ConnID, Outbound)
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{frames: make(map[rooms.ConnID][]Outbound)}
}

func (e *recordingEmitter) Emit(conn rooms.ConnID, message Outbound) {
	if e.hook != nil {
		e.hook(conn, message)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames[conn] = append(e.frames[conn], message)
}

func (e *recordingEmitter) events(conn rooms.ConnID) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.frames[conn]))
	for _, frame := range e.frames[conn] {
		names = append(names, frame.Event)
	}
	return names
}

func (e *recordingEmitter) received(conn rooms.ConnID) []Outbound {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Outbound(nil), e.frames[conn]...)
}

// find returns the last frame with the given event sent to conn.
func (e *recordingEmitter) find(conn rooms.ConnID, event string) (Outbound, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	frames := e.frames[conn]
	for index := len(frames) - 1; index >= 0; index-- {
		if frames[index].Event == event {
			return frames[index], true
		}
	}
	return Outbound{}, false
}

func (e *recordingEmitter) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames = make(map[rooms.ConnID][]Outbound)
}

type stubTokens struct{}

func (stubTokens) IssueRoomToken(roomID, socketID, username string) (string, int64, error) {
	return "token-" + roomID + "-" + socketID, 3600, nil
}

type routerFixture struct {
	router   *Router
	emitter  *recordingEmitter
	registry *rooms.Registry
}

func newRouterFixture(t *testing.T) routerFixture {
	t.Helper()
	registry := rooms.NewRegistry(rooms.RegistryConfig{
		Clock: func() time.Time { return time.Unix(1700000000, 0) },
	})
	emitter := newRecordingEmitter()
	router, err := NewRouter(RouterConfig{Registry: registry, Emitter: emitter, Tokens: stubTokens{}})
	if err != nil {
		t.Fatalf("unexpected router error: %v", err)
	}
	return routerFixture{router: router, emitter: emitter, registry: registry}
}

func (f routerFixture) send(t *testing.T, session *Session, event string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	f.router.HandleFrame(session, frame)
}

// newSharedRoom creates testRoom with alice as admin and bob as member, then
// clears the recorded frames.
func (f routerFixture) newSharedRoom(t *testing.T) (*Session, *Session) {
	t.Helper()
	alice := NewSession(aliceConn)
	bob := NewSession(bobConn)
	f.send(t, alice, EventCreateRoom, map[string]any{"roomId": testRoom, "password": testPassword, "username": "alice"})
	f.send(t, bob, EventJoinRoom, map[string]any{"roomId": testRoom, "password": testPassword, "username": "bob"})
	if !f.registry.IsMember(testRoom, bobConn) {
		t.Fatalf("expected bob to be a member")
	}
	f.emitter.reset()
	return alice, bob
}

func (f routerFixture) snapshot(t *testing.T) rooms.Snapshot {
	t.Helper()
	snapshot, err := f.registry.Snapshot(testRoom)
	if err != nil {
		t.Fatalf("unexpected snapshot error: %v", err)
	}
	return snapshot
}

func mustFileName(t *testing.T, value string) rooms.FileName {
	t.Helper()
	name, err := rooms.NewFileName(value)
	if err != nil {
		t.Fatalf("unexpected file name error: %v", err)
	}
	return name
}

func equalStrings(left, right []string) bool {
	if len(left) != len(right) {
		return false
	}
	for index := range left {
		if left[index] != right[index] {
			return false
		}
	}
	return true
}

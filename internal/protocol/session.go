package protocol

import (
	"sync"

	"github.com/vinay-511/Code-collab/internal/rooms"
)

// Session is the per-connection context handed to every handler: who the
// connection is and which room it currently belongs to.
type Session struct {
	connID rooms.ConnID

	mu       sync.RWMutex
	roomID   rooms.RoomID
	username string
}

// NewSession returns a session for a connection that has not joined a room.
func NewSession(connID rooms.ConnID) *Session {
	return &Session{connID: connID}
}

func (s *Session) ConnID() rooms.ConnID {
	return s.connID
}

// Room returns the joined room and the username used to join it.
func (s *Session) Room() (rooms.RoomID, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomID, s.username, s.roomID != ""
}

func (s *Session) enter(roomID rooms.RoomID, username string) {
	s.mu.Lock()
	s.roomID = roomID
	s.username = username
	s.mu.Unlock()
}

func (s *Session) leave() {
	s.mu.Lock()
	s.roomID = ""
	s.username = ""
	s.mu.Unlock()
}

package protocol

import (
	"sync"

	"github.com/vinay-511/Code-collab/internal/rooms"
)

// roomLocks serializes message handling per room so that fan-out order
// matches the order in which mutations were applied.
type roomLocks struct {
	mu      sync.Mutex
	entries map[rooms.RoomID]*roomLockEntry
}

type roomLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{entries: make(map[rooms.RoomID]*roomLockEntry)}
}

// lock blocks until the room's lock is held and returns its release func.
func (l *roomLocks) lock(roomID rooms.RoomID) func() {
	l.mu.Lock()
	entry := l.entries[roomID]
	if entry == nil {
		entry = &roomLockEntry{}
		l.entries[roomID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, roomID)
		}
		l.mu.Unlock()
	}
}

func (l *roomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

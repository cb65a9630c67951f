package rooms

import (
	"testing"
	"time"
)

const (
	testRoom     RoomID = "room-1"
	testPassword        = "secret"
	adminConn    ConnID = "conn-admin"
	bobConn      ConnID = "conn-bob"
	carolConn    ConnID = "conn-carol"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(RegistryConfig{
		Clock: func() time.Time { return time.Unix(1700000000, 0) },
	})
}

// newPopulatedRegistry returns a registry holding testRoom with alice as admin
// and bob and carol as members.
func newPopulatedRegistry(t *testing.T) *Registry {
	t.Helper()
	registry := newTestRegistry(t)
	if err := registry.CreateRoom(testRoom, testPassword, "alice", adminConn); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if !registry.JoinRoom(testRoom, testPassword, "bob", bobConn) {
		t.Fatalf("expected bob to join")
	}
	if !registry.JoinRoom(testRoom, testPassword, "carol", carolConn) {
		t.Fatalf("expected carol to join")
	}
	return registry
}

func snapshotOf(t *testing.T, registry *Registry) Snapshot {
	t.Helper()
	snapshot, err := registry.Snapshot(testRoom)
	if err != nil {
		t.Fatalf("unexpected snapshot error: %v", err)
	}
	return snapshot
}

func terminalByID(snapshot Snapshot, id TerminalID) (Terminal, bool) {
	for _, terminal := range snapshot.Terminals {
		if terminal.ID == id {
			return terminal, true
		}
	}
	return Terminal{}, false
}

func mustFileName(t *testing.T, value string) FileName {
	t.Helper()
	name, err := NewFileName(value)
	if err != nil {
		t.Fatalf("unexpected file name error: %v", err)
	}
	return name
}

func mustFolderPath(t *testing.T, value string) FolderPath {
	t.Helper()
	folder, err := NewFolderPath(value)
	if err != nil {
		t.Fatalf("unexpected folder path error: %v", err)
	}
	return folder
}

func mustAddFile(t *testing.T, registry *Registry, name string, creator ConnID, folder string) FileName {
	t.Helper()
	fileName := mustFileName(t, name)
	if err := registry.AddFile(testRoom, fileName, "content of "+name, creator, mustFolderPath(t, folder)); err != nil {
		t.Fatalf("unexpected add file error: %v", err)
	}
	return fileName
}

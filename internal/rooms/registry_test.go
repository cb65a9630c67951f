package rooms

import (
	"errors"
	"sync"
	"testing"
)

func TestCreateRoomSeedsDefaultFile(t *testing.T) {
	registry := newTestRegistry(t)
	if err := registry.CreateRoom(testRoom, testPassword, "alice", adminConn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, ok := snapshotOf(t, registry).Files["main.js"]
	if !ok {
		t.Fatalf("expected default file")
	}
	if content != defaultFileContent {
		t.Fatalf("unexpected default content %q", content)
	}
	owner, err := registry.FileOwner(testRoom, "main.js")
	if err != nil {
		t.Fatalf("unexpected owner error: %v", err)
	}
	if owner.ConnID != adminConn || owner.Username != "alice" {
		t.Fatalf("expected admin to own default file, got %+v", owner)
	}
	structure, err := registry.FolderStructure(testRoom)
	if err != nil {
		t.Fatalf("unexpected folder error: %v", err)
	}
	if len(structure["/"]) != 1 || structure["/"][0] != "main.js" {
		t.Fatalf("expected main.js in root, got %v", structure)
	}
	if users := registry.RoomUsers(testRoom); len(users) != 1 || users[0] != "alice" {
		t.Fatalf("expected admin as sole member, got %v", users)
	}
}

func TestCreateRoomUsesConfiguredDefaults(t *testing.T) {
	registry := NewRegistry(RegistryConfig{DefaultFileName: "main.py", DefaultFileContent: "# hi"})
	if err := registry.CreateRoom(testRoom, testPassword, "alice", adminConn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content := snapshotOf(t, registry).Files["main.py"]; content != "# hi" {
		t.Fatalf("expected configured default file, got %q", content)
	}
}

func TestCreateRoomRejectsExistingID(t *testing.T) {
	registry := newPopulatedRegistry(t)
	err := registry.CreateRoom(testRoom, "other", "mallory", "conn-mallory")
	if !errors.Is(err, ErrRoomExists) {
		t.Fatalf("expected ErrRoomExists, got %v", err)
	}
	if !registry.JoinRoom(testRoom, testPassword, "dave", "conn-dave") {
		t.Fatalf("expected original password to remain valid")
	}
}

func TestCreateRoomRejectsBlankUsername(t *testing.T) {
	registry := newTestRegistry(t)
	if err := registry.CreateRoom(testRoom, testPassword, "   ", adminConn); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}
	if registry.Exists(testRoom) {
		t.Fatalf("expected room not to be created")
	}
}

func TestJoinRoomPasswordGate(t *testing.T) {
	registry := newTestRegistry(t)
	if err := registry.CreateRoom("R1", "p", "alice", adminConn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if registry.JoinRoom("R1", "wrong", "bob", bobConn) {
		t.Fatalf("expected wrong password to fail")
	}
	if users := registry.RoomUsers("R1"); len(users) != 1 {
		t.Fatalf("expected membership unchanged, got %v", users)
	}
	if !registry.JoinRoom("R1", "p", "bob", bobConn) {
		t.Fatalf("expected correct password to succeed")
	}
	users := registry.RoomUsers("R1")
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Fatalf("expected join order [alice bob], got %v", users)
	}
	if registry.JoinRoom("missing", "p", "carol", carolConn) {
		t.Fatalf("expected unknown room to fail")
	}
}

func TestRemoveUserDestroysEmptyRoom(t *testing.T) {
	registry := newPopulatedRegistry(t)
	extra := mustAddFile(t, registry, "util.js", bobConn, "/src")
	if _, err := registry.AddAnnotation(testRoom, extra, 1, "note", "bob"); err != nil {
		t.Fatalf("unexpected annotation error: %v", err)
	}
	if err := registry.SetBreakpoints(testRoom, extra, []int{1, 2}); err != nil {
		t.Fatalf("unexpected breakpoint error: %v", err)
	}
	if _, err := registry.AddTerminal(testRoom, "term-1", ""); err != nil {
		t.Fatalf("unexpected terminal error: %v", err)
	}

	for _, conn := range []ConnID{bobConn, carolConn} {
		roomID, ok := registry.RemoveUser(conn)
		if !ok || roomID != testRoom {
			t.Fatalf("expected %s to leave %s, got %q %v", conn, testRoom, roomID, ok)
		}
		if !registry.Exists(testRoom) {
			t.Fatalf("expected room to survive while admin is connected")
		}
	}

	roomID, ok := registry.RemoveUser(adminConn)
	if !ok || roomID != testRoom {
		t.Fatalf("expected admin removal to report room")
	}
	if registry.Exists(testRoom) {
		t.Fatalf("expected empty room to be destroyed")
	}
	if registry.RoomCount() != 0 {
		t.Fatalf("expected no live rooms, got %d", registry.RoomCount())
	}
	if _, err := registry.Snapshot(testRoom); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected room state to be gone, got %v", err)
	}
	if _, ok := registry.DebugSession(testRoom); ok {
		t.Fatalf("expected debug session to be gone")
	}
	if users := registry.RoomUsers(testRoom); len(users) != 0 {
		t.Fatalf("expected no users, got %v", users)
	}

	if err := registry.CreateRoom(testRoom, "new", "erin", "conn-erin"); err != nil {
		t.Fatalf("expected id to be reusable after destruction: %v", err)
	}
	if files := snapshotOf(t, registry).Files; len(files) != 1 {
		t.Fatalf("expected fresh room with one file, got %v", files)
	}
}

func TestRecreatedRoomGetsNewInstance(t *testing.T) {
	var destroyed []string
	registry := NewRegistry(RegistryConfig{
		OnRoomDestroyed: func(roomID RoomID, instanceID string) {
			if roomID != testRoom {
				t.Errorf("unexpected destroyed room %q", roomID)
			}
			destroyed = append(destroyed, instanceID)
		},
	})
	if err := registry.CreateRoom(testRoom, testPassword, "alice", adminConn); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	first, err := registry.InstanceID(testRoom, adminConn)
	if err != nil || first == "" {
		t.Fatalf("expected an instance id, got %q (%v)", first, err)
	}
	if _, err := registry.InstanceID(testRoom, "conn-ghost"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember for a stranger, got %v", err)
	}

	registry.RemoveUser(adminConn)
	if len(destroyed) != 1 || destroyed[0] != first {
		t.Fatalf("expected destroy hook for %q, got %v", first, destroyed)
	}

	if err := registry.CreateRoom(testRoom, "other", "mallory", "conn-mallory"); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	second, err := registry.InstanceID(testRoom, "conn-mallory")
	if err != nil {
		t.Fatalf("unexpected instance error: %v", err)
	}
	if second == first {
		t.Fatalf("expected a recreated room to get a new instance id, got %q twice", first)
	}
	if _, err := registry.InstanceID(testRoom, adminConn); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected the departed admin to have no access, got %v", err)
	}
}

func TestRemoveUserSkipsDestroyHookWhileMembersRemain(t *testing.T) {
	calls := 0
	registry := NewRegistry(RegistryConfig{OnRoomDestroyed: func(RoomID, string) { calls++ }})
	if err := registry.CreateRoom(testRoom, testPassword, "alice", adminConn); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if !registry.JoinRoom(testRoom, testPassword, "bob", bobConn) {
		t.Fatalf("expected bob to join")
	}
	registry.RemoveUser(bobConn)
	registry.RemoveUser("conn-ghost")
	if calls != 0 {
		t.Fatalf("expected no destroy hook while the room is live, got %d calls", calls)
	}
}

func TestRemoveUserUnknownConnection(t *testing.T) {
	registry := newPopulatedRegistry(t)
	if roomID, ok := registry.RemoveUser("conn-ghost"); ok || roomID != "" {
		t.Fatalf("expected not found, got %q", roomID)
	}
}

func TestRemoveUserDropsPermissionRecords(t *testing.T) {
	registry := newPopulatedRegistry(t)
	if _, err := registry.RequestFilePermission(testRoom, "main.js", bobConn); err != nil {
		t.Fatalf("unexpected request error: %v", err)
	}
	if err := registry.GrantPermissionToAll(testRoom, "main.js"); err != nil {
		t.Fatalf("unexpected grant error: %v", err)
	}
	registry.RemoveUser(bobConn)
	registry.RemoveUser(carolConn)

	permissions, err := registry.FilePermissions(testRoom)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(permissions) != 0 {
		t.Fatalf("expected departed members' records to be dropped, got %v", permissions)
	}
	if _, ok := registry.PermissionState(testRoom, "main.js", bobConn); ok {
		t.Fatalf("expected pending record to be dropped")
	}
}

func TestMembershipQueries(t *testing.T) {
	registry := newPopulatedRegistry(t)
	if !registry.IsMember(testRoom, bobConn) {
		t.Fatalf("expected bob to be a member")
	}
	if registry.IsMember(testRoom, "conn-ghost") {
		t.Fatalf("expected unknown connection not to be a member")
	}
	name, ok := registry.Username(testRoom, carolConn)
	if !ok || name != "carol" {
		t.Fatalf("expected carol, got %q", name)
	}
	admin, err := registry.AdminConnID(testRoom)
	if err != nil || admin != adminConn {
		t.Fatalf("expected admin connection, got %q (%v)", admin, err)
	}
	members, err := registry.Members(testRoom)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(members) != 3 || members[2].ConnID != carolConn {
		t.Fatalf("unexpected members %+v", members)
	}
}

func TestConcurrentJoinAndLeaveLeavesNoEmptyRoom(t *testing.T) {
	registry := newTestRegistry(t)
	if err := registry.CreateRoom(testRoom, testPassword, "alice", adminConn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	for index := 0; index < 32; index++ {
		conn := ConnID("conn-" + string(rune('a'+index%26)) + string(rune('0'+index/26)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if registry.JoinRoom(testRoom, testPassword, "user", conn) {
				registry.RemoveUser(conn)
			}
		}()
	}
	wg.Wait()

	users := registry.RoomUsers(testRoom)
	if len(users) != 1 || users[0] != "alice" {
		t.Fatalf("expected only the admin to remain, got %v", users)
	}
	registry.RemoveUser(adminConn)
	if registry.Exists(testRoom) {
		t.Fatalf("expected room to be destroyed")
	}
	if registry.JoinRoom(testRoom, testPassword, "late", "conn-late") {
		t.Fatalf("expected join on destroyed room to fail")
	}
}

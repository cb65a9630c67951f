package rooms

import (
	"errors"
	"testing"
)

func TestDeleteLastFileIsRefused(t *testing.T) {
	registry := newPopulatedRegistry(t)
	for _, conn := range []ConnID{adminConn, bobConn, "conn-ghost"} {
		err := registry.DeleteFile(testRoom, "main.js", conn)
		if !errors.Is(err, ErrLastFile) {
			t.Fatalf("expected ErrLastFile for %s, got %v", conn, err)
		}
	}
	if files := snapshotOf(t, registry).Files; len(files) != 1 {
		t.Fatalf("expected file count unchanged, got %d", len(files))
	}
}

func TestDeleteFileFailureReasons(t *testing.T) {
	registry := newPopulatedRegistry(t)
	mustAddFile(t, registry, "bob.js", bobConn, "/")

	testCases := []struct {
		name     string
		roomID   RoomID
		fileName FileName
		conn     ConnID
		expected error
	}{
		{name: "unknown room", roomID: "nope", fileName: "bob.js", conn: bobConn, expected: ErrRoomNotFound},
		{name: "unknown file", roomID: testRoom, fileName: "missing.js", conn: bobConn, expected: ErrFileNotFound},
		{name: "no permission", roomID: testRoom, fileName: "bob.js", conn: carolConn, expected: ErrPermissionDenied},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			err := registry.DeleteFile(testCase.roomID, testCase.fileName, testCase.conn)
			if !errors.Is(err, testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, err)
			}
		})
	}
	if !registry.FileExists(testRoom, "bob.js") {
		t.Fatalf("expected file to survive failed deletions")
	}
}

func TestDeleteFileByOwnerAndAdmin(t *testing.T) {
	registry := newPopulatedRegistry(t)
	mustAddFile(t, registry, "bob.js", bobConn, "/")
	mustAddFile(t, registry, "carol.js", carolConn, "/lib")

	if err := registry.DeleteFile(testRoom, "bob.js", bobConn); err != nil {
		t.Fatalf("expected owner deletion to succeed: %v", err)
	}
	if err := registry.DeleteFile(testRoom, "carol.js", adminConn); err != nil {
		t.Fatalf("expected admin deletion to succeed: %v", err)
	}
	structure, err := registry.FolderStructure(testRoom)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(structure["/lib"]) != 0 {
		t.Fatalf("expected /lib listing to be empty, got %v", structure["/lib"])
	}
	if len(structure["/"]) != 1 || structure["/"][0] != "main.js" {
		t.Fatalf("expected only main.js in root, got %v", structure["/"])
	}
}

func TestDeleteFileCascades(t *testing.T) {
	registry := newPopulatedRegistry(t)
	target := mustAddFile(t, registry, "f.js", bobConn, "/")
	other := mustAddFile(t, registry, "g.js", bobConn, "/")

	for _, name := range []FileName{target, other} {
		if _, err := registry.AddAnnotation(testRoom, name, 1, "first", "bob"); err != nil {
			t.Fatalf("unexpected annotation error: %v", err)
		}
		if _, err := registry.AddAnnotation(testRoom, name, 4, "second", "carol"); err != nil {
			t.Fatalf("unexpected annotation error: %v", err)
		}
		if err := registry.SetBreakpoints(testRoom, name, []int{2, 5, 9}); err != nil {
			t.Fatalf("unexpected breakpoint error: %v", err)
		}
	}
	if _, err := registry.RequestFilePermission(testRoom, target, carolConn); err != nil {
		t.Fatalf("unexpected request error: %v", err)
	}
	if err := registry.GrantPermissionToAll(testRoom, target); err != nil {
		t.Fatalf("unexpected grant error: %v", err)
	}

	if err := registry.DeleteFile(testRoom, target, bobConn); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}

	if registry.FileExists(testRoom, target) {
		t.Fatalf("expected file to be removed")
	}
	if _, err := registry.FileOwner(testRoom, target); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected owner record to be removed, got %v", err)
	}
	annotations := snapshotOf(t, registry).Annotations
	if _, ok := annotations[target]; ok {
		t.Fatalf("expected annotations for %s to be removed", target)
	}
	if len(annotations[other]) != 2 {
		t.Fatalf("expected annotations for %s untouched, got %v", other, annotations[other])
	}
	breakpoints := snapshotOf(t, registry).Breakpoints
	if _, ok := breakpoints[target]; ok {
		t.Fatalf("expected breakpoints for %s to be removed", target)
	}
	if len(breakpoints[other]) != 3 {
		t.Fatalf("expected breakpoints for %s untouched, got %v", other, breakpoints[other])
	}
	permissions, _ := registry.FilePermissions(testRoom)
	if _, ok := permissions[target]; ok {
		t.Fatalf("expected permissions for %s to be removed", target)
	}
	if _, ok := registry.PermissionState(testRoom, target, carolConn); ok {
		t.Fatalf("expected pending request to be removed")
	}
}

func TestDeleteFileEndsItsDebugSession(t *testing.T) {
	registry := newPopulatedRegistry(t)
	target := mustAddFile(t, registry, "debugged.js", adminConn, "/")
	if _, err := registry.StartDebugSession(testRoom, target, "alice", []int{2}); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if err := registry.DeleteFile(testRoom, "main.js", adminConn); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, ok := registry.DebugSession(testRoom); !ok {
		t.Fatalf("expected deleting another file to keep the session")
	}
	if err := registry.DeleteFile(testRoom, target, adminConn); !errors.Is(err, ErrLastFile) {
		t.Fatalf("expected ErrLastFile, got %v", err)
	}

	mustAddFile(t, registry, "spare.js", adminConn, "/")
	if err := registry.DeleteFile(testRoom, target, adminConn); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, ok := registry.DebugSession(testRoom); ok {
		t.Fatalf("expected the session on the deleted file to end")
	}
}

func TestUpdateFileLastWriteWins(t *testing.T) {
	registry := newPopulatedRegistry(t)
	for _, content := range []string{"A", "B"} {
		created, err := registry.UpdateFile(testRoom, "main.js", content, adminConn)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if created {
			t.Fatalf("expected update of existing file")
		}
	}
	if content := snapshotOf(t, registry).Files["main.js"]; content != "B" {
		t.Fatalf("expected last write to win, got %q", content)
	}
}

func TestUpdateFileRequiresPermission(t *testing.T) {
	registry := newPopulatedRegistry(t)
	if _, err := registry.UpdateFile(testRoom, "main.js", "hijack", bobConn); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if _, err := registry.UpdateFile(testRoom, "main.js", "hijack", "conn-ghost"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	if content := snapshotOf(t, registry).Files["main.js"]; content != defaultFileContent {
		t.Fatalf("expected content unchanged, got %q", content)
	}
}

func TestUpdateMissingFileCreatesIt(t *testing.T) {
	registry := newPopulatedRegistry(t)
	created, err := registry.UpdateFile(testRoom, "new.js", "x", bobConn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatalf("expected create to be reported")
	}
	owner, err := registry.FileOwner(testRoom, "new.js")
	if err != nil || owner.ConnID != bobConn || owner.Username != "bob" {
		t.Fatalf("expected bob to own new.js, got %+v (%v)", owner, err)
	}
	structure, err := registry.FolderStructure(testRoom)
	if err != nil {
		t.Fatalf("unexpected folder error: %v", err)
	}
	if root := structure["/"]; len(root) != 2 || root[1] != "new.js" {
		t.Fatalf("expected new.js in root, got %v", root)
	}
}

func TestCreateFolderPathAncestry(t *testing.T) {
	registry := newPopulatedRegistry(t)
	created, err := registry.CreateFolderPath(testRoom, mustFolderPath(t, "/src/lib"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectedCreated := []FolderPath{"/src", "/src/lib"}
	if len(created) != len(expectedCreated) {
		t.Fatalf("expected %v, got %v", expectedCreated, created)
	}
	for index, folder := range expectedCreated {
		if created[index] != folder {
			t.Fatalf("expected %s at %d, got %s", folder, index, created[index])
		}
	}

	folders := snapshotOf(t, registry).Folders
	if len(folders) != 3 {
		t.Fatalf("expected three folders, got %v", folders)
	}
	for _, folder := range []FolderPath{"/", "/src", "/src/lib"} {
		if _, ok := folders[folder]; !ok {
			t.Fatalf("expected %s in %v", folder, folders)
		}
	}

	again, err := registry.CreateFolderPath(testRoom, mustFolderPath(t, "src/lib/"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected idempotent creation, got %v", again)
	}
}

func TestAddFileCreatesAncestorsAndRecordsOwner(t *testing.T) {
	registry := newPopulatedRegistry(t)
	name := mustAddFile(t, registry, "deep.go", carolConn, "/a/b/c")

	structure, _ := registry.FolderStructure(testRoom)
	for _, folder := range []FolderPath{"/a", "/a/b", "/a/b/c"} {
		if _, ok := structure[folder]; !ok {
			t.Fatalf("expected %s to exist", folder)
		}
	}
	if len(structure["/a/b/c"]) != 1 || structure["/a/b/c"][0] != name {
		t.Fatalf("expected deep.go under /a/b/c, got %v", structure["/a/b/c"])
	}
	owner, _ := registry.FileOwner(testRoom, name)
	if owner.ConnID != carolConn || owner.Username != "carol" {
		t.Fatalf("unexpected owner %+v", owner)
	}
}

func TestAddFileOverwriteKeepsSingleListing(t *testing.T) {
	registry := newPopulatedRegistry(t)
	mustAddFile(t, registry, "dup.js", bobConn, "/one")
	mustAddFile(t, registry, "dup.js", carolConn, "/two")

	structure, _ := registry.FolderStructure(testRoom)
	count := 0
	for _, listing := range structure {
		for _, name := range listing {
			if name == "dup.js" {
				count++
			}
		}
	}
	if count != 1 {
		t.Fatalf("expected dup.js listed once, got %d", count)
	}
	if len(structure["/two"]) != 1 {
		t.Fatalf("expected dup.js under /two, got %v", structure)
	}
}

func TestAddFileRequiresMembership(t *testing.T) {
	registry := newPopulatedRegistry(t)
	err := registry.AddFile(testRoom, "x.js", "", "conn-ghost", "/")
	if !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	err = registry.AddFile("nope", "x.js", "", bobConn, "/")
	if !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

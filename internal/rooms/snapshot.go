package rooms

// Snapshot is a deep copy of a room's full state, used for join and
// reconnect resynchronization.
type Snapshot struct {
	RoomID      RoomID
	Admin       string
	AdminConnID ConnID
	Members     []Member
	Files       map[FileName]string
	Owners      map[FileName]Owner
	Folders     map[FolderPath][]FileName
	Permissions map[FileName]map[ConnID]PermissionState
	Annotations map[FileName]map[int][]Annotation
	Breakpoints map[FileName][]int
	Terminals   []Terminal
	// Debug is nil when no debugging session is running.
	Debug *DebugSession
}

// Usernames returns member names in join order.
func (s Snapshot) Usernames() []string {
	names := make([]string, 0, len(s.Members))
	for _, member := range s.Members {
		names = append(names, member.Username)
	}
	return names
}

// Snapshot captures every store of the room under a single lock acquisition.
func (r *Registry) Snapshot(roomID RoomID) (Snapshot, error) {
	target, err := r.acquire(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	defer target.mu.Unlock()

	members := make([]Member, 0, len(target.joinOrder))
	for _, conn := range target.joinOrder {
		members = append(members, Member{ConnID: conn, Username: target.members[conn]})
	}
	var debug *DebugSession
	if target.debug != nil {
		copied := target.debug.copy()
		debug = &copied
	}
	owners := make(map[FileName]Owner, len(target.files))
	for name, stored := range target.files {
		owners[name] = stored.owner
	}
	return Snapshot{
		RoomID:      target.id,
		Admin:       target.admin,
		AdminConnID: target.adminConn,
		Members:     members,
		Files:       target.copyFiles(),
		Owners:      owners,
		Folders:     target.copyFolders(),
		Permissions: target.copyPermissions(),
		Annotations: target.copyAnnotations(),
		Breakpoints: target.copyBreakpoints(),
		Terminals:   target.copyTerminals(),
		Debug:       debug,
	}, nil
}

package rooms

import "go.uber.org/zap"

// HasFilePermission reports whether the connection may write the file. A file
// that does not exist yet is writable by anyone (it is a create); otherwise the
// owner, the room admin and approved requesters may write.
func (r *Registry) HasFilePermission(roomID RoomID, name FileName, conn ConnID) bool {
	target, err := r.acquire(roomID)
	if err != nil {
		return false
	}
	defer target.mu.Unlock()
	return target.hasPermission(name, conn)
}

// RequestFilePermission records a pending request for the requester and
// returns what is needed to notify the owner.
func (r *Registry) RequestFilePermission(roomID RoomID, name FileName, requester ConnID) (PermissionRequest, error) {
	target, err := r.acquireMember(roomID, requester)
	if err != nil {
		return PermissionRequest{}, err
	}
	defer target.mu.Unlock()

	existing, ok := target.files[name]
	if !ok {
		return PermissionRequest{}, ErrFileNotFound
	}
	if target.hasPermission(name, requester) {
		return PermissionRequest{}, ErrAlreadyPermitted
	}
	ownerName, connected := target.members[existing.owner.ConnID]
	if !connected {
		return PermissionRequest{}, ErrOwnerUnavailable
	}
	if _, waiting := target.pending[name][requester]; waiting {
		return PermissionRequest{}, ErrRequestPending
	}

	if target.pending[name] == nil {
		target.pending[name] = make(map[ConnID]struct{})
	}
	target.pending[name][requester] = struct{}{}

	r.logger.Info("permission requested",
		zap.String("room_id", roomID.String()),
		zap.String("conn_id", requester.String()),
		zap.String("file_name", name.String()),
		zap.String("owner_conn_id", existing.owner.ConnID.String()))
	return PermissionRequest{
		OwnerConnID:   existing.owner.ConnID,
		OwnerName:     ownerName,
		RequesterName: target.members[requester],
	}, nil
}

// RespondToPermissionRequest resolves a pending request. Only the connection
// recorded as the file's owner may respond; admin status is not consulted.
// The pending marker is cleared whatever the outcome.
func (r *Registry) RespondToPermissionRequest(roomID RoomID, name FileName, requester, responder ConnID, approved bool) (PermissionResolution, error) {
	target, err := r.acquire(roomID)
	if err != nil {
		return PermissionResolution{}, err
	}
	defer target.mu.Unlock()

	existing, ok := target.files[name]
	if !ok {
		return PermissionResolution{}, ErrFileNotFound
	}
	if _, waiting := target.pending[name][requester]; !waiting {
		return PermissionResolution{}, ErrNoPendingRequest
	}
	if existing.owner.ConnID != responder {
		return PermissionResolution{}, ErrNotFileOwner
	}

	state := PermissionDenied
	if approved {
		state = PermissionApproved
	}
	target.setPermission(name, requester, state)
	delete(target.pending[name], requester)
	if len(target.pending[name]) == 0 {
		delete(target.pending, name)
	}

	r.logger.Info("permission resolved",
		zap.String("room_id", roomID.String()),
		zap.String("conn_id", requester.String()),
		zap.String("file_name", name.String()),
		zap.String("state", string(state)))
	return PermissionResolution{State: state, RequesterName: target.members[requester]}, nil
}

// GrantPermissionToAll approves every current member except the owner.
func (r *Registry) GrantPermissionToAll(roomID RoomID, name FileName) error {
	target, err := r.acquire(roomID)
	if err != nil {
		return err
	}
	defer target.mu.Unlock()

	existing, ok := target.files[name]
	if !ok {
		return ErrFileNotFound
	}
	for conn := range target.members {
		if conn == existing.owner.ConnID {
			continue
		}
		target.setPermission(name, conn, PermissionApproved)
	}
	return nil
}

// PermissionState returns the recorded state for (file, conn). Pending wins
// over a resolved record; ok is false when nothing is recorded.
func (r *Registry) PermissionState(roomID RoomID, name FileName, conn ConnID) (PermissionState, bool) {
	target, err := r.acquire(roomID)
	if err != nil {
		return "", false
	}
	defer target.mu.Unlock()
	if _, waiting := target.pending[name][conn]; waiting {
		return PermissionPending, true
	}
	state, ok := target.permissions[name][conn]
	return state, ok
}

// FilePermissions returns a copy of every resolved permission record.
func (r *Registry) FilePermissions(roomID RoomID) (map[FileName]map[ConnID]PermissionState, error) {
	target, err := r.acquire(roomID)
	if err != nil {
		return nil, err
	}
	defer target.mu.Unlock()
	return target.copyPermissions(), nil
}

func (rm *room) hasPermission(name FileName, conn ConnID) bool {
	existing, ok := rm.files[name]
	if !ok {
		return true
	}
	if existing.owner.ConnID == conn {
		return true
	}
	if rm.adminConn == conn {
		return true
	}
	return rm.permissions[name][conn] == PermissionApproved
}

func (rm *room) setPermission(name FileName, conn ConnID, state PermissionState) {
	if rm.permissions[name] == nil {
		rm.permissions[name] = make(map[ConnID]PermissionState)
	}
	rm.permissions[name][conn] = state
}

func (rm *room) copyPermissions() map[FileName]map[ConnID]PermissionState {
	result := make(map[FileName]map[ConnID]PermissionState, len(rm.permissions))
	for name, records := range rm.permissions {
		copied := make(map[ConnID]PermissionState, len(records))
		for conn, state := range records {
			copied[conn] = state
		}
		result[name] = copied
	}
	return result
}

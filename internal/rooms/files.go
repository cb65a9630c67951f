package rooms

import "go.uber.org/zap"

// AddFile stores a file under the folder, creating missing ancestors first.
// The owner is the creator with the username it currently holds in the room.
// Duplicate names are not rejected here; an existing file of the same name is
// replaced and detached from its previous folder.
func (r *Registry) AddFile(roomID RoomID, name FileName, content string, creator ConnID, folder FolderPath) error {
	target, err := r.acquireMember(roomID, creator)
	if err != nil {
		return err
	}
	defer target.mu.Unlock()

	if folder == "" {
		folder = rootFolder
	}
	target.putFile(name, content, Owner{ConnID: creator, Username: target.members[creator]}, folder)

	r.logger.Info("file added",
		zap.String("room_id", roomID.String()),
		zap.String("conn_id", creator.String()),
		zap.String("file_name", name.String()),
		zap.String("folder", folder.String()))
	return nil
}

// UpdateFile replaces the content of a file when the connection may write it.
// Writing a file that does not exist creates it in the root folder, owned by
// the writer; created reports that case.
func (r *Registry) UpdateFile(roomID RoomID, name FileName, content string, conn ConnID) (bool, error) {
	target, err := r.acquireMember(roomID, conn)
	if err != nil {
		return false, err
	}
	defer target.mu.Unlock()

	if !target.hasPermission(name, conn) {
		return false, ErrPermissionDenied
	}
	existing, ok := target.files[name]
	if !ok {
		target.putFile(name, content, Owner{ConnID: conn, Username: target.members[conn]}, rootFolder)
		return true, nil
	}
	existing.content = content
	return false, nil
}

// DeleteFile removes a file together with its annotations, breakpoints and
// permission records, and ends a debugging session running on it. The last
// file of a room is never removed.
func (r *Registry) DeleteFile(roomID RoomID, name FileName, conn ConnID) error {
	target, err := r.acquire(roomID)
	if err != nil {
		return err
	}
	defer target.mu.Unlock()

	existing, ok := target.files[name]
	if !ok {
		return ErrFileNotFound
	}
	if len(target.files) <= 1 {
		return ErrLastFile
	}
	if !target.hasPermission(name, conn) {
		return ErrPermissionDenied
	}

	target.detach(name, existing.folder)
	delete(target.files, name)
	delete(target.permissions, name)
	delete(target.pending, name)
	delete(target.annotations, name)
	delete(target.nextAnnotationID, name)
	delete(target.breakpoints, name)
	if target.debug != nil && target.debug.FileName == name {
		target.debug = nil
	}

	r.logger.Info("file deleted",
		zap.String("room_id", roomID.String()),
		zap.String("conn_id", conn.String()),
		zap.String("file_name", name.String()))
	return nil
}

// CreateFolderPath materializes every ancestor of folder, root first, and
// returns the paths that did not exist before the call.
func (r *Registry) CreateFolderPath(roomID RoomID, folder FolderPath) ([]FolderPath, error) {
	target, err := r.acquire(roomID)
	if err != nil {
		return nil, err
	}
	defer target.mu.Unlock()
	return target.ensureFolder(folder), nil
}

// FolderStructure returns a copy of the folder index.
func (r *Registry) FolderStructure(roomID RoomID) (map[FolderPath][]FileName, error) {
	target, err := r.acquire(roomID)
	if err != nil {
		return nil, err
	}
	defer target.mu.Unlock()
	return target.copyFolders(), nil
}

// FileOwner returns the creator of a file.
func (r *Registry) FileOwner(roomID RoomID, name FileName) (Owner, error) {
	target, err := r.acquire(roomID)
	if err != nil {
		return Owner{}, err
	}
	defer target.mu.Unlock()
	existing, ok := target.files[name]
	if !ok {
		return Owner{}, ErrFileNotFound
	}
	return existing.owner, nil
}

// FileExists reports whether the room currently holds the file.
func (r *Registry) FileExists(roomID RoomID, name FileName) bool {
	target, err := r.acquire(roomID)
	if err != nil {
		return false
	}
	defer target.mu.Unlock()
	_, ok := target.files[name]
	return ok
}

func (rm *room) putFile(name FileName, content string, owner Owner, folder FolderPath) {
	if previous, ok := rm.files[name]; ok {
		rm.detach(name, previous.folder)
	}
	rm.ensureFolder(folder)
	rm.files[name] = &storedFile{content: content, owner: owner, folder: folder}
	rm.folders[folder] = append(rm.folders[folder], name)
}

func (rm *room) detach(name FileName, folder FolderPath) {
	listing := rm.folders[folder]
	for index, candidate := range listing {
		if candidate == name {
			rm.folders[folder] = append(listing[:index:index], listing[index+1:]...)
			return
		}
	}
}

func (rm *room) ensureFolder(folder FolderPath) []FolderPath {
	var created []FolderPath
	for _, ancestor := range folder.Ancestors() {
		if _, ok := rm.folders[ancestor]; ok {
			continue
		}
		rm.folders[ancestor] = []FileName{}
		rm.folderOrder = append(rm.folderOrder, ancestor)
		created = append(created, ancestor)
	}
	return created
}

func (rm *room) copyFolders() map[FolderPath][]FileName {
	result := make(map[FolderPath][]FileName, len(rm.folders))
	for folder, listing := range rm.folders {
		result[folder] = append([]FileName{}, listing...)
	}
	return result
}

func (rm *room) copyFiles() map[FileName]string {
	result := make(map[FileName]string, len(rm.files))
	for name, stored := range rm.files {
		result[name] = stored.content
	}
	return result
}

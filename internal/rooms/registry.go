package rooms

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultFileName    FileName = "main.js"
	defaultFileContent          = "// Welcome to CodeCollab!\n// Start coding here..."
	defaultShell                = "bash"
	maxUsernameLength           = 64
)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	DefaultFileName    FileName
	DefaultFileContent string
	DefaultShell       string
	Clock              func() time.Time
	Logger             *zap.Logger

	// OnRoomDestroyed runs after the last member leaves, outside every
	// registry lock.
	OnRoomDestroyed func(roomID RoomID, instanceID string)
}

// Registry is the process-wide room table. It owns every per-room store;
// nothing outlives the room it belongs to.
type Registry struct {
	mu    sync.RWMutex
	rooms map[RoomID]*room

	defaultFileName    FileName
	defaultFileContent string
	defaultShell       string
	clock              func() time.Time
	logger             *zap.Logger
	onDestroyed        func(RoomID, string)
}

type storedFile struct {
	content string
	owner   Owner
	folder  FolderPath
}

// room holds all state of a single room. Every field is guarded by mu.
// instance distinguishes successive rooms that reuse the same id.
type room struct {
	mu     sync.Mutex
	closed bool

	id        RoomID
	instance  string
	password  string
	admin     string
	adminConn ConnID

	members   map[ConnID]string
	joinOrder []ConnID

	files       map[FileName]*storedFile
	folders     map[FolderPath][]FileName
	folderOrder []FolderPath

	permissions map[FileName]map[ConnID]PermissionState
	pending     map[FileName]map[ConnID]struct{}

	annotations      map[FileName]map[int][]Annotation
	nextAnnotationID map[FileName]int64
	breakpoints      map[FileName][]int

	terminals     map[TerminalID]*Terminal
	terminalOrder []TerminalID

	debug *DebugSession
}

// NewRegistry constructs an empty Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	fileName := cfg.DefaultFileName
	if fileName == "" {
		fileName = defaultFileName
	}
	content := cfg.DefaultFileContent
	if content == "" {
		content = defaultFileContent
	}
	shell := strings.TrimSpace(cfg.DefaultShell)
	if shell == "" {
		shell = defaultShell
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		rooms:              make(map[RoomID]*room),
		defaultFileName:    fileName,
		defaultFileContent: content,
		defaultShell:       shell,
		clock:              clock,
		logger:             logger,
		onDestroyed:        cfg.OnRoomDestroyed,
	}
}

// CreateRoom registers a new room with the admin as its sole member and seeds
// the default file in the root folder.
func (r *Registry) CreateRoom(roomID RoomID, password, adminUsername string, adminConn ConnID) error {
	username, err := normalizeUsername(adminUsername)
	if err != nil {
		return err
	}
	instance, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("rooms: generate instance id: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rooms[roomID]; exists {
		return ErrRoomExists
	}

	created := newRoom(roomID, password, username, adminConn)
	created.instance = instance.String()
	created.putFile(r.defaultFileName, r.defaultFileContent, Owner{ConnID: adminConn, Username: username}, rootFolder)
	r.rooms[roomID] = created

	r.logger.Info("room created",
		zap.String("room_id", roomID.String()),
		zap.String("conn_id", adminConn.String()),
		zap.String("username", username),
		zap.String("instance_id", created.instance),
		zap.Int("active_rooms", len(r.rooms)))
	return nil
}

// JoinRoom adds the connection to the room when the password matches. Unknown
// rooms and wrong passwords are indistinguishable to the caller.
func (r *Registry) JoinRoom(roomID RoomID, password, username string, conn ConnID) bool {
	name, err := normalizeUsername(username)
	if err != nil {
		return false
	}
	target, err := r.acquire(roomID)
	if err != nil {
		return false
	}
	defer target.mu.Unlock()

	if subtle.ConstantTimeCompare([]byte(target.password), []byte(password)) != 1 {
		r.logger.Info("room join rejected", zap.String("room_id", roomID.String()), zap.String("conn_id", conn.String()))
		return false
	}
	if _, present := target.members[conn]; !present {
		target.joinOrder = append(target.joinOrder, conn)
	}
	target.members[conn] = name

	r.logger.Info("room joined",
		zap.String("room_id", roomID.String()),
		zap.String("conn_id", conn.String()),
		zap.String("username", name),
		zap.Int("members", len(target.members)))
	return true
}

// RemoveUser drops the connection from the first room that lists it. When the
// room becomes empty it is destroyed along with every dependent store.
func (r *Registry) RemoveUser(conn ConnID) (RoomID, bool) {
	left, ok := r.removeUser(conn)
	if !ok {
		return "", false
	}
	if left.remaining == 0 && r.onDestroyed != nil {
		r.onDestroyed(left.roomID, left.instance)
	}
	return left.roomID, true
}

type departure struct {
	roomID    RoomID
	instance  string
	remaining int
}

func (r *Registry) removeUser(conn ConnID) (departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomID, candidate := range r.rooms {
		candidate.mu.Lock()
		username, present := candidate.members[conn]
		if !present {
			candidate.mu.Unlock()
			continue
		}
		candidate.removeMember(conn)
		left := departure{roomID: roomID, instance: candidate.instance, remaining: len(candidate.members)}
		if left.remaining == 0 {
			candidate.destroy()
			delete(r.rooms, roomID)
		}
		candidate.mu.Unlock()

		r.logger.Info("room left",
			zap.String("room_id", roomID.String()),
			zap.String("conn_id", conn.String()),
			zap.String("username", username),
			zap.Int("members", left.remaining))
		if left.remaining == 0 {
			r.logger.Info("room destroyed",
				zap.String("room_id", roomID.String()),
				zap.String("instance_id", left.instance),
				zap.Int("active_rooms", len(r.rooms)))
		}
		return left, true
	}
	return departure{}, false
}

// RoomUsers returns the usernames of current members in join order.
func (r *Registry) RoomUsers(roomID RoomID) []string {
	target, err := r.acquire(roomID)
	if err != nil {
		return []string{}
	}
	defer target.mu.Unlock()
	return target.usernames()
}

// Members returns the current members in join order.
func (r *Registry) Members(roomID RoomID) ([]Member, error) {
	target, err := r.acquire(roomID)
	if err != nil {
		return nil, err
	}
	defer target.mu.Unlock()
	members := make([]Member, 0, len(target.joinOrder))
	for _, conn := range target.joinOrder {
		members = append(members, Member{ConnID: conn, Username: target.members[conn]})
	}
	return members, nil
}

// IsMember reports whether the connection belongs to the room.
func (r *Registry) IsMember(roomID RoomID, conn ConnID) bool {
	_, ok := r.Username(roomID, conn)
	return ok
}

// Username returns the display name the connection joined with.
func (r *Registry) Username(roomID RoomID, conn ConnID) (string, bool) {
	target, err := r.acquire(roomID)
	if err != nil {
		return "", false
	}
	defer target.mu.Unlock()
	name, ok := target.members[conn]
	return name, ok
}

// InstanceID returns the identifier of the room's current incarnation when the
// connection is a member of it. A room recreated under a reused id gets a new
// instance id.
func (r *Registry) InstanceID(roomID RoomID, conn ConnID) (string, error) {
	target, err := r.acquireMember(roomID, conn)
	if err != nil {
		return "", err
	}
	defer target.mu.Unlock()
	return target.instance, nil
}

// AdminConnID returns the connection that created the room.
func (r *Registry) AdminConnID(roomID RoomID) (ConnID, error) {
	target, err := r.acquire(roomID)
	if err != nil {
		return "", err
	}
	defer target.mu.Unlock()
	return target.adminConn, nil
}

// Exists reports whether the room is live.
func (r *Registry) Exists(roomID RoomID) bool {
	target, err := r.acquire(roomID)
	if err != nil {
		return false
	}
	target.mu.Unlock()
	return true
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// acquire returns the room locked. Callers must unlock it.
func (r *Registry) acquire(roomID RoomID) (*room, error) {
	r.mu.RLock()
	target := r.rooms[roomID]
	r.mu.RUnlock()
	if target == nil {
		return nil, ErrRoomNotFound
	}
	target.mu.Lock()
	if target.closed {
		target.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	return target, nil
}

// acquireMember is acquire plus a membership check for the acting connection.
func (r *Registry) acquireMember(roomID RoomID, conn ConnID) (*room, error) {
	target, err := r.acquire(roomID)
	if err != nil {
		return nil, err
	}
	if _, ok := target.members[conn]; !ok {
		target.mu.Unlock()
		return nil, ErrNotMember
	}
	return target, nil
}

func newRoom(roomID RoomID, password, admin string, adminConn ConnID) *room {
	return &room{
		id:               roomID,
		password:         password,
		admin:            admin,
		adminConn:        adminConn,
		members:          map[ConnID]string{adminConn: admin},
		joinOrder:        []ConnID{adminConn},
		files:            make(map[FileName]*storedFile),
		folders:          map[FolderPath][]FileName{rootFolder: {}},
		folderOrder:      []FolderPath{rootFolder},
		permissions:      make(map[FileName]map[ConnID]PermissionState),
		pending:          make(map[FileName]map[ConnID]struct{}),
		annotations:      make(map[FileName]map[int][]Annotation),
		nextAnnotationID: make(map[FileName]int64),
		breakpoints:      make(map[FileName][]int),
		terminals:        make(map[TerminalID]*Terminal),
	}
}

func (rm *room) usernames() []string {
	names := make([]string, 0, len(rm.joinOrder))
	for _, conn := range rm.joinOrder {
		names = append(names, rm.members[conn])
	}
	return names
}

// removeMember drops the connection and any permission records it held.
func (rm *room) removeMember(conn ConnID) {
	delete(rm.members, conn)
	for index, candidate := range rm.joinOrder {
		if candidate == conn {
			rm.joinOrder = append(rm.joinOrder[:index], rm.joinOrder[index+1:]...)
			break
		}
	}
	for fileName, records := range rm.permissions {
		delete(records, conn)
		if len(records) == 0 {
			delete(rm.permissions, fileName)
		}
	}
	for fileName, requests := range rm.pending {
		delete(requests, conn)
		if len(requests) == 0 {
			delete(rm.pending, fileName)
		}
	}
}

// destroy releases every dependent store. It runs under the room lock, so any
// request that raced with destruction observes a closed room.
func (rm *room) destroy() {
	rm.closed = true
	rm.members = nil
	rm.joinOrder = nil
	rm.files = nil
	rm.folders = nil
	rm.folderOrder = nil
	rm.permissions = nil
	rm.pending = nil
	rm.annotations = nil
	rm.nextAnnotationID = nil
	rm.breakpoints = nil
	rm.terminals = nil
	rm.terminalOrder = nil
	rm.debug = nil
}

func normalizeUsername(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUsername)
	}
	if len(trimmed) > maxUsernameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUsername, maxUsernameLength)
	}
	return trimmed, nil
}

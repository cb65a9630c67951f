package rooms

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

const maxIdentifierLength = 190

const rootFolder FolderPath = "/"

var (
	// ErrInvalidRoomID indicates that a room identifier is empty or exceeds storage bounds.
	ErrInvalidRoomID = errors.New("rooms: invalid room id")
	// ErrInvalidConnID indicates that a connection identifier is empty or exceeds storage bounds.
	ErrInvalidConnID = errors.New("rooms: invalid connection id")
	// ErrInvalidFileName indicates that a file name is empty, too long, or contains a path separator.
	ErrInvalidFileName = errors.New("rooms: invalid file name")
	// ErrInvalidFolderPath indicates that a folder path escapes the room root or exceeds storage bounds.
	ErrInvalidFolderPath = errors.New("rooms: invalid folder path")
	// ErrInvalidTerminalID indicates that a terminal identifier is empty or exceeds storage bounds.
	ErrInvalidTerminalID = errors.New("rooms: invalid terminal id")
)

// RoomID represents a validated room identifier.
type RoomID string

// NewRoomID validates raw input and returns a RoomID.
func NewRoomID(rawInput string) (RoomID, error) {
	trimmed, err := boundedIdentifier(rawInput, ErrInvalidRoomID)
	if err != nil {
		return "", err
	}
	return RoomID(trimmed), nil
}

// String returns the underlying string identifier.
func (id RoomID) String() string {
	return string(id)
}

// ConnID identifies a single transport connection.
type ConnID string

// NewConnID validates raw input and returns a ConnID.
func NewConnID(rawInput string) (ConnID, error) {
	trimmed, err := boundedIdentifier(rawInput, ErrInvalidConnID)
	if err != nil {
		return "", err
	}
	return ConnID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ConnID) String() string {
	return string(id)
}

// FileName is the room-unique name of a file. Names never contain a slash;
// placement is tracked separately by the folder index.
type FileName string

// NewFileName validates raw input and returns a FileName.
func NewFileName(rawInput string) (FileName, error) {
	trimmed, err := boundedIdentifier(rawInput, ErrInvalidFileName)
	if err != nil {
		return "", err
	}
	if strings.Contains(trimmed, "/") {
		return "", fmt.Errorf("%w: contains path separator", ErrInvalidFileName)
	}
	if trimmed == "." || trimmed == ".." {
		return "", fmt.Errorf("%w: reserved name %q", ErrInvalidFileName, trimmed)
	}
	return FileName(trimmed), nil
}

// String returns the underlying file name.
func (name FileName) String() string {
	return string(name)
}

// FolderPath is an absolute, cleaned folder path rooted at "/".
type FolderPath string

// NewFolderPath normalizes raw input into an absolute folder path. An empty
// input resolves to the root folder.
func NewFolderPath(rawInput string) (FolderPath, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return rootFolder, nil
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidFolderPath, maxIdentifierLength)
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: parent segment not allowed", ErrInvalidFolderPath)
		}
	}
	return FolderPath(path.Clean("/" + trimmed)), nil
}

// String returns the underlying path.
func (p FolderPath) String() string {
	return string(p)
}

// Ancestors lists every path from the root down to and including p.
func (p FolderPath) Ancestors() []FolderPath {
	result := []FolderPath{rootFolder}
	current := ""
	for _, segment := range strings.Split(string(p), "/") {
		if segment == "" {
			continue
		}
		current = current + "/" + segment
		result = append(result, FolderPath(current))
	}
	return result
}

// TerminalID identifies a replicated terminal session within a room.
type TerminalID string

// NewTerminalID validates raw input and returns a TerminalID.
func NewTerminalID(rawInput string) (TerminalID, error) {
	trimmed, err := boundedIdentifier(rawInput, ErrInvalidTerminalID)
	if err != nil {
		return "", err
	}
	return TerminalID(trimmed), nil
}

// String returns the underlying identifier.
func (id TerminalID) String() string {
	return string(id)
}

// PermissionState enumerates the edit-permission states of a (file, requester) pair.
type PermissionState string

const (
	// PermissionPending marks a request awaiting the owner's decision.
	PermissionPending PermissionState = "pending"
	// PermissionApproved grants edit rights.
	PermissionApproved PermissionState = "approved"
	// PermissionDenied records a refused request.
	PermissionDenied PermissionState = "denied"
)

// Owner captures who created a file.
type Owner struct {
	ConnID   ConnID `json:"socketId"`
	Username string `json:"username"`
}

// Member is a connected participant of a room.
type Member struct {
	ConnID   ConnID
	Username string
}

// Annotation is a note attached to a single line of a file.
type Annotation struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// Terminal is a replicated shell record. No process backs it.
type Terminal struct {
	ID        TerminalID `json:"id"`
	Shell     string     `json:"shell"`
	History   []string   `json:"history"`
	CreatedAt time.Time  `json:"createdAt"`
}

// PermissionRequest describes a freshly recorded pending request.
type PermissionRequest struct {
	OwnerConnID   ConnID
	OwnerName     string
	RequesterName string
}

// PermissionResolution describes the outcome of an owner's decision.
type PermissionResolution struct {
	State         PermissionState
	RequesterName string
}

func boundedIdentifier(rawInput string, sentinel error) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", sentinel)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", sentinel, maxIdentifierLength)
	}
	return trimmed, nil
}

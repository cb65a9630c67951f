package rooms

import "errors"

var (
	ErrRoomNotFound        = errors.New("rooms: room not found")
	ErrRoomExists          = errors.New("rooms: room already exists")
	ErrNotMember           = errors.New("rooms: connection is not a room member")
	ErrInvalidUsername     = errors.New("rooms: invalid username")
	ErrFileNotFound        = errors.New("rooms: file not found")
	ErrPermissionDenied    = errors.New("rooms: permission denied")
	ErrLastFile            = errors.New("rooms: cannot delete the last file in the room")
	ErrNotFileOwner        = errors.New("rooms: only the file owner can resolve requests")
	ErrNoPendingRequest    = errors.New("rooms: no pending request found")
	ErrRequestPending      = errors.New("rooms: permission request already pending")
	ErrAlreadyPermitted    = errors.New("rooms: connection already has edit permission")
	ErrOwnerUnavailable    = errors.New("rooms: file owner is not connected")
	ErrAnnotationNotFound  = errors.New("rooms: annotation not found")
	ErrNotAnnotationAuthor = errors.New("rooms: only the author can change an annotation")
	ErrInvalidLineNumber   = errors.New("rooms: line numbers must be positive")
	ErrNoBreakpoints       = errors.New("rooms: no breakpoints recorded for file")
	ErrTerminalNotFound    = errors.New("rooms: terminal not found")
	ErrDebugSessionActive  = errors.New("rooms: a debugging session is already running")
	ErrNoDebugSession      = errors.New("rooms: no debugging session is running")
)

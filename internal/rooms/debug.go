package rooms

import (
	"encoding/json"
	"sort"

	"go.uber.org/zap"
)

// DebugSession is the debugging state a room shares. The server replicates
// it between members; stepping itself happens in the clients.
type DebugSession struct {
	FileName    FileName
	StartedBy   string
	Breakpoints []int
	Paused      bool
	Position    DebugPosition
}

// DebugPosition is where a paused session stopped. Variables and CallStack
// are opaque client JSON.
type DebugPosition struct {
	LineNumber int
	Variables  json.RawMessage
	CallStack  json.RawMessage
}

// StartDebugSession opens the room's session on an existing file. A room runs
// at most one session at a time.
func (r *Registry) StartDebugSession(roomID RoomID, name FileName, startedBy string, breakpoints []int) (DebugSession, error) {
	for _, line := range breakpoints {
		if line < 1 {
			return DebugSession{}, ErrInvalidLineNumber
		}
	}
	target, err := r.acquire(roomID)
	if err != nil {
		return DebugSession{}, err
	}
	defer target.mu.Unlock()

	if _, ok := target.files[name]; !ok {
		return DebugSession{}, ErrFileNotFound
	}
	if target.debug != nil {
		return DebugSession{}, ErrDebugSessionActive
	}
	lines := append([]int{}, breakpoints...)
	sort.Ints(lines)
	target.debug = &DebugSession{FileName: name, StartedBy: startedBy, Breakpoints: lines}

	r.logger.Info("debug session started",
		zap.String("room_id", roomID.String()),
		zap.String("file_name", name.String()),
		zap.String("username", startedBy),
		zap.Int("breakpoints", len(lines)))
	return target.debug.copy(), nil
}

// StopDebugSession ends the room's session and returns its final state.
func (r *Registry) StopDebugSession(roomID RoomID) (DebugSession, error) {
	target, err := r.acquire(roomID)
	if err != nil {
		return DebugSession{}, err
	}
	defer target.mu.Unlock()

	if target.debug == nil {
		return DebugSession{}, ErrNoDebugSession
	}
	stopped := target.debug.copy()
	target.debug = nil

	r.logger.Info("debug session stopped",
		zap.String("room_id", roomID.String()),
		zap.String("file_name", stopped.FileName.String()))
	return stopped, nil
}

// PauseDebugSession records the position the session stopped at.
func (r *Registry) PauseDebugSession(roomID RoomID, position DebugPosition) (DebugSession, error) {
	if position.LineNumber < 1 {
		return DebugSession{}, ErrInvalidLineNumber
	}
	target, err := r.acquire(roomID)
	if err != nil {
		return DebugSession{}, err
	}
	defer target.mu.Unlock()

	if target.debug == nil {
		return DebugSession{}, ErrNoDebugSession
	}
	target.debug.Paused = true
	target.debug.Position = position.copy()
	return target.debug.copy(), nil
}

// ResumeDebugSession clears the paused position.
func (r *Registry) ResumeDebugSession(roomID RoomID) (DebugSession, error) {
	target, err := r.acquire(roomID)
	if err != nil {
		return DebugSession{}, err
	}
	defer target.mu.Unlock()

	if target.debug == nil {
		return DebugSession{}, ErrNoDebugSession
	}
	target.debug.Paused = false
	target.debug.Position = DebugPosition{}
	return target.debug.copy(), nil
}

// DebugSession returns the room's running session, if any.
func (r *Registry) DebugSession(roomID RoomID) (DebugSession, bool) {
	target, err := r.acquire(roomID)
	if err != nil {
		return DebugSession{}, false
	}
	defer target.mu.Unlock()
	if target.debug == nil {
		return DebugSession{}, false
	}
	return target.debug.copy(), true
}

func (s *DebugSession) copy() DebugSession {
	copied := *s
	copied.Breakpoints = append([]int{}, s.Breakpoints...)
	copied.Position = s.Position.copy()
	return copied
}

func (p DebugPosition) copy() DebugPosition {
	p.Variables = append(json.RawMessage(nil), p.Variables...)
	p.CallStack = append(json.RawMessage(nil), p.CallStack...)
	return p
}

package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v3"
)

// Message is one of the closed set of inbound variants below.
type Message interface {
	Event() string
}

// scoped is implemented by every message addressed to an existing room.
type scoped interface {
	Message
	Room() string
}

// checker lets a variant enforce rules the struct tags cannot express.
type checker interface {
	check() error
}

// RoomScope carries the room a message is addressed to.
type RoomScope struct {
	RoomID string `json:"roomId" validate:"required,max=190"`
}

// Room returns the addressed room id.
func (s RoomScope) Room() string {
	return s.RoomID
}

type CreateRoom struct {
	RoomID   string `json:"roomId" validate:"omitempty,max=190"`
	Password string `json:"password" validate:"required,max=256"`
	Username string `json:"username" validate:"required,max=64"`
}

type JoinRoom struct {
	RoomScope
	Password string `json:"password" validate:"required,max=256"`
	Username string `json:"username" validate:"required,max=64"`
}

type RequestFiles struct {
	RoomScope
}

type CodeChange struct {
	RoomScope
	FileName string  `json:"fileName" validate:"required,max=190"`
	Code     *string `json:"code" validate:"required"`
}

type FileCreated struct {
	RoomScope
	FileName     string `json:"fileName" validate:"required,max=190"`
	Content      string `json:"content"`
	ShareWithAll bool   `json:"shareWithAll"`
	FolderPath   string `json:"folderPath" validate:"max=190"`
}

// ImportedFile is one entry of a bulk import; Path is relative to the room root.
type ImportedFile struct {
	Path    string `json:"path" validate:"required,max=380"`
	Content string `json:"content"`
}

type ImportFolder struct {
	RoomScope
	Files []ImportedFile `json:"files" validate:"required,min=1,max=500,dive"`
}

type DeleteFile struct {
	RoomScope
	FileName string `json:"fileName" validate:"required,max=190"`
}

type RequestFilePermission struct {
	RoomScope
	FileName string `json:"fileName" validate:"required,max=190"`
}

type RespondToPermission struct {
	RoomScope
	FileName          string `json:"fileName" validate:"required,max=190"`
	RequesterSocketID string `json:"requesterSocketId" validate:"required,max=190"`
	Approved          *bool  `json:"approved" validate:"required"`
}

// CursorPosition relays an editor position; the server never inspects it.
type CursorPosition struct {
	RoomScope
	FileName string          `json:"fileName" validate:"required,max=190"`
	Position json.RawMessage `json:"position" validate:"required"`
}

type AnnotationBody struct {
	Text string `json:"text" validate:"required,max=4096"`
}

type AnnotationUpdate struct {
	RoomScope
	FileName   string         `json:"fileName" validate:"required,max=190"`
	LineNumber int            `json:"lineNumber" validate:"required,min=1"`
	Annotation AnnotationBody `json:"annotation"`
}

type AnnotationRef struct {
	ID int64 `json:"id" validate:"required,min=1"`
}

type AnnotationDelete struct {
	RoomScope
	FileName   string        `json:"fileName" validate:"required,max=190"`
	LineNumber int           `json:"lineNumber" validate:"required,min=1"`
	Annotation AnnotationRef `json:"annotation"`
}

type AnnotationEdit struct {
	ID   int64  `json:"id" validate:"required,min=1"`
	Text string `json:"text" validate:"required,max=4096"`
}

// UpdateAnnotation rewrites the text of an existing annotation.
type UpdateAnnotation struct {
	RoomScope
	FileName   string         `json:"fileName" validate:"required,max=190"`
	LineNumber int            `json:"lineNumber" validate:"required,min=1"`
	Annotation AnnotationEdit `json:"annotation"`
}

// BreakpointUpdate replaces the file's breakpoints; an empty list clears them.
type BreakpointUpdate struct {
	RoomScope
	FileName    string `json:"fileName" validate:"required,max=190"`
	Breakpoints []int  `json:"breakpoints" validate:"max=10000,dive,min=1"`
}

type TerminalCreated struct {
	RoomScope
	TerminalID string `json:"terminalId" validate:"required,max=190"`
	Shell      string `json:"shell" validate:"max=64"`
}

type TerminalClosed struct {
	RoomScope
	TerminalID string `json:"terminalId" validate:"required,max=190"`
}

type TerminalHistoryUpdate struct {
	RoomScope
	TerminalID string   `json:"terminalId" validate:"required,max=190"`
	History    []string `json:"history" validate:"max=5000"`
}

type TerminalShellChange struct {
	RoomScope
	TerminalID string `json:"terminalId" validate:"required,max=190"`
	Shell      string `json:"shell" validate:"required,max=64"`
}

type SendMessage struct {
	RoomScope
	Message string `json:"message" validate:"required,max=4096"`
}

type VoiceChatJoin struct {
	RoomScope
}

type VoiceChatLeave struct {
	RoomScope
}

type VoiceChatOffer struct {
	RoomScope
	TargetSocketID string                     `json:"targetSocketId" validate:"required,max=190"`
	Offer          *webrtc.SessionDescription `json:"offer" validate:"required"`
}

type VoiceChatAnswer struct {
	RoomScope
	TargetSocketID string                     `json:"targetSocketId" validate:"required,max=190"`
	Answer         *webrtc.SessionDescription `json:"answer" validate:"required"`
}

type VoiceChatIceCandidate struct {
	RoomScope
	TargetSocketID string                   `json:"targetSocketId" validate:"required,max=190"`
	Candidate      *webrtc.ICECandidateInit `json:"candidate" validate:"required"`
}

type DebugBreakpoint struct {
	ID         int64  `json:"id"`
	LineNumber int    `json:"lineNumber" validate:"required,min=1"`
	FileName   string `json:"fileName" validate:"max=190"`
}

// StartDebugging opens the room's shared debugging session. Breakpoints
// naming another file are ignored.
type StartDebugging struct {
	RoomScope
	FileName    string            `json:"fileName" validate:"required,max=190"`
	Breakpoints []DebugBreakpoint `json:"breakpoints" validate:"max=10000,dive"`
}

type StopDebugging struct {
	RoomScope
}

// DebugStep is the position a client reports after stepping. It may be
// omitted entirely, in which case the step is relayed without moving the
// shared position.
type DebugStep struct {
	LineNumber int             `json:"lineNumber" validate:"omitempty,min=1"`
	Variables  json.RawMessage `json:"variables,omitempty"`
	CallStack  json.RawMessage `json:"callStack,omitempty"`
}

type DebugStepOver struct {
	RoomScope
	DebugStep
}

type DebugStepInto struct {
	RoomScope
	DebugStep
}

type DebugStepOut struct {
	RoomScope
	DebugStep
}

type DebugContinue struct {
	RoomScope
}

func (CreateRoom) Event() string            { return EventCreateRoom }
func (JoinRoom) Event() string              { return EventJoinRoom }
func (RequestFiles) Event() string          { return EventRequestFiles }
func (CodeChange) Event() string            { return EventCodeChange }
func (FileCreated) Event() string           { return EventFileCreated }
func (ImportFolder) Event() string          { return EventImportFolder }
func (DeleteFile) Event() string            { return EventDeleteFile }
func (RequestFilePermission) Event() string { return EventRequestFilePermission }
func (RespondToPermission) Event() string   { return EventRespondToPermission }
func (CursorPosition) Event() string        { return EventCursorPosition }
func (AnnotationUpdate) Event() string      { return EventAnnotationUpdate }
func (AnnotationDelete) Event() string      { return EventAnnotationDelete }
func (UpdateAnnotation) Event() string      { return EventUpdateAnnotation }
func (BreakpointUpdate) Event() string      { return EventBreakpointUpdate }
func (TerminalCreated) Event() string       { return EventTerminalCreated }
func (TerminalClosed) Event() string        { return EventTerminalClosed }
func (TerminalHistoryUpdate) Event() string { return EventTerminalHistoryUpdate }
func (TerminalShellChange) Event() string   { return EventTerminalShellChange }
func (SendMessage) Event() string           { return EventSendMessage }
func (VoiceChatJoin) Event() string         { return EventVoiceChatJoin }
func (VoiceChatLeave) Event() string        { return EventVoiceChatLeave }
func (VoiceChatOffer) Event() string        { return EventVoiceChatOffer }
func (VoiceChatAnswer) Event() string       { return EventVoiceChatAnswer }
func (VoiceChatIceCandidate) Event() string { return EventVoiceChatIceCandidate }
func (StartDebugging) Event() string        { return EventStartDebugging }
func (StopDebugging) Event() string         { return EventStopDebugging }
func (DebugStepOver) Event() string         { return EventDebugStepOver }
func (DebugStepInto) Event() string         { return EventDebugStepInto }
func (DebugStepOut) Event() string          { return EventDebugStepOut }
func (DebugContinue) Event() string         { return EventDebugContinue }

func (m VoiceChatOffer) check() error {
	if m.Offer.Type != webrtc.SDPTypeOffer {
		return fmt.Errorf("offer has sdp type %q", m.Offer.Type.String())
	}
	if m.Offer.SDP == "" {
		return fmt.Errorf("offer sdp is empty")
	}
	return nil
}

func (m VoiceChatAnswer) check() error {
	if m.Answer.Type != webrtc.SDPTypeAnswer && m.Answer.Type != webrtc.SDPTypePranswer {
		return fmt.Errorf("answer has sdp type %q", m.Answer.Type.String())
	}
	if m.Answer.SDP == "" {
		return fmt.Errorf("answer sdp is empty")
	}
	return nil
}

func (m VoiceChatIceCandidate) check() error {
	if m.Candidate.Candidate == "" && m.Candidate.SDPMid == nil && m.Candidate.SDPMLineIndex == nil {
		return fmt.Errorf("candidate is empty")
	}
	return nil
}

func (s DebugStep) check() error {
	if s.LineNumber == 0 && (len(s.Variables) > 0 || len(s.CallStack) > 0) {
		return fmt.Errorf("step state requires a lineNumber")
	}
	return nil
}

// inboundFactories enumerates every accepted event.
var inboundFactories = map[string]func() Message{
	EventCreateRoom:            func() Message { return &CreateRoom{} },
	EventJoinRoom:              func() Message { return &JoinRoom{} },
	EventRequestFiles:          func() Message { return &RequestFiles{} },
	EventCodeChange:            func() Message { return &CodeChange{} },
	EventFileCreated:           func() Message { return &FileCreated{} },
	EventImportFolder:          func() Message { return &ImportFolder{} },
	EventDeleteFile:            func() Message { return &DeleteFile{} },
	EventRequestFilePermission: func() Message { return &RequestFilePermission{} },
	EventRespondToPermission:   func() Message { return &RespondToPermission{} },
	EventCursorPosition:        func() Message { return &CursorPosition{} },
	EventAnnotationUpdate:      func() Message { return &AnnotationUpdate{} },
	EventAnnotationDelete:      func() Message { return &AnnotationDelete{} },
	EventUpdateAnnotation:      func() Message { return &UpdateAnnotation{} },
	EventBreakpointUpdate:      func() Message { return &BreakpointUpdate{} },
	EventTerminalCreated:       func() Message { return &TerminalCreated{} },
	EventTerminalClosed:        func() Message { return &TerminalClosed{} },
	EventTerminalHistoryUpdate: func() Message { return &TerminalHistoryUpdate{} },
	EventTerminalShellChange:   func() Message { return &TerminalShellChange{} },
	EventSendMessage:           func() Message { return &SendMessage{} },
	EventVoiceChatJoin:         func() Message { return &VoiceChatJoin{} },
	EventVoiceChatLeave:        func() Message { return &VoiceChatLeave{} },
	EventVoiceChatOffer:        func() Message { return &VoiceChatOffer{} },
	EventVoiceChatAnswer:       func() Message { return &VoiceChatAnswer{} },
	EventVoiceChatIceCandidate: func() Message { return &VoiceChatIceCandidate{} },
	EventStartDebugging:        func() Message { return &StartDebugging{} },
	EventStopDebugging:         func() Message { return &StopDebugging{} },
	EventDebugStepOver:         func() Message { return &DebugStepOver{} },
	EventDebugStepInto:         func() Message { return &DebugStepInto{} },
	EventDebugStepOut:          func() Message { return &DebugStepOut{} },
	EventDebugContinue:         func() Message { return &DebugContinue{} },
}

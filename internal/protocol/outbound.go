package protocol

import (
	"encoding/json"

	"github.com/pion/webrtc/v3"
	"github.com/vinay-511/Code-collab/internal/rooms"
)

// Outbound is a server to client frame.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Encode renders the frame as an envelope.
func (o Outbound) Encode() ([]byte, error) {
	return json.Marshal(o)
}

type JoinedRoomPayload struct {
	RoomID      string `json:"roomId"`
	SocketID    string `json:"socketId"`
	Username    string `json:"username"`
	IsAdmin     bool   `json:"isAdmin"`
	AccessToken string `json:"accessToken,omitempty"`
	ExpiresIn   int64  `json:"expiresIn,omitempty"`
}

type CodeUpdatePayload struct {
	FileName string `json:"fileName"`
	Code     string `json:"code"`
}

type FileCreatedPayload struct {
	FileName     string      `json:"fileName"`
	Content      string      `json:"content"`
	Owner        rooms.Owner `json:"owner"`
	ShareWithAll bool        `json:"shareWithAll"`
	FolderPath   string      `json:"folderPath"`
}

type FileDeletedPayload struct {
	FileName string `json:"fileName"`
}

// FileOperationErrorPayload reports a failed file action. Clients render it as
// "Error <operation>ing file: <message>".
type FileOperationErrorPayload struct {
	Operation string `json:"operation"`
	FileName  string `json:"fileName,omitempty"`
	Message   string `json:"message"`
}

type FileContentPayload struct {
	Content string `json:"content"`
}

type PermissionRequiredPayload struct {
	FileName string `json:"fileName"`
}

type PermissionRequestPayload struct {
	FileName          string `json:"fileName"`
	RequesterName     string `json:"requesterName"`
	RequesterSocketID string `json:"requesterSocketId"`
}

type PermissionRequestSentPayload struct {
	FileName  string `json:"fileName"`
	OwnerName string `json:"ownerName"`
}

type MessagePayload struct {
	Message string `json:"message"`
}

type PermissionResponsePayload struct {
	FileName string `json:"fileName"`
	Approved bool   `json:"approved"`
	Message  string `json:"message"`
}

type CursorPositionUpdatePayload struct {
	FileName string          `json:"fileName"`
	Position json.RawMessage `json:"position"`
	SocketID string          `json:"socketId"`
	Username string          `json:"username"`
}

type AnnotationPayload struct {
	FileName   string           `json:"fileName"`
	LineNumber int              `json:"lineNumber"`
	Annotation rooms.Annotation `json:"annotation"`
}

type BreakpointPayload struct {
	FileName    string `json:"fileName"`
	Breakpoints []int  `json:"breakpoints"`
}

type TerminalPayload struct {
	TerminalID string   `json:"terminalId"`
	SocketID   string   `json:"socketId,omitempty"`
	Shell      string   `json:"shell,omitempty"`
	History    []string `json:"history,omitempty"`
}

type ChatPayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type VoicePeerPayload struct {
	Username string `json:"username"`
	SocketID string `json:"socketId"`
}

type VoiceOfferPayload struct {
	Offer    *webrtc.SessionDescription `json:"offer"`
	SocketID string                     `json:"socketId"`
}

type VoiceAnswerPayload struct {
	Answer   *webrtc.SessionDescription `json:"answer"`
	SocketID string                     `json:"socketId"`
}

type VoiceCandidatePayload struct {
	Candidate *webrtc.ICECandidateInit `json:"candidate"`
	SocketID  string                   `json:"socketId"`
}

// DebugSessionPayload describes a running debugging session.
type DebugSessionPayload struct {
	FileName    string `json:"fileName"`
	StartedBy   string `json:"startedBy"`
	Breakpoints []int  `json:"breakpoints"`
}

// DebugStatePayload reports a debugger transition made by username. The
// position fields are set only while the session is paused.
type DebugStatePayload struct {
	Action     string          `json:"action,omitempty"`
	Username   string          `json:"username"`
	LineNumber int             `json:"lineNumber,omitempty"`
	Variables  json.RawMessage `json:"variables,omitempty"`
	CallStack  json.RawMessage `json:"callStack,omitempty"`
}

type ServerErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

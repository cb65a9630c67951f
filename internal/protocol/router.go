package protocol

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/vinay-511/Code-collab/internal/rooms"
	"go.uber.org/zap"
)

const maxRoomIDAttempts = 5

var (
	errMissingRegistry = errors.New("room registry dependency required")
	errMissingEmitter  = errors.New("emitter dependency required")
)

// Emitter delivers a frame to one connection. Implementations must not block.
type Emitter interface {
	Emit(conn rooms.ConnID, message Outbound)
}

// RoomTokenIssuer issues the access token handed out with joined-room.
type RoomTokenIssuer interface {
	IssueRoomToken(roomID, socketID, username string) (string, int64, error)
}

type RouterConfig struct {
	Registry        *rooms.Registry
	Emitter         Emitter
	Tokens          RoomTokenIssuer
	Logger          *zap.Logger
	RoomIDGenerator func() (string, error)
}

// Router applies inbound messages to the room stores and fans the results out.
// Handling is serialized per room: a message's store mutation and the frames
// it produces are ordered against every other message of the same room.
type Router struct {
	registry  *rooms.Registry
	emitter   Emitter
	tokens    RoomTokenIssuer
	logger    *zap.Logger
	decoder   *Decoder
	locks     *roomLocks
	newRoomID func() (string, error)
}

// call is the context of one handled message.
type call struct {
	session  *Session
	conn     rooms.ConnID
	roomID   rooms.RoomID
	username string
	event    string
}

func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Registry == nil {
		return nil, errMissingRegistry
	}
	if cfg.Emitter == nil {
		return nil, errMissingEmitter
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	generator := cfg.RoomIDGenerator
	if generator == nil {
		generator = generateRoomID
	}
	return &Router{
		registry:  cfg.Registry,
		emitter:   cfg.Emitter,
		tokens:    cfg.Tokens,
		logger:    logger,
		decoder:   NewDecoder(),
		locks:     newRoomLocks(),
		newRoomID: generator,
	}, nil
}

// HandleFrame decodes and handles one inbound frame.
func (r *Router) HandleFrame(session *Session, frame []byte) {
	event, message, err := r.decoder.Decode(frame)
	if err != nil {
		r.logger.Info("message rejected",
			zap.String("conn_id", session.ConnID().String()),
			zap.String("event", event),
			zap.Error(err))
		r.emit(session.ConnID(), EventServerError, ServerErrorPayload{Event: event, Message: err.Error()})
		return
	}
	r.Handle(session, message)
}

// Handle applies a decoded message. Panics are contained here and reported to
// the sender as server-error.
func (r *Router) Handle(session *Session, message Message) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("message handler panicked",
				zap.String("conn_id", session.ConnID().String()),
				zap.String("event", message.Event()),
				zap.Any("panic", recovered),
				zap.Stack("stack"))
			r.emit(session.ConnID(), EventServerError, ServerErrorPayload{Event: message.Event(), Message: "Internal server error"})
		}
	}()

	switch typed := message.(type) {
	case *CreateRoom:
		r.handleCreateRoom(session, typed)
		return
	case *JoinRoom:
		r.handleJoinRoom(session, typed)
		return
	}

	addressed, ok := message.(scoped)
	if !ok {
		r.logger.Warn("unhandled message", zap.String("event", message.Event()))
		return
	}
	roomID := rooms.RoomID(strings.TrimSpace(addressed.Room()))
	release := r.locks.lock(roomID)
	defer release()

	current, username, joined := session.Room()
	if !joined || current != roomID || !r.registry.IsMember(roomID, session.ConnID()) {
		r.logger.Info("message from non-member rejected",
			zap.String("room_id", roomID.String()),
			zap.String("conn_id", session.ConnID().String()),
			zap.String("event", message.Event()))
		r.emit(session.ConnID(), EventRoomError, userMessage(rooms.ErrNotMember))
		return
	}
	c := call{session: session, conn: session.ConnID(), roomID: roomID, username: username, event: message.Event()}

	switch typed := message.(type) {
	case *RequestFiles:
		r.sendSnapshot(c.conn, c.roomID)
	case *CodeChange:
		r.handleCodeChange(c, typed)
	case *FileCreated:
		r.handleFileCreated(c, typed)
	case *ImportFolder:
		r.handleImportFolder(c, typed)
	case *DeleteFile:
		r.handleDeleteFile(c, typed)
	case *RequestFilePermission:
		r.handleRequestFilePermission(c, typed)
	case *RespondToPermission:
		r.handleRespondToPermission(c, typed)
	case *CursorPosition:
		r.broadcast(c.roomID, c.conn, EventCursorPositionUpdate, CursorPositionUpdatePayload{
			FileName: typed.FileName,
			Position: typed.Position,
			SocketID: c.conn.String(),
			Username: c.username,
		})
	case *AnnotationUpdate:
		r.handleAnnotationUpdate(c, typed)
	case *AnnotationDelete:
		r.handleAnnotationDelete(c, typed)
	case *UpdateAnnotation:
		r.handleUpdateAnnotation(c, typed)
	case *BreakpointUpdate:
		r.handleBreakpointUpdate(c, typed)
	case *TerminalCreated, *TerminalClosed, *TerminalHistoryUpdate, *TerminalShellChange:
		r.handleTerminal(c, typed)
	case *SendMessage:
		r.broadcast(c.roomID, c.conn, EventReceiveMessage, ChatPayload{Username: c.username, Message: typed.Message})
	case *VoiceChatJoin:
		r.broadcast(c.roomID, c.conn, EventVoiceChatJoin, VoicePeerPayload{Username: c.username, SocketID: c.conn.String()})
	case *VoiceChatLeave:
		r.broadcast(c.roomID, c.conn, EventVoiceChatLeave, VoicePeerPayload{Username: c.username, SocketID: c.conn.String()})
	case *VoiceChatOffer:
		r.relay(c, typed.TargetSocketID, EventVoiceChatOffer, VoiceOfferPayload{Offer: typed.Offer, SocketID: c.conn.String()})
	case *VoiceChatAnswer:
		r.relay(c, typed.TargetSocketID, EventVoiceChatAnswer, VoiceAnswerPayload{Answer: typed.Answer, SocketID: c.conn.String()})
	case *VoiceChatIceCandidate:
		r.relay(c, typed.TargetSocketID, EventVoiceChatIceCandidate, VoiceCandidatePayload{Candidate: typed.Candidate, SocketID: c.conn.String()})
	case *StartDebugging:
		r.handleStartDebugging(c, typed)
	case *StopDebugging:
		r.handleStopDebugging(c)
	case *DebugStepOver:
		r.handleDebugStep(c, "step-over", typed.DebugStep)
	case *DebugStepInto:
		r.handleDebugStep(c, "step-into", typed.DebugStep)
	case *DebugStepOut:
		r.handleDebugStep(c, "step-out", typed.DebugStep)
	case *DebugContinue:
		r.handleDebugContinue(c)
	default:
		r.logger.Warn("unhandled message", zap.String("event", message.Event()))
	}
}

// Disconnect removes the connection from its room and tells the remaining
// members. It is safe to call for sessions that never joined.
func (r *Router) Disconnect(session *Session) {
	r.leaveCurrentRoom(session)
}

func (r *Router) handleCreateRoom(session *Session, msg *CreateRoom) {
	conn := session.ConnID()
	username := strings.TrimSpace(msg.Username)
	r.leaveCurrentRoom(session)

	requested := strings.TrimSpace(msg.RoomID)
	for attempt := 0; attempt < maxRoomIDAttempts; attempt++ {
		candidate := requested
		if candidate == "" {
			generated, err := r.newRoomID()
			if err != nil {
				r.logger.Error("room id generation failed", zap.Error(err))
				r.emit(conn, EventRoomError, userMessage(err))
				return
			}
			candidate = generated
		}
		roomID, err := rooms.NewRoomID(candidate)
		if err != nil {
			r.emit(conn, EventRoomError, userMessage(err))
			return
		}

		release := r.locks.lock(roomID)
		err = r.registry.CreateRoom(roomID, msg.Password, username, conn)
		if errors.Is(err, rooms.ErrRoomExists) && requested == "" {
			release()
			continue
		}
		if err != nil {
			release()
			r.logger.Info("room creation rejected",
				zap.String("room_id", roomID.String()),
				zap.String("conn_id", conn.String()),
				zap.Error(err))
			r.emit(conn, EventRoomError, userMessage(err))
			return
		}
		r.admit(session, roomID, username, true)
		release()
		return
	}
	r.emit(conn, EventRoomError, "Could not allocate a room ID, please try again")
}

func (r *Router) handleJoinRoom(session *Session, msg *JoinRoom) {
	conn := session.ConnID()
	username := strings.TrimSpace(msg.Username)
	roomID, err := rooms.NewRoomID(msg.RoomID)
	if err != nil {
		r.emit(conn, EventRoomError, userMessage(err))
		return
	}
	if current, _, joined := session.Room(); joined && current != roomID {
		r.leaveCurrentRoom(session)
	}

	release := r.locks.lock(roomID)
	defer release()
	if !r.registry.JoinRoom(roomID, msg.Password, username, conn) {
		r.emit(conn, EventRoomError, "Invalid room ID or password")
		return
	}
	r.admit(session, roomID, username, false)
}

// admit finishes a successful create or join. The caller holds the room lock.
func (r *Router) admit(session *Session, roomID rooms.RoomID, username string, created bool) {
	conn := session.ConnID()
	session.enter(roomID, username)

	adminConn, _ := r.registry.AdminConnID(roomID)
	payload := JoinedRoomPayload{
		RoomID:   roomID.String(),
		SocketID: conn.String(),
		Username: username,
		IsAdmin:  adminConn == conn,
	}
	if r.tokens != nil {
		token, expiresIn, err := r.tokens.IssueRoomToken(roomID.String(), conn.String(), username)
		if err != nil {
			r.logger.Warn("room token issue failed", zap.String("room_id", roomID.String()), zap.Error(err))
		} else {
			payload.AccessToken = token
			payload.ExpiresIn = expiresIn
		}
	}
	r.emit(conn, EventJoinedRoom, payload)
	r.broadcast(roomID, "", EventRoomUpdate, r.registry.RoomUsers(roomID))
	if !created {
		r.broadcast(roomID, conn, EventUserJoined, username)
	}
	r.sendSnapshot(conn, roomID)
}

func (r *Router) leaveCurrentRoom(session *Session) {
	current, _, joined := session.Room()
	if !joined {
		return
	}
	release := r.locks.lock(current)
	defer release()

	conn := session.ConnID()
	left, removed := r.registry.RemoveUser(conn)
	session.leave()
	if !removed || !r.registry.Exists(left) {
		return
	}
	r.broadcast(left, conn, EventRoomUpdate, r.registry.RoomUsers(left))
	r.broadcast(left, conn, EventUserDisconnected, conn.String())
}

func (r *Router) handleCodeChange(c call, msg *CodeChange) {
	name, err := rooms.NewFileName(msg.FileName)
	if err != nil {
		r.fileOperationError(c, "update", msg.FileName, err)
		return
	}
	created, err := r.registry.UpdateFile(c.roomID, name, *msg.Code, c.conn)
	if errors.Is(err, rooms.ErrPermissionDenied) {
		r.logger.Debug("code change denied",
			zap.String("room_id", c.roomID.String()),
			zap.String("conn_id", c.conn.String()),
			zap.String("file_name", name.String()))
		r.emit(c.conn, EventPermissionRequired, PermissionRequiredPayload{FileName: name.String()})
		return
	}
	if err != nil {
		r.fileOperationError(c, "update", name.String(), err)
		return
	}
	if created {
		r.broadcast(c.roomID, c.conn, EventFileCreated, FileCreatedPayload{
			FileName:   name.String(),
			Content:    *msg.Code,
			Owner:      rooms.Owner{ConnID: c.conn, Username: c.username},
			FolderPath: "/",
		})
		return
	}
	r.broadcast(c.roomID, c.conn, EventCodeUpdate, CodeUpdatePayload{FileName: name.String(), Code: *msg.Code})
}

func (r *Router) handleFileCreated(c call, msg *FileCreated) {
	name, err := rooms.NewFileName(msg.FileName)
	if err != nil {
		r.fileOperationError(c, "create", msg.FileName, err)
		return
	}
	folder, err := rooms.NewFolderPath(msg.FolderPath)
	if err != nil {
		r.fileOperationError(c, "create", name.String(), err)
		return
	}
	if r.registry.FileExists(c.roomID, name) {
		r.emit(c.conn, EventFileOperationError, FileOperationErrorPayload{
			Operation: "create",
			FileName:  name.String(),
			Message:   fmt.Sprintf("A file named %q already exists", name),
		})
		return
	}

	newFolders, err := r.registry.CreateFolderPath(c.roomID, folder)
	if err != nil {
		r.fileOperationError(c, "create", name.String(), err)
		return
	}
	if err := r.registry.AddFile(c.roomID, name, msg.Content, c.conn, folder); err != nil {
		r.fileOperationError(c, "create", name.String(), err)
		return
	}
	if msg.ShareWithAll {
		if err := r.registry.GrantPermissionToAll(c.roomID, name); err != nil {
			r.logger.Warn("share with all failed", zap.String("room_id", c.roomID.String()), zap.Error(err))
		}
	}
	owner, _ := r.registry.FileOwner(c.roomID, name)

	r.broadcast(c.roomID, c.conn, EventFileCreated, FileCreatedPayload{
		FileName:     name.String(),
		Content:      msg.Content,
		Owner:        owner,
		ShareWithAll: msg.ShareWithAll,
		FolderPath:   folder.String(),
	})
	if len(newFolders) > 0 {
		r.broadcastFolderStructure(c.roomID)
	}
	if msg.ShareWithAll {
		r.broadcastPermissions(c.roomID)
	}
}

func (r *Router) handleImportFolder(c call, msg *ImportFolder) {
	created := make([]FileCreatedPayload, 0, len(msg.Files))
	var skipped []string
	for _, file := range msg.Files {
		relative := strings.ReplaceAll(strings.TrimSpace(file.Path), "\\", "/")
		dir, base := path.Split(relative)
		name, err := rooms.NewFileName(base)
		if err != nil {
			skipped = append(skipped, file.Path)
			continue
		}
		folder, err := rooms.NewFolderPath(dir)
		if err != nil {
			skipped = append(skipped, file.Path)
			continue
		}
		if r.registry.FileExists(c.roomID, name) {
			skipped = append(skipped, file.Path)
			continue
		}
		if err := r.registry.AddFile(c.roomID, name, file.Content, c.conn, folder); err != nil {
			skipped = append(skipped, file.Path)
			continue
		}
		created = append(created, FileCreatedPayload{
			FileName:   name.String(),
			Content:    file.Content,
			Owner:      rooms.Owner{ConnID: c.conn, Username: c.username},
			FolderPath: folder.String(),
		})
	}

	for _, payload := range created {
		r.broadcast(c.roomID, "", EventFileCreated, payload)
	}
	if len(created) > 0 {
		r.broadcastFolderStructure(c.roomID)
	}
	if len(skipped) > 0 {
		r.emit(c.conn, EventFileOperationError, FileOperationErrorPayload{
			Operation: "import",
			Message:   "Skipped existing or invalid files: " + strings.Join(skipped, ", "),
		})
	}
	r.logger.Info("folder imported",
		zap.String("room_id", c.roomID.String()),
		zap.String("conn_id", c.conn.String()),
		zap.Int("created", len(created)),
		zap.Int("skipped", len(skipped)))
}

func (r *Router) handleDeleteFile(c call, msg *DeleteFile) {
	name, err := rooms.NewFileName(msg.FileName)
	if err != nil {
		r.fileOperationError(c, "delete", msg.FileName, err)
		return
	}
	debugged, debugging := r.registry.DebugSession(c.roomID)
	err = r.registry.DeleteFile(c.roomID, name, c.conn)
	if errors.Is(err, rooms.ErrPermissionDenied) {
		r.emit(c.conn, EventFileOperationError, FileOperationErrorPayload{
			Operation: "delete",
			FileName:  name.String(),
			Message:   "You don't have permission to delete this file",
		})
		return
	}
	if err != nil {
		r.fileOperationError(c, "delete", name.String(), err)
		return
	}
	r.broadcast(c.roomID, "", EventFileDeleted, FileDeletedPayload{FileName: name.String()})
	if debugging && debugged.FileName == name {
		r.broadcast(c.roomID, "", EventDebugStopped, DebugStatePayload{Action: "file-deleted", Username: c.username})
	}
}

func (r *Router) handleRequestFilePermission(c call, msg *RequestFilePermission) {
	name, err := rooms.NewFileName(msg.FileName)
	if err != nil {
		r.emit(c.conn, EventPermissionRequestError, MessagePayload{Message: userMessage(err)})
		return
	}
	request, err := r.registry.RequestFilePermission(c.roomID, name, c.conn)
	if err != nil {
		r.emit(c.conn, EventPermissionRequestError, MessagePayload{Message: userMessage(err)})
		return
	}
	r.emit(request.OwnerConnID, EventPermissionRequest, PermissionRequestPayload{
		FileName:          name.String(),
		RequesterName:     request.RequesterName,
		RequesterSocketID: c.conn.String(),
	})
	r.emit(c.conn, EventPermissionRequestSent, PermissionRequestSentPayload{FileName: name.String(), OwnerName: request.OwnerName})
}

func (r *Router) handleRespondToPermission(c call, msg *RespondToPermission) {
	name, err := rooms.NewFileName(msg.FileName)
	if err != nil {
		r.emit(c.conn, EventPermissionRequestError, MessagePayload{Message: userMessage(err)})
		return
	}
	requester, err := rooms.NewConnID(msg.RequesterSocketID)
	if err != nil {
		r.emit(c.conn, EventPermissionRequestError, MessagePayload{Message: userMessage(rooms.ErrNoPendingRequest)})
		return
	}
	approved := *msg.Approved
	if _, err := r.registry.RespondToPermissionRequest(c.roomID, name, requester, c.conn, approved); err != nil {
		r.emit(c.conn, EventPermissionRequestError, MessagePayload{Message: userMessage(err)})
		return
	}

	message := fmt.Sprintf("%s denied your request to edit %q", c.username, name)
	if approved {
		message = fmt.Sprintf("%s granted you permission to edit %q", c.username, name)
	}
	r.emit(requester, EventPermissionResponse, PermissionResponsePayload{FileName: name.String(), Approved: approved, Message: message})
	r.broadcastPermissions(c.roomID)
}

func (r *Router) handleAnnotationUpdate(c call, msg *AnnotationUpdate) {
	name, err := rooms.NewFileName(msg.FileName)
	if err != nil {
		r.fileOperationError(c, "annotate", msg.FileName, err)
		return
	}
	annotation, err := r.registry.AddAnnotation(c.roomID, name, msg.LineNumber, msg.Annotation.Text, c.username)
	if err != nil {
		r.fileOperationError(c, "annotate", name.String(), err)
		return
	}
	payload := AnnotationPayload{FileName: name.String(), LineNumber: msg.LineNumber, Annotation: annotation}
	r.emit(c.conn, EventAnnotationAdded, payload)
	r.broadcast(c.roomID, c.conn, EventAnnotationUpdate, payload)
}

func (r *Router) handleAnnotationDelete(c call, msg *AnnotationDelete) {
	name, err := rooms.NewFileName(msg.FileName)
	if err != nil {
		r.fileOperationError(c, "annotate", msg.FileName, err)
		return
	}
	removed, err := r.registry.DeleteAnnotation(c.roomID, name, msg.LineNumber, msg.Annotation.ID, c.username)
	if err != nil {
		r.fileOperationError(c, "annotate", name.String(), err)
		return
	}
	r.broadcast(c.roomID, "", EventAnnotationDelete, AnnotationPayload{FileName: name.String(), LineNumber: msg.LineNumber, Annotation: removed})
}

func (r *Router) handleUpdateAnnotation(c call, msg *UpdateAnnotation) {
	name, err := rooms.NewFileName(msg.FileName)
	if err != nil {
		r.fileOperationError(c, "annotate", msg.FileName, err)
		return
	}
	updated, err := r.registry.UpdateAnnotation(c.roomID, name, msg.LineNumber, msg.Annotation.ID, msg.Annotation.Text, c.username)
	if err != nil {
		r.fileOperationError(c, "annotate", name.String(), err)
		return
	}
	r.broadcast(c.roomID, "", EventAnnotationUpdated, AnnotationPayload{FileName: name.String(), LineNumber: msg.LineNumber, Annotation: updated})
}

func (r *Router) handleBreakpointUpdate(c call, msg *BreakpointUpdate) {
	name, err := rooms.NewFileName(msg.FileName)
	if err != nil {
		r.fileOperationError(c, "update", msg.FileName, err)
		return
	}
	if len(msg.Breakpoints) == 0 {
		err = r.registry.RemoveBreakpoints(c.roomID, name)
		if errors.Is(err, rooms.ErrNoBreakpoints) {
			err = nil
		}
	} else {
		err = r.registry.SetBreakpoints(c.roomID, name, msg.Breakpoints)
	}
	if err != nil {
		r.fileOperationError(c, "update", name.String(), err)
		return
	}
	lines := msg.Breakpoints
	if lines == nil {
		lines = []int{}
	}
	r.broadcast(c.roomID, c.conn, EventBreakpointUpdate, BreakpointPayload{FileName: name.String(), Breakpoints: lines})
}

func (r *Router) handleTerminal(c call, message Message) {
	var (
		rawID   string
		apply   func(rooms.TerminalID) (TerminalPayload, error)
		payload TerminalPayload
	)
	switch typed := message.(type) {
	case *TerminalCreated:
		rawID = typed.TerminalID
		apply = func(id rooms.TerminalID) (TerminalPayload, error) {
			terminal, err := r.registry.AddTerminal(c.roomID, id, typed.Shell)
			return TerminalPayload{TerminalID: id.String(), SocketID: c.conn.String(), Shell: terminal.Shell}, err
		}
	case *TerminalClosed:
		rawID = typed.TerminalID
		apply = func(id rooms.TerminalID) (TerminalPayload, error) {
			return TerminalPayload{TerminalID: id.String()}, r.registry.RemoveTerminal(c.roomID, id)
		}
	case *TerminalHistoryUpdate:
		rawID = typed.TerminalID
		apply = func(id rooms.TerminalID) (TerminalPayload, error) {
			history := typed.History
			if history == nil {
				history = []string{}
			}
			return TerminalPayload{TerminalID: id.String(), History: history}, r.registry.UpdateTerminalHistory(c.roomID, id, history)
		}
	case *TerminalShellChange:
		rawID = typed.TerminalID
		apply = func(id rooms.TerminalID) (TerminalPayload, error) {
			return TerminalPayload{TerminalID: id.String(), Shell: strings.TrimSpace(typed.Shell)}, r.registry.SetTerminalShell(c.roomID, id, typed.Shell)
		}
	default:
		return
	}

	id, err := rooms.NewTerminalID(rawID)
	if err == nil {
		payload, err = apply(id)
	}
	if err != nil {
		r.logger.Debug("terminal event dropped",
			zap.String("room_id", c.roomID.String()),
			zap.String("conn_id", c.conn.String()),
			zap.String("event", c.event),
			zap.Error(err))
		return
	}
	r.broadcast(c.roomID, c.conn, c.event, payload)
}

func (r *Router) handleStartDebugging(c call, msg *StartDebugging) {
	name, err := rooms.NewFileName(msg.FileName)
	if err != nil {
		r.debugError(c, err)
		return
	}
	lines := make([]int, 0, len(msg.Breakpoints))
	for _, breakpoint := range msg.Breakpoints {
		if file := strings.TrimSpace(breakpoint.FileName); file != "" && file != name.String() {
			continue
		}
		lines = append(lines, breakpoint.LineNumber)
	}
	session, err := r.registry.StartDebugSession(c.roomID, name, c.username, lines)
	if err != nil {
		r.debugError(c, err)
		return
	}
	r.broadcast(c.roomID, c.conn, EventDebugStarted, debugSessionPayload(session))
}

func (r *Router) handleStopDebugging(c call) {
	if _, err := r.registry.StopDebugSession(c.roomID); err != nil {
		r.debugError(c, err)
		return
	}
	r.broadcast(c.roomID, c.conn, EventDebugStopped, DebugStatePayload{Username: c.username})
}

// handleDebugStep moves the shared position when the step reports one;
// otherwise it only relays the step to the room.
func (r *Router) handleDebugStep(c call, action string, step DebugStep) {
	if step.LineNumber == 0 {
		if _, ok := r.registry.DebugSession(c.roomID); !ok {
			r.debugError(c, rooms.ErrNoDebugSession)
			return
		}
	} else {
		position := rooms.DebugPosition{LineNumber: step.LineNumber, Variables: step.Variables, CallStack: step.CallStack}
		if _, err := r.registry.PauseDebugSession(c.roomID, position); err != nil {
			r.debugError(c, err)
			return
		}
	}
	r.broadcast(c.roomID, c.conn, EventDebugStepCompleted, DebugStatePayload{
		Action:     action,
		Username:   c.username,
		LineNumber: step.LineNumber,
		Variables:  step.Variables,
		CallStack:  step.CallStack,
	})
}

func (r *Router) handleDebugContinue(c call) {
	if _, err := r.registry.ResumeDebugSession(c.roomID); err != nil {
		r.debugError(c, err)
		return
	}
	r.broadcast(c.roomID, c.conn, EventDebugContinued, DebugStatePayload{Username: c.username})
}

func (r *Router) debugError(c call, err error) {
	r.logger.Info("debug request rejected",
		zap.String("room_id", c.roomID.String()),
		zap.String("conn_id", c.conn.String()),
		zap.String("event", c.event),
		zap.Error(err))
	r.emit(c.conn, EventDebugError, MessagePayload{Message: userMessage(err)})
}

// relay forwards a voice signaling payload to one member of the same room.
func (r *Router) relay(c call, rawTarget, event string, payload any) {
	target := rooms.ConnID(strings.TrimSpace(rawTarget))
	if target == c.conn || !r.registry.IsMember(c.roomID, target) {
		r.logger.Debug("voice relay dropped",
			zap.String("room_id", c.roomID.String()),
			zap.String("conn_id", c.conn.String()),
			zap.String("target", rawTarget),
			zap.String("event", event))
		return
	}
	r.emit(target, event, payload)
}

func (r *Router) sendSnapshot(conn rooms.ConnID, roomID rooms.RoomID) {
	snapshot, err := r.registry.Snapshot(roomID)
	if err != nil {
		r.emit(conn, EventRoomError, userMessage(err))
		return
	}
	for _, message := range SnapshotMessages(snapshot) {
		r.emitter.Emit(conn, message)
	}
}

func (r *Router) broadcastFolderStructure(roomID rooms.RoomID) {
	structure, err := r.registry.FolderStructure(roomID)
	if err != nil {
		return
	}
	r.broadcast(roomID, "", EventSyncFolderStructure, structure)
}

func (r *Router) broadcastPermissions(roomID rooms.RoomID) {
	permissions, err := r.registry.FilePermissions(roomID)
	if err != nil {
		return
	}
	r.broadcast(roomID, "", EventSyncFilePermissions, map[rooms.RoomID]map[rooms.FileName]map[rooms.ConnID]rooms.PermissionState{roomID: permissions})
}

// broadcast sends to every member except exclude; an empty exclude reaches all.
func (r *Router) broadcast(roomID rooms.RoomID, exclude rooms.ConnID, event string, data any) {
	members, err := r.registry.Members(roomID)
	if err != nil {
		return
	}
	message := Outbound{Event: event, Data: data}
	for _, member := range members {
		if member.ConnID == exclude {
			continue
		}
		r.emitter.Emit(member.ConnID, message)
	}
}

func (r *Router) emit(conn rooms.ConnID, event string, data any) {
	r.emitter.Emit(conn, Outbound{Event: event, Data: data})
}

func (r *Router) fileOperationError(c call, operation, fileName string, err error) {
	r.logger.Info("file operation rejected",
		zap.String("room_id", c.roomID.String()),
		zap.String("conn_id", c.conn.String()),
		zap.String("file_name", fileName),
		zap.String("operation", operation),
		zap.Error(err))
	r.emit(c.conn, EventFileOperationError, FileOperationErrorPayload{
		Operation: operation,
		FileName:  fileName,
		Message:   userMessage(err),
	})
}

// SnapshotMessages renders a room snapshot as the resync sequence sent to a
// joining or reconnecting client.
func SnapshotMessages(snapshot rooms.Snapshot) []Outbound {
	files := make(map[rooms.FileName]FileContentPayload, len(snapshot.Files))
	for name, content := range snapshot.Files {
		files[name] = FileContentPayload{Content: content}
	}
	messages := []Outbound{
		{Event: EventRoomUpdate, Data: snapshot.Usernames()},
		{Event: EventSyncFiles, Data: files},
		{Event: EventSyncFileOwners, Data: snapshot.Owners},
		{Event: EventSyncFolderStructure, Data: snapshot.Folders},
		{Event: EventSyncFilePermissions, Data: map[rooms.RoomID]map[rooms.FileName]map[rooms.ConnID]rooms.PermissionState{snapshot.RoomID: snapshot.Permissions}},
		{Event: EventSyncAnnotations, Data: snapshot.Annotations},
		{Event: EventSyncBreakpoints, Data: snapshot.Breakpoints},
		{Event: EventSyncTerminals, Data: snapshot.Terminals},
	}
	if debug := snapshot.Debug; debug != nil {
		messages = append(messages, Outbound{Event: EventDebugStarted, Data: debugSessionPayload(*debug)})
		if debug.Paused {
			messages = append(messages, Outbound{Event: EventDebugPaused, Data: DebugStatePayload{
				Username:   debug.StartedBy,
				LineNumber: debug.Position.LineNumber,
				Variables:  debug.Position.Variables,
				CallStack:  debug.Position.CallStack,
			}})
		}
	}
	return messages
}

func debugSessionPayload(session rooms.DebugSession) DebugSessionPayload {
	return DebugSessionPayload{
		FileName:    session.FileName.String(),
		StartedBy:   session.StartedBy,
		Breakpoints: session.Breakpoints,
	}
}

func generateRoomID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ToUpper(strings.ReplaceAll(value.String(), "-", "")[:8]), nil
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound), errors.Is(err, rooms.ErrFileNotFound):
		return "File or room not found"
	case errors.Is(err, rooms.ErrRoomExists):
		return "A room with this ID already exists"
	case errors.Is(err, rooms.ErrNotMember):
		return "You are not a member of this room"
	case errors.Is(err, rooms.ErrInvalidUsername):
		return "Username is required"
	case errors.Is(err, rooms.ErrInvalidRoomID):
		return "Invalid room ID"
	case errors.Is(err, rooms.ErrInvalidFileName), errors.Is(err, rooms.ErrInvalidFolderPath):
		return "Invalid file name or folder path"
	case errors.Is(err, rooms.ErrPermissionDenied):
		return "You don't have permission to edit this file"
	case errors.Is(err, rooms.ErrLastFile):
		return "Cannot delete the last file in the room"
	case errors.Is(err, rooms.ErrNotFileOwner):
		return "Only the file owner can approve/deny requests"
	case errors.Is(err, rooms.ErrNoPendingRequest):
		return "No pending request found"
	case errors.Is(err, rooms.ErrRequestPending):
		return "A permission request for this file is already pending"
	case errors.Is(err, rooms.ErrAlreadyPermitted):
		return "You already have permission to edit this file"
	case errors.Is(err, rooms.ErrOwnerUnavailable):
		return "The file owner is not connected"
	case errors.Is(err, rooms.ErrAnnotationNotFound):
		return "Annotation not found"
	case errors.Is(err, rooms.ErrNotAnnotationAuthor):
		return "Only the author can change an annotation"
	case errors.Is(err, rooms.ErrInvalidLineNumber):
		return "Line numbers must be positive"
	case errors.Is(err, rooms.ErrDebugSessionActive):
		return "A debugging session is already running"
	case errors.Is(err, rooms.ErrNoDebugSession):
		return "No debugging session is running"
	default:
		return "Unexpected server error"
	}
}

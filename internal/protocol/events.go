package protocol

// Client to server events.
const (
	EventCreateRoom            = "create-room"
	EventJoinRoom              = "join-room"
	EventRequestFiles          = "request-files"
	EventCodeChange            = "code-change"
	EventFileCreated           = "file-created"
	EventImportFolder          = "import-folder"
	EventDeleteFile            = "delete-file"
	EventRequestFilePermission = "request-file-permission"
	EventRespondToPermission   = "respond-to-permission"
	EventCursorPosition        = "cursor-position"
	EventAnnotationUpdate      = "annotation-update"
	EventAnnotationDelete      = "annotation-delete"
	EventUpdateAnnotation      = "update-annotation"
	EventBreakpointUpdate      = "breakpoint-update"
	EventTerminalCreated       = "terminal-created"
	EventTerminalClosed        = "terminal-closed"
	EventTerminalHistoryUpdate = "terminal-history-update"
	EventTerminalShellChange   = "terminal-shell-change"
	EventSendMessage           = "send-message"
	EventVoiceChatJoin         = "voice-chat-join"
	EventVoiceChatLeave        = "voice-chat-leave"
	EventVoiceChatOffer        = "voice-chat-offer"
	EventVoiceChatAnswer       = "voice-chat-answer"
	EventVoiceChatIceCandidate = "voice-chat-ice-candidate"
	EventStartDebugging        = "start-debugging"
	EventStopDebugging         = "stop-debugging"
	EventDebugStepOver         = "debug-step-over"
	EventDebugStepInto         = "debug-step-into"
	EventDebugStepOut          = "debug-step-out"
	EventDebugContinue         = "debug-continue"
)

// Server to client events. Several relay events reuse the inbound names.
const (
	EventJoinedRoom             = "joined-room"
	EventRoomUpdate             = "room-update"
	EventUserJoined             = "user-joined"
	EventUserDisconnected       = "user-disconnected"
	EventRoomError              = "room-error"
	EventCodeUpdate             = "code-update"
	EventFileDeleted            = "file-deleted"
	EventFileOperationError     = "file-operation-error"
	EventSyncFiles              = "sync-files"
	EventSyncFileOwners         = "sync-file-owners"
	EventSyncFolderStructure    = "sync-folder-structure"
	EventSyncFilePermissions    = "sync-file-permissions"
	EventSyncAnnotations        = "sync-annotations"
	EventSyncBreakpoints        = "sync-breakpoints"
	EventSyncTerminals          = "sync-terminals"
	EventPermissionRequired     = "permission-required"
	EventPermissionRequest      = "permission-request"
	EventPermissionRequestSent  = "permission-request-sent"
	EventPermissionRequestError = "permission-request-error"
	EventPermissionResponse     = "permission-response"
	EventCursorPositionUpdate   = "cursor-position-update"
	EventAnnotationAdded        = "annotation-added"
	EventAnnotationUpdated      = "annotation-updated"
	EventReceiveMessage         = "receive-message"
	EventServerError            = "server-error"
	EventDebugStarted           = "debug-started"
	EventDebugStopped           = "debug-stopped"
	EventDebugPaused            = "debug-paused"
	EventDebugContinued         = "debug-continued"
	EventDebugStepCompleted     = "debug-step-completed"
	EventDebugError             = "debug-error"
)

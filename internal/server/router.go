package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/vinay-511/Code-collab/internal/auth"
	"github.com/vinay-511/Code-collab/internal/execution"
	"github.com/vinay-511/Code-collab/internal/protocol"
	"github.com/vinay-511/Code-collab/internal/rooms"
	"github.com/vinay-511/Code-collab/internal/runs"
	"github.com/vinay-511/Code-collab/internal/tunnel"
	"go.uber.org/zap"
)

const (
	roomIDContextKey       = "codecollab_room_id"
	roomInstanceContextKey = "codecollab_room_instance"
	connIDContextKey       = "codecollab_conn_id"
	usernameContextKey     = "codecollab_username"
	accessTokenQuery       = "access_token"
	healthMessage          = "CodeCollab server is running"
)

var (
	errMissingHub           = errors.New("hub dependency required")
	errMissingRouter        = errors.New("protocol router dependency required")
	errMissingRegistry      = errors.New("room registry dependency required")
	errMissingExecutor      = errors.New("code executor dependency required")
	errMissingRunsService   = errors.New("runs service dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// CodeExecutor runs a program on the remote execution service.
type CodeExecutor interface {
	Execute(ctx context.Context, request execution.Request) (execution.Result, error)
}

// RoomTokenValidator checks room access tokens handed out with joined-room.
type RoomTokenValidator interface {
	ValidateToken(token string) (auth.RoomClaims, error)
}

type Dependencies struct {
	Hub      *Hub
	Router   *protocol.Router
	Registry *rooms.Registry
	Executor CodeExecutor
	Runs     *runs.Service
	Tokens   RoomTokenValidator
	// Tunnel is optional; /config.json answers 404 without it.
	Tunnel *tunnel.Publisher
	Logger *zap.Logger
	Clock  func() time.Time
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Hub == nil {
		return nil, errMissingHub
	}
	if deps.Router == nil {
		return nil, errMissingRouter
	}
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}
	if deps.Executor == nil {
		return nil, errMissingExecutor
	}
	if deps.Runs == nil {
		return nil, errMissingRunsService
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		registry: deps.Registry,
		executor: deps.Executor,
		runs:     deps.Runs,
		tokens:   deps.Tokens,
		tunnel:   deps.Tunnel,
		logger:   logger,
		clock:    clock,
	}
	endpoint := newRealtimeEndpoint(deps.Hub, deps.Router, logger)

	router.GET("/health", handler.handleHealth)
	router.GET("/config.json", handler.handleDiscovery)
	router.GET("/ws", endpoint.handleWebSocket)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/run", handler.handleRun)
	protected.GET("/runs", handler.handleRuns)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Requested-With"},
		MaxAge:       12 * time.Hour,
	})
}

type httpHandler struct {
	registry *rooms.Registry
	executor CodeExecutor
	runs     *runs.Service
	tokens   RoomTokenValidator
	tunnel   *tunnel.Publisher
	logger   *zap.Logger
	clock    func() time.Time
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": healthMessage})
}

func (h *httpHandler) handleDiscovery(c *gin.Context) {
	if h.tunnel == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_published"})
		return
	}
	discovery, err := h.tunnel.Current()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_published"})
		return
	}
	c.JSON(http.StatusOK, discovery)
}

type runRequestPayload struct {
	Script   string `json:"script"`
	Language string `json:"language"`
	Stdin    string `json:"stdin"`
}

type runResponsePayload struct {
	Success    bool            `json:"success"`
	Output     string          `json:"output"`
	Memory     json.RawMessage `json:"memory,omitempty"`
	CPUTime    json.RawMessage `json:"cpuTime,omitempty"`
	StatusCode int             `json:"statusCode,omitempty"`
	Error      bool            `json:"error,omitempty"`
}

func (h *httpHandler) handleRun(c *gin.Context) {
	var request runRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Language) == "" || strings.TrimSpace(request.Script) == "" {
		c.JSON(http.StatusBadRequest, runResponsePayload{
			Success: false,
			Output:  "Language and code are required",
			Error:   true,
		})
		return
	}

	startedAt := h.clock()
	result, err := h.executor.Execute(c.Request.Context(), execution.Request{
		Script:   request.Script,
		Language: request.Language,
		Stdin:    request.Stdin,
	})
	duration := h.clock().Sub(startedAt)

	record := runs.RunRecord{
		RoomID:         c.GetString(roomIDContextKey),
		RoomInstanceID: c.GetString(roomInstanceContextKey),
		ConnID:         c.GetString(connIDContextKey),
		Username:       c.GetString(usernameContextKey),
		Language:       strings.ToLower(strings.TrimSpace(request.Language)),
		StartedAt:      startedAt,
		Duration:       duration,
	}

	if err != nil {
		var upstream *execution.UpstreamError
		status := http.StatusInternalServerError
		output := "Server error: " + err.Error()
		if errors.As(err, &upstream) {
			status = upstream.StatusCode
			output = "API Error: " + upstream.Message
		}
		h.logger.Warn("code execution failed",
			zap.String("room_id", record.RoomID),
			zap.String("language", record.Language),
			zap.Int("status", status),
			zap.Error(err))
		record.StatusCode = status
		h.recordRun(c.Request.Context(), record)
		c.JSON(status, runResponsePayload{Success: false, Output: output, Error: true})
		return
	}

	record.Succeeded = true
	record.StatusCode = result.StatusCode
	h.recordRun(c.Request.Context(), record)

	c.JSON(http.StatusOK, runResponsePayload{
		Success:    true,
		Output:     result.Output,
		Memory:     result.Memory,
		CPUTime:    result.CPUTime,
		StatusCode: result.StatusCode,
	})
}

// recordRun stores the audit record. The caller's response does not depend on it.
func (h *httpHandler) recordRun(ctx context.Context, record runs.RunRecord) {
	if _, err := h.runs.Record(ctx, record); err != nil {
		h.logger.Warn("execution run not recorded",
			zap.String("room_id", record.RoomID),
			zap.Error(err))
	}
}

type runsResponsePayload struct {
	Runs []runPayload `json:"runs"`
}

type runPayload struct {
	RunID            string `json:"run_id"`
	Username         string `json:"username"`
	Language         string `json:"language"`
	Succeeded        bool   `json:"succeeded"`
	StatusCode       int    `json:"status_code"`
	DurationMillis   int64  `json:"duration_ms"`
	StartedAtSeconds int64  `json:"started_at_s"`
}

func (h *httpHandler) handleRuns(c *gin.Context) {
	instanceID := c.GetString(roomInstanceContextKey)
	if instanceID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		limit = parsed
	}

	recent, err := h.runs.ListRecent(c.Request.Context(), instanceID, limit)
	if err != nil {
		h.logger.Error("failed to list execution runs",
			zap.String("room_id", c.GetString(roomIDContextKey)),
			zap.String("instance_id", instanceID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	response := runsResponsePayload{Runs: make([]runPayload, 0, len(recent))}
	for _, run := range recent {
		response.Runs = append(response.Runs, runPayload{
			RunID:            run.RunID,
			Username:         run.Username,
			Language:         run.Language,
			Succeeded:        run.Succeeded,
			StatusCode:       run.StatusCode,
			DurationMillis:   run.DurationMillis,
			StartedAtSeconds: run.StartedAtSeconds,
		})
	}
	c.JSON(http.StatusOK, response)
}

// authorizeRequest admits callers holding a valid room token whose connection
// is still a member of that room. The room's current instance id scopes the
// run history, so a room recreated under the same id starts empty.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, err := bearerToken(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	roomID, instanceID, err := h.roomInstance(claims)
	if err != nil {
		h.logger.Info("room access revoked",
			zap.String("room_id", claims.RoomID),
			zap.String("conn_id", claims.ConnID()),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not_a_member"})
		return
	}

	c.Set(roomIDContextKey, roomID.String())
	c.Set(roomInstanceContextKey, instanceID)
	c.Set(connIDContextKey, claims.ConnID())
	c.Set(usernameContextKey, claims.Username)
	c.Next()
}

func (h *httpHandler) roomInstance(claims auth.RoomClaims) (rooms.RoomID, string, error) {
	roomID, err := rooms.NewRoomID(claims.RoomID)
	if err != nil {
		return "", "", err
	}
	connID, err := rooms.NewConnID(claims.ConnID())
	if err != nil {
		return "", "", err
	}
	instanceID, err := h.registry.InstanceID(roomID, connID)
	if err != nil {
		return "", "", err
	}
	return roomID, instanceID, nil
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return "", errInvalidAuthorization
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" {
			return "", errInvalidAuthorization
		}
		return token, nil
	}
	if token := strings.TrimSpace(c.Query(accessTokenQuery)); token != "" {
		return token, nil
	}
	return "", errInvalidAuthorization
}

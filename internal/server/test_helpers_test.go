package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vinay-511/Code-collab/internal/auth"
	"github.com/vinay-511/Code-collab/internal/database"
	"github.com/vinay-511/Code-collab/internal/execution"
	"github.com/vinay-511/Code-collab/internal/protocol"
	"github.com/vinay-511/Code-collab/internal/rooms"
	"github.com/vinay-511/Code-collab/internal/runs"
	"github.com/vinay-511/Code-collab/internal/tunnel"
	"go.uber.org/zap"
)

const (
	testRoomID   = "ROOM1"
	testPassword = "secret"
	testAdmin    = "alice"
	testAdminCon = "conn-alice"
)

type stubExecutor struct {
	mu       sync.Mutex
	result   execution.Result
	err      error
	requests []execution.Request
}

func (s *stubExecutor) Execute(_ context.Context, request execution.Request) (execution.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, request)
	return s.result, s.err
}

func (s *stubExecutor) calls() []execution.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]execution.Request(nil), s.requests...)
}

type serverFixture struct {
	handler  http.Handler
	registry *rooms.Registry
	hub      *Hub
	tokens   *auth.TokenIssuer
	runs     *runs.Service
	executor *stubExecutor
	tunnel   *tunnel.Publisher
}

func newServerFixture(t *testing.T, executor *stubExecutor) serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if executor == nil {
		executor = &stubExecutor{}
	}

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.OpenSQLite(dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	runsService, err := runs.NewService(runs.ServiceConfig{
		Database:   db,
		IDProvider: runs.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct runs service: %v", err)
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "codecollab",
		Audience:      "codecollab-api",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}

	registry := rooms.NewRegistry(rooms.RegistryConfig{
		OnRoomDestroyed: func(_ rooms.RoomID, instanceID string) {
			_, _ = runsService.PurgeInstance(context.Background(), instanceID)
		},
	})
	hub := NewHub(HubConfig{SendBuffer: 64})
	messageRouter, err := protocol.NewRouter(protocol.RouterConfig{
		Registry: registry,
		Emitter:  hub,
		Tokens:   tokenIssuer,
	})
	if err != nil {
		t.Fatalf("failed to construct protocol router: %v", err)
	}

	publisher, err := tunnel.NewPublisher(tunnel.PublisherConfig{
		ConfigPath: t.TempDir() + "/config.json",
		Clock:      func() time.Time { return time.Unix(1700000000, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("failed to construct tunnel publisher: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Hub:      hub,
		Router:   messageRouter,
		Registry: registry,
		Executor: executor,
		Runs:     runsService,
		Tokens:   tokenIssuer,
		Tunnel:   publisher,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	return serverFixture{
		handler:  handler,
		registry: registry,
		hub:      hub,
		tokens:   tokenIssuer,
		runs:     runsService,
		executor: executor,
		tunnel:   publisher,
	}
}

// memberToken creates the test room with alice as admin and returns her token.
func (f serverFixture) memberToken(t *testing.T) string {
	t.Helper()
	if err := f.registry.CreateRoom(rooms.RoomID(testRoomID), testPassword, testAdmin, rooms.ConnID(testAdminCon)); err != nil {
		t.Fatalf("failed to create room: %v", err)
	}
	token, _, err := f.tokens.IssueRoomToken(testRoomID, testAdminCon, testAdmin)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (f serverFixture) instanceID(t *testing.T, conn string) string {
	t.Helper()
	instance, err := f.registry.InstanceID(rooms.RoomID(testRoomID), rooms.ConnID(conn))
	if err != nil {
		t.Fatalf("failed to resolve room instance: %v", err)
	}
	return instance
}

func (f serverFixture) do(t *testing.T, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, target, http.NoBody)
	} else {
		request = httptest.NewRequest(method, target, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return body
}

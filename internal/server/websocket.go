package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vinay-511/Code-collab/internal/protocol"
	"github.com/vinay-511/Code-collab/internal/rooms"
	"go.uber.org/zap"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameBytes = 8 << 20
)

// realtimeEndpoint upgrades /ws requests and pumps frames between the socket,
// the protocol router and the hub.
type realtimeEndpoint struct {
	hub       *Hub
	router    *protocol.Router
	upgrader  websocket.Upgrader
	newConnID func() (rooms.ConnID, error)
	logger    *zap.Logger
}

func newRealtimeEndpoint(hub *Hub, router *protocol.Router, logger *zap.Logger) *realtimeEndpoint {
	return &realtimeEndpoint{
		hub:    hub,
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		newConnID: newConnectionID,
		logger:    logger,
	}
}

func newConnectionID() (rooms.ConnID, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return rooms.ConnID(value.String()), nil
}

func (e *realtimeEndpoint) handleWebSocket(c *gin.Context) {
	connID, err := e.newConnID()
	if err != nil {
		e.logger.Error("connection id generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "connection_failed"})
		return
	}

	socket, err := e.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		e.logger.Info("websocket upgrade failed", zap.Error(err))
		return
	}

	registered := e.hub.register(connID)
	session := protocol.NewSession(connID)
	e.logger.Info("connection opened",
		zap.String("conn_id", connID.String()),
		zap.String("remote_addr", c.Request.RemoteAddr))

	go e.writePump(socket, registered)
	e.readPump(socket, session, registered)

	e.router.Disconnect(session)
	e.hub.unregister(registered)
	e.logger.Info("connection closed", zap.String("conn_id", connID.String()))
}

func (e *realtimeEndpoint) readPump(socket *websocket.Conn, session *protocol.Session, registered *hubConnection) {
	socket.SetReadLimit(maxFrameBytes)
	_ = socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, frame, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				e.logger.Info("connection read failed",
					zap.String("conn_id", session.ConnID().String()),
					zap.Error(err))
			}
			return
		}
		select {
		case <-registered.done:
			return
		default:
		}
		if messageType != websocket.TextMessage {
			continue
		}
		e.router.HandleFrame(session, frame)
	}
}

func (e *realtimeEndpoint) writePump(socket *websocket.Conn, registered *hubConnection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = socket.Close()
	}()

	for {
		select {
		case frame := <-registered.send:
			_ = socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := socket.WriteMessage(websocket.TextMessage, frame); err != nil {
				registered.close()
				return
			}
		case <-ticker.C:
			_ = socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				registered.close()
				return
			}
		case <-registered.done:
			_ = socket.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

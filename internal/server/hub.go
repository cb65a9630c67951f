package server

import (
	"sync"

	"github.com/vinay-511/Code-collab/internal/protocol"
	"github.com/vinay-511/Code-collab/internal/rooms"
	"go.uber.org/zap"
)

const defaultSendBuffer = 256

type HubConfig struct {
	SendBuffer int
	Logger     *zap.Logger
}

// Hub owns the outbound queue of every live connection. Emit never blocks: a
// connection whose queue is full is closed and will resync on reconnect.
type Hub struct {
	mu          sync.RWMutex
	connections map[rooms.ConnID]*hubConnection
	bufferSize  int
	logger      *zap.Logger
}

type hubConnection struct {
	id        rooms.ConnID
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewHub(cfg HubConfig) *Hub {
	bufferSize := cfg.SendBuffer
	if bufferSize <= 0 {
		bufferSize = defaultSendBuffer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections: make(map[rooms.ConnID]*hubConnection),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Emit encodes the frame and queues it for the connection.
func (h *Hub) Emit(conn rooms.ConnID, message protocol.Outbound) {
	frame, err := message.Encode()
	if err != nil {
		h.logger.Error("outbound frame encoding failed",
			zap.String("conn_id", conn.String()),
			zap.String("event", message.Event),
			zap.Error(err))
		return
	}

	h.mu.RLock()
	target := h.connections[conn]
	h.mu.RUnlock()
	if target == nil {
		return
	}

	select {
	case <-target.done:
	case target.send <- frame:
	default:
		h.logger.Warn("slow consumer disconnected",
			zap.String("conn_id", conn.String()),
			zap.String("event", message.Event),
			zap.Int("queue", h.bufferSize))
		target.close()
	}
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func (h *Hub) register(conn rooms.ConnID) *hubConnection {
	registered := &hubConnection{
		id:   conn,
		send: make(chan []byte, h.bufferSize),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	if previous := h.connections[conn]; previous != nil {
		previous.close()
	}
	h.connections[conn] = registered
	h.mu.Unlock()
	return registered
}

func (h *Hub) unregister(registered *hubConnection) {
	h.mu.Lock()
	if h.connections[registered.id] == registered {
		delete(h.connections, registered.id)
	}
	h.mu.Unlock()
	registered.close()
}

func (c *hubConnection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

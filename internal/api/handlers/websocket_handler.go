package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tanviriss/MockMate/internal/auth"
	"github.com/tanviriss/MockMate/internal/interview"
	"github.com/tanviriss/MockMate/internal/metrics"
	"github.com/tanviriss/MockMate/pkg/logger"
)

const (
	// Base64 of the largest accepted recording plus the envelope.
	maxMessageBytes = 16 << 20
	writeTimeout    = 10 * time.Second
)

type WebSocketHandler struct {
	orchestrator *interview.Orchestrator
}

func NewWebSocketHandler(orchestrator *interview.Orchestrator) *WebSocketHandler {
	return &WebSocketHandler{
		orchestrator: orchestrator,
	}
}

// wsConn adapts a websocket to interview.Conn. Writes are serialised
// because gorilla connections allow only one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	id   string
	user auth.User
	mu   sync.Mutex
}

func (c *wsConn) ID() string      { return c.id }
func (c *wsConn) User() auth.User { return c.user }

func (c *wsConn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// HandleConnection runs one interview connection until the client goes
// away. The handshake guard has already authenticated the user.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	user, ok := c.Locals(auth.UserLocalsKey).(auth.User)
	if !ok {
		logger.Error("WebSocket connection without an authenticated user")
		c.Close()
		return
	}

	conn := &wsConn{conn: c, id: uuid.NewString(), user: user}
	ctx, cancel := context.WithCancel(context.Background())

	metrics.ActiveConnections.Inc()
	defer func() {
		h.orchestrator.Disconnect(ctx, conn)
		cancel()
		metrics.ActiveConnections.Dec()
		c.Close()
	}()

	c.SetReadLimit(maxMessageBytes)
	h.orchestrator.Connect(ctx, conn)

	for {
		messageType, msg, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn("WebSocket read failed",
					zap.String("connection_id", conn.id),
					zap.Error(err),
				)
			}
			return
		}

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		h.orchestrator.Dispatch(ctx, conn, msg)
	}
}

package ws

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/careassist/hospital-assistant/internal/api/middleware"
	"github.com/careassist/hospital-assistant/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	outboxSize     = 64
)

// IncomingMessage represents a message from the client. An empty Type with
// Content is treated as "send".
type IncomingMessage struct {
	Type    string `json:"type,omitempty"` // "send", "open", "close", "clear"
	Content string `json:"content,omitempty"`
}

// OutgoingMessage represents an event pushed to the client
type OutgoingMessage struct {
	Type string `json:"type"` // "session", "messages", "typing", "preferences", "error"
	Data any    `json:"data,omitempty"`
}

// StreamHandler streams a user's session signals over a WebSocket and
// accepts session commands from the client
type StreamHandler struct {
	sessions          *session.Manager
	logger            *zap.Logger
	upgrader          websocket.Upgrader
	messagesPerMinute int
}

// NewStreamHandler creates a new stream handler. allowedOrigins follows
// the CORS configuration; "*" accepts any origin.
func NewStreamHandler(sessions *session.Manager, allowedOrigins []string, messagesPerMinute int, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowAll := slices.Contains(allowedOrigins, "*")

	return &StreamHandler{
		sessions:          sessions,
		logger:            logger,
		messagesPerMinute: messagesPerMinute,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// connection owns one socket. Only writeLoop writes to conn.
type connection struct {
	conn   *websocket.Conn
	outbox chan OutgoingMessage
	done   chan struct{}
	once   sync.Once
}

func (c *connection) push(msg OutgoingMessage) {
	select {
	case c.outbox <- msg:
	case <-c.done:
	}
}

func (c *connection) close() {
	c.once.Do(func() { close(c.done) })
}

// HandleStream upgrades the request and serves the session until the
// client disconnects
func (h *StreamHandler) HandleStream(c *gin.Context) {
	userID := middleware.UserID(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("user", userID))
	logger.Info("websocket connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o := h.sessions.Get(ctx, userID)
	client := &connection{
		conn:   conn,
		outbox: make(chan OutgoingMessage, outboxSize),
		done:   make(chan struct{}),
	}
	defer client.close()

	unsubscribe := o.Subscribe(session.ListenerFuncs{
		OnMessages:    func(m []session.ChatMessage) { client.push(OutgoingMessage{Type: "messages", Data: m}) },
		OnTyping:      func(t bool) { client.push(OutgoingMessage{Type: "typing", Data: t}) },
		OnPreferences: func(p session.Preferences) { client.push(OutgoingMessage{Type: "preferences", Data: p}) },
	})
	defer unsubscribe()

	go h.writeLoop(client, logger)
	client.push(OutgoingMessage{Type: "session", Data: o.Snapshot()})

	h.readLoop(ctx, client, o, logger)
	logger.Info("websocket disconnected")
}

func (h *StreamHandler) readLoop(ctx context.Context, client *connection, o *session.Orchestrator, logger *zap.Logger) {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if h.messagesPerMinute > 0 {
		limiter = middleware.NewWebSocketLimiter(h.messagesPerMinute)
	}

	conn := client.conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var sends sync.WaitGroup
	defer sends.Wait()

	for {
		var msg IncomingMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		if !limiter.Allow() {
			client.push(errorMessage("Rate limit exceeded. Please slow down."))
			continue
		}

		switch msg.Type {
		case "open":
			o.Open(ctx)
		case "close":
			o.Close()
		case "clear":
			o.Clear(ctx)
		case "send", "":
			sends.Add(1)
			go func(text string) {
				defer sends.Done()
				if err := o.Send(ctx, text); errors.Is(err, session.ErrSendInFlight) {
					client.push(errorMessage("A reply is still being prepared."))
				}
			}(msg.Content)
		default:
			client.push(errorMessage("unknown message type: " + msg.Type))
		}
	}
}

func (h *StreamHandler) writeLoop(client *connection, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	conn := client.conn
	for {
		select {
		case msg := <-client.outbox:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				client.close()
				conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.close()
				conn.Close()
				return
			}
		case <-client.done:
			return
		}
	}
}

func errorMessage(text string) OutgoingMessage {
	return OutgoingMessage{Type: "error", Data: text}
}

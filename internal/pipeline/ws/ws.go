// Package ws implements the §6.5 WebSocket endpoint: query-param token
// auth, a connection:established handshake message, ping/pong echo, and
// tenant-scoped broadcast sourced from notify.Publisher. Grounded on the
// gorilla/websocket upgrader/read-pump/write-pump shape used across the
// retrieval pack's websocket transports, retargeted from per-session chat
// events to per-tenant pipeline state broadcasts.
package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pipelineengine/internal/pipeline/notify"
	"pipelineengine/platform/config"
	"pipelineengine/platform/httpkit"
	"pipelineengine/platform/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	// closeInvalidToken is the §6.5 close code for a missing/invalid token.
	closeInvalidToken = 1008
)

// inboundMessage is the shape of a client->server frame. Only "ping" is
// handled (§6.5); any other event is ignored rather than rejected, so a
// forward-compatible client does not get disconnected for sending one.
type inboundMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// outboundMessage is the shape of every server->client frame.
type outboundMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Handler upgrades authenticated HTTP requests to the pipeline engine's
// single WebSocket endpoint.
type Handler struct {
	cfg       config.JWTConfig
	publisher *notify.Publisher
	log       *logger.Logger
	upgrader  websocket.Upgrader
}

// New creates the WebSocket handler.
func New(cfg config.JWTConfig, publisher *notify.Publisher, log *logger.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		publisher: publisher,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Serve handles GET /ws: upgrade, authenticate the ?token= query param
// (closing with closeInvalidToken if it is missing or invalid), and run the
// connection's read/write pumps until it closes.
func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	rawToken := c.Query("token")
	if rawToken == "" {
		closeWithCode(conn, closeInvalidToken, "missing token")
		return
	}

	identity, err := httpkit.AuthenticateToken(rawToken, h.cfg)
	if err != nil {
		closeWithCode(conn, closeInvalidToken, "invalid token")
		return
	}

	if identity.TenantID() == nil {
		closeWithCode(conn, closeInvalidToken, "tenant required")
		return
	}

	tenantID := identity.TenantID().String()
	role := ""
	if roles := identity.Roles(); len(roles) > 0 {
		role = roles[0]
	}

	messages, unsubscribe := h.publisher.Subscribe(tenantID)
	defer unsubscribe()

	session := &connection{
		conn:     conn,
		messages: messages,
		send:     make(chan outboundMessage, 32),
		log:      h.log,
	}

	go session.writePump()
	session.send <- outboundMessage{
		Event: "connection:established",
		Data: map[string]any{
			"user_id":   identity.UserID().String(),
			"tenant_id": tenantID,
			"role":      role,
		},
	}

	session.readPump()
}

func closeWithCode(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}

// connection pairs one upgraded socket with the notify.Publisher channel
// feeding it tenant-scoped broadcasts. Reads and writes run on separate
// goroutines, per gorilla/websocket's single-writer requirement.
type connection struct {
	conn     *websocket.Conn
	messages <-chan notify.Message
	send     chan outboundMessage
	log      *logger.Logger
}

// readPump handles client->server frames: ping/pong echo (§6.5), ignoring
// anything else. It exits (and closes the socket) on any read error,
// including a client-initiated close.
func (s *connection) readPump() {
	defer s.conn.Close()
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Event == "ping" {
			select {
			case s.send <- outboundMessage{Event: "pong", Data: msg.Data}:
			default:
			}
		}
	}
}

// writePump multiplexes publisher broadcasts, direct replies (pong,
// connection:established) and keepalive pings onto the single socket
// writer goroutine.
func (s *connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.messages:
			if !ok {
				closeWithCode(s.conn, websocket.CloseNormalClosure, "tenant unsubscribed")
				return
			}
			if !s.writeJSON(outboundMessage{Event: msg.Event, Data: msg.Data}) {
				return
			}
		case msg := <-s.send:
			if !s.writeJSON(msg) {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *connection) writeJSON(msg outboundMessage) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.log.Warn("websocket write failed", "error", err)
		return false
	}
	return true
}

package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/classlive/backend/internal/live"
	"github.com/classlive/backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Authenticate validates a connect-time token and yields the principal.
type Authenticate func(token string) (models.Principal, error)

// Client represents a single WebSocket connection in a session room.
type Client struct {
	ID        string
	SessionID uuid.UUID
	UserID    uuid.UUID
	principal models.Principal
	hub       *Hub
	orch      *live.Orchestrator
	conn      *websocket.Conn
	send      chan WSMessage
	logger    *zap.Logger
}

// trySend queues a message for the write pump without ever blocking.
func (c *Client) trySend(msg WSMessage) {
	select {
	case c.send <- msg:
	default:
		// buffer full, drop
	}
}

func (c *Client) sendEvent(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.trySend(WSMessage{Event: event, Data: data})
}

func (c *Client) sendError(err error) {
	c.sendEvent("error", gin.H{"message": err.Error()})
}

// ServeWs handles the WebSocket upgrade and runs the client loop. The token
// is validated once at connect time; the resulting principal is reused for
// every event on the connection. Joining a session that does not exist fails
// the join with 404 before the upgrade.
func ServeWs(hub *Hub, orch *live.Orchestrator, logger *zap.Logger, authenticate Authenticate) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionIDStr := c.Query("session_id")
		token := c.Query("token")
		if sessionIDStr == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and token required"})
			return
		}
		sessionID, err := uuid.Parse(sessionIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
			return
		}
		principal, err := authenticate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if _, err := orch.GetSession(sessionID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:        uuid.New().String(),
			SessionID: sessionID,
			UserID:    principal.ID,
			principal: principal,
			hub:       hub,
			orch:      orch,
			conn:      conn,
			send:      make(chan WSMessage, 256),
			logger:    logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.dispatch(msg)
	}
}

// dispatch routes one inbound event through the orchestrator. Every business
// action goes through the same entry points as the HTTP handlers; failures
// come back to this connection only, as an error event.
func (c *Client) dispatch(msg WSMessage) {
	switch msg.Event {
	case "join_session":
		s, err := c.orch.GetSession(c.SessionID)
		if err != nil {
			c.sendError(err)
			return
		}
		payload := gin.H{"session_id": s.ID}
		if s.Stream != nil {
			payload["stream"] = s.Stream
		}
		c.sendEvent("session_joined", payload)

	case "leave_session":
		c.hub.Unregister(c)
		c.sendEvent("session_left", gin.H{"session_id": c.SessionID})

	case "post_comment":
		var p struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.sendError(models.ErrInvalidInput)
			return
		}
		if _, err := c.orch.PostComment(c.principal, c.SessionID, p.Content); err != nil {
			c.sendError(err)
		}

	case "raise_hand":
		if _, err := c.orch.RaiseHand(c.principal, c.SessionID); err != nil {
			c.sendError(err)
		}

	case "grant_hand":
		var p struct {
			RequestID uuid.UUID `json:"request_id"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.sendError(models.ErrInvalidInput)
			return
		}
		if err := c.orch.GrantHand(c.principal, c.SessionID, p.RequestID); err != nil {
			c.sendError(err)
		}

	case "revoke_hand":
		var p struct {
			RequestID uuid.UUID `json:"request_id"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.sendError(models.ErrInvalidInput)
			return
		}
		if err := c.orch.RevokeHand(c.principal, c.SessionID, p.RequestID); err != nil {
			c.sendError(err)
		}

	case "end_session":
		if _, err := c.orch.EndSession(c.principal, c.SessionID); err != nil {
			c.sendError(err)
		}

	case "stream_offer":
		var p struct {
			SDP  string `json:"sdp"`
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.sendError(models.ErrInvalidInput)
			return
		}
		offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP}
		if err := c.orch.PublishOffer(c.principal, c.SessionID, offer); err != nil {
			c.sendError(err)
		}

	case "stream_answer":
		var p struct {
			SDP      string    `json:"sdp"`
			Type     string    `json:"type"`
			ToUserID uuid.UUID `json:"to_user_id"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.sendError(models.ErrInvalidInput)
			return
		}
		answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP}
		if err := c.orch.SendAnswer(c.principal, c.SessionID, answer, p.ToUserID); err != nil {
			c.sendError(err)
		}

	case "ice_candidate":
		var p struct {
			Candidate webrtc.ICECandidateInit `json:"candidate"`
			ToUserID  uuid.UUID               `json:"to_user_id"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.sendError(models.ErrInvalidInput)
			return
		}
		if err := c.orch.SendIceCandidate(c.principal, c.SessionID, p.Candidate, p.ToUserID); err != nil {
			c.sendError(err)
		}

	default:
		// ignore
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

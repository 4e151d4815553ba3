package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/gridiron-live/broadcast/internal/metrics"
	"github.com/gridiron-live/broadcast/pkg/utils"
)

// Connection roles.
const (
	RoleBroadcaster = "broadcaster"
	RoleViewer      = "viewer"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS middleware governs browser origins
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Client represents a single WebSocket connection in a session.
type Client struct {
	ID          string
	SessionCode string
	Role        string
	JoinedAt    time.Time
	hub         *Hub
	sfu         *SFU
	conn        *websocket.Conn
	send        chan WSMessage
	logger      *zap.Logger
}

// WSDeps wires ServeWs.
type WSDeps struct {
	Hub *Hub
	SFU *SFU
	// ValidateToken returns an error unless token is a broadcaster token for code.
	ValidateToken func(token, code string) error
	// SessionLive reports whether code names a session that has not ended.
	SessionLive func(ctx context.Context, code string) (bool, error)
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// ServeWs upgrades /ws?session_code=&token=. A valid broadcaster token grants
// the publisher role; without a token the client joins as a viewer.
func ServeWs(d WSDeps) gin.HandlerFunc {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		code := utils.NormalizeSessionCode(c.Query("session_code"))
		if !utils.IsSessionCodeFormat(code) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "valid session_code required"})
			return
		}
		role := RoleViewer
		if token := c.Query("token"); token != "" {
			if d.ValidateToken == nil || d.ValidateToken(token, code) != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid token"})
				return
			}
			role = RoleBroadcaster
		}
		if d.SessionLive != nil {
			live, err := d.SessionLive(c.Request.Context(), code)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load session"})
				return
			}
			if !live {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "session not found or ended"})
				return
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:          uuid.New().String(),
			SessionCode: code,
			Role:        role,
			JoinedAt:    time.Now(),
			hub:         d.Hub,
			sfu:         d.SFU,
			conn:        conn,
			send:        make(chan WSMessage, 256),
			logger:      logger,
		}
		d.Hub.Register(client)
		d.Metrics.AddWSClients(1)
		defer d.Metrics.AddWSClients(-1)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		if c.sfu != nil {
			c.sfu.UnregisterClient(c.SessionCode, c.ID)
			if c.Role == RoleBroadcaster {
				c.sfu.ClosePublisherIfOwner(c.SessionCode, c.ID)
			}
		}
		c.hub.Unregister(c)
		close(c.send)
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
		c.handle(msg)
	}
}

func (c *Client) sendToMe(event string, payload interface{}) {
	c.hub.SendToClient(c.SessionCode, c.ID, event, payload)
}

func (c *Client) handle(msg WSMessage) {
	switch msg.Event {
	case "join":
		c.hub.BroadcastToSessionAndPublish(c.SessionCode, "audience_count", map[string]int{
			"count": c.hub.AudienceCount(c.SessionCode),
		})
	case "webrtc_publisher_offer":
		if c.sfu == nil {
			return
		}
		var p sdpPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.SDP == "" {
			return
		}
		sdp := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP}
		if err := c.sfu.HandlePublisherOffer(c.SessionCode, c.ID, c.Role, sdp, c.sendToMe); err != nil {
			c.logger.Warn("publisher offer failed", zap.Error(err), zap.String("session_code", c.SessionCode))
			c.sendToMe("webrtc_error", map[string]string{"message": err.Error()})
		}
	case "webrtc_subscribe":
		if c.sfu == nil {
			return
		}
		if err := c.sfu.HandleSubscribe(c.SessionCode, c.ID, c.sendToMe); err != nil {
			c.logger.Warn("subscribe failed", zap.Error(err), zap.String("session_code", c.SessionCode))
		}
	case "webrtc_subscriber_answer":
		if c.sfu == nil {
			return
		}
		var p sdpPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.SDP == "" {
			return
		}
		_ = c.sfu.HandleSubscriberAnswer(c.SessionCode, c.ID, webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP})
	case "webrtc_ice":
		if c.sfu == nil {
			return
		}
		var p struct {
			Target    string          `json:"target"`
			Candidate json.RawMessage `json:"candidate"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil || len(p.Candidate) == 0 {
			return
		}
		var cand webrtc.ICECandidateInit
		if json.Unmarshal(p.Candidate, &cand) != nil {
			return
		}
		switch p.Target {
		case "publisher":
			_ = c.sfu.HandlePublisherICE(c.SessionCode, c.ID, cand)
		case "subscriber":
			_ = c.sfu.HandleSubscriberICE(c.SessionCode, c.ID, cand)
		}
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

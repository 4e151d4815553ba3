package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// AudienceChangeHandler is called when the connection count for a session changes.
type AudienceChangeHandler func(sessionCode string, count int)

// Hub maintains session code -> set of connections and broadcasts messages.
// Local broadcast is mirrored to Redis so every instance reaches its own clients.
type Hub struct {
	sessions   map[string]map[string]*Client
	subs       map[string]func()
	mu         sync.RWMutex
	logger     *zap.Logger
	redis      RedisPublisher
	redisSub   RedisSubscriber
	onAudience AudienceChangeHandler
}

// RedisPublisher publishes session events for other instances.
type RedisPublisher interface {
	PublishSessionEvent(sessionCode, event string, payload []byte) error
}

// RedisSubscriber subscribes to a session channel.
type RedisSubscriber interface {
	SubscribeSession(sessionCode string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. redisPub and redisSub may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[string]map[string]*Client),
		subs:     make(map[string]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// SetAudienceChangeHandler sets the callback for audience count changes.
func (h *Hub) SetAudienceChangeHandler(fn AudienceChangeHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAudience = fn
}

// Register adds a client to its session room. The first client starts the Redis subscription.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.sessions[c.SessionCode] == nil {
		h.sessions[c.SessionCode] = make(map[string]*Client)
		if h.redisSub != nil {
			code := c.SessionCode
			cancel, err := h.redisSub.SubscribeSession(code, func(event string, payload []byte) {
				h.BroadcastToSession(code, event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Warn("redis subscribe failed", zap.Error(err), zap.String("session_code", code))
			} else {
				h.subs[code] = cancel
			}
		}
	}
	h.sessions[c.SessionCode][c.ID] = c
	count := len(h.sessions[c.SessionCode])
	onAudience := h.onAudience
	h.mu.Unlock()
	if onAudience != nil {
		onAudience(c.SessionCode, count)
	}
	h.logger.Debug("client joined session", zap.String("client_id", c.ID), zap.String("session_code", c.SessionCode), zap.String("role", c.Role))
}

// Unregister removes a client. The last client to leave cancels the Redis subscription.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	var count int
	if m, ok := h.sessions[c.SessionCode]; ok {
		delete(m, c.ID)
		count = len(m)
		if count == 0 {
			delete(h.sessions, c.SessionCode)
			if cancel, ok := h.subs[c.SessionCode]; ok {
				cancel()
				delete(h.subs, c.SessionCode)
			}
		}
	}
	onAudience := h.onAudience
	h.mu.Unlock()
	if onAudience != nil {
		onAudience(c.SessionCode, count)
	}
	h.logger.Debug("client left session", zap.String("client_id", c.ID), zap.String("session_code", c.SessionCode))
}

func encode(payload interface{}) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(payload)
	}
}

// BroadcastToSession sends a message to all local clients of a session.
func (h *Hub) BroadcastToSession(code, event string, payload interface{}) {
	data, err := encode(payload)
	if err != nil {
		h.logger.Warn("encode event failed", zap.Error(err), zap.String("event", event))
		return
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.sessions[code] {
		select {
		case c.send <- msg:
		default:
			// slow consumer; it will catch up from the next poll
		}
	}
}

// BroadcastToSessionAndPublish delivers an event to every client of a session
// across instances. With Redis configured, delivery happens once through the
// subscription so local clients are not sent the event twice.
func (h *Hub) BroadcastToSessionAndPublish(code, event string, payload interface{}) {
	data, err := encode(payload)
	if err != nil {
		h.logger.Warn("encode event failed", zap.Error(err), zap.String("event", event))
		return
	}
	if h.redis != nil {
		if err := h.redis.PublishSessionEvent(code, event, data); err == nil {
			h.mu.RLock()
			_, subscribed := h.subs[code]
			h.mu.RUnlock()
			if subscribed {
				return
			}
		} else {
			h.logger.Warn("redis publish failed", zap.Error(err), zap.String("session_code", code))
		}
	}
	h.BroadcastToSession(code, event, json.RawMessage(data))
}

// AudienceCount returns the number of local connections in a session.
func (h *Hub) AudienceCount(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[code])
}

// SendToClient sends a message to one client (WebRTC signaling).
func (h *Hub) SendToClient(code, clientID, event string, payload interface{}) {
	data, err := encode(payload)
	if err != nil {
		return
	}
	msg := WSMessage{Event: event, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.sessions[code][clientID]
	if !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	feedWriteWait  = 10 * time.Second
	feedBufferSize = 64
)

// Message is one realtime frame: {"event": ..., "data": ...}.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Feed is a session's realtime socket. Viewers receive audience counts and
// subscriber signaling; the broadcaster uses it for publisher signaling.
type Feed struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex
	msgs    chan Message
	done    chan struct{}
	once    sync.Once
}

// Subscribe opens /ws for code. When the client holds a broadcaster token
// the socket joins as publisher.
func (c *Client) Subscribe(ctx context.Context, code string) (*Feed, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := url.Values{"session_code": {code}}
	if tok := c.Token(); tok != "" {
		q.Set("token", tok)
	}
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "websocket dial failed"}
		}
		return nil, fmt.Errorf("dial realtime feed: %w", err)
	}
	f := &Feed{
		conn:   conn,
		logger: c.logger.With(zap.String("session_code", code)),
		msgs:   make(chan Message, feedBufferSize),
		done:   make(chan struct{}),
	}
	go f.readPump()
	return f, nil
}

// Messages is closed when the socket goes away.
func (f *Feed) Messages() <-chan Message { return f.msgs }

// Done is closed once the feed has been closed or has failed.
func (f *Feed) Done() <-chan struct{} { return f.done }

// Send writes one frame. Safe for concurrent use.
func (f *Feed) Send(event string, payload interface{}) error {
	msg := Message{Event: event}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", event, err)
		}
		msg.Data = b
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	select {
	case <-f.done:
		return websocket.ErrCloseSent
	default:
	}
	_ = f.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	return f.conn.WriteJSON(msg)
}

func (f *Feed) Close() error {
	var err error
	f.once.Do(func() {
		close(f.done)
		f.writeMu.Lock()
		_ = f.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		f.writeMu.Unlock()
		err = f.conn.Close()
	})
	return err
}

func (f *Feed) readPump() {
	defer close(f.msgs)
	defer f.Close()
	for {
		var msg Message
		if err := f.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.logger.Warn("realtime feed closed", zap.Error(err))
			}
			return
		}
		select {
		case f.msgs <- msg:
		case <-f.done:
			return
		}
	}
}

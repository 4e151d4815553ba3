// Package apiclient is the client side of the session service: sessions,
// scoreboard, events, captions and recordings over HTTP, plus the realtime
// feed over WebSocket.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/internal/scoring"
	"github.com/gridiron-live/broadcast/pkg/response"
)

// APIError is a non-2xx reply from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("session service returned status %d", e.Status)
	}
	return fmt.Sprintf("session service: %s (%d)", e.Message, e.Status)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == status
}

// Client talks to one session service. The broadcaster token is kept after
// StartSession or ResumeSession and sent on mutating calls.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// uploads can outlast the request timeout
	uploadClient *http.Client
	logger       *zap.Logger

	mu    sync.RWMutex
	token string
}

// New creates a client for baseURL, e.g. http://localhost:8080.
func New(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		uploadClient: &http.Client{},
		logger:       logger,
	}
}

// Token returns the broadcaster token, or "".
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken installs a broadcaster token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(c.httpClient, req, out)
}

func (c *Client) send(hc *http.Client, req *http.Request, out interface{}) error {
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	var env struct {
		response.Body
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func sessionPath(code string, parts ...string) string {
	p := "/sessions/" + url.PathEscape(code)
	for _, s := range parts {
		p += "/" + s
	}
	return p
}

// StartSession creates a session under code (the server generates one when
// code is empty) and keeps the returned token.
func (c *Client) StartSession(ctx context.Context, name, code string, team1, team2 models.TeamIcon) (*models.SessionGrant, error) {
	in := map[string]string{
		"broadcaster":  name,
		"session_code": code,
		"team1_icon":   string(team1),
		"team2_icon":   string(team2),
	}
	var grant models.SessionGrant
	if err := c.do(ctx, http.MethodPost, "/sessions", in, &grant); err != nil {
		return nil, err
	}
	c.SetToken(grant.Token)
	return &grant, nil
}

// ResumeSession trades a resume key for a fresh token.
func (c *Client) ResumeSession(ctx context.Context, code, resumeKey string) (*models.SessionGrant, error) {
	var grant models.SessionGrant
	if err := c.do(ctx, http.MethodPost, sessionPath(code, "token"), map[string]string{"resume_key": resumeKey}, &grant); err != nil {
		return nil, err
	}
	c.SetToken(grant.Token)
	return &grant, nil
}

func (c *Client) EndSession(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodPost, sessionPath(code, "end"), nil, nil)
}

func (c *Client) IsValidSessionCode(ctx context.Context, code string) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	if err := c.do(ctx, http.MethodGet, sessionPath(code, "valid"), nil, &out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

// GetSessionMetadata returns nil, nil while the session does not exist yet.
func (c *Client) GetSessionMetadata(ctx context.Context, code string) (*models.SessionMetadata, error) {
	var meta models.SessionMetadata
	if err := c.do(ctx, http.MethodGet, sessionPath(code), nil, &meta); err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &meta, nil
}

func (c *Client) GetScoreboard(ctx context.Context, code string) (*models.Scoreboard, error) {
	var row models.Scoreboard
	if err := c.do(ctx, http.MethodGet, sessionPath(code, "scoreboard"), nil, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateScoreboard replaces the whole row.
func (c *Client) UpdateScoreboard(ctx context.Context, code string, row models.Scoreboard) error {
	return c.do(ctx, http.MethodPut, sessionPath(code, "scoreboard"), row, nil)
}

func (c *Client) SetTeamIcons(ctx context.Context, code string, team1, team2 models.TeamIcon) error {
	if err := scoring.ValidateIcons(team1, team2); err != nil {
		return err
	}
	in := map[string]string{"team1_icon": string(team1), "team2_icon": string(team2)}
	return c.do(ctx, http.MethodPut, sessionPath(code, "team-icons"), in, nil)
}

func (c *Client) AddEvent(ctx context.Context, code, description string, eventType models.EventType) (*models.Event, error) {
	var ev models.Event
	in := map[string]string{"description": description, "event_type": string(eventType)}
	if err := c.do(ctx, http.MethodPost, sessionPath(code, "events"), in, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// AddFlagEvent validates locally before sending; an empty team or reason
// never reaches the network.
func (c *Client) AddFlagEvent(ctx context.Context, code, team, reason string) (*models.Event, error) {
	team, reason, err := scoring.ValidateFlag(team, reason)
	if err != nil {
		return nil, err
	}
	var ev models.Event
	if err := c.do(ctx, http.MethodPost, sessionPath(code, "flags"), map[string]string{"team": team, "reason": reason}, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// GetEvents returns the feed in server order (timestamp ascending).
func (c *Client) GetEvents(ctx context.Context, code string) ([]models.Event, error) {
	var list []models.Event
	if err := c.do(ctx, http.MethodGet, sessionPath(code, "events"), nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) GetActiveFlags(ctx context.Context, code string) ([]models.FlagEvent, error) {
	var list []models.FlagEvent
	if err := c.do(ctx, http.MethodGet, sessionPath(code, "flags", "active"), nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ClearFlagOverlays drops the active flag overlays; the events stay.
func (c *Client) ClearFlagOverlays(ctx context.Context, code string) (int64, error) {
	var out struct {
		Cleared int64 `json:"cleared"`
	}
	if err := c.do(ctx, http.MethodDelete, sessionPath(code, "flags", "active"), nil, &out); err != nil {
		return 0, err
	}
	return out.Cleared, nil
}

func (c *Client) AddCaption(ctx context.Context, code, text string) error {
	return c.do(ctx, http.MethodPost, sessionPath(code, "captions"), map[string]string{"text": text}, nil)
}

// GetLatestCaption returns nil, nil when no caption has been published.
func (c *Client) GetLatestCaption(ctx context.Context, code string) (*models.Caption, error) {
	var caption models.Caption
	if err := c.do(ctx, http.MethodGet, sessionPath(code, "captions", "latest"), nil, &caption); err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &caption, nil
}

func (c *Client) ListRecordings(ctx context.Context, code string) ([]models.Recording, error) {
	var list []models.Recording
	if err := c.do(ctx, http.MethodGet, sessionPath(code, "recordings"), nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) Stats(ctx context.Context, code string) (*models.StreamStats, error) {
	var s models.StreamStats
	if err := c.do(ctx, http.MethodGet, sessionPath(code, "stats"), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

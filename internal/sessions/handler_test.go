package sessions

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gridiron-live/broadcast/internal/auth"
	"github.com/gridiron-live/broadcast/internal/models"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	boards   map[string]models.Scoreboard
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]*models.Session{}, boards: map[string]models.Scoreboard{}}
}

func (f *fakeStore) Create(_ context.Context, s *models.Session, board models.Scoreboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[s.Code]; ok {
		return ErrCodeTaken
	}
	s.StartTime = time.Now()
	cp := *s
	f.sessions[s.Code] = &cp
	f.boards[s.Code] = board
	return nil
}

func (f *fakeStore) Get(_ context.Context, code string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[code]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) End(_ context.Context, code string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[code]
	if !ok {
		return nil, ErrNotFound
	}
	if s.EndTime != nil {
		return nil, ErrAlreadyEnded
	}
	now := time.Now()
	s.EndTime = &now
	cp := *s
	return &cp, nil
}

type recordedEvent struct {
	code, event string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *fakeNotifier) BroadcastToSessionAndPublish(code, event string, _ interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{code, event})
}

type fakeSFU struct{ closed []string }

func (s *fakeSFU) ClosePublisher(code string) { s.closed = append(s.closed, code) }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type fixture struct {
	router   *gin.Engine
	store    *fakeStore
	notifier *fakeNotifier
	sfu      *fakeSFU
	handler  *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newFakeStore()
	n := &fakeNotifier{}
	sfu := &fakeSFU{}
	h := NewHandler(store, auth.NewJWTService("test", 1), n, sfu, nil, nil)
	r := gin.New()
	r.POST("/sessions", h.Start)
	r.POST("/sessions/:code/token", h.Resume)
	r.POST("/sessions/:code/end", h.End)
	r.GET("/sessions/:code/valid", h.Valid)
	r.GET("/sessions/:code", h.Metadata)
	return &fixture{router: r, store: store, notifier: n, sfu: sfu, handler: h}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec.Code, env
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	status, env := f.do(t, http.MethodPost, "/sessions", StartRequest{Broadcaster: "Coach", Team1Icon: "dolphin", Team2Icon: "bullfrog"})
	if status != http.StatusCreated {
		t.Fatalf("start: %d %s", status, env.Error)
	}
	var started StartResponse
	if err := json.Unmarshal(env.Data, &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(started.SessionCode) != 6 || started.Token == "" || started.ResumeKey == "" {
		t.Fatalf("unexpected start response %+v", started)
	}
	code := started.SessionCode

	_, env = f.do(t, http.MethodGet, "/sessions/"+code+"/valid", nil)
	if string(env.Data) != `{"valid":true}` {
		t.Fatalf("expected valid, got %s", env.Data)
	}

	_, env = f.do(t, http.MethodGet, "/sessions/"+code, nil)
	var meta models.SessionMetadata
	_ = json.Unmarshal(env.Data, &meta)
	if meta.Broadcaster != "Coach" || meta.EndTime != nil {
		t.Fatalf("unexpected metadata %+v", meta)
	}

	if status, _ := f.do(t, http.MethodPost, "/sessions/"+code+"/end", nil); status != http.StatusOK {
		t.Fatalf("end: %d", status)
	}
	if status, _ := f.do(t, http.MethodPost, "/sessions/"+code+"/end", nil); status != http.StatusConflict {
		t.Fatalf("second end should conflict, got %d", status)
	}
	_, env = f.do(t, http.MethodGet, "/sessions/"+code, nil)
	_ = json.Unmarshal(env.Data, &meta)
	if meta.EndTime == nil {
		t.Fatalf("expected end time after end")
	}
	_, env = f.do(t, http.MethodGet, "/sessions/"+code+"/valid", nil)
	if string(env.Data) != `{"valid":false}` {
		t.Fatalf("ended session should be invalid, got %s", env.Data)
	}
	if len(f.notifier.events) != 1 || f.notifier.events[0].event != "session_ended" {
		t.Fatalf("expected session_ended notification, got %+v", f.notifier.events)
	}
	if len(f.sfu.closed) != 1 || f.sfu.closed[0] != code {
		t.Fatalf("expected publisher closed, got %v", f.sfu.closed)
	}
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t)
	cases := []StartRequest{
		{Broadcaster: "   "},
		{Broadcaster: "Coach", Team1Icon: "dolphin", Team2Icon: "dolphin"},
		{Broadcaster: "Coach", Team1Icon: "shark"},
		{Broadcaster: "Coach", SessionCode: "0OIL11"},
	}
	for _, req := range cases {
		if status, _ := f.do(t, http.MethodPost, "/sessions", req); status != http.StatusBadRequest {
			t.Fatalf("expected 400 for %+v, got %d", req, status)
		}
	}
	if len(f.store.sessions) != 0 {
		t.Fatalf("validation failures must not persist")
	}
}

func TestStartRequestedCodeConflict(t *testing.T) {
	f := newFixture(t)
	req := StartRequest{Broadcaster: "Coach", SessionCode: "ABC234"}
	if status, _ := f.do(t, http.MethodPost, "/sessions", req); status != http.StatusCreated {
		t.Fatalf("first start: %d", status)
	}
	if status, _ := f.do(t, http.MethodPost, "/sessions", req); status != http.StatusConflict {
		t.Fatalf("duplicate code should conflict, got %d", status)
	}
}

func TestStartRegeneratesOnCollision(t *testing.T) {
	f := newFixture(t)
	codes := []string{"ABC234", "ABC234", "XYZ789"}
	f.handler.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	if status, _ := f.do(t, http.MethodPost, "/sessions", StartRequest{Broadcaster: "A"}); status != http.StatusCreated {
		t.Fatalf("first: %d", status)
	}
	status, env := f.do(t, http.MethodPost, "/sessions", StartRequest{Broadcaster: "B"})
	if status != http.StatusCreated {
		t.Fatalf("second: %d", status)
	}
	var started StartResponse
	_ = json.Unmarshal(env.Data, &started)
	if started.SessionCode != "XYZ789" {
		t.Fatalf("expected regenerated code, got %s", started.SessionCode)
	}
}

func TestResume(t *testing.T) {
	f := newFixture(t)
	_, env := f.do(t, http.MethodPost, "/sessions", StartRequest{Broadcaster: "Coach"})
	var started StartResponse
	_ = json.Unmarshal(env.Data, &started)

	if status, _ := f.do(t, http.MethodPost, "/sessions/"+started.SessionCode+"/token", ResumeRequest{ResumeKey: "wrong"}); status != http.StatusUnauthorized {
		t.Fatalf("wrong key: %d", status)
	}
	if status, _ := f.do(t, http.MethodPost, "/sessions/"+started.SessionCode+"/token", ResumeRequest{ResumeKey: started.ResumeKey}); status != http.StatusOK {
		t.Fatalf("resume: %d", status)
	}
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t)
	if status, _ := f.do(t, http.MethodGet, "/sessions/ABC234", nil); status != http.StatusNotFound {
		t.Fatalf("metadata: %d", status)
	}
	if status, _ := f.do(t, http.MethodPost, "/sessions/ABC234/end", nil); status != http.StatusNotFound {
		t.Fatalf("end: %d", status)
	}
	_, env := f.do(t, http.MethodGet, "/sessions/ABC234/valid", nil)
	if string(env.Data) != `{"valid":false}` {
		t.Fatalf("unknown code should be invalid, got %s", env.Data)
	}
}

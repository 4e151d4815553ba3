package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gridiron-live/broadcast/internal/models"
)

func init() { gin.SetMode(gin.TestMode) }

type memStore struct {
	events map[string][]models.Event
	active map[string]map[int64]bool
	calls  int
}

func newMemStore() *memStore {
	return &memStore{events: map[string][]models.Event{}, active: map[string]map[int64]bool{}}
}

func (m *memStore) Append(_ context.Context, code string, ev *models.Event, nowNs int64) error {
	m.calls++
	var last int64
	if list := m.events[code]; len(list) > 0 {
		last = list[len(list)-1].Timestamp
	}
	ev.Timestamp = NextTimestamp(last, nowNs)
	if ev.FlagEvent != nil {
		ev.FlagEvent.Timestamp = ev.Timestamp
		if m.active[code] == nil {
			m.active[code] = map[int64]bool{}
		}
		m.active[code][ev.Timestamp] = true
	}
	m.events[code] = append(m.events[code], *ev)
	return nil
}

func (m *memStore) List(_ context.Context, code string) ([]models.Event, error) {
	return append([]models.Event{}, m.events[code]...), nil
}

func (m *memStore) ListActiveFlags(_ context.Context, code string) ([]models.Event, error) {
	var out []models.Event
	for _, ev := range m.events[code] {
		if m.active[code][ev.Timestamp] {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memStore) ClearActiveFlags(_ context.Context, code string) (int64, error) {
	n := int64(len(m.active[code]))
	delete(m.active, code)
	return n, nil
}

func setup() (*gin.Engine, *memStore, *Handler) {
	store := newMemStore()
	h := NewHandler(store, nil, nil, nil)
	fixed := time.Unix(0, 1000)
	h.now = func() time.Time { return fixed }
	r := gin.New()
	r.POST("/sessions/:code/events", h.AddEvent)
	r.POST("/sessions/:code/flags", h.AddFlag)
	r.GET("/sessions/:code/events", h.List)
	r.GET("/sessions/:code/flags/active", h.ActiveFlags)
	r.DELETE("/sessions/:code/flags/active", h.ClearFlags)
	return r, store, h
}

func call(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestNextTimestampMonotonic(t *testing.T) {
	if got := NextTimestamp(0, 50); got != 50 {
		t.Fatalf("got %d", got)
	}
	if got := NextTimestamp(100, 50); got != 101 {
		t.Fatalf("clock behind should give last+1, got %d", got)
	}
	if got := NextTimestamp(100, 100); got != 101 {
		t.Fatalf("same clock should give last+1, got %d", got)
	}
}

func TestFlagSubmissionProducesFlagEvent(t *testing.T) {
	r, store, _ := setup()
	rec := call(r, http.MethodPost, "/sessions/ABC234/flags", `{"team":"Team A","reason":"  Offside  "}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add flag: %d %s", rec.Code, rec.Body.String())
	}
	list := store.events["ABC234"]
	if len(list) != 1 {
		t.Fatalf("expected one event, got %d", len(list))
	}
	ev := list[0]
	if ev.EventType != models.EventTypeFlag || ev.FlagEvent == nil {
		t.Fatalf("expected flag payload, got %+v", ev)
	}
	if ev.FlagEvent.Reason != "Offside" || ev.FlagEvent.Team != "Team A" || ev.FlagEvent.Timestamp != ev.Timestamp {
		t.Fatalf("unexpected flag %+v", ev.FlagEvent)
	}
	if ev.Description != "Flag on Team A: Offside" {
		t.Fatalf("unexpected description %q", ev.Description)
	}
}

func TestFlagValidationSkipsStore(t *testing.T) {
	r, store, _ := setup()
	for _, body := range []string{`{"team":"Team A","reason":"   "}`, `{"team":"","reason":"Holding"}`} {
		if rec := call(r, http.MethodPost, "/sessions/ABC234/flags", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", body, rec.Code)
		}
	}
	if store.calls != 0 {
		t.Fatalf("invalid flags must not reach the store")
	}
}

func TestEventsOrderedAndTimestampsIncrease(t *testing.T) {
	r, _, _ := setup()
	call(r, http.MethodPost, "/sessions/ABC234/events", `{"description":"Touchdown","event_type":"point"}`)
	call(r, http.MethodPost, "/sessions/ABC234/events", `{"description":"Field goal","event_type":"point"}`)
	rec := call(r, http.MethodGet, "/sessions/ABC234/events", "")
	var env struct {
		Data []models.Event `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Data) != 2 || env.Data[0].Description != "Touchdown" {
		t.Fatalf("unexpected events %+v", env.Data)
	}
	if env.Data[1].Timestamp <= env.Data[0].Timestamp {
		t.Fatalf("timestamps must increase: %d then %d", env.Data[0].Timestamp, env.Data[1].Timestamp)
	}
}

func TestAddEventRejectsFlagType(t *testing.T) {
	r, _, _ := setup()
	if rec := call(r, http.MethodPost, "/sessions/ABC234/events", `{"description":"x","event_type":"flag"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := call(r, http.MethodPost, "/sessions/ABC234/events", `{"description":"x","event_type":"safety"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", rec.Code)
	}
}

func TestClearActiveFlagsKeepsLog(t *testing.T) {
	r, store, _ := setup()
	call(r, http.MethodPost, "/sessions/ABC234/flags", `{"team":"Team B","reason":"Holding"}`)
	rec := call(r, http.MethodGet, "/sessions/ABC234/flags/active", "")
	var env struct {
		Data []models.FlagEvent `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	if len(env.Data) != 1 {
		t.Fatalf("expected one active flag, got %d", len(env.Data))
	}
	if rec := call(r, http.MethodDelete, "/sessions/ABC234/flags/active", ""); rec.Code != http.StatusOK {
		t.Fatalf("clear: %d", rec.Code)
	}
	rec = call(r, http.MethodGet, "/sessions/ABC234/flags/active", "")
	env.Data = nil
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	if len(env.Data) != 0 {
		t.Fatalf("expected no active flags after clear, got %d", len(env.Data))
	}
	if len(store.events["ABC234"]) != 1 {
		t.Fatalf("clearing overlays must keep the event log")
	}
}

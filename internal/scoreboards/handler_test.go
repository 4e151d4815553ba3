package scoreboards

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/gridiron-live/broadcast/internal/models"
)

func init() { gin.SetMode(gin.TestMode) }

type memStore struct {
	rows map[string]models.Scoreboard
}

func (m *memStore) Get(_ context.Context, code string) (*models.Scoreboard, error) {
	b, ok := m.rows[code]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *memStore) Replace(_ context.Context, code string, b models.Scoreboard) error {
	if _, ok := m.rows[code]; !ok {
		return ErrNotFound
	}
	m.rows[code] = b
	return nil
}

func (m *memStore) SetIcons(_ context.Context, code string, team1, team2 models.TeamIcon) (*models.Scoreboard, error) {
	b, ok := m.rows[code]
	if !ok {
		return nil, ErrNotFound
	}
	b.Team1Icon, b.Team2Icon = team1, team2
	m.rows[code] = b
	return &b, nil
}

type countingNotifier struct{ n int }

func (c *countingNotifier) BroadcastToSessionAndPublish(string, string, interface{}) { c.n++ }

func setup() (*gin.Engine, *memStore, *countingNotifier) {
	store := &memStore{rows: map[string]models.Scoreboard{
		"ABC234": models.DefaultScoreboard("", ""),
	}}
	n := &countingNotifier{}
	h := NewHandler(store, n, nil)
	r := gin.New()
	r.GET("/sessions/:code/scoreboard", h.Get)
	r.PUT("/sessions/:code/scoreboard", h.Update)
	r.PUT("/sessions/:code/team-icons", h.SetTeamIcons)
	return r, store, n
}

func send(r http.Handler, method, path, body string) int {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec.Code
}

func TestUpdateReplacesFullRow(t *testing.T) {
	r, store, n := setup()
	body := `{"team1_score":7,"team2_score":0,"team1_icon":"fist","team2_icon":"tornado","team1_role":"offense","team2_role":"defense"}`
	if got := send(r, http.MethodPut, "/sessions/ABC234/scoreboard", body); got != http.StatusOK {
		t.Fatalf("update: %d", got)
	}
	b := store.rows["ABC234"]
	want := models.Scoreboard{Team1Score: 7, Team1Icon: "fist", Team2Icon: "tornado", Team1Role: "offense", Team2Role: "defense"}
	if b != want {
		t.Fatalf("got %+v want %+v", b, want)
	}
	if n.n != 1 {
		t.Fatalf("expected one notification, got %d", n.n)
	}
}

func TestUpdateRejectsInvalidRows(t *testing.T) {
	r, store, _ := setup()
	before := store.rows["ABC234"]
	bodies := []string{
		`{"team1_score":1,"team2_score":1,"team1_icon":"fist","team2_icon":"tornado","team1_role":"offense","team2_role":"offense"}`,
		`{"team1_score":-1,"team2_score":0,"team1_icon":"fist","team2_icon":"tornado"}`,
		`{"team1_score":1,"team1_icon":"fist","team2_icon":"tornado"}`,
		`{"team1_score":1,"team2_score":0,"team1_icon":"shark","team2_icon":"tornado"}`,
	}
	for _, body := range bodies {
		if got := send(r, http.MethodPut, "/sessions/ABC234/scoreboard", body); got != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", body, got)
		}
	}
	if store.rows["ABC234"] != before {
		t.Fatalf("rejected updates must not change the row")
	}
}

func TestSetTeamIcons(t *testing.T) {
	r, store, _ := setup()
	if got := send(r, http.MethodPut, "/sessions/ABC234/team-icons", `{"team1_icon":"fist","team2_icon":"fist"}`); got != http.StatusBadRequest {
		t.Fatalf("identical icons: %d", got)
	}
	if got := send(r, http.MethodPut, "/sessions/ABC234/team-icons", `{"team1_icon":"fist","team2_icon":"dolphin"}`); got != http.StatusOK {
		t.Fatalf("set icons: %d", got)
	}
	if store.rows["ABC234"].Team1Icon != models.TeamIconFist {
		t.Fatalf("icons not stored: %+v", store.rows["ABC234"])
	}
	if got := send(r, http.MethodPut, "/sessions/XYZ789/team-icons", `{"team1_icon":"fist","team2_icon":"dolphin"}`); got != http.StatusNotFound {
		t.Fatalf("unknown session: %d", got)
	}
}

func TestGet(t *testing.T) {
	r, _, _ := setup()
	req := httptest.NewRequest(http.MethodGet, "/sessions/ABC234/scoreboard", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var env struct {
		Data models.Scoreboard `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Team1Icon != models.TeamIconDolphin || env.Data.Team2Icon != models.TeamIconBullfrog {
		t.Fatalf("unexpected default row %+v", env.Data)
	}
}

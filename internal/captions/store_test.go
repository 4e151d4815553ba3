package captions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/gridiron-live/broadcast/internal/models"
)

func newStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, ttl), mr
}

func TestLatestOverwrites(t *testing.T) {
	s, _ := newStore(t, time.Minute)
	ctx := context.Background()
	if c, err := s.Latest(ctx, "ABC234"); err != nil || c != nil {
		t.Fatalf("expected no caption, got %v %v", c, err)
	}
	_ = s.Set(ctx, "ABC234", models.Caption{Text: "first", Timestamp: 1})
	_ = s.Set(ctx, "ABC234", models.Caption{Text: "second", Timestamp: 2})
	c, err := s.Latest(ctx, "ABC234")
	if err != nil || c == nil || c.Text != "second" {
		t.Fatalf("expected latest caption, got %+v %v", c, err)
	}
}

func TestCaptionExpires(t *testing.T) {
	s, mr := newStore(t, time.Minute)
	ctx := context.Background()
	_ = s.Set(ctx, "ABC234", models.Caption{Text: "hello"})
	mr.FastForward(2 * time.Minute)
	if c, _ := s.Latest(ctx, "ABC234"); c != nil {
		t.Fatalf("expected caption to expire, got %+v", c)
	}
}

func TestHandlerRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s, _ := newStore(t, 0)
	h := NewHandler(s, nil, nil, nil)
	r := gin.New()
	r.POST("/sessions/:code/captions", h.Add)
	r.GET("/sessions/:code/captions/latest", h.Latest)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/ABC234/captions/latest", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before publish, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/sessions/ABC234/captions", strings.NewReader(`{"text":"first down"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("add: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/ABC234/captions/latest", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "first down") {
		t.Fatalf("latest: %d %s", rec.Code, rec.Body.String())
	}
}

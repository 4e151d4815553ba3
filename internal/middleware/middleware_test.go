package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gridiron-live/broadcast/internal/auth"
)

func init() { gin.SetMode(gin.TestMode) }

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/sessions/:code/x", handlers...)
	return r
}

func do(r http.Handler, path, token string) int {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec.Code
}

func TestBroadcasterToken(t *testing.T) {
	svc := auth.NewJWTService("s", 1)
	r := newRouter(BroadcasterToken(svc))
	tok, _ := svc.Generate("ABC234")

	if got := do(r, "/sessions/ABC234/x", ""); got != http.StatusUnauthorized {
		t.Fatalf("missing token: got %d", got)
	}
	if got := do(r, "/sessions/ABC234/x", "garbage"); got != http.StatusUnauthorized {
		t.Fatalf("bad token: got %d", got)
	}
	if got := do(r, "/sessions/XYZ789/x", tok); got != http.StatusForbidden {
		t.Fatalf("wrong session: got %d", got)
	}
	if got := do(r, "/sessions/abc234/x", tok); got != http.StatusOK {
		t.Fatalf("valid token: got %d", got)
	}
}

func TestSessionRateLimit(t *testing.T) {
	l := NewSessionLimiter(1, 2)
	now := time.Now()
	l.now = func() time.Time { return now }
	r := newRouter(SessionRateLimit(l, nil))

	for i := 0; i < 2; i++ {
		if got := do(r, "/sessions/ABC234/x", ""); got != http.StatusOK {
			t.Fatalf("request %d: got %d", i, got)
		}
	}
	if got := do(r, "/sessions/ABC234/x", ""); got != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", got)
	}
	if got := do(r, "/sessions/XYZ789/x", ""); got != http.StatusOK {
		t.Fatalf("other session should have its own bucket, got %d", got)
	}
	now = now.Add(time.Second)
	if got := do(r, "/sessions/ABC234/x", ""); got != http.StatusOK {
		t.Fatalf("bucket should refill, got %d", got)
	}
}

func TestNilLimiterAllows(t *testing.T) {
	if NewSessionLimiter(0, 0).Allow("x") != true {
		t.Fatalf("nil limiter should allow")
	}
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS("http://a.test"))
	r.OPTIONS("/x", func(c *gin.Context) {})
	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://a.test")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://a.test" {
		t.Fatalf("unexpected allow origin %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

package apiclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/internal/scoring"
	"github.com/gridiron-live/broadcast/pkg/response"
)

func init() { gin.SetMode(gin.TestMode) }

type recorded struct {
	mu    sync.Mutex
	calls []string
	auth  []string
}

func (r *recorded) add(c *gin.Context) {
	r.mu.Lock()
	r.calls = append(r.calls, c.Request.Method+" "+c.Request.URL.Path)
	r.auth = append(r.auth, c.GetHeader("Authorization"))
	r.mu.Unlock()
}

func newServer(t *testing.T, setup func(r *gin.Engine, rec *recorded)) (*Client, *recorded) {
	t.Helper()
	rec := &recorded{}
	r := gin.New()
	setup(r, rec)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(srv.URL, nil), rec
}

func TestStartSessionKeepsToken(t *testing.T) {
	c, rec := newServer(t, func(r *gin.Engine, rec *recorded) {
		r.POST("/sessions", func(ctx *gin.Context) {
			rec.add(ctx)
			var in map[string]string
			_ = ctx.ShouldBindJSON(&in)
			response.Created(ctx, models.SessionGrant{SessionCode: in["session_code"], Token: "tok-1", ResumeKey: "rk"})
		})
		r.POST("/sessions/:code/end", func(ctx *gin.Context) {
			rec.add(ctx)
			response.OK(ctx, gin.H{"ended": true})
		})
	})
	grant, err := c.StartSession(context.Background(), "Coach", "ABC123", models.TeamIconDolphin, models.TeamIconTornado)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if grant.SessionCode != "ABC123" || grant.ResumeKey != "rk" {
		t.Fatalf("grant = %+v", grant)
	}
	if c.Token() != "tok-1" {
		t.Fatalf("token = %q", c.Token())
	}
	if err := c.EndSession(context.Background(), "ABC123"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if got := rec.auth[1]; got != "Bearer tok-1" {
		t.Fatalf("end auth header = %q", got)
	}
}

func TestNotFoundMapsToNil(t *testing.T) {
	c, _ := newServer(t, func(r *gin.Engine, _ *recorded) {
		r.GET("/sessions/:code", func(ctx *gin.Context) { response.NotFound(ctx, "session not found") })
		r.GET("/sessions/:code/captions/latest", func(ctx *gin.Context) { response.NotFound(ctx, "no caption") })
	})
	meta, err := c.GetSessionMetadata(context.Background(), "ZZZ999")
	if err != nil || meta != nil {
		t.Fatalf("metadata = %v, %v; want nil, nil", meta, err)
	}
	caption, err := c.GetLatestCaption(context.Background(), "ZZZ999")
	if err != nil || caption != nil {
		t.Fatalf("caption = %v, %v; want nil, nil", caption, err)
	}
}

func TestAPIErrorCarriesStatus(t *testing.T) {
	c, _ := newServer(t, func(r *gin.Engine, _ *recorded) {
		r.PUT("/sessions/:code/scoreboard", func(ctx *gin.Context) { response.Forbidden(ctx, "not your session") })
	})
	err := c.UpdateScoreboard(context.Background(), "ABC123", models.DefaultScoreboard(models.TeamIconDolphin, models.TeamIconTornado))
	var ae *APIError
	if !errors.As(err, &ae) || ae.Status != http.StatusForbidden || ae.Message != "not your session" {
		t.Fatalf("err = %v", err)
	}
}

func TestFlagValidatedBeforeNetwork(t *testing.T) {
	c, rec := newServer(t, func(r *gin.Engine, rec *recorded) {
		r.POST("/sessions/:code/flags", func(ctx *gin.Context) {
			rec.add(ctx)
			response.Created(ctx, models.Event{Description: "Holding"})
		})
	})
	if _, err := c.AddFlagEvent(context.Background(), "ABC123", "  ", "Holding"); !errors.Is(err, scoring.ErrEmptyTeam) {
		t.Fatalf("err = %v, want ErrEmptyTeam", err)
	}
	if _, err := c.AddFlagEvent(context.Background(), "ABC123", "Team A", ""); !errors.Is(err, scoring.ErrEmptyReason) {
		t.Fatalf("err = %v, want ErrEmptyReason", err)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("invalid flags reached the server: %v", rec.calls)
	}
	if _, err := c.AddFlagEvent(context.Background(), "ABC123", "Team A", "Holding"); err != nil {
		t.Fatalf("valid flag: %v", err)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("calls = %v", rec.calls)
	}
}

func TestUploadRecordingMultipart(t *testing.T) {
	var gotFile, gotMime, gotName, gotDuration string
	c, _ := newServer(t, func(r *gin.Engine, _ *recorded) {
		r.POST("/sessions/:code/recordings", func(ctx *gin.Context) {
			fh, err := ctx.FormFile("file")
			if err != nil {
				response.BadRequest(ctx, "file required")
				return
			}
			f, _ := fh.Open()
			b, _ := io.ReadAll(f)
			_ = f.Close()
			gotFile = string(b)
			gotMime = ctx.PostForm("mime_type")
			gotName = ctx.PostForm("file_name")
			gotDuration = ctx.PostForm("duration")
			response.Accepted(ctx, gin.H{"recording_id": "6f1c2b8e-6d0e-4b7a-9a51-2f6f6a1d0c11", "status": "queued"})
		})
	})
	id, err := c.UploadRecording(context.Background(), "ABC123", "game.webm", "video/webm", 95*time.Second, strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if id != "6f1c2b8e-6d0e-4b7a-9a51-2f6f6a1d0c11" {
		t.Fatalf("id = %q", id)
	}
	if gotFile != "payload" || gotMime != "video/webm" || gotName != "game.webm" || gotDuration != "95" {
		t.Fatalf("form = %q %q %q %q", gotFile, gotMime, gotName, gotDuration)
	}
}

func TestSubscribeRoundTrip(t *testing.T) {
	up := websocket.Upgrader{}
	var gotQuery string
	c, _ := newServer(t, func(r *gin.Engine, _ *recorded) {
		r.GET("/ws", func(ctx *gin.Context) {
			gotQuery = ctx.Request.URL.RawQuery
			conn, err := up.Upgrade(ctx.Writer, ctx.Request, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			_ = conn.WriteJSON(Message{Event: "audience_count", Data: []byte(`{"count":3}`)})
		})
	})
	c.SetToken("tok-9")
	feed, err := c.Subscribe(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer feed.Close()
	if err := feed.Send("join", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case msg := <-feed.Messages():
		if msg.Event != "audience_count" || string(msg.Data) != `{"count":3}` {
			t.Fatalf("msg = %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
	}
	if !strings.Contains(gotQuery, "session_code=ABC123") || !strings.Contains(gotQuery, "token=tok-9") {
		t.Fatalf("query = %q", gotQuery)
	}
}

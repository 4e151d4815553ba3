package recordings

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/internal/recorder"
	"github.com/gridiron-live/broadcast/pkg/queue"
)

func init() { gin.SetMode(gin.TestMode) }

type memStore struct {
	rows map[uuid.UUID]*models.Recording
}

func (m *memStore) Create(_ context.Context, rec *models.Recording) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	cp := *rec
	m.rows[rec.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	r, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) ListBySession(_ context.Context, code string) ([]models.Recording, error) {
	out := make([]models.Recording, 0)
	for _, r := range m.rows {
		if r.SessionCode == code {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	m.rows[id].Status = status
	return nil
}

func (m *memStore) MarkQueued(_ context.Context, id uuid.UUID, path, mimeType string, size int64, duration int) error {
	r := m.rows[id]
	r.LocalPath, r.MimeType, r.FileSize, r.Duration, r.Status = path, mimeType, size, duration, models.RecordingStatusQueued
	return nil
}

type memQueue struct {
	jobs []queue.RecordingUploadPayload
}

func (q *memQueue) EnqueueRecordingUpload(_ context.Context, p queue.RecordingUploadPayload) error {
	q.jobs = append(q.jobs, p)
	return nil
}

type fakeRecorder struct {
	active map[string]uuid.UUID
	dir    string
}

func (f *fakeRecorder) StartRecording(_ context.Context, code string, id uuid.UUID) (*recorder.Result, error) {
	f.active[code] = id
	return &recorder.Result{RecordingID: id, MimeType: "video/webm"}, nil
}

func (f *fakeRecorder) StopRecording(code string) (*recorder.Result, error) {
	id, ok := f.active[code]
	if !ok {
		return nil, recorder.ErrNoActiveSession
	}
	delete(f.active, code)
	path := f.dir + "/" + id.String() + ".webm"
	_ = os.WriteFile(path, []byte("webm"), 0o600)
	return &recorder.Result{RecordingID: id, Path: path, MimeType: "video/webm", Duration: 3 * time.Second}, nil
}

func (f *fakeRecorder) HasActiveRecording(code string) bool {
	_, ok := f.active[code]
	return ok
}

type fakePresigner struct{}

func (fakePresigner) GeneratePresignedDownloadURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://" + bucket + ".example/" + key, nil
}
func (fakePresigner) PresignExpire() time.Duration { return 15 * time.Minute }
func (fakePresigner) RecordingsBucket() string     { return "recs" }

func setup(t *testing.T) (*gin.Engine, *memStore, *memQueue) {
	t.Helper()
	store := &memStore{rows: map[uuid.UUID]*models.Recording{}}
	q := &memQueue{}
	dir := t.TempDir()
	h := NewHandler(store, &fakeRecorder{active: map[string]uuid.UUID{}, dir: dir}, q, fakePresigner{}, dir, nil)
	r := gin.New()
	r.POST("/sessions/:code/recording/start", h.StartRecording)
	r.POST("/sessions/:code/recording/stop", h.StopRecording)
	r.POST("/sessions/:code/recordings", h.Upload)
	r.GET("/sessions/:code/recordings", h.List)
	r.GET("/recordings/:id/download-url", h.GenerateDownloadURL)
	return r, store, q
}

func post(r http.Handler, path string) int {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
	return rec.Code
}

func TestStartStopQueuesUpload(t *testing.T) {
	r, store, q := setup(t)
	if got := post(r, "/sessions/ABC234/recording/start"); got != http.StatusOK {
		t.Fatalf("start: %d", got)
	}
	if got := post(r, "/sessions/ABC234/recording/start"); got != http.StatusConflict {
		t.Fatalf("second start: %d", got)
	}
	if got := post(r, "/sessions/ABC234/recording/stop"); got != http.StatusAccepted {
		t.Fatalf("stop: %d", got)
	}
	if got := post(r, "/sessions/ABC234/recording/stop"); got != http.StatusNotFound {
		t.Fatalf("second stop: %d", got)
	}
	if len(q.jobs) != 1 || q.jobs[0].SessionCode != "ABC234" || q.jobs[0].MimeType != "video/webm" {
		t.Fatalf("unexpected jobs %+v", q.jobs)
	}
	row := store.rows[q.jobs[0].RecordingID]
	if row.Status != models.RecordingStatusQueued || row.Duration != 3 || row.FileSize != 4 {
		t.Fatalf("unexpected row %+v", row)
	}
}

func multipartBody(t *testing.T, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="gridiron-2026-10-17T12-00-00.mp4"`)
	hdr.Set("Content-Type", contentType)
	part, err := w.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write([]byte("fake mp4"))
	_ = w.WriteField("duration", "42")
	_ = w.Close()
	return &buf, w.FormDataContentType()
}

func TestUploadAcceptsRecording(t *testing.T) {
	r, store, q := setup(t)
	body, ct := multipartBody(t, "video/mp4;codecs=avc1,mp4a")
	req := httptest.NewRequest(http.MethodPost, "/sessions/ABC234/recordings", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	if len(q.jobs) != 1 {
		t.Fatalf("expected one job")
	}
	row := store.rows[q.jobs[0].RecordingID]
	if row.Source != models.RecordingSourceUpload || row.MimeType != "video/mp4" || row.Duration != 42 {
		t.Fatalf("unexpected row %+v", row)
	}
	if row.FileName != "gridiron-2026-10-17T12-00-00.mp4" {
		t.Fatalf("unexpected file name %q", row.FileName)
	}
	if _, err := os.Stat(q.jobs[0].FilePath); err != nil {
		t.Fatalf("upload not saved: %v", err)
	}
}

func TestUploadRejectsOtherTypes(t *testing.T) {
	r, _, q := setup(t)
	body, ct := multipartBody(t, "image/png")
	req := httptest.NewRequest(http.MethodPost, "/sessions/ABC234/recordings", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest || len(q.jobs) != 0 {
		t.Fatalf("expected rejection, got %d with %d jobs", rec.Code, len(q.jobs))
	}
}

func TestDownloadURLRequiresCompleted(t *testing.T) {
	r, store, _ := setup(t)
	id := uuid.New()
	store.rows[id] = &models.Recording{ID: id, SessionCode: "ABC234", Status: models.RecordingStatusQueued}

	get := func() int {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recordings/"+id.String()+"/download-url", nil))
		return rec.Code
	}
	if got := get(); got != http.StatusBadRequest {
		t.Fatalf("queued recording: %d", got)
	}
	store.rows[id].Status = models.RecordingStatusCompleted
	store.rows[id].S3Key = "recordings/ABC234/x.mp4"
	if got := get(); got != http.StatusOK {
		t.Fatalf("completed recording: %d", got)
	}
}

package recordings

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/internal/recorder"
	"github.com/gridiron-live/broadcast/pkg/queue"
	"github.com/gridiron-live/broadcast/pkg/response"
	"github.com/gridiron-live/broadcast/pkg/storage"
	"github.com/gridiron-live/broadcast/pkg/utils"
)

// maxUploadBytes caps a client recording upload.
const maxUploadBytes = 4 << 30

// Store is implemented by *Repository.
type Store interface {
	Create(ctx context.Context, rec *models.Recording) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	ListBySession(ctx context.Context, code string) ([]models.Recording, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	MarkQueued(ctx context.Context, id uuid.UUID, localPath, mimeType string, fileSize int64, duration int) error
}

// RecordingService taps the SFU publisher; *recorder.Service implements it.
type RecordingService interface {
	StartRecording(ctx context.Context, code string, recordingID uuid.UUID) (*recorder.Result, error)
	StopRecording(code string) (*recorder.Result, error)
	HasActiveRecording(code string) bool
}

// Enqueuer hands finished files to the upload worker.
type Enqueuer interface {
	EnqueueRecordingUpload(ctx context.Context, payload queue.RecordingUploadPayload) error
}

// Presigner issues download URLs; *storage.S3 implements it.
type Presigner interface {
	GeneratePresignedDownloadURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
	PresignExpire() time.Duration
	RecordingsBucket() string
}

// Handler handles recording HTTP endpoints.
type Handler struct {
	store     Store
	recorder  RecordingService
	queue     Enqueuer
	presigner Presigner
	uploadDir string
	logger    *zap.Logger
}

// NewHandler creates a recordings handler. recorder and presigner may be nil.
func NewHandler(store Store, rec RecordingService, q Enqueuer, presigner Presigner, uploadDir string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	return &Handler{store: store, recorder: rec, queue: q, presigner: presigner, uploadDir: uploadDir, logger: logger}
}

// List handles GET /sessions/:code/recordings.
func (h *Handler) List(c *gin.Context) {
	code := utils.NormalizeSessionCode(c.Param("code"))
	list, err := h.store.ListBySession(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("list recordings failed", zap.Error(err), zap.String("session_code", code))
		response.Internal(c, "failed to list recordings")
		return
	}
	response.OK(c, list)
}

// GenerateDownloadURL handles GET /recordings/:id/download-url.
func (h *Handler) GenerateDownloadURL(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	rec, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load recording")
		return
	}
	if rec == nil {
		response.NotFound(c, "recording not found")
		return
	}
	if rec.Status != models.RecordingStatusCompleted || rec.S3Key == "" {
		response.BadRequest(c, "recording not ready for download")
		return
	}
	if h.presigner == nil {
		response.ServiceUnavailable(c, "S3 not configured")
		return
	}
	expire := h.presigner.PresignExpire()
	url, err := h.presigner.GeneratePresignedDownloadURL(c.Request.Context(), h.presigner.RecordingsBucket(), rec.S3Key, expire)
	if err != nil {
		h.logger.Error("presign recording download failed", zap.Error(err), zap.String("recording_id", id.String()))
		response.Internal(c, "failed to generate download URL")
		return
	}
	response.OK(c, gin.H{"download_url": url, "expires_in": int(expire.Seconds())})
}

// StartRecording handles POST /sessions/:code/recording/start.
func (h *Handler) StartRecording(c *gin.Context) {
	if h.recorder == nil {
		response.ServiceUnavailable(c, "recording service not configured")
		return
	}
	code := utils.NormalizeSessionCode(c.Param("code"))
	if h.recorder.HasActiveRecording(code) {
		response.Conflict(c, "recording already in progress")
		return
	}
	rec := &models.Recording{SessionCode: code, Source: models.RecordingSourceSFU, Status: models.RecordingStatusRecording}
	if err := h.store.Create(c.Request.Context(), rec); err != nil {
		h.logger.Error("create recording row failed", zap.Error(err), zap.String("session_code", code))
		response.Internal(c, "failed to start recording")
		return
	}
	res, err := h.recorder.StartRecording(c.Request.Context(), code, rec.ID)
	if err != nil {
		_ = h.store.UpdateStatus(c.Request.Context(), rec.ID, models.RecordingStatusFailed)
		switch {
		case errors.Is(err, recorder.ErrNoTracks):
			response.BadRequest(c, err.Error())
		case errors.Is(err, recorder.ErrAlreadyActive):
			response.Conflict(c, "recording already in progress")
		default:
			h.logger.Error("start recording failed", zap.Error(err), zap.String("session_code", code))
			response.Internal(c, "failed to start recording")
		}
		return
	}
	response.OK(c, gin.H{"recording_id": rec.ID, "status": models.RecordingStatusRecording, "mime_type": res.MimeType})
}

// StopRecording handles POST /sessions/:code/recording/stop. The file is
// queued for upload; the worker moves it to S3.
func (h *Handler) StopRecording(c *gin.Context) {
	if h.recorder == nil {
		response.ServiceUnavailable(c, "recording service not configured")
		return
	}
	code := utils.NormalizeSessionCode(c.Param("code"))
	res, err := h.recorder.StopRecording(code)
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}
	var size int64
	if info, err := os.Stat(res.Path); err == nil {
		size = info.Size()
	}
	h.queueFile(c, code, res.RecordingID, res.Path, res.MimeType, size, int(res.Duration.Seconds()))
}

// Upload handles POST /sessions/:code/recordings: the broadcaster client posts
// its locally encoded recording as multipart field "file".
func (h *Handler) Upload(c *gin.Context) {
	code := utils.NormalizeSessionCode(c.Param("code"))
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file required")
		return
	}
	ctype := c.PostForm("mime_type")
	if ctype == "" {
		ctype = fh.Header.Get("Content-Type")
	}
	base, _, err := mime.ParseMediaType(ctype)
	if err != nil || (base != "video/mp4" && base != "video/webm") {
		response.BadRequest(c, "recording must be video/mp4 or video/webm")
		return
	}
	duration, _ := strconv.Atoi(c.PostForm("duration"))
	name := filepath.Base(fh.Filename)
	if v := c.PostForm("file_name"); v != "" {
		name = filepath.Base(v)
	}

	rec := &models.Recording{
		ID:          uuid.New(),
		SessionCode: code,
		Source:      models.RecordingSourceUpload,
		FileName:    name,
		MimeType:    base,
		Status:      models.RecordingStatusRecording,
	}
	dir := filepath.Join(h.uploadDir, "uploads")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		response.Internal(c, "failed to store upload")
		return
	}
	path := filepath.Join(dir, rec.ID.String()+storage.ExtensionForMime(base))
	if err := c.SaveUploadedFile(fh, path); err != nil {
		h.logger.Error("save upload failed", zap.Error(err), zap.String("session_code", code))
		response.Internal(c, "failed to store upload")
		return
	}
	if err := h.store.Create(c.Request.Context(), rec); err != nil {
		_ = os.Remove(path)
		h.logger.Error("create recording row failed", zap.Error(err), zap.String("session_code", code))
		response.Internal(c, "failed to store upload")
		return
	}
	h.queueFile(c, code, rec.ID, path, base, fh.Size, duration)
}

func (h *Handler) queueFile(c *gin.Context, code string, id uuid.UUID, path, mimeType string, size int64, duration int) {
	ctx := c.Request.Context()
	if err := h.store.MarkQueued(ctx, id, path, mimeType, size, duration); err != nil {
		h.logger.Error("mark recording queued failed", zap.Error(err), zap.String("recording_id", id.String()))
		response.Internal(c, "failed to queue recording")
		return
	}
	payload := queue.RecordingUploadPayload{RecordingID: id, SessionCode: code, FilePath: path, MimeType: mimeType}
	if err := h.queue.EnqueueRecordingUpload(ctx, payload); err != nil {
		_ = h.store.UpdateStatus(ctx, id, models.RecordingStatusFailed)
		h.logger.Error("enqueue recording upload failed", zap.Error(err), zap.String("recording_id", id.String()))
		response.Internal(c, "failed to queue recording")
		return
	}
	response.Accepted(c, gin.H{"recording_id": id, "status": models.RecordingStatusQueued})
}

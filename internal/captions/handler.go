package captions

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gridiron-live/broadcast/internal/metrics"
	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/pkg/response"
	"github.com/gridiron-live/broadcast/pkg/utils"
)

// LatestStore is implemented by *Store.
type LatestStore interface {
	Set(ctx context.Context, code string, c models.Caption) error
	Latest(ctx context.Context, code string) (*models.Caption, error)
}

// Notifier pushes captions to connected clients.
type Notifier interface {
	BroadcastToSessionAndPublish(code, event string, payload interface{})
}

// AddRequest is the body for POST /sessions/:code/captions. Empty text is
// allowed and clears the viewer overlay.
type AddRequest struct {
	Text string `json:"text"`
}

// Handler handles caption endpoints.
type Handler struct {
	store    LatestStore
	notifier Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *zap.Logger
}

// NewHandler creates a captions handler.
func NewHandler(store LatestStore, notifier Notifier, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, notifier: notifier, metrics: m, now: time.Now, logger: logger}
}

// Add handles POST /sessions/:code/captions.
func (h *Handler) Add(c *gin.Context) {
	code := utils.NormalizeSessionCode(c.Param("code"))
	var req AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	caption := models.Caption{Text: req.Text, Timestamp: h.now().UnixNano()}
	if err := h.store.Set(c.Request.Context(), code, caption); err != nil {
		h.logger.Error("store caption failed", zap.Error(err), zap.String("session_code", code))
		response.Internal(c, "failed to store caption")
		return
	}
	h.metrics.IncCaptions()
	if h.notifier != nil {
		h.notifier.BroadcastToSessionAndPublish(code, "caption", caption)
	}
	response.OK(c, caption)
}

// Latest handles GET /sessions/:code/captions/latest.
func (h *Handler) Latest(c *gin.Context) {
	code := utils.NormalizeSessionCode(c.Param("code"))
	caption, err := h.store.Latest(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("load caption failed", zap.Error(err), zap.String("session_code", code))
		response.Internal(c, "failed to load caption")
		return
	}
	if caption == nil {
		response.NotFound(c, "no caption")
		return
	}
	response.OK(c, caption)
}

package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gridiron-live/broadcast/internal/metrics"
	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/pkg/response"
	"github.com/gridiron-live/broadcast/pkg/utils"
)

// Store is implemented by *Repository.
type Store interface {
	Append(ctx context.Context, code string, ev *models.Event, nowNs int64) error
	List(ctx context.Context, code string) ([]models.Event, error)
	ListActiveFlags(ctx context.Context, code string) ([]models.Event, error)
	ClearActiveFlags(ctx context.Context, code string) (int64, error)
}

// Notifier pushes appended events to connected clients.
type Notifier interface {
	BroadcastToSessionAndPublish(code, event string, payload interface{})
}

// AddEventRequest is the body for POST /sessions/:code/events.
type AddEventRequest struct {
	Description string `json:"description" binding:"required"`
	EventType   string `json:"event_type" binding:"required"`
}

// AddFlagRequest is the body for POST /sessions/:code/flags.
type AddFlagRequest struct {
	Team   string `json:"team"`
	Reason string `json:"reason"`
}

// Handler handles event log HTTP endpoints.
type Handler struct {
	store    Store
	notifier Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *zap.Logger
}

// NewHandler creates an events handler. notifier and m may be nil.
func NewHandler(store Store, notifier Notifier, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, notifier: notifier, metrics: m, now: time.Now, logger: logger}
}

// FlagDescription is the log line stored for a flag event.
func FlagDescription(team, reason string) string {
	return fmt.Sprintf("Flag on %s: %s", team, reason)
}

// AddEvent handles POST /sessions/:code/events.
func (h *Handler) AddEvent(c *gin.Context) {
	code := utils.NormalizeSessionCode(c.Param("code"))
	var req AddEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	eventType, err := models.ParseEventType(req.EventType)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if eventType == models.EventTypeFlag {
		response.BadRequest(c, "flag events must be submitted to /flags")
		return
	}
	ev := &models.Event{Description: req.Description, EventType: eventType}
	h.append(c, code, ev)
}

// AddFlag handles POST /sessions/:code/flags.
func (h *Handler) AddFlag(c *gin.Context) {
	code := utils.NormalizeSessionCode(c.Param("code"))
	var req AddFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	team := strings.TrimSpace(req.Team)
	reason := strings.TrimSpace(req.Reason)
	if team == "" || reason == "" {
		response.BadRequest(c, "team and reason are required")
		return
	}
	ev := &models.Event{
		Description: FlagDescription(team, reason),
		EventType:   models.EventTypeFlag,
		FlagEvent:   &models.FlagEvent{Team: team, Reason: reason},
	}
	h.append(c, code, ev)
}

func (h *Handler) append(c *gin.Context, code string, ev *models.Event) {
	if err := h.store.Append(c.Request.Context(), code, ev, h.now().UnixNano()); err != nil {
		h.logger.Error("append event failed", zap.Error(err), zap.String("session_code", code))
		response.Internal(c, "failed to add event")
		return
	}
	h.metrics.IncEvents(string(ev.EventType))
	if h.notifier != nil {
		h.notifier.BroadcastToSessionAndPublish(code, "event_added", ev)
	}
	response.Created(c, ev)
}

// List handles GET /sessions/:code/events.
func (h *Handler) List(c *gin.Context) {
	code := utils.NormalizeSessionCode(c.Param("code"))
	list, err := h.store.List(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err), zap.String("session_code", code))
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, list)
}

// ActiveFlags handles GET /sessions/:code/flags/active.
func (h *Handler) ActiveFlags(c *gin.Context) {
	code := utils.NormalizeSessionCode(c.Param("code"))
	list, err := h.store.ListActiveFlags(c.Request.Context(), code)
	if err != nil {
		response.Internal(c, "failed to list flags")
		return
	}
	flags := make([]models.FlagEvent, 0, len(list))
	for _, ev := range list {
		if ev.FlagEvent != nil {
			flags = append(flags, *ev.FlagEvent)
		}
	}
	response.OK(c, flags)
}

// ClearFlags handles DELETE /sessions/:code/flags/active.
func (h *Handler) ClearFlags(c *gin.Context) {
	code := utils.NormalizeSessionCode(c.Param("code"))
	n, err := h.store.ClearActiveFlags(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("clear flags failed", zap.Error(err), zap.String("session_code", code))
		response.Internal(c, "failed to clear flags")
		return
	}
	if h.notifier != nil {
		h.notifier.BroadcastToSessionAndPublish(code, "flags_cleared", gin.H{"cleared": n})
	}
	response.OK(c, gin.H{"cleared": n})
}

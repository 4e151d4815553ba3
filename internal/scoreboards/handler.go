package scoreboards

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/pkg/response"
	"github.com/gridiron-live/broadcast/pkg/utils"
)

// ErrNotFound is returned when the session has no scoreboard row.
var ErrNotFound = errors.New("scoreboard not found")

// Store is implemented by *Repository.
type Store interface {
	Get(ctx context.Context, code string) (*models.Scoreboard, error)
	Replace(ctx context.Context, code string, b models.Scoreboard) error
	SetIcons(ctx context.Context, code string, team1, team2 models.TeamIcon) (*models.Scoreboard, error)
}

// Notifier pushes scoreboard changes to connected clients.
type Notifier interface {
	BroadcastToSessionAndPublish(code, event string, payload interface{})
}

// UpdateRequest is the full row for PUT /sessions/:code/scoreboard. Every
// field is required; a negative score fails binding into uint.
type UpdateRequest struct {
	Team1Score *uint  `json:"team1_score" binding:"required"`
	Team2Score *uint  `json:"team2_score" binding:"required"`
	Team1Icon  string `json:"team1_icon" binding:"required"`
	Team2Icon  string `json:"team2_icon" binding:"required"`
	Team1Role  string `json:"team1_role"`
	Team2Role  string `json:"team2_role"`
}

// IconsRequest is the body for PUT /sessions/:code/team-icons.
type IconsRequest struct {
	Team1Icon string `json:"team1_icon" binding:"required"`
	Team2Icon string `json:"team2_icon" binding:"required"`
}

// Handler handles scoreboard HTTP endpoints.
type Handler struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
}

// NewHandler creates a scoreboard handler. notifier may be nil.
func NewHandler(store Store, notifier Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, notifier: notifier, logger: logger}
}

// Get handles GET /sessions/:code/scoreboard.
func (h *Handler) Get(c *gin.Context) {
	code := utils.NormalizeSessionCode(c.Param("code"))
	b, err := h.store.Get(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("get scoreboard failed", zap.Error(err), zap.String("session_code", code))
		response.Internal(c, "failed to load scoreboard")
		return
	}
	if b == nil {
		response.NotFound(c, "scoreboard not found")
		return
	}
	response.OK(c, b)
}

func (r UpdateRequest) toScoreboard() (models.Scoreboard, error) {
	var b models.Scoreboard
	var err error
	if b.Team1Icon, err = models.ParseTeamIcon(r.Team1Icon); err != nil {
		return b, err
	}
	if b.Team2Icon, err = models.ParseTeamIcon(r.Team2Icon); err != nil {
		return b, err
	}
	if b.Team1Role, err = models.ParseTeamRole(r.Team1Role); err != nil {
		return b, err
	}
	if b.Team2Role, err = models.ParseTeamRole(r.Team2Role); err != nil {
		return b, err
	}
	if b.Team1Role == models.TeamRoleOffense && b.Team2Role == models.TeamRoleOffense {
		return b, errors.New("both teams cannot be on offense")
	}
	b.Team1Score, b.Team2Score = *r.Team1Score, *r.Team2Score
	return b, nil
}

// Update handles PUT /sessions/:code/scoreboard (full-row replace).
func (h *Handler) Update(c *gin.Context) {
	code := utils.NormalizeSessionCode(c.Param("code"))
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	b, err := req.toScoreboard()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.store.Replace(c.Request.Context(), code, b); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "scoreboard not found")
			return
		}
		h.logger.Error("replace scoreboard failed", zap.Error(err), zap.String("session_code", code))
		response.Internal(c, "failed to update scoreboard")
		return
	}
	h.publish(code, b)
	response.OK(c, b)
}

// SetTeamIcons handles PUT /sessions/:code/team-icons.
func (h *Handler) SetTeamIcons(c *gin.Context) {
	code := utils.NormalizeSessionCode(c.Param("code"))
	var req IconsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	i1, err := models.ParseTeamIcon(req.Team1Icon)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	i2, err := models.ParseTeamIcon(req.Team2Icon)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if i1 == i2 {
		response.BadRequest(c, "team icons must differ")
		return
	}
	b, err := h.store.SetIcons(c.Request.Context(), code, i1, i2)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "scoreboard not found")
			return
		}
		h.logger.Error("set team icons failed", zap.Error(err), zap.String("session_code", code))
		response.Internal(c, "failed to set team icons")
		return
	}
	h.publish(code, *b)
	response.OK(c, b)
}

func (h *Handler) publish(code string, b models.Scoreboard) {
	if h.notifier != nil {
		h.notifier.BroadcastToSessionAndPublish(code, "scoreboard_updated", b)
	}
}

package sessions

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gridiron-live/broadcast/internal/metrics"
	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/pkg/response"
	"github.com/gridiron-live/broadcast/pkg/utils"
)

// maxCodeAttempts bounds regeneration when a server-generated code collides.
const maxCodeAttempts = 5

// ContextSession is the gin context key for the session loaded by RequireLive.
const ContextSession = "session"

// Store is the persistence the handler needs; *Repository implements it.
type Store interface {
	Create(ctx context.Context, s *models.Session, board models.Scoreboard) error
	Get(ctx context.Context, code string) (*models.Session, error)
	End(ctx context.Context, code string) (*models.Session, error)
}

// TokenIssuer issues broadcaster tokens scoped to a session code.
type TokenIssuer interface {
	Generate(sessionCode string) (string, error)
}

// Notifier pushes session lifecycle changes to connected clients.
type Notifier interface {
	BroadcastToSessionAndPublish(code, event string, payload interface{})
}

// PublisherCloser tears down the SFU publisher once a session ends.
type PublisherCloser interface {
	ClosePublisher(code string)
}

// StartRequest is the body for POST /sessions.
type StartRequest struct {
	Broadcaster string `json:"broadcaster"`
	SessionCode string `json:"session_code"`
	Team1Icon   string `json:"team1_icon"`
	Team2Icon   string `json:"team2_icon"`
}

// StartResponse is returned once; the resume key is never shown again.
type StartResponse = models.SessionGrant

// ResumeRequest is the body for POST /sessions/:code/token.
type ResumeRequest struct {
	ResumeKey string `json:"resume_key" binding:"required"`
}

// Handler handles session HTTP endpoints.
type Handler struct {
	store    Store
	tokens   TokenIssuer
	notifier Notifier
	sfu      PublisherCloser
	metrics  *metrics.Metrics
	newCode  func() (string, error)
	logger   *zap.Logger
}

// NewHandler creates a sessions handler. notifier, sfu and m may be nil.
func NewHandler(store Store, tokens TokenIssuer, notifier Notifier, sfu PublisherCloser, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:    store,
		tokens:   tokens,
		notifier: notifier,
		sfu:      sfu,
		metrics:  m,
		newCode:  utils.NewSessionCode,
		logger:   logger,
	}
}

// Start handles POST /sessions.
func (h *Handler) Start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	name := strings.TrimSpace(req.Broadcaster)
	if name == "" {
		response.BadRequest(c, "broadcaster name required")
		return
	}
	board, err := initialScoreboard(req.Team1Icon, req.Team2Icon)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resumeKey, err := utils.NewResumeKey()
	if err != nil {
		response.Internal(c, "failed to start session")
		return
	}
	hash, err := utils.HashSecret(resumeKey)
	if err != nil {
		response.Internal(c, "failed to start session")
		return
	}

	requested := utils.NormalizeSessionCode(req.SessionCode)
	if requested != "" && !utils.IsSessionCodeFormat(requested) {
		response.BadRequest(c, "invalid session code")
		return
	}

	session := &models.Session{Broadcaster: name, ResumeKeyHash: hash}
	for attempt := 0; ; attempt++ {
		session.Code = requested
		if session.Code == "" {
			if session.Code, err = h.newCode(); err != nil {
				response.Internal(c, "failed to start session")
				return
			}
		}
		err = h.store.Create(c.Request.Context(), session, board)
		if err == nil {
			break
		}
		if errors.Is(err, ErrCodeTaken) {
			if requested != "" || attempt+1 >= maxCodeAttempts {
				response.Conflict(c, "session code already in use")
				return
			}
			continue
		}
		h.logger.Error("create session failed", zap.Error(err))
		response.Internal(c, "failed to start session")
		return
	}

	token, err := h.tokens.Generate(session.Code)
	if err != nil {
		h.logger.Error("issue token failed", zap.Error(err), zap.String("session_code", session.Code))
		response.Internal(c, "failed to issue token")
		return
	}
	h.metrics.IncSessionsStarted()
	h.logger.Info("session started", zap.String("session_code", session.Code), zap.String("broadcaster", name))
	response.Created(c, StartResponse{SessionCode: session.Code, Token: token, ResumeKey: resumeKey})
}

func initialScoreboard(team1, team2 string) (models.Scoreboard, error) {
	var i1, i2 models.TeamIcon
	var err error
	if team1 != "" {
		if i1, err = models.ParseTeamIcon(team1); err != nil {
			return models.Scoreboard{}, err
		}
	}
	if team2 != "" {
		if i2, err = models.ParseTeamIcon(team2); err != nil {
			return models.Scoreboard{}, err
		}
	}
	board := models.DefaultScoreboard(i1, i2)
	if board.Team1Icon == board.Team2Icon {
		return models.Scoreboard{}, errors.New("team icons must differ")
	}
	return board, nil
}

// Resume handles POST /sessions/:code/token: a reloaded broadcaster trades
// its resume key for a fresh token.
func (h *Handler) Resume(c *gin.Context) {
	code := utils.NormalizeSessionCode(c.Param("code"))
	var req ResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s, err := h.store.Get(c.Request.Context(), code)
	if err != nil {
		response.Internal(c, "failed to load session")
		return
	}
	if s == nil || !utils.CheckSecret(req.ResumeKey, s.ResumeKeyHash) {
		response.Unauthorized(c, "invalid session code or resume key")
		return
	}
	if s.Ended() {
		response.Conflict(c, "session already ended")
		return
	}
	token, err := h.tokens.Generate(code)
	if err != nil {
		response.Internal(c, "failed to issue token")
		return
	}
	response.OK(c, models.SessionGrant{SessionCode: code, Token: token})
}

// End handles POST /sessions/:code/end.
func (h *Handler) End(c *gin.Context) {
	code := utils.NormalizeSessionCode(c.Param("code"))
	s, err := h.store.End(c.Request.Context(), code)
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "session not found")
		return
	case errors.Is(err, ErrAlreadyEnded):
		response.Conflict(c, "session already ended")
		return
	case err != nil:
		h.logger.Error("end session failed", zap.Error(err), zap.String("session_code", code))
		response.Internal(c, "failed to end session")
		return
	}
	meta := s.Metadata()
	if h.notifier != nil {
		h.notifier.BroadcastToSessionAndPublish(code, "session_ended", meta)
	}
	if h.sfu != nil {
		h.sfu.ClosePublisher(code)
	}
	h.metrics.IncSessionsEnded()
	h.logger.Info("session ended", zap.String("session_code", code))
	response.OK(c, meta)
}

// Valid handles GET /sessions/:code/valid. It never mutates state.
func (h *Handler) Valid(c *gin.Context) {
	code := utils.NormalizeSessionCode(c.Param("code"))
	if !utils.IsSessionCodeFormat(code) {
		response.OK(c, gin.H{"valid": false})
		return
	}
	s, err := h.store.Get(c.Request.Context(), code)
	if err != nil {
		response.Internal(c, "failed to load session")
		return
	}
	response.OK(c, gin.H{"valid": s != nil && !s.Ended()})
}

// Metadata handles GET /sessions/:code.
func (h *Handler) Metadata(c *gin.Context) {
	code := utils.NormalizeSessionCode(c.Param("code"))
	s, err := h.store.Get(c.Request.Context(), code)
	if err != nil {
		response.Internal(c, "failed to load session")
		return
	}
	if s == nil {
		response.NotFound(c, "session not found")
		return
	}
	response.OK(c, s.Metadata())
}

// RequireSession loads the :code session into the context or 404s. With
// live set, an ended session is rejected with 409.
func (h *Handler) RequireSession(live bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := utils.NormalizeSessionCode(c.Param("code"))
		s, err := h.store.Get(c.Request.Context(), code)
		if err != nil {
			response.Internal(c, "failed to load session")
			c.Abort()
			return
		}
		if s == nil {
			response.NotFound(c, "session not found")
			c.Abort()
			return
		}
		if live && s.Ended() {
			response.Conflict(c, "session already ended")
			c.Abort()
			return
		}
		c.Set(ContextSession, s)
		c.Next()
	}
}

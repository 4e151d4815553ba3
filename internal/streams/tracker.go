package streams

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/pkg/response"
	"github.com/gridiron-live/broadcast/pkg/utils"
)

// PeakStore is implemented by *Repository.
type PeakStore interface {
	UpdatePeakViewers(ctx context.Context, code string, peak int) error
	PeakViewers(ctx context.Context, code string) (int, error)
}

// Tracker follows live connection counts per session and persists new peaks.
type Tracker struct {
	store  PeakStore
	mu     sync.Mutex
	stats  map[string]*models.StreamStats
	now    func() time.Time
	logger *zap.Logger
}

// NewTracker creates a tracker. store may be nil to keep figures in memory only.
func NewTracker(store PeakStore, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, stats: make(map[string]*models.StreamStats), now: time.Now, logger: logger}
}

// OnAudienceChange matches realtime.AudienceChangeHandler.
func (t *Tracker) OnAudienceChange(code string, count int) {
	t.mu.Lock()
	s, ok := t.stats[code]
	if !ok {
		s = &models.StreamStats{SessionCode: code}
		t.stats[code] = s
	}
	s.CurrentViewers = count
	s.UpdatedAt = t.now()
	newPeak := count > s.PeakViewers
	if newPeak {
		s.PeakViewers = count
	}
	if count == 0 {
		delete(t.stats, code)
	}
	t.mu.Unlock()

	if newPeak && t.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.store.UpdatePeakViewers(ctx, code, count); err != nil {
			t.logger.Warn("update peak viewers failed", zap.Error(err), zap.String("session_code", code))
		}
	}
}

// Stats returns the current figures, falling back to the persisted peak.
func (t *Tracker) Stats(ctx context.Context, code string) (models.StreamStats, error) {
	t.mu.Lock()
	var out models.StreamStats
	if s, ok := t.stats[code]; ok {
		out = *s
	} else {
		out = models.StreamStats{SessionCode: code}
	}
	t.mu.Unlock()
	if t.store != nil {
		peak, err := t.store.PeakViewers(ctx, code)
		if err != nil {
			return out, err
		}
		if peak > out.PeakViewers {
			out.PeakViewers = peak
		}
	}
	return out, nil
}

// Handle serves GET /sessions/:code/stats.
func (t *Tracker) Handle(c *gin.Context) {
	code := utils.NormalizeSessionCode(c.Param("code"))
	stats, err := t.Stats(c.Request.Context(), code)
	if err != nil {
		t.logger.Error("load stream stats failed", zap.Error(err), zap.String("session_code", code))
		response.Internal(c, "failed to load stats")
		return
	}
	response.OK(c, stats)
}

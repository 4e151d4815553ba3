package overlay

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/internal/schedule"
)

// Side is where a flag banner is drawn.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// SideFunc places a flag by team label.
type SideFunc func(team string) Side

// DefaultSide puts "Team A" on the left and every other label on the right.
// Renamed teams therefore all land on the right.
func DefaultSide(team string) Side {
	if team == "Team A" {
		return SideLeft
	}
	return SideRight
}

// SeenStore persists the flags a viewer has already been shown.
type SeenStore interface {
	LoadSeenFlags(code string) ([]string, error)
	SaveSeenFlags(code string, keys []string) error
}

// FlagOverlay is the banner currently on screen.
type FlagOverlay struct {
	Flag models.FlagEvent
	Side Side
}

// FlagScheduler shows at most one flag banner at a time, newest unseen
// first. Flags superseded before a scan reaches them are never shown; they
// stay in the event log.
type FlagScheduler struct {
	code     string
	store    SeenStore
	side     SideFunc
	duration time.Duration
	slot     *schedule.Slot
	logger   *zap.Logger

	mu       sync.Mutex
	gen      uint64
	seen     map[string]struct{}
	current  *FlagOverlay
	onChange func(*FlagOverlay)
}

// NewFlagScheduler loads the seen set for code from store (which may be nil).
func NewFlagScheduler(code string, store SeenStore, clock schedule.Clock, logger *zap.Logger) *FlagScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FlagScheduler{
		code:     code,
		store:    store,
		side:     DefaultSide,
		duration: FlagDuration,
		slot:     schedule.NewSlot(clock),
		logger:   logger,
		seen:     make(map[string]struct{}),
	}
	if store != nil {
		keys, err := store.LoadSeenFlags(code)
		if err != nil {
			logger.Warn("load seen flags failed", zap.String("session_code", code), zap.Error(err))
		}
		for _, k := range keys {
			s.seen[k] = struct{}{}
		}
	}
	return s
}

// SetSide replaces the side rule.
func (s *FlagScheduler) SetSide(fn SideFunc) {
	s.mu.Lock()
	s.side = fn
	s.mu.Unlock()
}

// OnChange is called with the new banner, or nil when it is dismissed.
func (s *FlagScheduler) OnChange(fn func(*FlagOverlay)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Current returns the banner on screen, or nil.
func (s *FlagScheduler) Current() *FlagOverlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cur := *s.current
	return &cur
}

// Seen reports whether a flag has already been shown.
func (s *FlagScheduler) Seen(f models.FlagEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[f.Key()]
	return ok
}

// Update scans flags newest-first for one not yet seen, shows it, records it
// as seen and restarts the dismiss timer. It reports whether a banner was shown.
func (s *FlagScheduler) Update(flags []models.FlagEvent) bool {
	s.mu.Lock()
	var found *models.FlagEvent
	for i := len(flags) - 1; i >= 0; i-- {
		if _, ok := s.seen[flags[i].Key()]; !ok {
			f := flags[i]
			found = &f
			break
		}
	}
	if found == nil {
		s.mu.Unlock()
		return false
	}
	s.seen[found.Key()] = struct{}{}
	s.gen++
	gen := s.gen
	s.current = &FlagOverlay{Flag: *found, Side: s.side(found.Team)}
	shown := *s.current
	keys := s.keysLocked()
	cb := s.onChange
	// armed before the banner is published so the previous dismiss is
	// already superseded when observers see it
	s.slot.Arm(s.duration, func() { s.dismiss(gen) })
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveSeenFlags(s.code, keys); err != nil {
			s.logger.Warn("persist seen flags failed", zap.String("session_code", s.code), zap.Error(err))
		}
	}
	if cb != nil {
		cb(&shown)
	}
	return true
}

// Close cancels the pending dismiss timer.
func (s *FlagScheduler) Close() { s.slot.Cancel() }

func (s *FlagScheduler) dismiss(gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.current = nil
	cb := s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb(nil)
	}
}

func (s *FlagScheduler) keysLocked() []string {
	keys := make([]string, 0, len(s.seen))
	for k := range s.seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

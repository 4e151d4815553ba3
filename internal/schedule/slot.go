package schedule

import (
	"sync"
	"time"
)

// Slot holds at most one pending single-shot timer. Arming a slot cancels
// the previous timer; a callback from a superseded arm never runs, even if
// its timer already fired and is waiting on the lock.
type Slot struct {
	clock Clock
	mu    sync.Mutex
	gen   uint64
	timer Timer
}

// NewSlot creates an empty slot on clock.
func NewSlot(clock Clock) *Slot {
	if clock == nil {
		clock = RealClock
	}
	return &Slot{clock: clock}
}

// Arm schedules fn after d, replacing any pending callback.
func (s *Slot) Arm(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending callback, if any.
func (s *Slot) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Armed reports whether a callback is pending.
func (s *Slot) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

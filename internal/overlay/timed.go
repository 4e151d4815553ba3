// Package overlay schedules the transient banners shown over the broadcast:
// flag announcements, score celebrations, the latest event and captions.
package overlay

import (
	"sync"
	"time"

	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/internal/schedule"
)

const (
	FlagDuration        = 3000 * time.Millisecond
	CelebrationDuration = 8000 * time.Millisecond
	LatestEventDuration = 5000 * time.Millisecond
)

// Timed shows one value at a time and clears it after a fixed duration.
// Triggering again replaces the value and restarts the timer.
type Timed[T any] struct {
	duration time.Duration
	slot     *schedule.Slot

	mu       sync.Mutex
	gen      uint64
	value    T
	visible  bool
	onChange func(T, bool)
}

// NewTimed creates an empty overlay.
func NewTimed[T any](clock schedule.Clock, d time.Duration) *Timed[T] {
	return &Timed[T]{duration: d, slot: schedule.NewSlot(clock)}
}

// OnChange is called with the new value and visibility after each change.
func (o *Timed[T]) OnChange(fn func(T, bool)) {
	o.mu.Lock()
	o.onChange = fn
	o.mu.Unlock()
}

// Trigger shows v and arms the dismiss timer. A dismiss armed by an earlier
// trigger never clears v, even if its timer already fired.
func (o *Timed[T]) Trigger(v T) {
	o.mu.Lock()
	o.gen++
	gen := o.gen
	o.mu.Unlock()
	o.slot.Arm(o.duration, func() { o.expire(gen) })
	o.set(gen, v, true)
}

// Clear hides the overlay now.
func (o *Timed[T]) Clear() {
	o.slot.Cancel()
	o.mu.Lock()
	o.gen++
	gen := o.gen
	o.mu.Unlock()
	var zero T
	o.set(gen, zero, false)
}

// Current returns the shown value.
func (o *Timed[T]) Current() (T, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value, o.visible
}

// Close cancels the pending timer without notifying.
func (o *Timed[T]) Close() { o.slot.Cancel() }

func (o *Timed[T]) expire(gen uint64) {
	var zero T
	o.set(gen, zero, false)
}

// set applies the change only while gen is still the latest generation.
func (o *Timed[T]) set(gen uint64, v T, visible bool) {
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return
	}
	o.value, o.visible = v, visible
	cb := o.onChange
	o.mu.Unlock()
	if cb != nil {
		cb(v, visible)
	}
}

// Celebration shows the scoring team's artwork.
type Celebration = Timed[models.TeamIcon]

// NewCelebration creates an 8 second celebration overlay.
func NewCelebration(clock schedule.Clock) *Celebration {
	return NewTimed[models.TeamIcon](clock, CelebrationDuration)
}

// LatestEvent shows the newest entry of the event feed.
type LatestEvent struct {
	*Timed[models.Event]

	mu   sync.Mutex
	last int64
}

// NewLatestEvent creates a 5 second latest-event banner.
func NewLatestEvent(clock schedule.Clock) *LatestEvent {
	return &LatestEvent{Timed: NewTimed[models.Event](clock, LatestEventDuration)}
}

// Update shows the last element of events when it differs from the last
// one shown. Re-polling an unchanged feed does nothing.
func (o *LatestEvent) Update(events []models.Event) bool {
	if len(events) == 0 {
		return false
	}
	ev := events[len(events)-1]
	o.mu.Lock()
	if ev.Timestamp == o.last {
		o.mu.Unlock()
		return false
	}
	o.last = ev.Timestamp
	o.mu.Unlock()
	o.Trigger(ev)
	return true
}

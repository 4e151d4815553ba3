// Package gameclock is the broadcaster's quarter timer.
package gameclock

import (
	"fmt"
	"sync"
	"time"

	"github.com/gridiron-live/broadcast/internal/schedule"
)

// Phase is a period of the game.
type Phase string

const (
	Q1       Phase = "Q1"
	Q2       Phase = "Q2"
	Halftime Phase = "Halftime"
	Q3       Phase = "Q3"
	Q4       Phase = "Q4"
)

// QuarterDuration is the length of each quarter.
const QuarterDuration = 6 * time.Minute

var nextPhase = map[Phase]Phase{Q1: Q2, Q2: Halftime, Halftime: Q3, Q3: Q4, Q4: Q4}

// Snapshot is the clock state at one instant.
type Snapshot struct {
	Phase     Phase
	Remaining time.Duration
	Running   bool
}

// Formatted renders the remaining time as m:ss.
func (s Snapshot) Formatted() string {
	return Format(s.Remaining)
}

// Format renders d as m:ss, truncated to whole seconds.
func Format(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// Clock counts quarters down one second at a time. It does not tick during
// Halftime and stops itself at zero.
type Clock struct {
	mu        sync.Mutex
	phase     Phase
	remaining time.Duration
	running   bool
	tick      *schedule.Slot
	ticks     uint64
	onChange  func(Snapshot)
}

// New creates a stopped clock at the start of Q1.
func New(clock schedule.Clock) *Clock {
	return &Clock{phase: Q1, remaining: QuarterDuration, tick: schedule.NewSlot(clock)}
}

// OnChange registers a callback run after every state change.
func (c *Clock) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Snapshot returns the current state.
func (c *Clock) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Clock) snapshotLocked() Snapshot {
	return Snapshot{Phase: c.phase, Remaining: c.remaining, Running: c.running}
}

// Formatted is shorthand for Snapshot().Formatted().
func (c *Clock) Formatted() string { return c.Snapshot().Formatted() }

func (c *Clock) Start() {
	c.update(func() {
		if c.running || c.remaining <= 0 {
			return
		}
		c.running = true
		if c.phase != Halftime {
			c.armLocked()
		}
	})
}

func (c *Clock) Pause() {
	c.update(func() {
		c.running = false
		c.stopLocked()
	})
}

// Reset stops the clock and restores a full quarter without changing phase.
func (c *Clock) Reset() {
	c.update(func() {
		c.running = false
		c.stopLocked()
		c.remaining = QuarterDuration
	})
}

// NextQuarter advances the phase. Q4 stays Q4.
func (c *Clock) NextQuarter() {
	c.update(func() {
		c.running = false
		c.stopLocked()
		c.remaining = QuarterDuration
		c.phase = nextPhase[c.phase]
	})
}

// ToggleHalftime moves Q2 into Halftime and Halftime into Q3; other phases
// are left alone.
func (c *Clock) ToggleHalftime() {
	c.update(func() {
		switch c.phase {
		case Q2:
			c.phase = Halftime
		case Halftime:
			c.phase = Q3
		default:
			return
		}
		c.running = false
		c.stopLocked()
		c.remaining = QuarterDuration
	})
}

func (c *Clock) armLocked() {
	c.ticks++
	gen := c.ticks
	c.tick.Arm(time.Second, func() { c.onTick(gen) })
}

func (c *Clock) stopLocked() {
	c.ticks++
	c.tick.Cancel()
}

func (c *Clock) onTick(gen uint64) {
	c.update(func() {
		if gen != c.ticks || !c.running || c.phase == Halftime {
			return
		}
		if c.remaining <= time.Second {
			c.remaining = 0
			c.running = false
			return
		}
		c.remaining -= time.Second
		c.armLocked()
	})
}

func (c *Clock) update(fn func()) {
	c.mu.Lock()
	fn()
	snap := c.snapshotLocked()
	cb := c.onChange
	c.mu.Unlock()
	if cb != nil {
		cb(snap)
	}
}

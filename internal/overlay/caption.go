package overlay

import (
	"strings"
	"sync"

	"github.com/gridiron-live/broadcast/internal/models"
)

// CaptionState is what the caption strip shows.
type CaptionState struct {
	Text        string
	Unavailable bool
}

// CaptionOverlay renders the most recently polled caption. There is no timer
// and no dedup: an empty or missing caption blanks the strip.
type CaptionOverlay struct {
	mu       sync.Mutex
	state    CaptionState
	onChange func(CaptionState)
}

// NewCaptionOverlay creates a blank overlay.
func NewCaptionOverlay() *CaptionOverlay {
	return &CaptionOverlay{}
}

func (o *CaptionOverlay) OnChange(fn func(CaptionState)) {
	o.mu.Lock()
	o.onChange = fn
	o.mu.Unlock()
}

// Set shows c, or blanks the strip when c is nil or empty.
func (o *CaptionOverlay) Set(c *models.Caption) {
	text := ""
	if c != nil {
		text = strings.TrimSpace(c.Text)
	}
	o.update(func(s *CaptionState) { s.Text = text })
}

// SetUnavailable marks speech-to-text as unsupported by the broadcaster.
func (o *CaptionOverlay) SetUnavailable(v bool) {
	o.update(func(s *CaptionState) {
		s.Unavailable = v
		if v {
			s.Text = ""
		}
	})
}

func (o *CaptionOverlay) State() CaptionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *CaptionOverlay) update(fn func(*CaptionState)) {
	o.mu.Lock()
	prev := o.state
	fn(&o.state)
	next := o.state
	cb := o.onChange
	o.mu.Unlock()
	if cb != nil && next != prev {
		cb(next)
	}
}

package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrUnsupported is returned by Start when the runtime has no device API.
var ErrUnsupported = errors.New("media capture not supported")

// Support is the tri-state result of probing a device.
type Support int

const (
	SupportUnknown Support = iota
	SupportYes
	SupportNo
)

// Device acquires tracks from hardware or any other source. The core
// treats it as opaque: it either returns tracks or fails with a
// DeviceError.
type Device interface {
	Supported(ctx context.Context) bool
	Acquire(ctx context.Context) ([]Track, error)
}

// CaptureState is a point-in-time view of a Capture.
type CaptureState struct {
	Support Support
	Active  bool
	Loading bool
	Err     *CaptureError
}

// Capture owns one device (camera or microphone) and its tracks.
type Capture struct {
	kind   Kind
	dev    Device
	logger *zap.Logger

	mu       sync.Mutex
	state    CaptureState
	tracks   []Track
	onChange func(CaptureState)
}

// NewCapture creates a capture for kind. Support is unknown until Probe.
func NewCapture(kind Kind, dev Device, logger *zap.Logger) *Capture {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capture{kind: kind, dev: dev, logger: logger}
}

func (c *Capture) OnChange(fn func(CaptureState)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Capture) State() CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Tracks returns the active tracks of the capture's kind.
func (c *Capture) Tracks() []Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Track(nil), c.tracks...)
}

// Track returns the first active track, or nil.
func (c *Capture) Track() Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tracks) == 0 {
		return nil
	}
	return c.tracks[0]
}

// Probe resolves support detection.
func (c *Capture) Probe(ctx context.Context) Support {
	s := SupportNo
	if c.dev != nil && c.dev.Supported(ctx) {
		s = SupportYes
	}
	c.update(func(st *CaptureState) { st.Support = s })
	return s
}

// Start releases any previous tracks and acquires new ones.
func (c *Capture) Start(ctx context.Context) error {
	if c.State().Support == SupportUnknown {
		c.Probe(ctx)
	}
	if c.State().Support == SupportNo {
		return ErrUnsupported
	}
	c.Stop()
	c.update(func(st *CaptureState) {
		st.Loading = true
		st.Err = nil
	})

	tracks, err := c.dev.Acquire(ctx)
	if err == nil {
		tracks = c.filter(tracks)
		if len(tracks) == 0 {
			err = fmt.Errorf("no %s track in stream", c.kind)
		}
	}
	if err != nil {
		ce := Classify(c.kind, err)
		c.logger.Warn("capture failed", zap.String("kind", string(c.kind)), zap.String("error_kind", string(ce.Kind)), zap.Error(err))
		c.update(func(st *CaptureState) {
			st.Loading, st.Active, st.Err = false, false, ce
		})
		return ce
	}

	c.mu.Lock()
	c.tracks = tracks
	c.mu.Unlock()
	c.update(func(st *CaptureState) { st.Loading, st.Active = false, true })
	return nil
}

// Stop releases every track. It is a no-op when nothing is active.
func (c *Capture) Stop() {
	c.mu.Lock()
	tracks := c.tracks
	c.tracks = nil
	c.mu.Unlock()
	for _, t := range tracks {
		t.Stop()
	}
	c.update(func(st *CaptureState) {
		st.Active = false
		st.Err = nil
	})
}

// Retry clears the last error and starts again.
func (c *Capture) Retry(ctx context.Context) error {
	c.update(func(st *CaptureState) { st.Err = nil })
	return c.Start(ctx)
}

func (c *Capture) filter(tracks []Track) []Track {
	var out []Track
	for _, t := range tracks {
		if t.Kind() == c.kind {
			out = append(out, t)
		} else {
			t.Stop()
		}
	}
	return out
}

func (c *Capture) update(fn func(*CaptureState)) {
	c.mu.Lock()
	fn(&c.state)
	st := c.state
	cb := c.onChange
	c.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}

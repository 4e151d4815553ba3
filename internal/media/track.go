// Package media assembles camera and microphone capture into the single
// outbound broadcast stream.
package media

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v3"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
)

// Kind is the media type of a track.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Track is one captured media track. Disabling a track keeps the device
// open but stops samples from going out; Stop releases it for good.
type Track interface {
	ID() string
	Kind() Kind
	Enabled() bool
	SetEnabled(bool)
	Stop()
	Stopped() bool
}

// LocalTrack is a Track that can be attached to a peer connection.
type LocalTrack interface {
	Track
	Local() webrtc.TrackLocal
}

var ErrTrackStopped = errors.New("track stopped")

// SampleTrack feeds encoded samples into a pion TrackLocalStaticSample.
type SampleTrack struct {
	kind  Kind
	local *webrtc.TrackLocalStaticSample

	mu      sync.RWMutex
	enabled bool
	stopped bool
	onStop  func()
}

// NewSampleTrack creates an enabled track for codec.
func NewSampleTrack(kind Kind, id, streamID string, codec webrtc.RTPCodecCapability) (*SampleTrack, error) {
	local, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, err
	}
	return &SampleTrack{kind: kind, local: local, enabled: true}, nil
}

func (t *SampleTrack) ID() string               { return t.local.ID() }
func (t *SampleTrack) Kind() Kind               { return t.kind }
func (t *SampleTrack) Local() webrtc.TrackLocal { return t.local }

func (t *SampleTrack) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func (t *SampleTrack) SetEnabled(v bool) {
	t.mu.Lock()
	t.enabled = v
	t.mu.Unlock()
}

func (t *SampleTrack) Stopped() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stopped
}

// Stop marks the track stopped and runs the release hook once.
func (t *SampleTrack) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	fn := t.onStop
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// OnStop sets the hook that releases the underlying device.
func (t *SampleTrack) OnStop(fn func()) {
	t.mu.Lock()
	t.onStop = fn
	t.mu.Unlock()
}

// WriteSample forwards s unless the track is disabled. A stopped track
// returns ErrTrackStopped so the producer can exit.
func (t *SampleTrack) WriteSample(s pionmedia.Sample) error {
	t.mu.RLock()
	enabled, stopped := t.enabled, t.stopped
	t.mu.RUnlock()
	if stopped {
		return ErrTrackStopped
	}
	if !enabled {
		return nil
	}
	return t.local.WriteSample(s)
}

package media

import "sync"

// Stream is the composed outbound stream: every video track plus at most
// one audio track.
type Stream struct {
	tracks []Track
}

// Tracks returns all tracks, video first.
func (s *Stream) Tracks() []Track { return append([]Track(nil), s.tracks...) }

func (s *Stream) VideoTracks() []Track { return s.byKind(KindVideo) }

func (s *Stream) AudioTracks() []Track { return s.byKind(KindAudio) }

func (s *Stream) byKind(k Kind) []Track {
	var out []Track
	for _, t := range s.tracks {
		if t.Kind() == k {
			out = append(out, t)
		}
	}
	return out
}

// Composer merges the camera's video tracks and the microphone's audio
// track. Turning the mic off removes audio from the stream and disables the
// track without stopping capture; all mutation happens under one lock.
type Composer struct {
	mu         sync.Mutex
	video      []Track
	audio      Track
	micEnabled bool
	stream     *Stream
	onChange   func(*Stream)
}

// NewComposer creates an empty composer.
func NewComposer() *Composer { return &Composer{} }

// OnChange is called with the recomposed stream, or nil when there is no video.
func (c *Composer) OnChange(fn func(*Stream)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Update replaces all inputs. video may be empty (camera off) and audio nil.
// A new audio track replaces the old one instead of being added next to it.
func (c *Composer) Update(video []Track, audio Track, micEnabled bool) *Stream {
	return c.mutate(func() {
		c.video = append([]Track(nil), video...)
		c.audio = audio
		c.micEnabled = micEnabled
	})
}

// SetMicEnabled toggles audio without touching the video tracks.
func (c *Composer) SetMicEnabled(enabled bool) *Stream {
	return c.mutate(func() { c.micEnabled = enabled })
}

// SetAudio swaps the audio track, e.g. after a microphone retry.
func (c *Composer) SetAudio(audio Track) *Stream {
	return c.mutate(func() { c.audio = audio })
}

// Stream returns the current composed stream, or nil without video.
func (c *Composer) Stream() *Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

// MicEnabled reports the current toggle.
func (c *Composer) MicEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.micEnabled
}

func (c *Composer) mutate(fn func()) *Stream {
	c.mu.Lock()
	fn()
	c.stream = c.composeLocked()
	s, cb := c.stream, c.onChange
	c.mu.Unlock()
	if cb != nil {
		cb(s)
	}
	return s
}

func (c *Composer) composeLocked() *Stream {
	if c.audio != nil {
		c.audio.SetEnabled(c.micEnabled)
	}
	var videos []Track
	for _, t := range c.video {
		if t.Kind() == KindVideo && !t.Stopped() {
			videos = append(videos, t)
		}
	}
	if len(videos) == 0 {
		return nil
	}
	s := &Stream{tracks: videos}
	if c.micEnabled && c.audio != nil && !c.audio.Stopped() {
		s.tracks = append(s.tracks, c.audio)
	}
	return s
}

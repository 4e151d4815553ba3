// Package recording captures the broadcast to a local file in fixed time
// slices and assembles the slices into one download on stop.
package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gridiron-live/broadcast/internal/schedule"
)

const (
	// SliceInterval is how often the encoder hands over a chunk.
	SliceInterval = time.Second
	// VideoBitrate is the requested video bitrate in bits per second.
	VideoBitrate = 2_500_000
)

// MimeTypes is the probe order, most portable first.
var MimeTypes = []string{
	"video/mp4;codecs=h264,aac",
	"video/mp4;codecs=avc1,mp4a",
	"video/mp4",
	"video/webm;codecs=h264",
	"video/webm;codecs=vp9,opus",
	"video/webm;codecs=vp8,opus",
	"video/webm",
}

var ErrNoSupportedFormat = errors.New("no supported recording format")

// Backend encodes the broadcast stream.
type Backend interface {
	Supported(mimeType string) bool
	Start(ctx context.Context, opts EncodeOptions, onChunk func([]byte)) (Encoding, error)
}

// EncodeOptions configures one encoding run.
type EncodeOptions struct {
	MimeType     string
	VideoBitrate int
	Slice        time.Duration
}

// Encoding is a running encoder. Stop flushes the final chunk before it
// returns.
type Encoding interface {
	Stop() error
}

// Output is a finished recording.
type Output struct {
	FileName string
	MimeType string
	Data     []byte
	Duration time.Duration
}

// Sink receives finished recordings and returns where they went.
type Sink interface {
	Save(ctx context.Context, out *Output) (string, error)
}

// SelectMimeType returns the first entry of MimeTypes the backend supports.
func SelectMimeType(b Backend) (string, error) {
	for _, m := range MimeTypes {
		if b.Supported(m) {
			return m, nil
		}
	}
	return "", ErrNoSupportedFormat
}

// Extension returns the file extension for mimeType.
func Extension(mimeType string) string {
	if strings.HasPrefix(mimeType, "video/mp4") {
		return "mp4"
	}
	return "webm"
}

// FileName builds <prefix>-<YYYY-MM-DDTHH-MM-SS>.<ext> in UTC.
func FileName(prefix string, at time.Time, mimeType string) string {
	return fmt.Sprintf("%s-%s.%s", prefix, at.UTC().Format("2006-01-02T15-04-05"), Extension(mimeType))
}

// Recorder runs one recording at a time. Start while recording and Stop
// while idle are no-ops.
type Recorder struct {
	backend Backend
	sink    Sink
	clock   schedule.Clock
	prefix  string
	logger  *zap.Logger

	mu         sync.Mutex
	recording  bool
	starting   bool
	enc        Encoding
	chunks     [][]byte
	mimeType   string
	started    time.Time
	elapsed    time.Duration
	ticker     *schedule.Task
	onDuration func(time.Duration)
	lastErr    error
}

// NewRecorder creates an idle recorder.
func NewRecorder(backend Backend, sink Sink, clock schedule.Clock, prefix string, logger *zap.Logger) *Recorder {
	if clock == nil {
		clock = schedule.RealClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "gridiron"
	}
	return &Recorder{backend: backend, sink: sink, clock: clock, prefix: prefix, logger: logger}
}

// OnDuration is called every second with the elapsed whole seconds.
func (r *Recorder) OnDuration(fn func(time.Duration)) {
	r.mu.Lock()
	r.onDuration = fn
	r.mu.Unlock()
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Duration is the elapsed time as last sampled by the one second ticker.
func (r *Recorder) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// Err returns the last start or encoder error.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Start picks a format and begins encoding.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.recording || r.starting {
		r.mu.Unlock()
		return nil
	}
	r.starting = true
	r.chunks = nil
	r.mu.Unlock()

	enc, mime, err := r.begin(ctx)

	r.mu.Lock()
	r.starting = false
	if err != nil {
		r.lastErr = err
		r.mu.Unlock()
		return err
	}
	r.enc, r.mimeType, r.recording, r.lastErr = enc, mime, true, nil
	r.started, r.elapsed = r.clock.Now(), 0
	r.mu.Unlock()

	ticker := schedule.Every(context.Background(), r.clock, "recording-duration", time.Second, r.tick, r.logger)
	r.mu.Lock()
	if r.enc == enc {
		r.ticker = ticker
	} else {
		ticker.Cancel()
	}
	r.mu.Unlock()
	r.logger.Info("recording started", zap.String("mime_type", mime))
	return nil
}

func (r *Recorder) begin(ctx context.Context) (Encoding, string, error) {
	mime, err := SelectMimeType(r.backend)
	if err != nil {
		return nil, "", err
	}
	enc, err := r.backend.Start(ctx, EncodeOptions{MimeType: mime, VideoBitrate: VideoBitrate, Slice: SliceInterval}, r.addChunk)
	if err != nil {
		return nil, "", fmt.Errorf("start encoder: %w", err)
	}
	return enc, mime, nil
}

// Stop finishes the recording and hands the assembled file to the sink.
// It returns nil, nil when nothing was recording.
func (r *Recorder) Stop(ctx context.Context) (*Output, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil, nil
	}
	enc, ticker := r.enc, r.ticker
	r.recording, r.enc, r.ticker = false, nil, nil
	r.mu.Unlock()

	if ticker != nil {
		ticker.Cancel()
	}
	stopErr := enc.Stop()

	r.mu.Lock()
	now := r.clock.Now()
	out := &Output{
		FileName: FileName(r.prefix, now, r.mimeType),
		MimeType: r.mimeType,
		Data:     bytes.Join(r.chunks, nil),
		Duration: now.Sub(r.started).Truncate(time.Second),
	}
	r.chunks, r.elapsed = nil, 0
	cb := r.onDuration
	r.mu.Unlock()
	if cb != nil {
		cb(0)
	}

	if stopErr != nil {
		r.logger.Warn("encoder stop failed", zap.Error(stopErr))
	}
	if r.sink == nil {
		return out, stopErr
	}
	where, err := r.sink.Save(ctx, out)
	if err != nil {
		return out, fmt.Errorf("save recording: %w", err)
	}
	r.logger.Info("recording saved", zap.String("file", out.FileName), zap.String("location", where), zap.Int("bytes", len(out.Data)))
	return out, stopErr
}

func (r *Recorder) addChunk(b []byte) {
	if len(b) == 0 {
		return
	}
	c := append([]byte(nil), b...)
	r.mu.Lock()
	r.chunks = append(r.chunks, c)
	r.mu.Unlock()
}

func (r *Recorder) tick(context.Context) error {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil
	}
	r.elapsed = r.clock.Now().Sub(r.started).Truncate(time.Second)
	d, cb := r.elapsed, r.onDuration
	r.mu.Unlock()
	if cb != nil {
		cb(d)
	}
	return nil
}

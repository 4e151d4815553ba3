package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
	"go.uber.org/zap"
)

// StreamID groups the broadcaster's tracks.
const StreamID = "gridiron"

// FileDevice plays an IVF (VP8/VP9) or Ogg/Opus file as a camera or
// microphone. Only one acquisition can hold the device at a time.
type FileDevice struct {
	kind   Kind
	path   string
	loop   bool
	logger *zap.Logger

	mu   sync.Mutex
	busy bool
}

// NewFileDevice creates a device that reads path. With loop set the file
// restarts at EOF.
func NewFileDevice(kind Kind, path string, loop bool, logger *zap.Logger) *FileDevice {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileDevice{kind: kind, path: path, loop: loop, logger: logger}
}

// Supported reports whether a source file is configured.
func (d *FileDevice) Supported(context.Context) bool { return d.path != "" }

func (d *FileDevice) Acquire(ctx context.Context) ([]Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, &DeviceError{Name: "AbortError", Message: err.Error()}
	}
	d.mu.Lock()
	if d.busy {
		d.mu.Unlock()
		return nil, &DeviceError{Name: "NotReadableError", Message: d.path + " is in use"}
	}
	d.busy = true
	d.mu.Unlock()

	track, err := d.open()
	if err != nil {
		d.release()
		return nil, err
	}
	return []Track{track}, nil
}

func (d *FileDevice) release() {
	d.mu.Lock()
	d.busy = false
	d.mu.Unlock()
}

func (d *FileDevice) open() (*SampleTrack, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, deviceError(err)
	}
	var (
		codec webrtc.RTPCodecCapability
		next  func() (pionmedia.Sample, error)
	)
	switch d.kind {
	case KindVideo:
		codec, next, err = ivfSamples(f)
	case KindAudio:
		codec, next, err = oggSamples(f)
	default:
		err = &DeviceError{Name: "TypeError", Message: "unknown kind " + string(d.kind)}
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	track, err := NewSampleTrack(d.kind, StreamID+"-"+string(d.kind), StreamID, codec)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	stop := make(chan struct{})
	track.OnStop(func() { close(stop) })
	go d.pump(f, track, next, stop)
	return track, nil
}

func (d *FileDevice) pump(f *os.File, track *SampleTrack, next func() (pionmedia.Sample, error), stop <-chan struct{}) {
	defer d.release()
	defer func() { _ = f.Close() }()
	for {
		s, err := next()
		if errors.Is(err, io.EOF) && d.loop {
			_ = f.Close()
			if f, err = os.Open(d.path); err != nil {
				d.logger.Warn("reopen media file failed", zap.String("path", d.path), zap.Error(err))
				<-stop
				return
			}
			if d.kind == KindVideo {
				_, next, err = ivfSamples(f)
			} else {
				_, next, err = oggSamples(f)
			}
			if err == nil {
				continue
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				d.logger.Warn("read media file failed", zap.String("path", d.path), zap.Error(err))
			}
			<-stop
			return
		}
		select {
		case <-stop:
			return
		case <-time.After(s.Duration):
		}
		if err := track.WriteSample(s); errors.Is(err, ErrTrackStopped) {
			return
		}
	}
}

func ivfSamples(r io.Reader) (webrtc.RTPCodecCapability, func() (pionmedia.Sample, error), error) {
	reader, header, err := ivfreader.NewWith(r)
	if err != nil {
		return webrtc.RTPCodecCapability{}, nil, &DeviceError{Name: "NotReadableError", Message: err.Error()}
	}
	var codec webrtc.RTPCodecCapability
	switch header.FourCC {
	case "VP80":
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	case "VP90":
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9, ClockRate: 90000}
	default:
		return codec, nil, &DeviceError{Name: "OverconstrainedError", Message: "unsupported codec " + header.FourCC}
	}
	frame := time.Second / 30
	if header.TimebaseDenominator > 0 {
		frame = time.Duration(float64(time.Second) * float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
	}
	return codec, func() (pionmedia.Sample, error) {
		data, _, err := reader.ParseNextFrame()
		if err != nil {
			return pionmedia.Sample{}, err
		}
		return pionmedia.Sample{Data: data, Duration: frame}, nil
	}, nil
}

func oggSamples(r io.Reader) (webrtc.RTPCodecCapability, func() (pionmedia.Sample, error), error) {
	reader, header, err := oggreader.NewWith(r)
	if err != nil {
		return webrtc.RTPCodecCapability{}, nil, &DeviceError{Name: "NotReadableError", Message: err.Error()}
	}
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: uint16(header.Channels)}
	var lastGranule uint64
	return codec, func() (pionmedia.Sample, error) {
		page, ph, err := reader.ParseNextPage()
		if err != nil {
			return pionmedia.Sample{}, err
		}
		count := ph.GranulePosition - lastGranule
		lastGranule = ph.GranulePosition
		return pionmedia.Sample{Data: page, Duration: time.Duration(float64(count)/48000*1000) * time.Millisecond}, nil
	}, nil
}

func deviceError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &DeviceError{Name: "NotFoundError", Message: err.Error()}
	case errors.Is(err, fs.ErrPermission):
		return &DeviceError{Name: "NotAllowedError", Message: err.Error()}
	}
	return fmt.Errorf("open media file: %w", err)
}

package recording

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type format struct {
	muxer string
	video string
	audio string
	extra []string
}

// formatFor maps a MIME type from MimeTypes to ffmpeg muxer and encoders.
// ffmpeg's webm muxer only takes VP8/VP9/AV1, so webm with h264 is
// reported unsupported.
func formatFor(mimeType string) (format, bool) {
	base, codecs, _ := strings.Cut(mimeType, ";codecs=")
	codecs = strings.ToLower(codecs)
	switch base {
	case "video/mp4":
		switch codecs {
		case "", "h264,aac", "avc1,mp4a":
			return format{muxer: "mp4", video: "libx264", audio: "aac",
				extra: []string{"-movflags", "frag_keyframe+empty_moov+default_base_moof"}}, true
		}
	case "video/webm":
		switch codecs {
		case "vp9,opus":
			return format{muxer: "webm", video: "libvpx-vp9", audio: "libopus"}, true
		case "", "vp8,opus":
			return format{muxer: "webm", video: "libvpx", audio: "libopus"}, true
		}
	}
	return format{}, false
}

// FFmpegBackend encodes with a local ffmpeg binary reading the configured
// input (the same source the capture devices play).
type FFmpegBackend struct {
	bin    string
	input  []string
	logger *zap.Logger

	once     sync.Once
	encoders map[string]bool
}

// NewFFmpegBackend creates a backend. input holds ffmpeg input arguments,
// e.g. ["-re", "-i", "camera.ivf", "-i", "mic.ogg"].
func NewFFmpegBackend(bin string, input []string, logger *zap.Logger) *FFmpegBackend {
	if bin == "" {
		bin = "ffmpeg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFmpegBackend{bin: bin, input: input, logger: logger}
}

// Supported reports whether ffmpeg has the encoders for mimeType.
func (b *FFmpegBackend) Supported(mimeType string) bool {
	f, ok := formatFor(mimeType)
	if !ok || len(b.input) == 0 {
		return false
	}
	b.once.Do(func() {
		out, err := exec.Command(b.bin, "-hide_banner", "-encoders").Output()
		if err != nil {
			b.logger.Warn("ffmpeg encoder probe failed", zap.Error(err))
		}
		b.encoders = parseEncoders(string(out))
	})
	return b.encoders[f.video] && b.encoders[f.audio]
}

// parseEncoders reads `ffmpeg -encoders` output: a flags column followed by
// the encoder name, after a "------" separator.
func parseEncoders(out string) map[string]bool {
	encs := make(map[string]bool)
	started := false
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !started {
			started = strings.HasPrefix(line, "---")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			encs[fields[1]] = true
		}
	}
	return encs
}

func (b *FFmpegBackend) args(opts EncodeOptions, f format) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, b.input...)
	args = append(args,
		"-c:v", f.video, "-b:v", fmt.Sprintf("%d", opts.VideoBitrate),
		"-c:a", f.audio,
	)
	args = append(args, f.extra...)
	return append(args, "-f", f.muxer, "pipe:1")
}

// Start launches ffmpeg and delivers its output every opts.Slice.
func (b *FFmpegBackend) Start(_ context.Context, opts EncodeOptions, onChunk func([]byte)) (Encoding, error) {
	f, ok := formatFor(opts.MimeType)
	if !ok {
		return nil, fmt.Errorf("unsupported mime type %q", opts.MimeType)
	}
	// Not bound to the caller's context; Stop ends it explicitly.
	cmd := exec.Command(b.bin, b.args(opts, f)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	e := &ffmpegEncoding{cmd: cmd, stderr: &stderr, done: make(chan struct{}), logger: b.logger}
	go e.read(stdout, opts.Slice, onChunk)
	return e, nil
}

type ffmpegEncoding struct {
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	done   chan struct{}
	logger *zap.Logger
	once   sync.Once
}

// read copies stdout into a buffer and flushes it once per slice.
func (e *ffmpegEncoding) read(r io.Reader, slice time.Duration, onChunk func([]byte)) {
	defer close(e.done)
	if slice <= 0 {
		slice = SliceInterval
	}
	var (
		mu  sync.Mutex
		buf bytes.Buffer
	)
	flush := func() {
		mu.Lock()
		b := append([]byte(nil), buf.Bytes()...)
		buf.Reset()
		mu.Unlock()
		onChunk(b)
	}
	ticker := time.NewTicker(slice)
	defer ticker.Stop()
	eof := make(chan struct{})
	go func() {
		defer close(eof)
		p := make([]byte, 32*1024)
		for {
			n, err := r.Read(p)
			if n > 0 {
				mu.Lock()
				buf.Write(p[:n])
				mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	for {
		select {
		case <-ticker.C:
			flush()
		case <-eof:
			flush()
			return
		}
	}
}

func (e *ffmpegEncoding) Stop() error {
	e.once.Do(func() {
		if e.cmd.Process != nil {
			_ = e.cmd.Process.Signal(os.Interrupt)
		}
		select {
		case <-e.done:
		case <-time.After(10 * time.Second):
			_ = e.cmd.Process.Kill()
			<-e.done
		}
		if err := e.cmd.Wait(); err != nil {
			// interrupted ffmpeg exits non-zero after writing the trailer
			e.logger.Debug("ffmpeg exited", zap.Error(err), zap.String("stderr", e.stderr.String()))
		}
	})
	return nil
}

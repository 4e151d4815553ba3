package recording

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gridiron-live/broadcast/internal/schedule"
)

type fakeBackend struct {
	supported map[string]bool
	mu        sync.Mutex
	starts    int
	onChunk   func([]byte)
	opts      EncodeOptions
}

func (b *fakeBackend) Supported(m string) bool { return b.supported[m] }

func (b *fakeBackend) Start(_ context.Context, opts EncodeOptions, onChunk func([]byte)) (Encoding, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.starts++
	b.onChunk, b.opts = onChunk, opts
	return fakeEncoding{onChunk: onChunk}, nil
}

type fakeEncoding struct{ onChunk func([]byte) }

func (e fakeEncoding) Stop() error {
	e.onChunk([]byte("tail"))
	return nil
}

type memSink struct{ saved []*Output }

func (s *memSink) Save(_ context.Context, out *Output) (string, error) {
	s.saved = append(s.saved, out)
	return "memory", nil
}

func TestSelectMimeTypeOrder(t *testing.T) {
	b := &fakeBackend{supported: map[string]bool{
		"video/webm;codecs=vp8,opus": true,
		"video/webm;codecs=vp9,opus": true,
	}}
	got, err := SelectMimeType(b)
	if err != nil || got != "video/webm;codecs=vp9,opus" {
		t.Fatalf("SelectMimeType = %q, %v", got, err)
	}
	b.supported["video/mp4"] = true
	if got, _ := SelectMimeType(b); got != "video/mp4" {
		t.Fatalf("mp4 should win, got %q", got)
	}
	if _, err := SelectMimeType(&fakeBackend{}); !errors.Is(err, ErrNoSupportedFormat) {
		t.Fatalf("err = %v", err)
	}
}

func TestFileName(t *testing.T) {
	at := time.Date(2026, 10, 17, 14, 5, 9, 0, time.UTC)
	if got := FileName("gridiron", at, "video/mp4;codecs=h264,aac"); got != "gridiron-2026-10-17T14-05-09.mp4" {
		t.Fatalf("got %q", got)
	}
	if got := FileName("gridiron", at, "video/webm"); got != "gridiron-2026-10-17T14-05-09.webm" {
		t.Fatalf("got %q", got)
	}
}

func TestRecorderAssemblesChunks(t *testing.T) {
	clock := schedule.NewFakeClock(time.Date(2026, 10, 17, 14, 0, 0, 0, time.UTC))
	b := &fakeBackend{supported: map[string]bool{"video/mp4": true}}
	sink := &memSink{}
	r := NewRecorder(b, sink, clock, "gridiron", nil)

	var durations []time.Duration
	r.OnDuration(func(d time.Duration) { durations = append(durations, d) })

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil || b.starts != 1 {
		t.Fatalf("second start: err=%v starts=%d", err, b.starts)
	}
	if b.opts.Slice != time.Second || b.opts.VideoBitrate != 2_500_000 {
		t.Fatalf("opts = %+v", b.opts)
	}
	b.onChunk([]byte("a"))
	clock.Advance(time.Second)
	b.onChunk([]byte("b"))
	clock.Advance(1500 * time.Millisecond)
	if got := r.Duration(); got != 2*time.Second {
		t.Fatalf("duration = %v", got)
	}

	out, err := r.Stop(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(out.Data) != "abtail" {
		t.Fatalf("data = %q", out.Data)
	}
	if out.FileName != "gridiron-2026-10-17T14-00-02.mp4" || out.MimeType != "video/mp4" {
		t.Fatalf("out = %+v", out)
	}
	if len(sink.saved) != 1 {
		t.Fatalf("saved %d", len(sink.saved))
	}
	if r.Recording() || r.Duration() != 0 {
		t.Fatal("recorder not reset")
	}
	if out, err := r.Stop(context.Background()); out != nil || err != nil {
		t.Fatalf("stop while idle = %v, %v", out, err)
	}
	if durations[len(durations)-1] != 0 {
		t.Fatalf("durations = %v", durations)
	}
	clock.Advance(5 * time.Second)
	if clock.Pending() != 0 {
		t.Fatal("duration ticker still armed")
	}
}

func TestRecorderNoFormat(t *testing.T) {
	r := NewRecorder(&fakeBackend{}, nil, schedule.NewFakeClock(time.Unix(0, 0)), "", nil)
	if err := r.Start(context.Background()); !errors.Is(err, ErrNoSupportedFormat) {
		t.Fatalf("err = %v", err)
	}
	if r.Recording() || r.Err() == nil {
		t.Fatal("failed start must leave the recorder idle with an error")
	}
}

func TestFormatFor(t *testing.T) {
	for _, m := range MimeTypes {
		_, ok := formatFor(m)
		if want := m != "video/webm;codecs=h264"; ok != want {
			t.Errorf("formatFor(%q) ok = %v, want %v", m, ok, want)
		}
	}
}

func TestParseEncoders(t *testing.T) {
	out := `Encoders:
 V..... = Video
 ------
 V....D libx264              libx264 H.264 / AVC
 A....D aac                  AAC (Advanced Audio Coding)
`
	encs := parseEncoders(out)
	if !encs["libx264"] || !encs["aac"] || encs["Video"] {
		t.Fatalf("encoders = %v", encs)
	}
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	path, err := FileSink{Dir: dir}.Save(context.Background(), &Output{FileName: "x.mp4", Data: []byte("data")})
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "x.mp4") {
		t.Fatalf("path = %q", path)
	}
	if b, _ := os.ReadFile(path); string(b) != "data" {
		t.Fatalf("contents = %q", b)
	}
}

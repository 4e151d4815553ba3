package recorder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/gridiron-live/broadcast/internal/realtime"
)

const (
	// Payload types in the SDP handed to ffmpeg; WriteRTP rewrites packets to match.
	payloadTypeVideo = 96
	payloadTypeAudio = 97

	defaultMaxDurationSec = 7200
)

var (
	ErrNoTracks        = errors.New("no publisher tracks: start recording after the broadcast is live")
	ErrAlreadyActive   = errors.New("recording already active for session")
	ErrNoActiveSession = errors.New("no active recording for session")
)

// TrackTap is the part of the SFU the recorder needs.
type TrackTap interface {
	GetTrackInfo(code string) []realtime.TrackInfo
	RegisterRecordingSink(code string, sink realtime.RecordingSink)
	UnregisterRecordingSink(code string)
}

// Result describes a finished recording file.
type Result struct {
	RecordingID uuid.UUID
	Path        string
	MimeType    string
	Duration    time.Duration
}

// Session is an active ffmpeg recording for one broadcast.
type Session struct {
	sessionCode string
	recordingID uuid.UUID
	outputPath  string
	mimeType    string
	sdpPath     string
	startedAt   time.Time
	cmd         *exec.Cmd
	videoConn   *net.UDPConn
	audioConn   *net.UDPConn
	mu          sync.Mutex
}

// Sink implements realtime.RecordingSink by forwarding RTP to ffmpeg's UDP ports.
type Sink struct {
	session *Session
}

// WriteRTP sends a copy of the packet to ffmpeg with the payload type rewritten.
func (s *Sink) WriteRTP(kind webrtc.RTPCodecType, packet []byte) {
	if len(packet) < 2 {
		return
	}
	pt := byte(payloadTypeVideo)
	if kind == webrtc.RTPCodecTypeAudio {
		pt = payloadTypeAudio
	}
	packet[1] = (packet[1] & 0x80) | pt

	s.session.mu.Lock()
	conn := s.session.videoConn
	if kind == webrtc.RTPCodecTypeAudio {
		conn = s.session.audioConn
	}
	s.session.mu.Unlock()
	if conn != nil {
		_, _ = conn.Write(packet)
	}
}

// Service taps the SFU publisher and muxes its tracks with ffmpeg.
type Service struct {
	sfu       TrackTap
	outputDir string
	maxDurSec int
	ffmpeg    string
	log       *zap.Logger
	mu        sync.Mutex
	sessions  map[string]*Session
}

// NewService creates a recording service.
func NewService(sfu TrackTap, outputDir string, log *zap.Logger) *Service {
	if outputDir == "" {
		outputDir = os.TempDir()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		sfu:       sfu,
		outputDir: outputDir,
		maxDurSec: defaultMaxDurationSec,
		ffmpeg:    "ffmpeg",
		log:       log,
		sessions:  make(map[string]*Session),
	}
}

// SetMaxDuration sets the ffmpeg -t limit in seconds.
func (svc *Service) SetMaxDuration(sec int) {
	if sec > 0 {
		svc.maxDurSec = sec
	}
}

type sdpCodec struct {
	name  string
	clock string
}

func codecFor(t realtime.TrackInfo) sdpCodec {
	switch strings.ToLower(t.MimeType) {
	case "video/vp9":
		return sdpCodec{"VP9", "90000"}
	case "video/h264":
		return sdpCodec{"H264", "90000"}
	case "audio/pcmu":
		return sdpCodec{"PCMU", "8000"}
	case "audio/opus":
		return sdpCodec{"opus", "48000/2"}
	}
	if t.Kind == webrtc.RTPCodecTypeAudio {
		return sdpCodec{"opus", "48000/2"}
	}
	return sdpCodec{"VP8", "90000"}
}

// buildSDP describes the loopback RTP streams for ffmpeg.
func buildSDP(tracks []realtime.TrackInfo, videoPort, audioPort int) string {
	var b strings.Builder
	b.WriteString("v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nc=IN IP4 127.0.0.1\r\nt=0 0\r\n")
	for _, t := range tracks {
		media, port, pt := "video", videoPort, payloadTypeVideo
		if t.Kind == webrtc.RTPCodecTypeAudio {
			media, port, pt = "audio", audioPort, payloadTypeAudio
		}
		c := codecFor(t)
		fmt.Fprintf(&b, "m=%s %d RTP/AVP %d\r\na=rtpmap:%d %s/%s\r\n", media, port, pt, pt, c.name, c.clock)
	}
	return b.String()
}

// containerFor picks a container that can hold the tracks without re-encoding:
// H264 goes to mp4, VP8/VP9 with opus to webm.
func containerFor(tracks []realtime.TrackInfo) (ext, mime string) {
	for _, t := range tracks {
		if t.Kind == webrtc.RTPCodecTypeVideo && strings.EqualFold(t.MimeType, "video/h264") {
			return ".mp4", "video/mp4"
		}
	}
	return ".webm", "video/webm"
}

func freeUDPPort() (int, error) {
	l, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.LocalAddr().(*net.UDPAddr).Port, nil
}

// StartRecording begins recording the live broadcast for code.
func (svc *Service) StartRecording(_ context.Context, code string, recordingID uuid.UUID) (*Result, error) {
	svc.mu.Lock()
	if _, ok := svc.sessions[code]; ok {
		svc.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	svc.mu.Unlock()

	tracks := svc.sfu.GetTrackInfo(code)
	if len(tracks) == 0 {
		return nil, ErrNoTracks
	}

	videoPort, err := freeUDPPort()
	if err != nil {
		return nil, fmt.Errorf("allocate video port: %w", err)
	}
	audioPort, err := freeUDPPort()
	if err != nil {
		return nil, fmt.Errorf("allocate audio port: %w", err)
	}

	dir := filepath.Join(svc.outputDir, "recordings")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	ext, mime := containerFor(tracks)
	outputPath := filepath.Join(dir, recordingID.String()+ext)
	sdpPath := filepath.Join(dir, recordingID.String()+".sdp")
	if err := os.WriteFile(sdpPath, []byte(buildSDP(tracks, videoPort, audioPort)), 0o600); err != nil {
		return nil, fmt.Errorf("write sdp: %w", err)
	}

	// Not bound to the request context; StopRecording ends it explicitly.
	cmd := exec.Command(svc.ffmpeg,
		"-protocol_whitelist", "file,udp,rtp",
		"-f", "sdp", "-i", sdpPath,
		"-c", "copy",
		"-t", fmt.Sprintf("%d", svc.maxDurSec),
		"-y",
		outputPath,
	)
	if err := cmd.Start(); err != nil {
		_ = os.Remove(sdpPath)
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	videoConn, err1 := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: videoPort})
	audioConn, err2 := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: audioPort})
	if err := errors.Join(err1, err2); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		if videoConn != nil {
			_ = videoConn.Close()
		}
		if audioConn != nil {
			_ = audioConn.Close()
		}
		_ = os.Remove(sdpPath)
		return nil, fmt.Errorf("udp dial: %w", err)
	}

	session := &Session{
		sessionCode: code,
		recordingID: recordingID,
		outputPath:  outputPath,
		mimeType:    mime,
		sdpPath:     sdpPath,
		startedAt:   time.Now(),
		cmd:         cmd,
		videoConn:   videoConn,
		audioConn:   audioConn,
	}
	svc.mu.Lock()
	svc.sessions[code] = session
	svc.mu.Unlock()
	svc.sfu.RegisterRecordingSink(code, &Sink{session: session})

	svc.log.Info("recording started", zap.String("session_code", code), zap.String("recording_id", recordingID.String()), zap.String("output", outputPath))
	return &Result{RecordingID: recordingID, Path: outputPath, MimeType: mime}, nil
}

// StopRecording stops the active recording for code and returns the finished file.
func (svc *Service) StopRecording(code string) (*Result, error) {
	svc.mu.Lock()
	session, ok := svc.sessions[code]
	if !ok {
		svc.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	delete(svc.sessions, code)
	svc.mu.Unlock()

	svc.sfu.UnregisterRecordingSink(code)

	session.mu.Lock()
	cmd := session.cmd
	videoConn, audioConn := session.videoConn, session.audioConn
	session.videoConn, session.audioConn, session.cmd = nil, nil, nil
	session.mu.Unlock()

	if videoConn != nil {
		_ = videoConn.Close()
	}
	if audioConn != nil {
		_ = audioConn.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			_ = cmd.Process.Kill()
		}
	}

	_ = os.Remove(session.sdpPath)
	dur := time.Since(session.startedAt)
	svc.log.Info("recording stopped", zap.String("session_code", code), zap.String("output", session.outputPath), zap.Duration("duration", dur))
	return &Result{RecordingID: session.recordingID, Path: session.outputPath, MimeType: session.mimeType, Duration: dur}, nil
}

// HasActiveRecording reports whether code is being recorded.
func (svc *Service) HasActiveRecording(code string) bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	_, ok := svc.sessions[code]
	return ok
}

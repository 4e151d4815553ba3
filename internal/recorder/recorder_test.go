package recorder

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/gridiron-live/broadcast/internal/realtime"
)

type stubTap struct{ tracks []realtime.TrackInfo }

func (s stubTap) GetTrackInfo(string) []realtime.TrackInfo           { return s.tracks }
func (stubTap) RegisterRecordingSink(string, realtime.RecordingSink) {}
func (stubTap) UnregisterRecordingSink(string)                       {}

func TestBuildSDP(t *testing.T) {
	tracks := []realtime.TrackInfo{
		{Kind: webrtc.RTPCodecTypeVideo, MimeType: "video/H264"},
		{Kind: webrtc.RTPCodecTypeAudio, MimeType: "audio/opus"},
	}
	sdp := buildSDP(tracks, 5000, 5002)
	for _, want := range []string{"m=video 5000 RTP/AVP 96", "a=rtpmap:96 H264/90000", "m=audio 5002 RTP/AVP 97", "a=rtpmap:97 opus/48000/2"} {
		if !strings.Contains(sdp, want) {
			t.Fatalf("sdp missing %q:\n%s", want, sdp)
		}
	}
}

func TestContainerFor(t *testing.T) {
	if ext, mime := containerFor([]realtime.TrackInfo{{Kind: webrtc.RTPCodecTypeVideo, MimeType: "video/H264"}}); ext != ".mp4" || mime != "video/mp4" {
		t.Fatalf("h264: %s %s", ext, mime)
	}
	if ext, _ := containerFor([]realtime.TrackInfo{{Kind: webrtc.RTPCodecTypeVideo, MimeType: "video/VP8"}}); ext != ".webm" {
		t.Fatalf("vp8 should use webm, got %s", ext)
	}
}

func TestStartWithoutTracks(t *testing.T) {
	svc := NewService(stubTap{}, t.TempDir(), nil)
	if _, err := svc.StartRecording(context.Background(), "ABC234", uuid.New()); !errors.Is(err, ErrNoTracks) {
		t.Fatalf("expected ErrNoTracks, got %v", err)
	}
	if _, err := svc.StopRecording("ABC234"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestSinkRewritesPayloadType(t *testing.T) {
	s := &Sink{session: &Session{}}
	pkt := []byte{0x80, 0xE0 | 111, 0, 1}
	s.WriteRTP(webrtc.RTPCodecTypeAudio, pkt)
	if pkt[1] != 0x80|payloadTypeAudio {
		t.Fatalf("unexpected second byte %x", pkt[1])
	}
}

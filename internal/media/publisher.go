package media

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Signaler carries signaling messages to the session's realtime socket.
type Signaler interface {
	Send(event string, payload interface{}) error
}

type sdpMessage struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type iceMessage struct {
	Target    string                   `json:"target"`
	Candidate *webrtc.ICECandidateInit `json:"candidate"`
}

// Publisher sends the composed stream to the session's SFU. One video and
// one audio transceiver are negotiated up front; later stream changes swap
// tracks on the existing senders so toggling audio never renegotiates video.
type Publisher struct {
	pc     *webrtc.PeerConnection
	sig    Signaler
	video  *webrtc.RTPSender
	audio  *webrtc.RTPSender
	logger *zap.Logger

	mu       sync.Mutex
	curVideo webrtc.TrackLocal
	curAudio webrtc.TrackLocal
}

// NewPublisher creates a send-only peer connection.
func NewPublisher(cfg webrtc.Configuration, sig Signaler, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	sendonly := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendonly}
	vt, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, sendonly)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("add video transceiver: %w", err)
	}
	at, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, sendonly)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("add audio transceiver: %w", err)
	}
	p := &Publisher{pc: pc, sig: sig, video: vt.Sender(), audio: at.Sender(), logger: logger}
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		if err := sig.Send("webrtc_ice", iceMessage{Target: "publisher", Candidate: &init}); err != nil {
			logger.Warn("send ice candidate failed", zap.Error(err))
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		logger.Info("publisher connection state", zap.String("state", s.String()))
	})
	return p, nil
}

// Offer starts negotiation with the SFU.
func (p *Publisher) Offer(ctx context.Context) error {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.sig.Send("webrtc_publisher_offer", sdpMessage{Type: "offer", SDP: offer.SDP})
}

// HandleSignal applies an SFU answer or ICE candidate. Other events are ignored.
func (p *Publisher) HandleSignal(event string, data json.RawMessage) error {
	switch event {
	case "webrtc_publisher_answer":
		var m sdpMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("decode answer: %w", err)
		}
		return p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: m.SDP})
	case "webrtc_ice":
		var m iceMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("decode ice: %w", err)
		}
		if m.Target != "publisher" || m.Candidate == nil {
			return nil
		}
		return p.pc.AddICECandidate(*m.Candidate)
	}
	return nil
}

// Publish points the senders at s. A nil stream detaches both.
func (p *Publisher) Publish(s *Stream) error {
	var video, audio webrtc.TrackLocal
	if s != nil {
		video = firstLocal(s.VideoTracks())
		audio = firstLocal(s.AudioTracks())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if video != p.curVideo {
		if err := p.video.ReplaceTrack(video); err != nil {
			return fmt.Errorf("replace video: %w", err)
		}
		p.curVideo = video
	}
	if audio != p.curAudio {
		if err := p.audio.ReplaceTrack(audio); err != nil {
			return fmt.Errorf("replace audio: %w", err)
		}
		p.curAudio = audio
	}
	return nil
}

func (p *Publisher) Close() error { return p.pc.Close() }

func firstLocal(tracks []Track) webrtc.TrackLocal {
	for _, t := range tracks {
		if lt, ok := t.(LocalTrack); ok {
			return lt.Local()
		}
	}
	return nil
}

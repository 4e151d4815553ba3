package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// ErrNotBroadcaster is returned when a viewer connection tries to publish.
var ErrNotBroadcaster = errors.New("only the broadcaster may publish")

const rtpBufferSize = 1500

// RecordingSink receives a copy of every relayed RTP packet. WriteRTP runs on
// the relay goroutine and must not block.
type RecordingSink interface {
	WriteRTP(kind webrtc.RTPCodecType, packet []byte)
}

// TrackInfo describes a published track.
type TrackInfo struct {
	Kind      webrtc.RTPCodecType
	MimeType  string
	ClockRate uint32
}

type signalFunc func(event string, payload interface{})

// SFU relays the broadcaster's tracks to every viewer of a session.
type SFU struct {
	cfg webrtc.Configuration
	log *zap.Logger

	mu         sync.RWMutex
	broadcasts map[string]*broadcast
}

// broadcast is one session's publisher, its relayed tracks and the viewers
// watching them.
type broadcast struct {
	code string
	log  *zap.Logger

	mu          sync.RWMutex
	publisher   *webrtc.PeerConnection
	publisherID string
	relays      []*relay
	viewers     map[string]*webrtc.PeerConnection
	sink        RecordingSink
}

// relay copies one published track to a local track per viewer.
type relay struct {
	remote *webrtc.TrackRemote

	mu   sync.Mutex
	outs map[string]*webrtc.TrackLocalStaticRTP
}

// NewSFU creates an SFU with the given STUN/TURN URLs.
func NewSFU(log *zap.Logger, iceURLs []string) *SFU {
	if log == nil {
		log = zap.NewNop()
	}
	return &SFU{
		cfg:        webrtc.Configuration{ICEServers: parseICEServers(iceURLs)},
		log:        log,
		broadcasts: make(map[string]*broadcast),
	}
}

func (s *SFU) broadcast(code string, create bool) *broadcast {
	if !create {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.broadcasts[code]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.broadcasts[code]
	if !ok {
		b = &broadcast{
			code:    code,
			log:     s.log.With(zap.String("session_code", code)),
			viewers: make(map[string]*webrtc.PeerConnection),
		}
		s.broadcasts[code] = b
	}
	return b
}

// newPeer builds a peer connection whose ICE candidates are signalled with
// target so the client can route them.
func (s *SFU) newPeer(target string, signal signalFunc) (*webrtc.PeerConnection, error) {
	engine := &webrtc.MediaEngine{}
	if err := engine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	pc, err := webrtc.NewAPI(webrtc.WithMediaEngine(engine)).NewPeerConnection(s.cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		b, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		signal("webrtc_ice", map[string]interface{}{"target": target, "candidate": json.RawMessage(b)})
	})
	return pc, nil
}

// HandlePublisherOffer answers the broadcaster's SDP offer. A new offer
// replaces any previous publisher, which is how a reloaded broadcaster resumes.
func (s *SFU) HandlePublisherOffer(code, clientID, role string, offer webrtc.SessionDescription, signal func(event string, payload interface{})) error {
	if role != RoleBroadcaster {
		return ErrNotBroadcaster
	}
	b := s.broadcast(code, true)
	pc, err := s.newPeer("publisher", signal)
	if err != nil {
		return err
	}
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		b.addRelay(pc, track)
	})

	b.mu.Lock()
	prev, prevRelays := b.publisher, b.relays
	b.publisher, b.publisherID, b.relays = pc, clientID, nil
	b.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
		detachAll(prevRelays)
	}

	answer, err := answerOffer(pc, offer)
	if err != nil {
		b.release(func(_ string, cur *webrtc.PeerConnection) bool { return cur == pc })
		return err
	}
	b.log.Info("publisher connected", zap.String("client_id", clientID))
	signal("webrtc_publisher_answer", sdpMessage(answer))
	return nil
}

func answerOffer(pc *webrtc.PeerConnection, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return answer, nil
}

func sdpMessage(d webrtc.SessionDescription) map[string]interface{} {
	return map[string]interface{}{"type": d.Type.String(), "sdp": d.SDP}
}

func noStream(signal signalFunc) {
	signal("webrtc_error", map[string]string{"message": "no_stream"})
}

// addRelay starts forwarding a track from pc if pc is still the publisher.
func (b *broadcast) addRelay(pc *webrtc.PeerConnection, track *webrtc.TrackRemote) {
	r := &relay{remote: track, outs: make(map[string]*webrtc.TrackLocalStaticRTP)}
	b.mu.Lock()
	if b.publisher != pc {
		b.mu.Unlock()
		return
	}
	b.relays = append(b.relays, r)
	for id, viewer := range b.viewers {
		if err := r.attach(id, viewer); err != nil {
			b.log.Warn("attach track to viewer failed", zap.String("client_id", id), zap.Error(err))
		}
	}
	b.mu.Unlock()
	b.log.Info("track published", zap.String("kind", track.Kind().String()), zap.String("codec", track.Codec().MimeType))
	go b.forward(r)
}

func (b *broadcast) forward(r *relay) {
	buf := make([]byte, rtpBufferSize)
	kind := r.remote.Kind()
	for {
		n, _, err := r.remote.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				b.log.Debug("relay stopped", zap.String("track", r.remote.ID()), zap.Error(err))
			}
			return
		}
		for _, out := range r.targets() {
			_, _ = out.Write(buf[:n])
		}
		b.mu.RLock()
		sink := b.sink
		b.mu.RUnlock()
		if sink != nil {
			sink.WriteRTP(kind, append([]byte(nil), buf[:n]...))
		}
	}
}

func (r *relay) attach(viewerID string, pc *webrtc.PeerConnection) error {
	local, err := webrtc.NewTrackLocalStaticRTP(r.remote.Codec().RTPCodecCapability, r.remote.ID(), r.remote.StreamID())
	if err != nil {
		return err
	}
	if _, err := pc.AddTrack(local); err != nil {
		return err
	}
	r.mu.Lock()
	r.outs[viewerID] = local
	r.mu.Unlock()
	return nil
}

func (r *relay) detach(viewerID string) {
	r.mu.Lock()
	delete(r.outs, viewerID)
	r.mu.Unlock()
}

func (r *relay) targets() []*webrtc.TrackLocalStaticRTP {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*webrtc.TrackLocalStaticRTP, 0, len(r.outs))
	for _, t := range r.outs {
		out = append(out, t)
	}
	return out
}

func detachAll(relays []*relay) {
	for _, r := range relays {
		r.mu.Lock()
		r.outs = make(map[string]*webrtc.TrackLocalStaticRTP)
		r.mu.Unlock()
	}
}

// release closes the publisher when match accepts it.
func (b *broadcast) release(match func(id string, pc *webrtc.PeerConnection) bool) bool {
	b.mu.Lock()
	if b.publisher == nil || !match(b.publisherID, b.publisher) {
		b.mu.Unlock()
		return false
	}
	pc, relays := b.publisher, b.relays
	b.publisher, b.publisherID, b.relays = nil, "", nil
	b.mu.Unlock()
	_ = pc.Close()
	detachAll(relays)
	return true
}

func (b *broadcast) removeViewer(id string) {
	b.mu.Lock()
	pc, ok := b.viewers[id]
	delete(b.viewers, id)
	for _, r := range b.relays {
		r.detach(id)
	}
	b.mu.Unlock()
	if ok {
		_ = pc.Close()
	}
}

func (b *broadcast) viewer(id string) *webrtc.PeerConnection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.viewers[id]
}

// HandlePublisherICE adds a candidate to the publisher owned by clientID.
func (s *SFU) HandlePublisherICE(code, clientID string, candidate webrtc.ICECandidateInit) error {
	b := s.broadcast(code, false)
	if b == nil {
		return nil
	}
	b.mu.RLock()
	pc := b.publisher
	owner := b.publisherID == clientID
	b.mu.RUnlock()
	if pc == nil || !owner {
		return nil
	}
	return pc.AddICECandidate(candidate)
}

// HandleSubscribe sends clientID an offer carrying every published track, or
// a no_stream error when nothing is being broadcast. Subscribing again
// replaces the previous viewer connection.
func (s *SFU) HandleSubscribe(code, clientID string, signal func(event string, payload interface{})) error {
	b := s.broadcast(code, false)
	if b == nil || !s.HasPublisher(code) {
		noStream(signal)
		return nil
	}
	b.removeViewer(clientID)

	pc, err := s.newPeer("subscriber", signal)
	if err != nil {
		return err
	}
	b.mu.Lock()
	if b.publisher == nil || len(b.relays) == 0 {
		b.mu.Unlock()
		_ = pc.Close()
		noStream(signal)
		return nil
	}
	for _, r := range b.relays {
		if err := r.attach(clientID, pc); err != nil {
			b.log.Warn("attach track to viewer failed", zap.String("client_id", clientID), zap.Error(err))
		}
	}
	b.viewers[clientID] = pc
	b.mu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err == nil {
		err = pc.SetLocalDescription(offer)
	}
	if err != nil {
		b.removeViewer(clientID)
		return fmt.Errorf("offer viewer: %w", err)
	}
	signal("webrtc_subscriber_offer", sdpMessage(offer))
	return nil
}

// HandleSubscriberAnswer completes a viewer's negotiation.
func (s *SFU) HandleSubscriberAnswer(code, clientID string, answer webrtc.SessionDescription) error {
	b := s.broadcast(code, false)
	if b == nil {
		return nil
	}
	if pc := b.viewer(clientID); pc != nil {
		return pc.SetRemoteDescription(answer)
	}
	return nil
}

// HandleSubscriberICE adds a candidate to a viewer's connection.
func (s *SFU) HandleSubscriberICE(code, clientID string, candidate webrtc.ICECandidateInit) error {
	b := s.broadcast(code, false)
	if b == nil {
		return nil
	}
	if pc := b.viewer(clientID); pc != nil {
		return pc.AddICECandidate(candidate)
	}
	return nil
}

// UnregisterClient drops a departed viewer and its relayed tracks.
func (s *SFU) UnregisterClient(code, clientID string) {
	if b := s.broadcast(code, false); b != nil {
		b.removeViewer(clientID)
	}
}

// ClosePublisher tears down the session's publisher and every viewer once
// the session ends.
func (s *SFU) ClosePublisher(code string) {
	s.mu.Lock()
	b := s.broadcasts[code]
	delete(s.broadcasts, code)
	s.mu.Unlock()
	if b == nil {
		return
	}
	b.release(func(string, *webrtc.PeerConnection) bool { return true })
	b.mu.Lock()
	viewers := b.viewers
	b.viewers = make(map[string]*webrtc.PeerConnection)
	b.sink = nil
	b.mu.Unlock()
	for _, pc := range viewers {
		_ = pc.Close()
	}
	b.log.Info("broadcast closed", zap.Int("viewers", len(viewers)))
}

// ClosePublisherIfOwner closes the publisher only if clientID still owns it,
// so a stale connection closing cannot kill a resumed broadcast.
func (s *SFU) ClosePublisherIfOwner(code, clientID string) {
	b := s.broadcast(code, false)
	if b == nil {
		return
	}
	if b.release(func(id string, _ *webrtc.PeerConnection) bool { return id == clientID }) {
		b.log.Info("publisher left", zap.String("client_id", clientID))
	}
}

// HasPublisher reports whether the session currently has live tracks.
func (s *SFU) HasPublisher(code string) bool {
	b := s.broadcast(code, false)
	if b == nil {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.publisher != nil && len(b.relays) > 0
}

// GetTrackInfo lists the published tracks, for building the recording SDP.
func (s *SFU) GetTrackInfo(code string) []TrackInfo {
	b := s.broadcast(code, false)
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]TrackInfo, 0, len(b.relays))
	for _, r := range b.relays {
		c := r.remote.Codec()
		out = append(out, TrackInfo{Kind: r.remote.Kind(), MimeType: c.MimeType, ClockRate: c.ClockRate})
	}
	return out
}

// RegisterRecordingSink sets the session's single recording sink.
func (s *SFU) RegisterRecordingSink(code string, sink RecordingSink) {
	if b := s.broadcast(code, false); b != nil {
		b.mu.Lock()
		b.sink = sink
		b.mu.Unlock()
	}
}

// UnregisterRecordingSink stops copying packets to the recording sink.
func (s *SFU) UnregisterRecordingSink(code string) {
	s.RegisterRecordingSink(code, nil)
}

var defaultICE = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

func parseICEServers(urls []string) []webrtc.ICEServer {
	var out []webrtc.ICEServer
	for _, u := range urls {
		if u != "" {
			out = append(out, webrtc.ICEServer{URLs: []string{u}})
		}
	}
	if len(out) == 0 {
		return defaultICE
	}
	return out
}

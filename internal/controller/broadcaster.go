package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gridiron-live/broadcast/internal/gameclock"
	"github.com/gridiron-live/broadcast/internal/lifecycle"
	"github.com/gridiron-live/broadcast/internal/media"
	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/internal/overlay"
	"github.com/gridiron-live/broadcast/internal/recording"
	"github.com/gridiron-live/broadcast/internal/schedule"
	"github.com/gridiron-live/broadcast/internal/scoring"
)

// ErrNotLive is returned by game operations before Start or after End.
var ErrNotLive = errors.New("broadcast is not live")

// BroadcasterAPI is the write side of the session service.
type BroadcasterAPI interface {
	lifecycle.SessionAPI
	scoring.Submitter
	GetScoreboard(ctx context.Context, code string) (*models.Scoreboard, error)
	SetTeamIcons(ctx context.Context, code string, team1, team2 models.TeamIcon) error
	AddEvent(ctx context.Context, code, description string, eventType models.EventType) (*models.Event, error)
	AddFlagEvent(ctx context.Context, code, team, reason string) (*models.Event, error)
	AddCaption(ctx context.Context, code, text string) error
}

// BroadcasterConfig wires the optional pieces. Nil devices leave that
// capture unsupported; a nil recording backend disables recording.
type BroadcasterConfig struct {
	Store        lifecycle.CodeStore
	Clock        schedule.Clock
	SyncInterval time.Duration

	Camera     media.Device
	Microphone media.Device

	RecordingBackend recording.Backend
	RecordingSink    recording.Sink
	RecordingPrefix  string

	Logger *zap.Logger
}

// Broadcaster runs one broadcast: session lifecycle, scoreboard, media and
// recording.
type Broadcaster struct {
	api    BroadcasterAPI
	cfg    BroadcasterConfig
	logger *zap.Logger

	session     *lifecycle.Broadcaster
	game        *gameclock.Clock
	celebration *overlay.Celebration
	composer    *media.Composer
	camera      *media.Capture
	mic         *media.Capture
	recorder    *recording.Recorder

	mu        sync.Mutex
	board     *scoring.Board
	syncTask  *schedule.Task
	publisher *media.Publisher
}

func NewBroadcaster(api BroadcasterAPI, cfg BroadcasterConfig) *Broadcaster {
	if cfg.Clock == nil {
		cfg.Clock = schedule.RealClock
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	b := &Broadcaster{
		api:         api,
		cfg:         cfg,
		logger:      cfg.Logger,
		session:     lifecycle.NewBroadcaster(api, cfg.Store, cfg.Logger),
		game:        gameclock.New(cfg.Clock),
		celebration: overlay.NewCelebration(cfg.Clock),
		composer:    media.NewComposer(),
		camera:      media.NewCapture(media.KindVideo, cfg.Camera, cfg.Logger),
		mic:         media.NewCapture(media.KindAudio, cfg.Microphone, cfg.Logger),
	}
	if cfg.RecordingBackend != nil {
		prefix := cfg.RecordingPrefix
		if prefix == "" {
			prefix = "gridiron"
		}
		b.recorder = recording.NewRecorder(cfg.RecordingBackend, cfg.RecordingSink, cfg.Clock, prefix, cfg.Logger)
	}
	b.composer.SetMicEnabled(true)
	return b
}

func (b *Broadcaster) Session() *lifecycle.Broadcaster   { return b.session }
func (b *Broadcaster) GameClock() *gameclock.Clock       { return b.game }
func (b *Broadcaster) Celebration() *overlay.Celebration { return b.celebration }
func (b *Broadcaster) Composer() *media.Composer         { return b.composer }
func (b *Broadcaster) Camera() *media.Capture            { return b.camera }
func (b *Broadcaster) Microphone() *media.Capture        { return b.mic }

// Recorder is nil when recording is not configured.
func (b *Broadcaster) Recorder() *recording.Recorder { return b.recorder }

// Start creates the session and seeds the local scoreboard.
func (b *Broadcaster) Start(ctx context.Context, p lifecycle.StartParams) (string, error) {
	code, err := b.session.Start(ctx, p)
	if err != nil {
		return "", err
	}
	b.attachBoard(ctx, code, models.DefaultScoreboard(p.Team1Icon, p.Team2Icon))
	return code, nil
}

// Resume reattaches to the stored session and pulls its scoreboard.
func (b *Broadcaster) Resume(ctx context.Context) (string, error) {
	code, err := b.session.Resume(ctx)
	if err != nil {
		return "", err
	}
	row, err := b.api.GetScoreboard(ctx, code)
	if err != nil {
		return "", fmt.Errorf("load scoreboard: %w", err)
	}
	b.attachBoard(ctx, code, *row)
	return code, nil
}

func (b *Broadcaster) attachBoard(ctx context.Context, code string, initial models.Scoreboard) {
	board := scoring.NewBoard(code, initial, b.api, b.logger)
	board.OnCelebrate(b.celebration.Trigger)

	b.mu.Lock()
	b.board = board
	b.mu.Unlock()

	task := schedule.Every(ctx, b.cfg.Clock, "scoreboard-sync", b.cfg.SyncInterval, func(ctx context.Context) error {
		row, err := b.api.GetScoreboard(ctx, code)
		if err != nil {
			return err
		}
		board.Reconcile(*row)
		return nil
	}, b.logger)

	b.mu.Lock()
	b.syncTask = task
	b.mu.Unlock()
}

// Board returns the live scoreboard, or nil before Start.
func (b *Broadcaster) Board() *scoring.Board {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.board
}

func (b *Broadcaster) liveBoard() (*scoring.Board, error) {
	board := b.Board()
	if board == nil || b.session.Status() != lifecycle.StatusLive {
		return nil, ErrNotLive
	}
	return board, nil
}

// Score adds delta points to team; a negative delta subtracts, clamped at 0.
func (b *Broadcaster) Score(ctx context.Context, team scoring.Team, delta int) error {
	board, err := b.liveBoard()
	if err != nil {
		return err
	}
	if delta < 0 {
		return board.Decrement(ctx, team, uint(-delta))
	}
	return board.Increment(ctx, team, uint(delta))
}

func (b *Broadcaster) AssignOffense(ctx context.Context, team scoring.Team) error {
	board, err := b.liveBoard()
	if err != nil {
		return err
	}
	return board.AssignOffense(ctx, team)
}

func (b *Broadcaster) ClearRoles(ctx context.Context) error {
	board, err := b.liveBoard()
	if err != nil {
		return err
	}
	return board.ClearRoles(ctx)
}

// SetTeamIcons changes both icons after creation.
func (b *Broadcaster) SetTeamIcons(ctx context.Context, team1, team2 models.TeamIcon) error {
	board, err := b.liveBoard()
	if err != nil {
		return err
	}
	if err := scoring.ValidateIcons(team1, team2); err != nil {
		return err
	}
	if err := b.api.SetTeamIcons(ctx, b.session.Code(), team1, team2); err != nil {
		return err
	}
	row := board.Snapshot()
	row.Team1Icon, row.Team2Icon = team1, team2
	board.Reconcile(row)
	return nil
}

// Flag reports a penalty. Validation happens before the network call.
func (b *Broadcaster) Flag(ctx context.Context, team, reason string) (*models.Event, error) {
	team, reason, err := scoring.ValidateFlag(team, reason)
	if err != nil {
		return nil, err
	}
	if _, err := b.liveBoard(); err != nil {
		return nil, err
	}
	return b.api.AddFlagEvent(ctx, b.session.Code(), team, reason)
}

// Play logs a point event to the feed.
func (b *Broadcaster) Play(ctx context.Context, description string) (*models.Event, error) {
	if _, err := b.liveBoard(); err != nil {
		return nil, err
	}
	return b.api.AddEvent(ctx, b.session.Code(), description, models.EventTypePoint)
}

// Caption publishes the latest caption text. Empty text clears the strip.
func (b *Broadcaster) Caption(ctx context.Context, text string) error {
	if _, err := b.liveBoard(); err != nil {
		return err
	}
	return b.api.AddCaption(ctx, b.session.Code(), text)
}

// AttachPublisher sends every recomposed stream to p.
func (b *Broadcaster) AttachPublisher(p *media.Publisher) error {
	b.mu.Lock()
	b.publisher = p
	b.mu.Unlock()
	b.composer.OnChange(func(s *media.Stream) {
		if err := p.Publish(s); err != nil {
			b.logger.Warn("publish stream failed", zap.Error(err))
		}
	})
	return p.Publish(b.composer.Stream())
}

// StartMedia acquires camera and microphone. A failed or unsupported
// microphone leaves video running.
func (b *Broadcaster) StartMedia(ctx context.Context) error {
	if err := b.camera.Start(ctx); err != nil {
		return err
	}
	if err := b.mic.Start(ctx); err != nil && !errors.Is(err, media.ErrUnsupported) {
		b.logger.Warn("microphone unavailable, continuing without audio", zap.Error(err))
	}
	b.recompose()
	return nil
}

// RetryMicrophone re-acquires the microphone and swaps the new track in.
func (b *Broadcaster) RetryMicrophone(ctx context.Context) error {
	err := b.mic.Retry(ctx)
	b.composer.SetAudio(b.mic.Track())
	return err
}

// SetMicEnabled mutes or unmutes without releasing the microphone.
func (b *Broadcaster) SetMicEnabled(enabled bool) {
	b.composer.SetMicEnabled(enabled)
}

func (b *Broadcaster) StopMedia() {
	b.camera.Stop()
	b.mic.Stop()
	b.recompose()
}

func (b *Broadcaster) recompose() {
	b.composer.Update(b.camera.Tracks(), b.mic.Track(), b.composer.MicEnabled())
}

func (b *Broadcaster) StartRecording(ctx context.Context) error {
	if b.recorder == nil {
		return recording.ErrNoSupportedFormat
	}
	return b.recorder.Start(ctx)
}

// StopRecording finishes the recording and hands it to the sink. It returns
// nil, nil when nothing was recording.
func (b *Broadcaster) StopRecording(ctx context.Context) (*recording.Output, error) {
	if b.recorder == nil {
		return nil, nil
	}
	return b.recorder.Stop(ctx)
}

// End stops recording and media and ends the session. On failure the
// broadcast stays live.
func (b *Broadcaster) End(ctx context.Context) error {
	if _, err := b.StopRecording(ctx); err != nil {
		b.logger.Error("save recording failed", zap.Error(err))
	}
	if err := b.session.End(ctx); err != nil {
		return err
	}
	b.Close()
	return nil
}

// Close stops background work and media without ending the session, so a
// later process can Resume it.
func (b *Broadcaster) Close() {
	b.game.Pause()
	b.celebration.Close()
	b.StopMedia()

	b.mu.Lock()
	task, pub := b.syncTask, b.publisher
	b.syncTask, b.publisher = nil, nil
	b.mu.Unlock()
	if task != nil {
		task.Cancel()
	}
	if pub != nil {
		_ = pub.Close()
	}
}

package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/internal/overlay"
	"github.com/gridiron-live/broadcast/internal/schedule"
)

// Poll cadences for a watching client.
const (
	DefaultPollInterval    = 2 * time.Second
	DefaultCaptionInterval = time.Second
)

// ViewerAPI is the read side of the session service.
type ViewerAPI interface {
	GetSessionMetadata(ctx context.Context, code string) (*models.SessionMetadata, error)
	GetScoreboard(ctx context.Context, code string) (*models.Scoreboard, error)
	GetEvents(ctx context.Context, code string) ([]models.Event, error)
	GetLatestCaption(ctx context.Context, code string) (*models.Caption, error)
}

// ViewerConfig configures a Viewer. Zero values pick the defaults.
type ViewerConfig struct {
	Code            string
	PollInterval    time.Duration
	CaptionInterval time.Duration
	// Captions false shows the caption strip as unavailable and skips its poll.
	Captions bool
	Clock    schedule.Clock
	Seen     overlay.SeenStore
	Side     overlay.SideFunc
	Logger   *zap.Logger
}

// ViewerSnapshot is the state plus what the overlays currently show.
type ViewerSnapshot struct {
	ViewerState
	Flag         *overlay.FlagOverlay `json:"flag,omitempty"`
	LatestEvent  *models.Event        `json:"latest_event,omitempty"`
	CaptionStrip overlay.CaptionState `json:"caption_strip"`
}

// Viewer follows one session. Polls run independently and feed inputs to a
// single loop that owns the state.
type Viewer struct {
	cfg    ViewerConfig
	api    ViewerAPI
	logger *zap.Logger

	flags   *overlay.FlagScheduler
	latest  *overlay.LatestEvent
	caption *overlay.CaptionOverlay

	inputs chan Input

	mu      sync.RWMutex
	state   ViewerState
	onState func(ViewerState, []Effect)
}

func NewViewer(api ViewerAPI, cfg ViewerConfig) *Viewer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.CaptionInterval <= 0 {
		cfg.CaptionInterval = DefaultCaptionInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = schedule.RealClock
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	logger := cfg.Logger.With(zap.String("session_code", cfg.Code))
	v := &Viewer{
		cfg:     cfg,
		api:     api,
		logger:  logger,
		flags:   overlay.NewFlagScheduler(cfg.Code, cfg.Seen, cfg.Clock, logger),
		latest:  overlay.NewLatestEvent(cfg.Clock),
		caption: overlay.NewCaptionOverlay(),
		inputs:  make(chan Input, 16),
		state:   NewViewerState(cfg.Code),
	}
	if cfg.Side != nil {
		v.flags.SetSide(cfg.Side)
	}
	v.caption.SetUnavailable(!cfg.Captions)
	return v
}

func (v *Viewer) Flags() *overlay.FlagScheduler     { return v.flags }
func (v *Viewer) LatestEvent() *overlay.LatestEvent { return v.latest }
func (v *Viewer) Captions() *overlay.CaptionOverlay { return v.caption }

// OnState is called on the loop goroutine after every applied input.
func (v *Viewer) OnState(fn func(ViewerState, []Effect)) {
	v.mu.Lock()
	v.onState = fn
	v.mu.Unlock()
}

// State returns a copy of the current state.
func (v *Viewer) State() ViewerState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

func (v *Viewer) Snapshot() ViewerSnapshot {
	snap := ViewerSnapshot{
		ViewerState:  v.State(),
		Flag:         v.flags.Current(),
		CaptionStrip: v.caption.State(),
	}
	if ev, ok := v.latest.Current(); ok {
		snap.LatestEvent = &ev
	}
	return snap
}

// Run polls until ctx is done. Inputs from any source go through Dispatch.
func (v *Viewer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer v.close()

	v.apply(MetadataLoading{})
	tasks := []*schedule.Task{
		schedule.Every(ctx, v.cfg.Clock, "metadata", v.cfg.PollInterval, v.feed(v.fetchMetadata), v.logger),
		schedule.Every(ctx, v.cfg.Clock, "scoreboard", v.cfg.PollInterval, v.feed(v.fetchScoreboard), v.logger),
		schedule.Every(ctx, v.cfg.Clock, "events", v.cfg.PollInterval, v.feed(v.fetchEvents), v.logger),
	}
	if v.cfg.Captions {
		tasks = append(tasks, schedule.Every(ctx, v.cfg.Clock, "captions", v.cfg.CaptionInterval, v.feed(v.fetchCaption), v.logger))
	}
	defer func() {
		for _, t := range tasks {
			t.Cancel()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case in := <-v.inputs:
			v.apply(in)
		}
	}
}

// Dispatch queues an input for the loop, e.g. from a push subscription.
func (v *Viewer) Dispatch(ctx context.Context, in Input) error {
	select {
	case v.inputs <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh fetches everything once and applies it on the calling goroutine.
// Like the polls, a failed fetch leaves that part stale; the errors are
// joined. It must not be used while Run is active.
func (v *Viewer) Refresh(ctx context.Context) error {
	fetchers := []func(context.Context) (Input, error){v.fetchMetadata, v.fetchScoreboard, v.fetchEvents}
	if v.cfg.Captions {
		fetchers = append(fetchers, v.fetchCaption)
	}
	var errs []error
	for _, fetch := range fetchers {
		in, err := fetch(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		v.apply(in)
	}
	return errors.Join(errs...)
}

func (v *Viewer) close() {
	v.flags.Close()
	v.latest.Close()
}

func (v *Viewer) feed(fetch func(context.Context) (Input, error)) schedule.Source {
	return func(ctx context.Context) error {
		in, err := fetch(ctx)
		if err != nil {
			return err
		}
		return v.Dispatch(ctx, in)
	}
}

func (v *Viewer) fetchMetadata(ctx context.Context) (Input, error) {
	meta, err := v.api.GetSessionMetadata(ctx, v.cfg.Code)
	if err != nil {
		return nil, err
	}
	return MetadataLoaded{Metadata: meta}, nil
}

func (v *Viewer) fetchScoreboard(ctx context.Context) (Input, error) {
	row, err := v.api.GetScoreboard(ctx, v.cfg.Code)
	if err != nil {
		return nil, err
	}
	return ScoreboardPolled{Row: *row}, nil
}

func (v *Viewer) fetchEvents(ctx context.Context) (Input, error) {
	events, err := v.api.GetEvents(ctx, v.cfg.Code)
	if err != nil {
		return nil, err
	}
	return EventsPolled{Events: events}, nil
}

func (v *Viewer) fetchCaption(ctx context.Context) (Input, error) {
	c, err := v.api.GetLatestCaption(ctx, v.cfg.Code)
	if err != nil {
		return nil, err
	}
	return CaptionPolled{Caption: c}, nil
}

func (v *Viewer) apply(in Input) {
	v.mu.Lock()
	next, effects := Reduce(v.state, in)
	v.state = next
	cb := v.onState
	v.mu.Unlock()

	for _, e := range effects {
		switch e := e.(type) {
		case ShowFlags:
			v.flags.Update(e.Flags)
		case ShowLatestEvent:
			v.latest.Update(e.Events)
		case ShowCaption:
			v.caption.Set(e.Caption)
		case LifecycleChanged:
			v.logger.Info("session lifecycle changed",
				zap.String("from", string(e.From)), zap.String("to", string(e.To)))
		}
	}
	if cb != nil {
		cb(next, effects)
	}
}

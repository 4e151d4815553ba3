// Package controller owns the per-session client state for viewers and
// broadcasters and drives the overlays from polled data.
package controller

import (
	"github.com/gridiron-live/broadcast/internal/lifecycle"
	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/internal/scoring"
)

// ViewerState is everything a viewer knows about one session. It is only
// changed through Reduce.
type ViewerState struct {
	Code       string                    `json:"code"`
	Loading    bool                      `json:"loading"`
	Metadata   *models.SessionMetadata   `json:"metadata,omitempty"`
	Lifecycle  lifecycle.ViewerLifecycle `json:"lifecycle"`
	Scoreboard *models.Scoreboard        `json:"scoreboard,omitempty"`
	Events     []models.Event            `json:"events"`
	Caption    *models.Caption           `json:"caption,omitempty"`
}

// NewViewerState is the state before the first poll.
func NewViewerState(code string) ViewerState {
	return ViewerState{Code: code, Loading: true, Lifecycle: lifecycle.ViewerUnknown}
}

// Input is a fact delivered to the reducer: a poll result or a load marker.
type Input interface{ input() }

type (
	MetadataLoading  struct{}
	MetadataLoaded   struct{ Metadata *models.SessionMetadata }
	ScoreboardPolled struct{ Row models.Scoreboard }
	EventsPolled     struct{ Events []models.Event }
	CaptionPolled    struct{ Caption *models.Caption }
)

func (MetadataLoading) input()  {}
func (MetadataLoaded) input()   {}
func (ScoreboardPolled) input() {}
func (EventsPolled) input()     {}
func (CaptionPolled) input()    {}

// Effect is work the controller performs after a state change.
type Effect interface{ effect() }

type (
	// ShowFlags hands the feed's flags to the flag scheduler, which dedups.
	ShowFlags struct{ Flags []models.FlagEvent }
	// ShowLatestEvent refreshes the latest-event banner.
	ShowLatestEvent struct{ Events []models.Event }
	ShowCaption     struct{ Caption *models.Caption }
	// LifecycleChanged reports a derived lifecycle transition.
	LifecycleChanged struct{ From, To lifecycle.ViewerLifecycle }
)

func (ShowFlags) effect()        {}
func (ShowLatestEvent) effect()  {}
func (ShowCaption) effect()      {}
func (LifecycleChanged) effect() {}

// Reduce folds one input into the state. It has no side effects; the caller
// applies the returned effects.
func Reduce(s ViewerState, in Input) (ViewerState, []Effect) {
	var effects []Effect
	switch in := in.(type) {
	case MetadataLoading:
		s.Loading = true
		effects = s.derive()
	case MetadataLoaded:
		s.Loading = false
		s.Metadata = in.Metadata
		effects = s.derive()
	case ScoreboardPolled:
		row := in.Row
		s.Scoreboard = &row
	case EventsPolled:
		if sameFeed(s.Events, in.Events) {
			break
		}
		s.Events = in.Events
		if flags := scoring.FlagEvents(in.Events); len(flags) > 0 {
			effects = append(effects, ShowFlags{Flags: flags})
		}
		effects = append(effects, ShowLatestEvent{Events: in.Events})
	case CaptionPolled:
		if sameCaption(s.Caption, in.Caption) {
			break
		}
		s.Caption = in.Caption
		effects = append(effects, ShowCaption{Caption: in.Caption})
	}
	return s, effects
}

func (s *ViewerState) derive() []Effect {
	next := lifecycle.DeriveViewerLifecycle(s.Metadata, s.Loading)
	if next == s.Lifecycle {
		return nil
	}
	prev := s.Lifecycle
	s.Lifecycle = next
	return []Effect{LifecycleChanged{From: prev, To: next}}
}

// The feed is append-only, so length and last timestamp identify it.
func sameFeed(a, b []models.Event) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return a[len(a)-1].Timestamp == b[len(b)-1].Timestamp
}

func sameCaption(a, b *models.Caption) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

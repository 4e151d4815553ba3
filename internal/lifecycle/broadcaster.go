// Package lifecycle drives the broadcaster's session state machine and
// derives what a viewer should render from polled session metadata.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/internal/scoring"
	"github.com/gridiron-live/broadcast/pkg/utils"
)

// Status is the broadcaster session state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusStarting Status = "starting"
	StatusLive     Status = "live"
	StatusEnding   Status = "ending"
	StatusEnded    Status = "ended"
)

var (
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrEmptyName         = errors.New("broadcaster name is required")
	ErrNoStoredSession   = errors.New("no stored session to resume")
)

// StartParams is what the broadcaster enters before going live.
type StartParams struct {
	Broadcaster string
	Team1Icon   models.TeamIcon
	Team2Icon   models.TeamIcon
}

// SessionAPI is the part of the remote session service the machine calls.
type SessionAPI interface {
	StartSession(ctx context.Context, name, code string, team1, team2 models.TeamIcon) (*models.SessionGrant, error)
	ResumeSession(ctx context.Context, code, resumeKey string) (*models.SessionGrant, error)
	EndSession(ctx context.Context, code string) error
}

// CodeStore persists the session code and resume key across reloads.
type CodeStore interface {
	SessionCode() (string, error)
	SaveSessionCode(code string) error
	ClearSessionCode() error
	ResumeKey(code string) (string, error)
	SaveResumeKey(code, key string) error
}

// Broadcaster is the idle → starting → live → ending → ended machine. A
// failed start returns to idle and a failed end returns to live with the
// code intact. Ended is terminal: a new broadcast needs a new Broadcaster.
type Broadcaster struct {
	api     SessionAPI
	store   CodeStore
	newCode func() (string, error)
	logger  *zap.Logger

	mu       sync.Mutex
	status   Status
	code     string
	lastErr  error
	onChange func(Status)
}

// NewBroadcaster creates an idle machine. store may be nil.
func NewBroadcaster(api SessionAPI, store CodeStore, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{api: api, store: store, newCode: utils.NewSessionCode, logger: logger, status: StatusIdle}
}

// OnChange registers a callback run after each transition.
func (b *Broadcaster) OnChange(fn func(Status)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

func (b *Broadcaster) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Code returns the live session code, or "" before the session starts.
func (b *Broadcaster) Code() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.code
}

// Err returns the error that caused the last revert.
func (b *Broadcaster) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Start validates p, generates a code and creates the remote session.
// Omitted icons default to dolphin and bullfrog before validation.
// Validation failures leave the machine idle without any network call.
func (b *Broadcaster) Start(ctx context.Context, p StartParams) (string, error) {
	name := strings.TrimSpace(p.Broadcaster)
	if name == "" {
		return "", ErrEmptyName
	}
	initial := models.DefaultScoreboard(p.Team1Icon, p.Team2Icon)
	if err := scoring.ValidateIcons(initial.Team1Icon, initial.Team2Icon); err != nil {
		return "", err
	}
	code, err := b.newCode()
	if err != nil {
		return "", err
	}
	if err := b.transition(StatusIdle, StatusStarting); err != nil {
		return "", err
	}

	grant, err := b.api.StartSession(ctx, name, code, initial.Team1Icon, initial.Team2Icon)
	if err != nil {
		b.revert(StatusIdle, err)
		return "", fmt.Errorf("start session: %w", err)
	}
	code = grant.SessionCode
	b.persist(code, grant.ResumeKey)

	b.mu.Lock()
	b.code = code
	b.mu.Unlock()
	b.set(StatusLive, nil)
	b.logger.Info("session live", zap.String("session_code", code), zap.String("broadcaster", name))
	return code, nil
}

// Resume restores a live session from the code store after a restart.
func (b *Broadcaster) Resume(ctx context.Context) (string, error) {
	if b.store == nil {
		return "", ErrNoStoredSession
	}
	code, err := b.store.SessionCode()
	if err != nil {
		return "", err
	}
	if code == "" {
		return "", ErrNoStoredSession
	}
	key, err := b.store.ResumeKey(code)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", ErrNoStoredSession
	}
	if err := b.transition(StatusIdle, StatusStarting); err != nil {
		return "", err
	}
	if _, err := b.api.ResumeSession(ctx, code, key); err != nil {
		b.revert(StatusIdle, err)
		return "", fmt.Errorf("resume session: %w", err)
	}
	b.mu.Lock()
	b.code = code
	b.mu.Unlock()
	b.set(StatusLive, nil)
	b.logger.Info("session resumed", zap.String("session_code", code))
	return code, nil
}

// End asks the service to close the session.
func (b *Broadcaster) End(ctx context.Context) error {
	if err := b.transition(StatusLive, StatusEnding); err != nil {
		return err
	}
	code := b.Code()
	if err := b.api.EndSession(ctx, code); err != nil {
		b.revert(StatusLive, err)
		return fmt.Errorf("end session: %w", err)
	}
	if b.store != nil {
		if err := b.store.ClearSessionCode(); err != nil {
			b.logger.Warn("clear stored session code failed", zap.Error(err))
		}
	}
	b.set(StatusEnded, nil)
	b.logger.Info("session ended", zap.String("session_code", code))
	return nil
}

func (b *Broadcaster) persist(code, resumeKey string) {
	if b.store == nil {
		return
	}
	if err := b.store.SaveSessionCode(code); err != nil {
		b.logger.Warn("persist session code failed", zap.Error(err), zap.String("session_code", code))
	}
	if resumeKey == "" {
		return
	}
	if err := b.store.SaveResumeKey(code, resumeKey); err != nil {
		b.logger.Warn("persist resume key failed", zap.Error(err), zap.String("session_code", code))
	}
}

func (b *Broadcaster) transition(from, to Status) error {
	b.mu.Lock()
	if b.status != from {
		cur := b.status
		b.mu.Unlock()
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, cur, to)
	}
	b.status = to
	b.lastErr = nil
	cb := b.onChange
	b.mu.Unlock()
	if cb != nil {
		cb(to)
	}
	return nil
}

func (b *Broadcaster) revert(to Status, cause error) {
	b.logger.Warn("session transition failed", zap.String("revert_to", string(to)), zap.Error(cause))
	b.set(to, cause)
}

func (b *Broadcaster) set(to Status, cause error) {
	b.mu.Lock()
	b.status = to
	b.lastErr = cause
	cb := b.onChange
	b.mu.Unlock()
	if cb != nil {
		cb(to)
	}
}

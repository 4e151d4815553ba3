package scoring

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/gridiron-live/broadcast/internal/models"
)

// Submitter replaces the remote scoreboard row.
type Submitter interface {
	UpdateScoreboard(ctx context.Context, code string, row models.Scoreboard) error
}

// Board applies broadcaster edits locally first and then submits the full
// row. The polled row is authoritative: a failed submit reverts to it and a
// newer poll overwrites local edits that have already been acknowledged.
type Board struct {
	code   string
	api    Submitter
	logger *zap.Logger

	mu          sync.Mutex
	remote      models.Scoreboard
	hasRemote   bool
	local       models.Scoreboard
	pending     int
	onCelebrate func(models.TeamIcon)
}

// NewBoard creates a board for code seeded with initial.
func NewBoard(code string, initial models.Scoreboard, api Submitter, logger *zap.Logger) *Board {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Board{code: code, api: api, logger: logger, local: initial, remote: initial}
}

// OnCelebrate is called with the scoring team's icon on every increment.
func (b *Board) OnCelebrate(fn func(models.TeamIcon)) {
	b.mu.Lock()
	b.onCelebrate = fn
	b.mu.Unlock()
}

// Snapshot returns the row as the broadcaster currently sees it.
func (b *Board) Snapshot() models.Scoreboard {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.local
}

// Reconcile adopts a polled row. While a submit is in flight the local edit
// stays visible; it is replaced by whatever the next poll returns.
func (b *Board) Reconcile(remote models.Scoreboard) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remote, b.hasRemote = remote, true
	if b.pending == 0 {
		b.local = remote
	}
}

// Increment adds points and triggers a celebration for the team.
func (b *Board) Increment(ctx context.Context, team Team, points uint) error {
	return b.apply(ctx, "increment", func(row models.Scoreboard) models.Scoreboard {
		return Increment(row, team, points)
	}, func(row models.Scoreboard) {
		b.mu.Lock()
		fn := b.onCelebrate
		b.mu.Unlock()
		if fn != nil {
			fn(team.Icon(row))
		}
	})
}

// Decrement subtracts points, never below zero.
func (b *Board) Decrement(ctx context.Context, team Team, points uint) error {
	return b.apply(ctx, "decrement", func(row models.Scoreboard) models.Scoreboard {
		return Decrement(row, team, points)
	}, nil)
}

// AssignOffense puts team on offense and the other on defense.
func (b *Board) AssignOffense(ctx context.Context, team Team) error {
	return b.apply(ctx, "assign offense", func(row models.Scoreboard) models.Scoreboard {
		return AssignOffense(row, team)
	}, nil)
}

// ClearRoles resets both roles.
func (b *Board) ClearRoles(ctx context.Context) error {
	return b.apply(ctx, "clear roles", ClearRoles, nil)
}

func (b *Board) apply(ctx context.Context, op string, edit func(models.Scoreboard) models.Scoreboard, after func(models.Scoreboard)) error {
	b.mu.Lock()
	prev := b.local
	next := edit(prev)
	if err := Validate(next); err != nil {
		b.mu.Unlock()
		return err
	}
	b.local = next
	b.pending++
	b.mu.Unlock()

	if after != nil {
		after(next)
	}

	err := b.api.UpdateScoreboard(ctx, b.code, next)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending--
	if err != nil {
		if b.hasRemote {
			b.local = b.remote
		} else {
			b.local = prev
		}
		b.logger.Warn("scoreboard update failed", zap.String("session_code", b.code), zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	b.remote, b.hasRemote = next, true
	return nil
}

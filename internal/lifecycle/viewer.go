package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/pkg/utils"
)

// ViewerLifecycle is what a viewer renders for a session.
type ViewerLifecycle string

const (
	ViewerUnknown ViewerLifecycle = "unknown"
	ViewerWaiting ViewerLifecycle = "waiting"
	ViewerLive    ViewerLifecycle = "live"
	ViewerEnded   ViewerLifecycle = "ended"
)

// DeriveViewerLifecycle maps polled metadata to a lifecycle. It has no state
// of its own and is re-evaluated on every poll.
func DeriveViewerLifecycle(meta *models.SessionMetadata, loading bool) ViewerLifecycle {
	switch {
	case loading:
		return ViewerUnknown
	case meta == nil:
		return ViewerWaiting
	case meta.EndTime != nil:
		return ViewerEnded
	default:
		return ViewerLive
	}
}

var ErrInvalidSessionCode = errors.New("invalid or expired session code")

// CodeValidator is the idempotent isValidSessionCode query.
type CodeValidator interface {
	IsValidSessionCode(ctx context.Context, code string) (bool, error)
}

// Join normalizes a typed code and checks it with the service. A code that
// cannot be well formed is rejected without a network call.
func Join(ctx context.Context, v CodeValidator, raw string) (string, error) {
	code := utils.NormalizeSessionCode(raw)
	if !utils.IsSessionCodeFormat(code) {
		return "", ErrInvalidSessionCode
	}
	ok, err := v.IsValidSessionCode(ctx, code)
	if err != nil {
		return "", fmt.Errorf("validate session code: %w", err)
	}
	if !ok {
		return "", ErrInvalidSessionCode
	}
	return code, nil
}

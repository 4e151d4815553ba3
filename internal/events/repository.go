package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridiron-live/broadcast/internal/models"
)

// Repository handles the per-session event log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an events repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append stores ev with a timestamp strictly greater than every earlier
// event of the session. nowNs is the caller's clock; the stored timestamp is
// written back into ev.
func (r *Repository) Append(ctx context.Context, code string, ev *models.Event, nowNs int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serializes appends per session so timestamps stay ordered.
	const lock = `SELECT code FROM sessions WHERE code = $1 FOR UPDATE`
	var locked string
	if err := tx.QueryRow(ctx, lock, code).Scan(&locked); err != nil {
		return fmt.Errorf("lock session: %w", err)
	}

	const last = `SELECT COALESCE(MAX(ts), 0) FROM events WHERE session_code = $1`
	var lastTs int64
	if err := tx.QueryRow(ctx, last, code).Scan(&lastTs); err != nil {
		return fmt.Errorf("last timestamp: %w", err)
	}
	ev.Timestamp = NextTimestamp(lastTs, nowNs)

	var team, reason *string
	active := false
	if ev.FlagEvent != nil {
		ev.FlagEvent.Timestamp = ev.Timestamp
		team, reason = &ev.FlagEvent.Team, &ev.FlagEvent.Reason
		active = true
	}
	const insert = `INSERT INTO events (session_code, ts, description, event_type, flag_team, flag_reason, overlay_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.Exec(ctx, insert, code, ev.Timestamp, ev.Description, string(ev.EventType), team, reason, active); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return tx.Commit(ctx)
}

// List returns the session's events in timestamp order.
func (r *Repository) List(ctx context.Context, code string) ([]models.Event, error) {
	const q = `SELECT ts, description, event_type, flag_team, flag_reason
		FROM events WHERE session_code = $1 ORDER BY ts ASC`
	return r.query(ctx, q, code)
}

// ListActiveFlags returns flag events whose overlay has not been cleared.
func (r *Repository) ListActiveFlags(ctx context.Context, code string) ([]models.Event, error) {
	const q = `SELECT ts, description, event_type, flag_team, flag_reason
		FROM events WHERE session_code = $1 AND event_type = 'flag' AND overlay_active ORDER BY ts ASC`
	return r.query(ctx, q, code)
}

// ClearActiveFlags marks every flag overlay of the session inactive. The
// events themselves are kept.
func (r *Repository) ClearActiveFlags(ctx context.Context, code string) (int64, error) {
	const q = `UPDATE events SET overlay_active = FALSE WHERE session_code = $1 AND overlay_active`
	tag, err := r.pool.Exec(ctx, q, code)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) query(ctx context.Context, q, code string) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx, q, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Event{}
	for rows.Next() {
		var ev models.Event
		var eventType string
		var team, reason *string
		if err := rows.Scan(&ev.Timestamp, &ev.Description, &eventType, &team, &reason); err != nil {
			return nil, err
		}
		ev.EventType = models.EventType(eventType)
		if ev.EventType == models.EventTypeFlag && team != nil && reason != nil {
			ev.FlagEvent = &models.FlagEvent{Team: *team, Reason: *reason, Timestamp: ev.Timestamp}
		}
		list = append(list, ev)
	}
	return list, rows.Err()
}

// NextTimestamp picks the timestamp for a new event given the last stored one.
func NextTimestamp(lastNs, nowNs int64) int64 {
	if nowNs <= lastNs {
		return lastNs + 1
	}
	return nowNs
}

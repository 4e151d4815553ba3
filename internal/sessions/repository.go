package sessions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridiron-live/broadcast/internal/models"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrAlreadyEnded = errors.New("session already ended")
	ErrCodeTaken    = errors.New("session code already in use")
)

const uniqueViolation = "23505"

// Repository handles session persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the session and its initial scoreboard row in one transaction.
func (r *Repository) Create(ctx context.Context, s *models.Session, board models.Scoreboard) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertSession = `INSERT INTO sessions (code, broadcaster, start_time, resume_key_hash)
		VALUES ($1, $2, NOW(), $3)
		RETURNING start_time, created_at`
	err = tx.QueryRow(ctx, insertSession, s.Code, s.Broadcaster, s.ResumeKeyHash).Scan(&s.StartTime, &s.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrCodeTaken
		}
		return fmt.Errorf("insert session: %w", err)
	}

	const insertBoard = `INSERT INTO scoreboards (session_code, team1_score, team2_score, team1_icon, team2_icon, team1_role, team2_role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.Exec(ctx, insertBoard, s.Code, board.Team1Score, board.Team2Score,
		string(board.Team1Icon), string(board.Team2Icon), string(board.Team1Role), string(board.Team2Role)); err != nil {
		return fmt.Errorf("insert scoreboard: %w", err)
	}
	return tx.Commit(ctx)
}

// Get returns the session or nil if the code is unknown.
func (r *Repository) Get(ctx context.Context, code string) (*models.Session, error) {
	const q = `SELECT code, broadcaster, start_time, end_time, resume_key_hash, peak_viewers, created_at
		FROM sessions WHERE code = $1`
	var s models.Session
	err := r.pool.QueryRow(ctx, q, code).Scan(&s.Code, &s.Broadcaster, &s.StartTime, &s.EndTime, &s.ResumeKeyHash, &s.PeakViewers, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// End sets the end timestamp. It never moves an ended session.
func (r *Repository) End(ctx context.Context, code string) (*models.Session, error) {
	const q = `UPDATE sessions SET end_time = NOW() WHERE code = $1 AND end_time IS NULL
		RETURNING code, broadcaster, start_time, end_time, resume_key_hash, peak_viewers, created_at`
	var s models.Session
	err := r.pool.QueryRow(ctx, q, code).Scan(&s.Code, &s.Broadcaster, &s.StartTime, &s.EndTime, &s.ResumeKeyHash, &s.PeakViewers, &s.CreatedAt)
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	existing, err := r.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	return nil, ErrAlreadyEnded
}

package scoreboards

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridiron-live/broadcast/internal/models"
)

// Repository handles scoreboard persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a scoreboards repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the scoreboard row or nil.
func (r *Repository) Get(ctx context.Context, code string) (*models.Scoreboard, error) {
	const q = `SELECT team1_score, team2_score, team1_icon, team2_icon, team1_role, team2_role
		FROM scoreboards WHERE session_code = $1`
	var b models.Scoreboard
	var s1, s2 int64
	var i1, i2, r1, r2 string
	err := r.pool.QueryRow(ctx, q, code).Scan(&s1, &s2, &i1, &i2, &r1, &r2)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	b.Team1Score, b.Team2Score = uint(s1), uint(s2)
	b.Team1Icon, b.Team2Icon = models.TeamIcon(i1), models.TeamIcon(i2)
	b.Team1Role, b.Team2Role = models.TeamRole(r1), models.TeamRole(r2)
	return &b, nil
}

// Replace overwrites every field of the row (last write wins).
func (r *Repository) Replace(ctx context.Context, code string, b models.Scoreboard) error {
	const q = `UPDATE scoreboards SET team1_score = $1, team2_score = $2, team1_icon = $3, team2_icon = $4,
		team1_role = $5, team2_role = $6, updated_at = NOW() WHERE session_code = $7`
	tag, err := r.pool.Exec(ctx, q, int64(b.Team1Score), int64(b.Team2Score), string(b.Team1Icon), string(b.Team2Icon),
		string(b.Team1Role), string(b.Team2Role), code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetIcons changes only the two icons.
func (r *Repository) SetIcons(ctx context.Context, code string, team1, team2 models.TeamIcon) (*models.Scoreboard, error) {
	const q = `UPDATE scoreboards SET team1_icon = $1, team2_icon = $2, updated_at = NOW() WHERE session_code = $3`
	tag, err := r.pool.Exec(ctx, q, string(team1), string(team2), code)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, code)
}

package streams

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists audience peaks on the sessions table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a stream stats repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpdatePeakViewers raises peak_viewers; a lower value is ignored.
func (r *Repository) UpdatePeakViewers(ctx context.Context, code string, peak int) error {
	const q = `UPDATE sessions SET peak_viewers = $1 WHERE code = $2 AND $1 > peak_viewers`
	_, err := r.pool.Exec(ctx, q, peak, code)
	return err
}

// PeakViewers returns the stored peak, or 0 for an unknown code.
func (r *Repository) PeakViewers(ctx context.Context, code string) (int, error) {
	const q = `SELECT peak_viewers FROM sessions WHERE code = $1`
	var peak int
	err := r.pool.QueryRow(ctx, q, code).Scan(&peak)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return peak, nil
}

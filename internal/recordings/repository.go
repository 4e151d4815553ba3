package recordings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridiron-live/broadcast/internal/models"
)

const recordingColumns = `id, session_code, source, file_name, mime_type, local_path, s3_url, s3_key, duration, file_size, status, created_at, updated_at`

// Repository handles recording persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	err := row.Scan(&rec.ID, &rec.SessionCode, &rec.Source, &rec.FileName, &rec.MimeType, &rec.LocalPath,
		&rec.S3URL, &rec.S3Key, &rec.Duration, &rec.FileSize, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create inserts a recording row. rec.ID is generated when zero.
func (r *Repository) Create(ctx context.Context, rec *models.Recording) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	const q = `INSERT INTO recordings (id, session_code, source, file_name, mime_type, local_path, duration, file_size, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, q, rec.ID, rec.SessionCode, rec.Source, rec.FileName, rec.MimeType, rec.LocalPath, rec.Duration, rec.FileSize, rec.Status).
		Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

// GetByID returns a recording or nil when the id is unknown.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	rec, err := scanRecording(r.pool.QueryRow(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// ListBySession returns a session's recordings, newest first.
func (r *Repository) ListBySession(ctx context.Context, code string) ([]models.Recording, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE session_code = $1 ORDER BY created_at DESC`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]models.Recording, 0)
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

// FindBySessionStatus returns the newest recording of a session in status, or nil.
func (r *Repository) FindBySessionStatus(ctx context.Context, code, status string) (*models.Recording, error) {
	const q = `SELECT ` + recordingColumns + ` FROM recordings WHERE session_code = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1`
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, code, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// UpdateStatus sets recording status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	const q = `UPDATE recordings SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, status, id)
	return err
}

// MarkQueued records the finished local file and hands it to the upload worker.
func (r *Repository) MarkQueued(ctx context.Context, id uuid.UUID, localPath, mimeType string, fileSize int64, duration int) error {
	const q = `UPDATE recordings SET local_path = $1, mime_type = $2, file_size = $3, duration = $4, status = $5, updated_at = NOW() WHERE id = $6`
	_, err := r.pool.Exec(ctx, q, localPath, mimeType, fileSize, duration, models.RecordingStatusQueued, id)
	return err
}

// UpdateS3Result stores the uploaded object and marks the recording completed.
func (r *Repository) UpdateS3Result(ctx context.Context, id uuid.UUID, s3URL, s3Key string, fileSize int64) error {
	const q = `UPDATE recordings SET s3_url = $1, s3_key = $2, file_size = $3, local_path = '', status = $4, updated_at = NOW() WHERE id = $5`
	_, err := r.pool.Exec(ctx, q, s3URL, s3Key, fileSize, models.RecordingStatusCompleted, id)
	return err
}

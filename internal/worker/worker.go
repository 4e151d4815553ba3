package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/pkg/queue"
	"github.com/gridiron-live/broadcast/pkg/storage"
)

// RecordingStore is the slice of recordings.Repository the worker uses.
type RecordingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateS3Result(ctx context.Context, id uuid.UUID, s3URL, s3Key string, fileSize int64) error
}

// ObjectStore uploads recordings; *storage.S3 implements it.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) (string, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	RecordingsBucket() string
}

// JobQueue is implemented by *queue.Queue.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// RecordingProcessor moves finished recordings from local disk to S3.
type RecordingProcessor struct {
	recRepo RecordingStore
	s3      ObjectStore
	queue   JobQueue
	backoff time.Duration
	logger  *zap.Logger
}

// NewRecordingProcessor creates a recording upload processor.
func NewRecordingProcessor(recRepo RecordingStore, s3 ObjectStore, q JobQueue, logger *zap.Logger) *RecordingProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordingProcessor{recRepo: recRepo, s3: s3, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one recording upload job.
func (p *RecordingProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeRecordingUpload {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.RecordingUploadPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	rec, err := p.recRepo.GetByID(ctx, payload.RecordingID)
	if err != nil {
		return fmt.Errorf("load recording: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("recording not found: %s", payload.RecordingID)
	}
	if rec.Status == models.RecordingStatusCompleted {
		p.logger.Info("recording already completed", zap.String("recording_id", rec.ID.String()))
		_ = os.Remove(payload.FilePath)
		return nil
	}

	f, err := os.Open(payload.FilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			_ = p.recRepo.UpdateStatus(ctx, rec.ID, models.RecordingStatusFailed)
		}
		return fmt.Errorf("open recording file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat recording file: %w", err)
	}

	contentType := payload.MimeType
	if contentType == "" {
		contentType = "video/mp4"
	}
	key := storage.RecordingKey(payload.SessionCode, payload.RecordingID.String(), contentType)
	bucket := p.s3.RecordingsBucket()

	s3URL, err := p.s3.Upload(ctx, bucket, key, contentType, f, info.Size())
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	if err := p.recRepo.UpdateS3Result(ctx, payload.RecordingID, s3URL, key, info.Size()); err != nil {
		p.logger.Error("update recording S3 result failed", zap.Error(err), zap.String("recording_id", payload.RecordingID.String()))
		if delErr := p.s3.DeleteObject(ctx, bucket, key); delErr != nil {
			p.logger.Warn("delete orphaned object failed", zap.Error(delErr), zap.String("key", key))
		}
		return fmt.Errorf("update db: %w", err)
	}

	_ = f.Close()
	if err := os.Remove(payload.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("remove local recording failed", zap.Error(err), zap.String("path", payload.FilePath))
	}
	p.logger.Info("recording upload completed",
		zap.String("recording_id", payload.RecordingID.String()),
		zap.String("session_code", payload.SessionCode),
		zap.String("s3_key", key))
	return nil
}

// Run dequeues and processes jobs until ctx is done, retrying failures.
func (p *RecordingProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("recording worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *RecordingProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

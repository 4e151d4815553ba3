package models

import (
	"time"

	"github.com/google/uuid"
)

// RecordingStatus represents recording lifecycle.
const (
	RecordingStatusRecording = "recording"
	RecordingStatusQueued    = "queued"
	RecordingStatusCompleted = "completed"
	RecordingStatusFailed    = "failed"
)

// Recording sources.
const (
	RecordingSourceSFU    = "sfu"
	RecordingSourceUpload = "upload"
)

// Recording is a broadcast recording, either tapped from the SFU or uploaded
// by the broadcaster client, and finally stored on S3.
type Recording struct {
	ID          uuid.UUID `json:"id"`
	SessionCode string    `json:"session_code"`
	Source      string    `json:"source"`
	FileName    string    `json:"file_name"`
	MimeType    string    `json:"mime_type"`
	LocalPath   string    `json:"-"`
	S3URL       string    `json:"s3_url,omitempty"`
	S3Key       string    `json:"s3_key,omitempty"`
	Duration    int       `json:"duration"`
	FileSize    int64     `json:"file_size"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

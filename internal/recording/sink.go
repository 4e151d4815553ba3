package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FileSink writes recordings into a directory.
type FileSink struct {
	Dir string
}

func (s FileSink) Save(_ context.Context, out *Output) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	path := filepath.Join(dir, out.FileName)
	if err := os.WriteFile(path, out.Data, 0o640); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// Uploader sends a recording to the session service.
type Uploader interface {
	UploadRecording(ctx context.Context, code, fileName, mimeType string, duration time.Duration, body io.Reader) (string, error)
}

// UploadSink hands recordings to the service, which stores them on S3.
type UploadSink struct {
	Uploader    Uploader
	SessionCode string
}

func (s UploadSink) Save(ctx context.Context, out *Output) (string, error) {
	id, err := s.Uploader.UploadRecording(ctx, s.SessionCode, out.FileName, out.MimeType, out.Duration, bytes.NewReader(out.Data))
	if err != nil {
		return "", err
	}
	return "recording " + id, nil
}

// MultiSink saves to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Save(ctx context.Context, out *Output) (string, error) {
	var (
		where []byte
		errs  []error
	)
	for _, s := range m {
		w, err := s.Save(ctx, out)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(where) > 0 {
			where = append(where, ", "...)
		}
		where = append(where, w...)
	}
	return string(where), errors.Join(errs...)
}

package apiclient

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// UploadRecording streams a finished local recording to the service, which
// queues it for S3. It returns the recording id.
func (c *Client) UploadRecording(ctx context.Context, code, fileName, mimeType string, duration time.Duration, body io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeUpload(mw, fileName, mimeType, duration, body)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		_ = pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sessionPath(code, "recordings"), pr)
	if err != nil {
		_ = pr.Close()
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		RecordingID uuid.UUID `json:"recording_id"`
	}
	if err := c.send(c.uploadClient, req, &out); err != nil {
		_ = pr.Close()
		return "", err
	}
	return out.RecordingID.String(), nil
}

func writeUpload(mw *multipart.Writer, fileName, mimeType string, duration time.Duration, body io.Reader) error {
	fields := map[string]string{
		"mime_type": mimeType,
		"file_name": fileName,
		"duration":  strconv.Itoa(int(duration.Seconds())),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, body)
	return err
}

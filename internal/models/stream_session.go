package models

import "time"

// StreamStats tracks audience figures for a session while it is live.
type StreamStats struct {
	SessionCode    string    `json:"session_code"`
	CurrentViewers int       `json:"current_viewers"`
	PeakViewers    int       `json:"peak_viewers"`
	UpdatedAt      time.Time `json:"updated_at"`
}

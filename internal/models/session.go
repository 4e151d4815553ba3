package models

import "time"

// Session is one broadcast, identified by a 6-character code. EndTime is the
// only terminal signal.
type Session struct {
	Code          string     `json:"session_code"`
	Broadcaster   string     `json:"broadcaster"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	ResumeKeyHash string     `json:"-"`
	PeakViewers   int        `json:"peak_viewers"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Ended reports whether the session has an end timestamp.
func (s *Session) Ended() bool { return s.EndTime != nil }

// Metadata converts the row into the polled metadata shape.
func (s *Session) Metadata() SessionMetadata {
	m := SessionMetadata{
		Broadcaster: s.Broadcaster,
		StartTime:   s.StartTime.UnixNano(),
	}
	if s.EndTime != nil {
		end := s.EndTime.UnixNano()
		m.EndTime = &end
	}
	return m
}

// SessionMetadata is what viewers poll. Timestamps are nanosecond epochs.
type SessionMetadata struct {
	Broadcaster string `json:"broadcaster"`
	StartTime   int64  `json:"start_time"`
	EndTime     *int64 `json:"end_time"`
}

// SessionGrant is returned to the broadcaster that created or resumed a
// session. ResumeKey is only present on creation.
type SessionGrant struct {
	SessionCode string `json:"session_code"`
	Token       string `json:"token"`
	ResumeKey   string `json:"resume_key,omitempty"`
}

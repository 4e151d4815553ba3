package models

import "fmt"

// EventType discriminates entries in the event log.
type EventType string

const (
	EventTypePoint EventType = "point"
	EventTypeFlag  EventType = "flag"
)

// ParseEventType validates a wire value.
func ParseEventType(s string) (EventType, error) {
	switch EventType(s) {
	case EventTypePoint, EventTypeFlag:
		return EventType(s), nil
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// FlagEvent is a penalty report embedded in a flag Event.
type FlagEvent struct {
	Team      string `json:"team"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

// Key is the dedup identity of a flag: there is no server id.
func (f FlagEvent) Key() string {
	return fmt.Sprintf("%d-%s-%s", f.Timestamp, f.Team, f.Reason)
}

// Event is one append-only log entry. Timestamp is a server-assigned
// nanosecond epoch, strictly increasing within a session.
type Event struct {
	Description string     `json:"description"`
	Timestamp   int64      `json:"timestamp"`
	EventType   EventType  `json:"event_type"`
	FlagEvent   *FlagEvent `json:"flag_event,omitempty"`
}

// Caption is the latest speech-to-text chunk for a session.
type Caption struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Package scoring holds the scoreboard and event-log rules shared by the
// broadcaster and viewer clients.
package scoring

import (
	"errors"
	"strings"

	"github.com/gridiron-live/broadcast/internal/models"
)

var (
	ErrBothOffense    = errors.New("only one team can be on offense")
	ErrIdenticalIcons = errors.New("teams must use different icons")
	ErrEmptyTeam      = errors.New("select a team for the flag")
	ErrEmptyReason    = errors.New("enter a reason for the flag")
	ErrUnknownTeam    = errors.New("team must be 1 or 2")
)

// Team selects one of the two scoreboard slots.
type Team int

const (
	Team1 Team = 1
	Team2 Team = 2
)

// ParseTeam validates a slot number.
func ParseTeam(n int) (Team, error) {
	t := Team(n)
	if t != Team1 && t != Team2 {
		return 0, ErrUnknownTeam
	}
	return t, nil
}

// Icon returns the team's icon in row.
func (t Team) Icon(row models.Scoreboard) models.TeamIcon {
	if t == Team2 {
		return row.Team2Icon
	}
	return row.Team1Icon
}

// Increment adds points to team's score.
func Increment(row models.Scoreboard, team Team, points uint) models.Scoreboard {
	if team == Team2 {
		row.Team2Score += points
	} else {
		row.Team1Score += points
	}
	return row
}

// Decrement subtracts points, clamping at zero.
func Decrement(row models.Scoreboard, team Team, points uint) models.Scoreboard {
	score := &row.Team1Score
	if team == Team2 {
		score = &row.Team2Score
	}
	if points >= *score {
		*score = 0
	} else {
		*score -= points
	}
	return row
}

// AssignOffense puts team on offense and the other team on defense in the
// same row.
func AssignOffense(row models.Scoreboard, team Team) models.Scoreboard {
	if team == Team2 {
		row.Team1Role, row.Team2Role = models.TeamRoleDefense, models.TeamRoleOffense
	} else {
		row.Team1Role, row.Team2Role = models.TeamRoleOffense, models.TeamRoleDefense
	}
	return row
}

// ClearRoles sets both roles to none.
func ClearRoles(row models.Scoreboard) models.Scoreboard {
	row.Team1Role, row.Team2Role = models.TeamRoleNone, models.TeamRoleNone
	return row
}

// Validate rejects rows that must never be submitted.
func Validate(row models.Scoreboard) error {
	if row.Team1Role == models.TeamRoleOffense && row.Team2Role == models.TeamRoleOffense {
		return ErrBothOffense
	}
	return nil
}

// ValidateIcons is checked before a session is created.
func ValidateIcons(team1, team2 models.TeamIcon) error {
	if team1 == team2 {
		return ErrIdenticalIcons
	}
	return nil
}

// ValidateFlag trims the inputs and rejects empty ones.
func ValidateFlag(team, reason string) (string, string, error) {
	team, reason = strings.TrimSpace(team), strings.TrimSpace(reason)
	if team == "" {
		return "", "", ErrEmptyTeam
	}
	if reason == "" {
		return "", "", ErrEmptyReason
	}
	return team, reason, nil
}

// FlagEvents returns the flag payloads of events, in feed order.
func FlagEvents(events []models.Event) []models.FlagEvent {
	var flags []models.FlagEvent
	for _, ev := range events {
		if ev.EventType == models.EventTypeFlag && ev.FlagEvent != nil {
			flags = append(flags, *ev.FlagEvent)
		}
	}
	return flags
}

// Latest returns the last event of the feed, or nil.
func Latest(events []models.Event) *models.Event {
	if len(events) == 0 {
		return nil
	}
	ev := events[len(events)-1]
	return &ev
}

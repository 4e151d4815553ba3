package models

import "fmt"

// TeamIcon is the branding artwork for a team slot.
type TeamIcon string

const (
	TeamIconDolphin  TeamIcon = "dolphin"
	TeamIconTornado  TeamIcon = "tornado"
	TeamIconFist     TeamIcon = "fist"
	TeamIconBullfrog TeamIcon = "bullfrog"
)

var teamIconLabels = map[TeamIcon]string{
	TeamIconDolphin:  "Dolphins",
	TeamIconTornado:  "Twisters",
	TeamIconFist:     "Titans",
	TeamIconBullfrog: "Bullfrogs",
}

// TeamIcons lists the selectable icons in display order.
var TeamIcons = []TeamIcon{TeamIconDolphin, TeamIconTornado, TeamIconFist, TeamIconBullfrog}

// Label returns the team name shown for the icon.
func (i TeamIcon) Label() string {
	if l, ok := teamIconLabels[i]; ok {
		return l
	}
	return string(i)
}

// ParseTeamIcon validates a wire value.
func ParseTeamIcon(s string) (TeamIcon, error) {
	i := TeamIcon(s)
	if _, ok := teamIconLabels[i]; !ok {
		return "", fmt.Errorf("unknown team icon %q", s)
	}
	return i, nil
}

// TeamRole marks which side has the ball.
type TeamRole string

const (
	TeamRoleNone    TeamRole = "none"
	TeamRoleOffense TeamRole = "offense"
	TeamRoleDefense TeamRole = "defense"
)

// ParseTeamRole validates a wire value. Empty maps to none.
func ParseTeamRole(s string) (TeamRole, error) {
	switch TeamRole(s) {
	case "", TeamRoleNone:
		return TeamRoleNone, nil
	case TeamRoleOffense, TeamRoleDefense:
		return TeamRole(s), nil
	}
	return "", fmt.Errorf("unknown team role %q", s)
}

// Scoreboard is the full per-session row. Updates replace every field.
type Scoreboard struct {
	Team1Score uint     `json:"team1_score"`
	Team2Score uint     `json:"team2_score"`
	Team1Icon  TeamIcon `json:"team1_icon"`
	Team2Icon  TeamIcon `json:"team2_icon"`
	Team1Role  TeamRole `json:"team1_role"`
	Team2Role  TeamRole `json:"team2_role"`
}

// DefaultScoreboard is the row created alongside a new session.
func DefaultScoreboard(team1, team2 TeamIcon) Scoreboard {
	if team1 == "" {
		team1 = TeamIconDolphin
	}
	if team2 == "" {
		team2 = TeamIconBullfrog
	}
	return Scoreboard{
		Team1Icon: team1,
		Team2Icon: team2,
		Team1Role: TeamRoleNone,
		Team2Role: TeamRoleNone,
	}
}

package scoring

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gridiron-live/broadcast/internal/models"
)

func TestDecrementClamps(t *testing.T) {
	row := models.Scoreboard{Team1Score: 0, Team2Score: 3}
	row = Decrement(row, Team1, 1)
	if row.Team1Score != 0 {
		t.Fatalf("team1 = %d, want 0", row.Team1Score)
	}
	row = Decrement(row, Team2, 6)
	if row.Team2Score != 0 {
		t.Fatalf("team2 = %d, want 0", row.Team2Score)
	}
	row = Decrement(Increment(row, Team2, 7), Team2, 1)
	if row.Team2Score != 6 {
		t.Fatalf("team2 = %d, want 6", row.Team2Score)
	}
}

func TestRoleExclusivity(t *testing.T) {
	row := models.DefaultScoreboard("", "")
	for _, team := range []Team{Team1, Team2, Team2, Team1} {
		row = AssignOffense(row, team)
		offense := 0
		if row.Team1Role == models.TeamRoleOffense {
			offense++
		}
		if row.Team2Role == models.TeamRoleOffense {
			offense++
		}
		if offense != 1 {
			t.Fatalf("after AssignOffense(%d): %+v", team, row)
		}
		if err := Validate(row); err != nil {
			t.Fatal(err)
		}
	}
	bad := models.Scoreboard{Team1Role: models.TeamRoleOffense, Team2Role: models.TeamRoleOffense}
	if !errors.Is(Validate(bad), ErrBothOffense) {
		t.Fatal("both offense must be rejected")
	}
}

func TestValidateFlag(t *testing.T) {
	cases := []struct {
		team, reason         string
		wantTeam, wantReason string
		wantErr              error
	}{
		{"Team A", "Offside", "Team A", "Offside", nil},
		{"Team A", "   ", "", "", ErrEmptyReason},
		{"", "Holding", "", "", ErrEmptyTeam},
		{" Team B ", " Holding ", "Team B", "Holding", nil},
	}
	for _, tc := range cases {
		team, reason, err := ValidateFlag(tc.team, tc.reason)
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("ValidateFlag(%q, %q) err = %v, want %v", tc.team, tc.reason, err, tc.wantErr)
		}
		if team != tc.wantTeam || reason != tc.wantReason {
			t.Errorf("ValidateFlag(%q, %q) = %q, %q", tc.team, tc.reason, team, reason)
		}
	}
}

func TestFlagEventsAndLatest(t *testing.T) {
	events := []models.Event{
		{Description: "TD", Timestamp: 1, EventType: models.EventTypePoint},
		{Description: "Flag on Team A: Offside", Timestamp: 2, EventType: models.EventTypeFlag,
			FlagEvent: &models.FlagEvent{Team: "Team A", Reason: "Offside", Timestamp: 2}},
	}
	flags := FlagEvents(events)
	if len(flags) != 1 || flags[0].Reason != "Offside" {
		t.Fatalf("flags = %+v", flags)
	}
	if got := Latest(events); got == nil || got.Timestamp != 2 {
		t.Fatalf("latest = %+v", got)
	}
	if Latest(nil) != nil {
		t.Fatal("latest of empty feed must be nil")
	}
}

type fakeSubmitter struct {
	mu   sync.Mutex
	rows []models.Scoreboard
	err  error
}

func (f *fakeSubmitter) UpdateScoreboard(_ context.Context, _ string, row models.Scoreboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, row)
	return nil
}

func TestBoardSubmitsFullRowAndCelebrates(t *testing.T) {
	api := &fakeSubmitter{}
	b := NewBoard("ABC234", models.DefaultScoreboard(models.TeamIconDolphin, models.TeamIconBullfrog), api, nil)
	var celebrated []models.TeamIcon
	b.OnCelebrate(func(i models.TeamIcon) { celebrated = append(celebrated, i) })

	if err := b.Increment(context.Background(), Team2, 6); err != nil {
		t.Fatal(err)
	}
	if err := b.AssignOffense(context.Background(), Team1); err != nil {
		t.Fatal(err)
	}
	if len(api.rows) != 2 {
		t.Fatalf("submitted %d rows", len(api.rows))
	}
	last := api.rows[1]
	if last.Team2Score != 6 || last.Team1Icon != models.TeamIconDolphin || last.Team2Role != models.TeamRoleDefense {
		t.Fatalf("row not full: %+v", last)
	}
	if len(celebrated) != 1 || celebrated[0] != models.TeamIconBullfrog {
		t.Fatalf("celebrated = %v", celebrated)
	}
}

func TestBoardRevertsToAuthoritativeOnFailure(t *testing.T) {
	api := &fakeSubmitter{}
	b := NewBoard("ABC234", models.DefaultScoreboard("", ""), api, nil)
	remote := models.DefaultScoreboard("", "")
	remote.Team1Score = 3
	b.Reconcile(remote)

	api.err = errors.New("network down")
	if err := b.Increment(context.Background(), Team1, 6); err == nil {
		t.Fatal("expected error")
	}
	if got := b.Snapshot().Team1Score; got != 3 {
		t.Fatalf("score = %d, want reverted 3", got)
	}
}

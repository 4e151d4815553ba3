package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/gridiron-live/broadcast/internal/models"
	"github.com/gridiron-live/broadcast/internal/scoring"
)

type fakeAPI struct {
	startErr, endErr error
	starts, ends     int
	valid            map[string]bool
	validCalls       int
	icons            [2]models.TeamIcon
}

func (f *fakeAPI) StartSession(_ context.Context, name, code string, team1, team2 models.TeamIcon) (*models.SessionGrant, error) {
	f.starts++
	f.icons = [2]models.TeamIcon{team1, team2}
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &models.SessionGrant{SessionCode: code, Token: "tok", ResumeKey: "key"}, nil
}

func (f *fakeAPI) ResumeSession(_ context.Context, code, key string) (*models.SessionGrant, error) {
	if key != "key" {
		return nil, errors.New("unauthorized")
	}
	return &models.SessionGrant{SessionCode: code, Token: "tok2"}, nil
}

func (f *fakeAPI) EndSession(context.Context, string) error {
	f.ends++
	return f.endErr
}

func (f *fakeAPI) IsValidSessionCode(_ context.Context, code string) (bool, error) {
	f.validCalls++
	return f.valid[code], nil
}

type memCodes struct {
	code string
	keys map[string]string
}

func (m *memCodes) SessionCode() (string, error)       { return m.code, nil }
func (m *memCodes) SaveSessionCode(c string) error     { m.code = c; return nil }
func (m *memCodes) ClearSessionCode() error            { m.code = ""; return nil }
func (m *memCodes) ResumeKey(c string) (string, error) { return m.keys[c], nil }
func (m *memCodes) SaveResumeKey(c, k string) error {
	if m.keys == nil {
		m.keys = map[string]string{}
	}
	m.keys[c] = k
	return nil
}

var coach = StartParams{Broadcaster: "Coach", Team1Icon: models.TeamIconDolphin, Team2Icon: models.TeamIconBullfrog}

func TestStartAndEnd(t *testing.T) {
	api := &fakeAPI{}
	store := &memCodes{}
	b := NewBroadcaster(api, store, nil)

	var seen []Status
	b.OnChange(func(s Status) { seen = append(seen, s) })

	code, err := b.Start(context.Background(), coach)
	if err != nil {
		t.Fatal(err)
	}
	if len(code) != 6 || b.Status() != StatusLive || store.code != code {
		t.Fatalf("code=%q status=%s stored=%q", code, b.Status(), store.code)
	}
	if err := b.End(context.Background()); err != nil {
		t.Fatal(err)
	}
	if b.Status() != StatusEnded || store.code != "" {
		t.Fatalf("status=%s stored=%q", b.Status(), store.code)
	}
	want := []Status{StatusStarting, StatusLive, StatusEnding, StatusEnded}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", seen, want)
		}
	}

	if _, err := b.Start(context.Background(), coach); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("restart from ended: %v", err)
	}
}

func TestStartFailureRevertsToIdle(t *testing.T) {
	api := &fakeAPI{startErr: errors.New("conflict")}
	b := NewBroadcaster(api, &memCodes{}, nil)
	if _, err := b.Start(context.Background(), coach); err == nil {
		t.Fatal("expected error")
	}
	if b.Status() != StatusIdle || b.Code() != "" || b.Err() == nil {
		t.Fatalf("status=%s code=%q err=%v", b.Status(), b.Code(), b.Err())
	}
}

func TestEndFailureKeepsCode(t *testing.T) {
	api := &fakeAPI{endErr: errors.New("timeout")}
	b := NewBroadcaster(api, &memCodes{}, nil)
	code, err := b.Start(context.Background(), coach)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.End(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if b.Status() != StatusLive || b.Code() != code {
		t.Fatalf("status=%s code=%q", b.Status(), b.Code())
	}
}

func TestValidationSkipsNetwork(t *testing.T) {
	api := &fakeAPI{}
	b := NewBroadcaster(api, nil, nil)
	if _, err := b.Start(context.Background(), StartParams{Broadcaster: "  "}); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("err = %v", err)
	}
	same := StartParams{Broadcaster: "Coach", Team1Icon: models.TeamIconFist, Team2Icon: models.TeamIconFist}
	if _, err := b.Start(context.Background(), same); !errors.Is(err, scoring.ErrIdenticalIcons) {
		t.Fatalf("err = %v", err)
	}
	if api.starts != 0 {
		t.Fatalf("network called %d times", api.starts)
	}
}

func TestStartDefaultsOmittedIcons(t *testing.T) {
	api := &fakeAPI{}
	b := NewBroadcaster(api, nil, nil)
	code, err := b.Start(context.Background(), StartParams{Broadcaster: "Coach"})
	if err != nil || code == "" {
		t.Fatalf("start = %q, %v", code, err)
	}
	if api.icons != [2]models.TeamIcon{models.TeamIconDolphin, models.TeamIconBullfrog} {
		t.Fatalf("icons sent = %v", api.icons)
	}
	if b.Status() != StatusLive {
		t.Fatalf("status = %v", b.Status())
	}

	// an omitted team 1 icon resolves to dolphin and clashes
	api2 := &fakeAPI{}
	b2 := NewBroadcaster(api2, nil, nil)
	clash := StartParams{Broadcaster: "Coach", Team2Icon: models.TeamIconDolphin}
	if _, err := b2.Start(context.Background(), clash); !errors.Is(err, scoring.ErrIdenticalIcons) {
		t.Fatalf("err = %v", err)
	}
	if api2.starts != 0 {
		t.Fatalf("network called %d times", api2.starts)
	}
}

func TestResume(t *testing.T) {
	api := &fakeAPI{}
	store := &memCodes{}
	first := NewBroadcaster(api, store, nil)
	code, err := first.Start(context.Background(), coach)
	if err != nil {
		t.Fatal(err)
	}

	again := NewBroadcaster(api, store, nil)
	got, err := again.Resume(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != code || again.Status() != StatusLive {
		t.Fatalf("resumed %q status %s", got, again.Status())
	}

	if _, err := NewBroadcaster(api, &memCodes{}, nil).Resume(context.Background()); !errors.Is(err, ErrNoStoredSession) {
		t.Fatalf("err = %v", err)
	}
}

func TestDeriveViewerLifecycle(t *testing.T) {
	end := int64(42)
	cases := []struct {
		meta    *models.SessionMetadata
		loading bool
		want    ViewerLifecycle
	}{
		{nil, true, ViewerUnknown},
		{&models.SessionMetadata{}, true, ViewerUnknown},
		{nil, false, ViewerWaiting},
		{&models.SessionMetadata{EndTime: &end}, false, ViewerEnded},
		{&models.SessionMetadata{Broadcaster: "Coach"}, false, ViewerLive},
	}
	for _, tc := range cases {
		if got := DeriveViewerLifecycle(tc.meta, tc.loading); got != tc.want {
			t.Errorf("DeriveViewerLifecycle(%+v, %v) = %s, want %s", tc.meta, tc.loading, got, tc.want)
		}
	}
}

func TestJoin(t *testing.T) {
	api := &fakeAPI{valid: map[string]bool{"ABC234": true}}
	code, err := Join(context.Background(), api, " abc234 ")
	if err != nil || code != "ABC234" {
		t.Fatalf("Join = %q, %v", code, err)
	}
	if _, err := Join(context.Background(), api, "XYZ789"); !errors.Is(err, ErrInvalidSessionCode) {
		t.Fatalf("unknown code: %v", err)
	}
	calls := api.validCalls
	if _, err := Join(context.Background(), api, "O0I1"); !errors.Is(err, ErrInvalidSessionCode) {
		t.Fatalf("malformed code: %v", err)
	}
	if api.validCalls != calls {
		t.Fatal("malformed code reached the network")
	}
}

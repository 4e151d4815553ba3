package streams

import (
	"context"
	"sync"
	"testing"
)

type memPeaks struct {
	mu    sync.Mutex
	peaks map[string]int
	calls int
}

func (m *memPeaks) UpdatePeakViewers(_ context.Context, code string, peak int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if peak > m.peaks[code] {
		m.peaks[code] = peak
	}
	return nil
}

func (m *memPeaks) PeakViewers(_ context.Context, code string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peaks[code], nil
}

func TestTrackerPersistsOnlyNewPeaks(t *testing.T) {
	store := &memPeaks{peaks: map[string]int{}}
	tr := NewTracker(store, nil)
	for _, n := range []int{1, 2, 3, 2, 3, 1} {
		tr.OnAudienceChange("ABC234", n)
	}
	if store.calls != 3 {
		t.Fatalf("expected 3 peak writes, got %d", store.calls)
	}
	s, err := tr.Stats(context.Background(), "ABC234")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if s.CurrentViewers != 1 || s.PeakViewers != 3 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestTrackerKeepsPeakAfterEmptyRoom(t *testing.T) {
	store := &memPeaks{peaks: map[string]int{}}
	tr := NewTracker(store, nil)
	tr.OnAudienceChange("ABC234", 4)
	tr.OnAudienceChange("ABC234", 0)
	s, _ := tr.Stats(context.Background(), "ABC234")
	if s.CurrentViewers != 0 || s.PeakViewers != 4 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

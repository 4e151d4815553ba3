package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.IncSessionsStarted()
	m.IncEvents("flag")
	m.ObserveRequest("/x", "GET", 200, time.Millisecond)
	m.AddWSClients(1)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.IncSessionsStarted()
	m.IncEvents("flag")
	m.IncEvents("flag")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	if !strings.Contains(out, "gridiron_sessions_started_total 1") {
		t.Fatalf("missing sessions counter:\n%s", out)
	}
	if !strings.Contains(out, `gridiron_events_appended_total{type="flag"} 2`) {
		t.Fatalf("missing events counter:\n%s", out)
	}
}

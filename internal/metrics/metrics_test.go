package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_Record(t *testing.T) {
	m := New()
	m.Request("voice", "ok")
	m.Request("voice", "ok")
	m.Request("voice", "UNAUTHORIZED")
	m.Item("high", true)
	m.Item("low", false)
	m.Truncated()
	m.AccessEvent("invitation.issued")
	m.SinkPush("google_calendar", nil)
	m.SinkPush("google_calendar", errors.New("boom"))
	m.LedgerEntry()
	m.Stage("transcribing", 40*time.Millisecond)

	out := scrape(t, m)
	for _, want := range []string{
		`voicetasks_requests_total{kind="voice",outcome="ok"} 2`,
		`voicetasks_requests_total{kind="voice",outcome="UNAUTHORIZED"} 1`,
		`voicetasks_action_items_total{link="failed",priority="low"} 1`,
		`voicetasks_analysis_truncated_total 1`,
		`voicetasks_access_events_total{event="invitation.issued"} 1`,
		`voicetasks_event_sink_pushes_total{result="failed",sink="google_calendar"} 1`,
		`voicetasks_ledger_entries_total 1`,
		`voicetasks_stage_duration_seconds_count{stage="transcribing"} 1`,
	} {
		assert.Contains(t, out, want)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Request("invite", "ok")

	out := scrape(t, m)
	assert.Contains(t, out, `voicetasks_requests_total{kind="invite",outcome="ok"} 1`)
	assert.Contains(t, out, "go_goroutines")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Request("voice", "ok")
		m.Stage("analyzing", time.Second)
		m.Item("high", true)
		m.Truncated()
		m.AccessEvent("access.revoked")
		m.SinkPush("x", nil)
		m.LedgerEntry()
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Transition("order", "pending", "processing")
	m.Transition("order", "pending", "processing")
	m.Assignment("quote", "claim", "ok")
	m.Assignment("quote", "claim", "already_assigned")
	m.Failure("transition", "illegal_transition")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("order", "pending", "processing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.assignments.WithLabelValues("quote", "claim", "already_assigned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("transition", "illegal_transition")))
}

func TestNilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Transition("order", "a", "b")
		m.Assignment("order", "claim", "ok")
		m.Failure("claim", "forbidden")
		m.ObserveRequest(http.MethodGet, 200, time.Millisecond)
	})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler(t *testing.T) {
	m := New()
	m.Transition("quote", "reviewing", "quoted")
	m.ObserveRequest(http.MethodPost, 200, 5*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `orderline_transitions_total{from="reviewing",kind="quote",to="quoted"} 1`)
	assert.Contains(t, string(body), "orderline_http_request_duration_seconds_bucket")
}

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_New(t *testing.T) {
	m := New()
	assert.NotNil(t, m.UpdatesTotal)
	assert.NotNil(t, m.HandlerDuration)
	assert.NotNil(t, m.OutboundErrorsTotal)
	assert.NotNil(t, m.TaskFailuresTotal)
	assert.NotNil(t, m.KnownUsers)
}

func TestMetrics_RecordUpdate(t *testing.T) {
	m := New()
	m.RecordUpdate("callback")
	m.RecordUpdate("callback")
	m.RecordUpdate("message")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `schedulebot_updates_total{kind="callback"} 2`)
	assert.Contains(t, body, `schedulebot_updates_total{kind="message"} 1`)
}

func TestMetrics_Outbound(t *testing.T) {
	m := New()
	m.RecordOutboundError("send", "forbidden")
	m.RecordTaskFailure("stats.publish")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `schedulebot_outbound_errors_total{action="send",kind="forbidden"} 1`)
	assert.Contains(t, body, `schedulebot_periodic_task_failures_total{task="stats.publish"} 1`)
}

func TestMetrics_Gauges(t *testing.T) {
	m := New()
	m.SetPresence(10, 3)
	m.SetConversations(4)
	m.ObserveHandler("text", "ok", 20*time.Millisecond)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, "schedulebot_known_users 10")
	assert.Contains(t, body, "schedulebot_active_users 3")
	assert.Contains(t, body, "schedulebot_conversations 4")
	assert.Contains(t, body, "schedulebot_handler_duration_seconds")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordUpdate("message")
		m.SetPresence(1, 1)
		m.RecordTaskFailure("x")
	})
}

func getMetricsBody(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

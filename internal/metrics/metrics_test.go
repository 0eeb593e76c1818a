package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()
	m.Claim(true)
	m.Claim(false)
	m.Claim(false)
	m.Event("send_message")
	m.AuthFailure("AUTH_NO_TOKEN")
	m.MessageSent()
	m.Dropped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Claims.WithLabelValues("won")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Claims.WithLabelValues("lost")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("send_message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthFailures.WithLabelValues("AUTH_NO_TOKEN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Messages))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FanoutDropped))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ConnOpened()
		m.Claim(true)
		m.Event("join_chat")
		m.Dropped()
	})
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.MessageSent()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chat_messages_total 1")
}

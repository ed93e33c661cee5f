package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.ConnectionOpened()
	rec.ConnectionOpened()
	rec.ConnectionClosed()
	rec.Participants(3)
	rec.AuthAttempt(true)
	rec.AuthAttempt(false)
	rec.AuthAttempt(false)
	rec.MessageReceived("sync")
	rec.StateUpdated()
	rec.DeliveryFailed("sync")

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.activeConnections))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.connections))
	assert.Equal(t, 3.0, testutil.ToFloat64(rec.participants))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.authAttempts.WithLabelValues("accepted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.authAttempts.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.stateUpdates))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.deliveryFailures.WithLabelValues("sync")))
}

func TestPrometheusRecorder_Handler(t *testing.T) {
	rec := NewPrometheusRecorder(prometheus.NewRegistry())
	rec.ConnectionOpened()

	rr := httptest.NewRecorder()
	rec.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "watchsync_active_connections 1")
}

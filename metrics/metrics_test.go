package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("independent registries do not collide", func(t *testing.T) {
		a := New(prometheus.NewRegistry(), "")
		b := New(prometheus.NewRegistry(), "")

		a.TasksSubmitted.Inc()
		assert.Equal(t, 1.0, testutil.ToFloat64(a.TasksSubmitted))
		assert.Equal(t, 0.0, testutil.ToFloat64(b.TasksSubmitted))
	})

	t.Run("double registration panics", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		New(reg, "")
		assert.Panics(t, func() { New(reg, "") })
	})

	t.Run("labelled counters", func(t *testing.T) {
		m := NewUnregistered()
		m.TasksCompleted.WithLabelValues(ResultPanic).Inc()
		m.BroadcastDeliveries.WithLabelValues(DeliveryFailed).Add(2)

		assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksCompleted.WithLabelValues(ResultPanic)))
		assert.Equal(t, 2.0, testutil.ToFloat64(m.BroadcastDeliveries.WithLabelValues(DeliveryFailed)))
	})
}

func TestNewHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test")
	m.ConnectionsAccepted.Add(3)

	srv := httptest.NewServer(NewHandler(reg))
	defer srv.Close()

	t.Run("healthz", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ok", string(body))
	})

	t.Run("metrics exposition", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "test_reactor_connections_accepted_total 3")
	})

	t.Run("unknown route", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/nope")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

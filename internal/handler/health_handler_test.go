package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-attendance-api/internal/service"
)

func TestHealthHandlerReady(t *testing.T) {
	h := NewHealthHandler(nil, map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
	})

	c, w := newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"postgres":"ok"}}`, w.Body.String())
}

func TestHealthHandlerReadyReportsFailingDependency(t *testing.T) {
	h := NewHealthHandler(nil, map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: connection refused") },
	})

	c, w := newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unavailable","checks":{"postgres":"ok","redis":"dial tcp: connection refused"}}`, w.Body.String())
}

func TestHealthHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.SessionOpened()
	h := NewHealthHandler(metrics, nil)

	c, w := newGinContext(http.MethodGet, "/metrics", nil)
	h.Prometheus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sessions_opened_total")
}

func TestHealthHandlerPrometheusWithoutMetrics(t *testing.T) {
	h := NewHealthHandler(nil, nil)

	c, w := newGinContext(http.MethodGet, "/metrics", nil)
	h.Prometheus(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

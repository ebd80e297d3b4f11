package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	t.Run("emits structured JSON with fields", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(InfoLevel, &buf)

		logger.WithField("principal", int64(42)).WithError(errors.New("nope")).Warn("denied")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "denied", entry["msg"])
		assert.Equal(t, float64(42), entry["principal"])
		assert.Equal(t, "nope", entry["error"])
	})

	t.Run("respects the level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(ErrorLevel, &buf)

		logger.Info("quiet")
		assert.Zero(t, buf.Len())

		logger.Error("loud")
		assert.NotZero(t, buf.Len())
	})
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLogLevel("WARNING"))
	assert.Equal(t, InfoLevel, ParseLogLevel("bogus"))
}

func TestContextHelpers(t *testing.T) {
	ctx := WithUpdateID(context.Background(), 99)
	ctx = WithPrincipalID(ctx, 42)

	assert.Equal(t, int64(99), GetUpdateID(ctx))
	assert.Equal(t, int64(42), GetPrincipalID(ctx))
	assert.Zero(t, GetUpdateID(context.Background()))
}

func TestHealthChecker(t *testing.T) {
	t.Run("liveness is always ok", func(t *testing.T) {
		h := NewHealthChecker("test")
		rec := httptest.NewRecorder()

		h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readiness reflects dependencies", func(t *testing.T) {
		h := NewHealthChecker("test")
		h.AddDependency("store", PingerFunc(func(context.Context) error { return nil }))

		rec := httptest.NewRecorder()
		h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		h.AddDependency("broken", PingerFunc(func(context.Context) error { return errors.New("down") }))
		rec = httptest.NewRecorder()
		h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		status := h.Check(context.Background())
		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Equal(t, StatusHealthy, status.Dependencies["store"].Status)
	})
}

func TestMetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.UpdatesTotal.WithLabelValues("command", "ok").Inc()
	m.ObservePermissionCheck("kick_user", false)
	m.PurgeDeletedTotal.Add(250)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["chitragupt_updates_total"])
	assert.True(t, names["chitragupt_permission_checks_total"])
	assert.True(t, names["chitragupt_purge_deleted_total"])
}

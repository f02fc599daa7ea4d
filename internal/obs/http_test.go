package obs_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/printstore/internal/obs"
)

func TestHTTPObsRecordsRoutePattern(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("printstore", []float64{1, 10}, registry)
	var buf bytes.Buffer
	logger := obs.NewLogger(obs.LogOptions{Format: "json", Level: "info", Out: &buf})

	router := chi.NewRouter()
	router.Use(obs.HTTPObs{Metrics: metrics, Logger: &logger}.Middleware)
	router.Get("/notifications/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/notifications/abc", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	total := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/notifications/{id}", "204"))
	require.Equal(t, float64(1), total)
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Equal(t, float64(0), testutil.ToFloat64(metrics.InFlight))
	require.Contains(t, buf.String(), `"route":"/notifications/{id}"`)
	require.Contains(t, buf.String(), `"message":"http_request"`)
}

func TestNewHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("printstore", nil, registry)
	second := obs.NewHTTPMetrics("printstore", nil, registry)
	require.Same(t, first.ReqTotal, second.ReqTotal)
}

package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/printstore/internal/health"
)

func okProbe(context.Context, time.Duration) error { return nil }

func TestLive(t *testing.T) {
	handler := health.Handler{}
	rr := httptest.NewRecorder()
	handler.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReadySuccess(t *testing.T) {
	handler := health.Handler{Probes: map[string]health.Probe{"redis": okProbe, "storefront": okProbe}}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var status map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	require.Equal(t, map[string]string{"redis": "ok", "storefront": "ok"}, status)
}

func TestReadyFailure(t *testing.T) {
	handler := health.Handler{Probes: map[string]health.Probe{
		"redis": okProbe,
		"storefront": func(context.Context, time.Duration) error {
			return errors.New("storefront down")
		},
	}}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "storefront down")
}

func TestRedisProbe(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	probe := health.RedisProbe(client)
	require.NoError(t, probe(context.Background(), time.Second))
	mr.Close()
	require.Error(t, probe(context.Background(), 100*time.Millisecond))
	require.Error(t, health.RedisProbe(nil)(context.Background(), time.Second))
}

func TestHTTPProbe(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	probe := health.HTTPProbe(srv.Client(), srv.URL+"/api/cart-summary")
	require.NoError(t, probe(context.Background(), time.Second))
	status.Store(http.StatusBadGateway)
	require.Error(t, probe(context.Background(), time.Second))
}

package resilience_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/printstore/internal/resilience"
)

func TestHTTPClientSingleAttempt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := resilience.HTTPClient{
		Client:  srv.Client(),
		Breaker: resilience.NewBreaker(2, 1, time.Minute),
		Timeout: time.Second,
	}
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/cart-summary", nil)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	_, _ = io.Copy(io.Discard, resp.Body)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, int32(1), hits.Load())

	resp, err = client.Do(context.Background(), req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	_, err = client.Do(context.Background(), req)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, int32(2), hits.Load())
}

package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/printstore/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"STORE_BASE_URL": "http://printer.local:5000/",
		"STORE_ORIGIN":   "",
		"SYNC_TIMEOUT":   "",
		"PORT":           "",
	})
	require.NoError(t, err)
	require.Equal(t, "http://printer.local:5000", cfg.StoreBaseURL)
	require.Equal(t, cfg.StoreBaseURL, cfg.StoreOrigin)
	require.Equal(t, 5*time.Second, cfg.SyncTimeout)
	require.Equal(t, ":8081", cfg.HTTPAddr())
	require.Equal(t, "10-S", cfg.RefreshRateLimit)
	require.Equal(t, "120-M", cfg.PushRateLimit)
	require.Nil(t, cfg.MetricsBucketsMS)
}

func TestLoadMetricsBuckets(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"STORE_BASE_URL":         "https://print.example.com",
		"OBS_METRICS_BUCKETS_MS": "5, 50,500",
	})
	require.NoError(t, err)
	require.Equal(t, []float64{5, 50, 500}, cfg.MetricsBucketsMS)

	cfg, err = config.LoadForTests(map[string]string{
		"STORE_BASE_URL":         "https://print.example.com",
		"OBS_METRICS_BUCKETS_MS": "5,fast",
	})
	require.NoError(t, err)
	require.Nil(t, cfg.MetricsBucketsMS)
}

func TestLoadRequiresStoreBaseURL(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{"STORE_BASE_URL": ""})
	require.Error(t, err)

	_, err = config.LoadForTests(map[string]string{"STORE_BASE_URL": "ftp://printer.local"})
	require.Error(t, err)
}

func TestRequireRedis(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"STORE_BASE_URL": "https://print.example.com",
		"REDIS_URL":      "",
		"AGENT_PORT":     ":9000",
	})
	require.NoError(t, err)
	require.Error(t, cfg.RequireRedis())
	require.Equal(t, ":9000", cfg.AgentAddr())
}

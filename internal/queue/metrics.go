package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

var (
	metricsOnce sync.Once

	QueueDepth          *prometheus.GaugeVec
	QueueProcessedTotal *prometheus.CounterVec
	QueueDLQSize        *prometheus.GaugeVec
)

// MustRegisterMetrics registers the queue collectors once.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Approximate number of ready tasks per kind",
		}, []string{"kind"})
		QueueProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_processed_total",
			Help:      "Total tasks processed grouped by status",
		}, []string{"kind", "status"})
		QueueDLQSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_dlq_size",
			Help:      "Number of tasks stored in DLQ",
		}, []string{"kind"})
		for _, c := range []prometheus.Collector{QueueDepth, QueueProcessedTotal, QueueDLQSize} {
			if err := reg.Register(c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					panic(err)
				}
			}
		}
	})
}

func observeProcessed(kind, status string) {
	if QueueProcessedTotal != nil {
		QueueProcessedTotal.WithLabelValues(kind, status).Inc()
	}
}

func observeDepth(ctx context.Context, r redis.UniversalClient, keys keyspace) {
	if QueueDepth == nil {
		return
	}
	if n, err := r.ZCard(ctx, keys.queue()).Result(); err == nil {
		QueueDepth.WithLabelValues(keys.kind).Set(float64(n))
	}
}

func observeDLQ(ctx context.Context, r redis.UniversalClient, keys keyspace) {
	if QueueDLQSize == nil {
		return
	}
	if n, err := r.LLen(ctx, keys.dlq()).Result(); err == nil {
		QueueDLQSize.WithLabelValues(keys.kind).Set(float64(n))
	}
}

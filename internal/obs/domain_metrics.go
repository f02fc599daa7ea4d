package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartSyncTotal counts cart sync outcomes by operation.
	CartSyncTotal *prometheus.CounterVec
	// CartSyncLatency records cart sync latency in milliseconds.
	CartSyncLatency *prometheus.HistogramVec
	// StorefrontActionsTotal counts cart-mutating storefront actions by outcome.
	StorefrontActionsTotal *prometheus.CounterVec
	// PushDecodedTotal counts decoded push payloads by decode tier.
	PushDecodedTotal *prometheus.CounterVec
	// NotificationEventsTotal counts notification lifecycle transitions.
	NotificationEventsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartSyncTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_sync_total",
			Help:      "Count of cart sync outcomes.",
		}, []string{"op", "result"})
		CartSyncLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cart_sync_duration_ms",
			Help:      "Latency of cart sync requests in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"op"})
		StorefrontActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storefront_actions_total",
			Help:      "Count of storefront actions by outcome.",
		}, []string{"action", "result"})
		PushDecodedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_decoded_total",
			Help:      "Count of push payloads by decode tier.",
		}, []string{"tier"})
		NotificationEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_events_total",
			Help:      "Count of notification lifecycle events.",
		}, []string{"event"})

		registerOrReuse(reg, CartSyncTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CartSyncTotal = v
			}
		})
		registerOrReuse(reg, CartSyncLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				CartSyncLatency = v
			}
		})
		registerOrReuse(reg, StorefrontActionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				StorefrontActionsTotal = v
			}
		})
		registerOrReuse(reg, PushDecodedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PushDecodedTotal = v
			}
		})
		registerOrReuse(reg, NotificationEventsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				NotificationEventsTotal = v
			}
		})
	})
}

// ObserveCartSync records the outcome of one cart sync call. It is a no-op
// until MustRegisterDomainMetrics has run.
func ObserveCartSync(op string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	if CartSyncTotal != nil {
		CartSyncTotal.WithLabelValues(op, result).Inc()
	}
	if CartSyncLatency != nil {
		CartSyncLatency.WithLabelValues(op).Observe(DurationMillis(elapsed))
	}
}

// ObserveStorefrontAction records the outcome of a storefront action.
func ObserveStorefrontAction(action string, err error) {
	if StorefrontActionsTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	StorefrontActionsTotal.WithLabelValues(action, result).Inc()
}

// ObservePushDecoded records which decode tier resolved a push payload.
func ObservePushDecoded(tier string) {
	if PushDecodedTotal != nil {
		PushDecodedTotal.WithLabelValues(tier).Inc()
	}
}

// ObserveNotificationEvent records a notification lifecycle event.
func ObserveNotificationEvent(event string) {
	if NotificationEventsTotal != nil {
		NotificationEventsTotal.WithLabelValues(event).Inc()
	}
}

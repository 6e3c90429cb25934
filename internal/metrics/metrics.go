package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the dashboard
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// EventsReceived counts upstream push messages by event name
	EventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "baecha_events_received_total", Help: "Upstream push events received."},
		[]string{"event"},
	)
	// DecodeFailures counts dropped payloads that failed to decode
	DecodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "baecha_event_decode_failures_total", Help: "Upstream payloads dropped after a decode failure."},
		[]string{"event"},
	)
	// UpstreamConnected is 1 while the upstream channel is connected
	UpstreamConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "baecha_upstream_connected", Help: "Whether the upstream event channel is connected."},
	)
	// ReconcilePasses counts overlay passes by layer
	ReconcilePasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "baecha_reconcile_passes_total", Help: "Overlay reconciliation passes by layer."},
		[]string{"layer"},
	)
	// OverlaysLive tracks attached overlays by kind
	OverlaysLive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "baecha_overlays_live", Help: "Overlays currently attached to the map."},
		[]string{"kind"},
	)
	// DispatchRequests counts request_baecha emissions by outcome
	DispatchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "baecha_dispatch_requests_total", Help: "Dispatch requests by outcome."},
		[]string{"outcome"},
	)
	// Viewers tracks connected frame viewers by transport
	Viewers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "baecha_viewers", Help: "Connected dashboard viewers by transport."},
		[]string{"transport"},
	)

	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors on Registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(EventsReceived)
		Registry.MustRegister(DecodeFailures)
		Registry.MustRegister(UpstreamConnected)
		Registry.MustRegister(ReconcilePasses)
		Registry.MustRegister(OverlaysLive)
		Registry.MustRegister(DispatchRequests)
		Registry.MustRegister(Viewers)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

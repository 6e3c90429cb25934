package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"baechamap/internal/dashboard"
	"baechamap/internal/logger"
	"baechamap/internal/metrics"
	"baechamap/internal/webhooks"
)

// Dashboard is what the HTTP surface needs from the presentation loop.
type Dashboard interface {
	Latest() *dashboard.Frame
	ClickCluster(ctx context.Context, clusterID string) error
	ClosePopup(ctx context.Context, clusterID string) error
	RequestDispatch(ctx context.Context) error
}

type Server struct {
	Dash   Dashboard
	Broker EventBroker
	Hooks  *webhooks.Queue
	// Info is merged into /debug/info.
	Info map[string]any

	log logger.Logger
	io  *SocketRelay
}

// NewServer wires the HTTP surface. hooks may be nil when no webhook targets
// are configured.
func NewServer(dash Dashboard, broker EventBroker, hooks *webhooks.Queue, log logger.Logger) *Server {
	if log == nil {
		log = logger.NopLogger{}
	}
	if broker == nil {
		broker = NewBroker()
	}
	s := &Server{Dash: dash, Broker: broker, Hooks: hooks, log: log}
	s.io = NewSocketRelay(dash, broker, log)
	return s
}

// Relay returns the socket.io relay served under /socket.io/.
func (s *Server) Relay() *SocketRelay { return s.io }

// Routes builds the mux with logging and metrics middleware applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)

	// Dashboard
	mux.HandleFunc("GET /v1/status", s.StatusHandler)
	mux.HandleFunc("GET /v1/scene", s.SceneHandler)
	mux.HandleFunc("GET /v1/scene.geojson", s.GeoJSONHandler)
	mux.HandleFunc("GET /v1/scene/stream", s.SceneStreamHandler)
	mux.HandleFunc("POST /v1/clusters/{id}/popup", s.PopupHandler)
	mux.HandleFunc("DELETE /v1/clusters/{id}/popup", s.PopupHandler)
	mux.HandleFunc("POST /v1/baecha/request", s.DispatchRequestHandler)

	// Viewers
	mux.HandleFunc("GET /ws", s.WSHandler)
	mux.Handle("/socket.io/", s.io)

	// Admin
	mux.HandleFunc("GET /v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
	mux.HandleFunc("POST /v1/admin/webhook-dlq/{id}/requeue", s.WebhookRequeueHandler)

	// Docs and debug
	mux.HandleFunc("GET /openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("GET /openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("GET /docs", s.DocsHandler)
	mux.HandleFunc("GET /docs/swagger", s.SwaggerHandler)
	mux.HandleFunc("GET /debug/info", s.DebugJSON)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return logMiddleware(s.log, mux)
}

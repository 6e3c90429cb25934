package api

import (
	"errors"
	"net/http"

	"baechamap/internal/dashboard"
	"baechamap/internal/overlay"
	"baechamap/internal/subscriber"
	"baechamap/internal/webhooks"
)

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

// ReadyHandler reports ready once the upstream channel is connected.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if f := s.Dash.Latest(); f == nil || !f.Status.Connected {
		writeProblem(w, 503, "Not Ready", "upstream channel not connected", r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	f := s.Dash.Latest()
	writeJSON(w, 200, map[string]any{"seq": f.Seq, "at": f.At, "status": f.Status})
}

func (s *Server) SceneHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.Dash.Latest().Scene)
}

func (s *Server) GeoJSONHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/geo+json")
	writeBody(w, 200, s.Dash.Latest().Scene.GeoJSON())
}

// PopupHandler opens (POST) or closes (DELETE) a cluster's detail popup.
func (s *Server) PopupHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var err error
	if r.Method == http.MethodDelete {
		err = s.Dash.ClosePopup(r.Context(), id)
	} else {
		err = s.Dash.ClickCluster(r.Context(), id)
	}
	if err != nil {
		s.commandProblem(w, r, err)
		return
	}
	writeJSON(w, 202, map[string]int{"accepted": 1})
}

// DispatchRequestHandler emits request_baecha upstream.
func (s *Server) DispatchRequestHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Dash.RequestDispatch(r.Context()); err != nil {
		s.commandProblem(w, r, err)
		return
	}
	writeJSON(w, 202, map[string]int{"accepted": 1})
}

func (s *Server) commandProblem(w http.ResponseWriter, r *http.Request, err error) {
	status, title := commandStatus(err)
	if status >= 500 {
		s.log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	writeProblem(w, status, title, err.Error(), r.URL.Path)
}

func commandStatus(err error) (int, string) {
	switch {
	case errors.Is(err, overlay.ErrUnknownCluster):
		return http.StatusNotFound, "Cluster not found"
	case errors.Is(err, overlay.ErrNoPopup):
		return http.StatusNotFound, "Popup not open"
	case errors.Is(err, subscriber.ErrThrottled):
		return http.StatusTooManyRequests, "Dispatch request throttled"
	case errors.Is(err, subscriber.ErrNotConnected), errors.Is(err, dashboard.ErrStopped):
		return http.StatusServiceUnavailable, "Unavailable"
	default:
		return http.StatusInternalServerError, "Command failed"
	}
}

// Admin: webhook deliveries and dead-letter requeue
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if s.Hooks == nil {
		writeJSON(w, 200, map[string]any{"items": []webhooks.Delivery{}})
		return
	}
	writeJSON(w, 200, map[string]any{"items": s.Hooks.List(r.URL.Query().Get("status"))})
}

func (s *Server) WebhookRequeueHandler(w http.ResponseWriter, r *http.Request) {
	if s.Hooks == nil {
		writeProblem(w, 404, "Not Found", "webhooks disabled", r.URL.Path)
		return
	}
	if err := s.Hooks.Requeue(r.PathValue("id")); err != nil {
		writeProblem(w, 404, "Requeue failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 202, map[string]int{"accepted": 1})
}

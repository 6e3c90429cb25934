package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"baechamap/internal/metrics"
)

const heartbeatInterval = 15 * time.Second

// SceneStreamHandler streams frames as server-sent events, starting with the
// latest frame.
func (s *Server) SceneStreamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(TopicFrames)
	defer s.Broker.Unsubscribe(TopicFrames, ch)
	metrics.Viewers.WithLabelValues("sse").Inc()
	defer metrics.Viewers.WithLabelValues("sse").Dec()

	if b, err := json.Marshal(s.Dash.Latest()); err == nil {
		writeSSE(w, "frame", b)
		flusher.Flush()
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, evt.Type, evt.Data)
			flusher.Flush()
		case <-heartbeat.C:
			writeSSE(w, "heartbeat", []byte(fmt.Sprintf(`{"ts":%q}`, time.Now().UTC().Format(time.RFC3339))))
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

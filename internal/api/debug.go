package api

import (
	"net/http"
	"time"

	"baechamap/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
	}
	if s.Info != nil {
		info["config"] = s.Info
	}
	if f := s.Dash.Latest(); f != nil {
		info["frameSeq"] = f.Seq
		info["connected"] = f.Status.Connected
	}
	writeJSON(w, 200, info)
}

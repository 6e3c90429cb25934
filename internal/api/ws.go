package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"baechamap/internal/metrics"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	wsReadTimeout = 60 * time.Second
	wsPingEvery   = 20 * time.Second
	wsWriteWait   = 5 * time.Second
)

// wsMessage frames every message on /ws in both directions.
type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type clusterPayload struct {
	ClusterID string `json:"clusterId"`
}

// WSHandler streams frames to a viewer and accepts its commands:
// request_baecha, cluster_click, popup_close and ping. Each command is
// answered with an ack or an error carrying the same id.
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	metrics.Viewers.WithLabelValues("ws").Inc()
	defer metrics.Viewers.WithLabelValues("ws").Dec()

	var mu sync.Mutex
	write := func(v any) error {
		mu.Lock()
		defer mu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v)
	}

	ch := s.Broker.Subscribe(TopicFrames)
	defer s.Broker.Unsubscribe(TopicFrames, ch)

	if b, err := json.Marshal(s.Dash.Latest()); err == nil {
		_ = write(wsMessage{Type: "frame", Payload: b})
	}

	done := make(chan struct{})
	defer close(done)

	// Fanout
	go func() {
		for evt := range ch {
			if err := write(wsMessage{Type: evt.Type, Payload: evt.Data}); err != nil {
				return
			}
		}
	}()
	// Keepalive
	go func() {
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsReadTimeout)) })

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		switch msg.Type {
		case "ping":
			_ = write(wsMessage{Type: "pong", ID: msg.ID})
		case "pong":
		case "request_baecha", "cluster_click", "popup_close":
			_ = write(s.wsCommand(r.Context(), msg))
		default:
			_ = write(wsError(msg.ID, "unknown message type "+msg.Type))
		}
	}
}

func (s *Server) wsCommand(ctx context.Context, msg wsMessage) wsMessage {
	var err error
	switch msg.Type {
	case "request_baecha":
		err = s.Dash.RequestDispatch(ctx)
	default:
		var pl clusterPayload
		if e := json.Unmarshal(msg.Payload, &pl); e != nil || pl.ClusterID == "" {
			return wsError(msg.ID, "clusterId required")
		}
		if msg.Type == "cluster_click" {
			err = s.Dash.ClickCluster(ctx, pl.ClusterID)
		} else {
			err = s.Dash.ClosePopup(ctx, pl.ClusterID)
		}
	}
	if err != nil {
		return wsError(msg.ID, err.Error())
	}
	return wsMessage{Type: "ack", ID: msg.ID}
}

func wsError(id, message string) wsMessage {
	b, _ := json.Marshal(map[string]string{"message": message})
	return wsMessage{Type: "error", ID: id, Payload: b}
}

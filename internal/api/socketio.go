package api

import (
	"context"
	"encoding/json"
	"net/http"

	socketio "github.com/googollee/go-socket.io"

	"baechamap/internal/logger"
	"baechamap/internal/metrics"
)

// broadcaster is the part of the socket.io server the fanout uses.
type broadcaster interface {
	BroadcastToNamespace(namespace string, event string, args ...interface{}) bool
}

// SocketRelay serves frames to socket.io viewers on the root namespace and
// accepts the same commands as /ws. Command events are acknowledged with
// "ok" or the error text.
type SocketRelay struct {
	srv    *socketio.Server
	dash   Dashboard
	broker EventBroker
	log    logger.Logger
}

func NewSocketRelay(dash Dashboard, broker EventBroker, log logger.Logger) *SocketRelay {
	r := &SocketRelay{srv: socketio.NewServer(nil), dash: dash, broker: broker, log: log}

	r.srv.OnConnect("/", func(c socketio.Conn) error {
		metrics.Viewers.WithLabelValues("socketio").Inc()
		if b, err := json.Marshal(r.dash.Latest()); err == nil {
			c.Emit("frame", json.RawMessage(b))
		}
		return nil
	})
	r.srv.OnEvent("/", "request_baecha", func(c socketio.Conn) string {
		return ackText(r.dash.RequestDispatch(context.Background()))
	})
	r.srv.OnEvent("/", "cluster_click", func(c socketio.Conn, clusterID string) string {
		return ackText(r.dash.ClickCluster(context.Background(), clusterID))
	})
	r.srv.OnEvent("/", "popup_close", func(c socketio.Conn, clusterID string) string {
		return ackText(r.dash.ClosePopup(context.Background(), clusterID))
	})
	r.srv.OnError("/", func(c socketio.Conn, err error) {
		r.log.Warnf("socket.io error: %v", err)
	})
	r.srv.OnDisconnect("/", func(c socketio.Conn, reason string) {
		metrics.Viewers.WithLabelValues("socketio").Dec()
	})
	return r
}

func ackText(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}

func (r *SocketRelay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.srv.ServeHTTP(w, req)
}

// Run serves the socket.io engine and relays frames until ctx is done.
func (r *SocketRelay) Run(ctx context.Context) error {
	go func() {
		if err := r.srv.Serve(); err != nil {
			r.log.Errorf("socket.io serve: %v", err)
		}
	}()
	defer func() { _ = r.srv.Close() }()
	r.fanout(ctx, r.srv)
	return nil
}

func (r *SocketRelay) fanout(ctx context.Context, b broadcaster) {
	ch := r.broker.Subscribe(TopicFrames)
	defer r.broker.Unsubscribe(TopicFrames, ch)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			b.BroadcastToNamespace("/", evt.Type, evt.Data)
		}
	}
}

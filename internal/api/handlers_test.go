package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baechamap/internal/dashboard"
	"baechamap/internal/maphost"
	"baechamap/internal/metrics"
	"baechamap/internal/model"
	"baechamap/internal/overlay"
	"baechamap/internal/state"
	"baechamap/internal/subscriber"
	"baechamap/internal/webhooks"
)

type fakeDash struct {
	mu          sync.Mutex
	frame       *dashboard.Frame
	dispatchErr error
	clicks      []string
	closes      []string
	requests    int
}

func (f *fakeDash) Latest() *dashboard.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame
}

func (f *fakeDash) ClickCluster(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != "c1" {
		return overlay.ErrUnknownCluster
	}
	f.clicks = append(f.clicks, id)
	return nil
}

func (f *fakeDash) ClosePopup(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clicks) == 0 {
		return overlay.ErrNoPopup
	}
	f.closes = append(f.closes, id)
	return nil
}

func (f *fakeDash) RequestDispatch(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return f.dispatchErr
}

func sampleFrame(connected bool) *dashboard.Frame {
	return &dashboard.Frame{
		Seq:    3,
		At:     time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		Status: state.Status{Connected: connected, Taxis: 1, Clusters: 1},
		Scene: maphost.Scene{
			Center:  maphost.DefaultCenter,
			Zoom:    maphost.DefaultZoom,
			Circles: []maphost.CircleView{{ID: "o1", Key: "c1", Center: model.LatLng{Lat: 36, Lng: 127}, Radius: 500}},
			Markers: []maphost.MarkerView{{ID: "o2", Key: "t1", Position: model.LatLng{Lat: 36.1, Lng: 127.1}, Icon: "taxi"}},
		},
	}
}

func newTestServer(t *testing.T) (*Server, *fakeDash, http.Handler) {
	t.Helper()
	metrics.RegisterDefault()
	d := &fakeDash{frame: sampleFrame(false)}
	s := NewServer(d, NewBroker(), webhooks.NewQueue(), nil)
	return s, d, s.Routes()
}

func do(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestHealthReady(t *testing.T) {
	_, d, h := newTestServer(t)
	assert.Equal(t, 200, do(h, http.MethodGet, "/healthz").Code)

	rr := do(h, http.MethodGet, "/readyz")
	assert.Equal(t, 503, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	d.frame = sampleFrame(true)
	assert.Equal(t, 200, do(h, http.MethodGet, "/readyz").Code)
}

func TestStatusAndScene(t *testing.T) {
	_, _, h := newTestServer(t)

	rr := do(h, http.MethodGet, "/v1/status")
	require.Equal(t, 200, rr.Code)
	var st struct {
		Seq    uint64       `json:"seq"`
		Status state.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.EqualValues(t, 3, st.Seq)
	assert.Equal(t, 1, st.Status.Taxis)

	rr = do(h, http.MethodGet, "/v1/scene")
	require.Equal(t, 200, rr.Code)
	var sc maphost.Scene
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sc))
	assert.Equal(t, maphost.DefaultZoom, sc.Zoom)
	assert.Len(t, sc.Circles, 1)

	rr = do(h, http.MethodGet, "/v1/scene.geojson")
	require.Equal(t, 200, rr.Code)
	assert.Equal(t, "application/geo+json", rr.Header().Get("Content-Type"))
	var fc maphost.FeatureCollection
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 2)
}

func TestPopupRoutes(t *testing.T) {
	_, d, h := newTestServer(t)

	assert.Equal(t, 404, do(h, http.MethodDelete, "/v1/clusters/c1/popup").Code)
	assert.Equal(t, 202, do(h, http.MethodPost, "/v1/clusters/c1/popup").Code)
	assert.Equal(t, 202, do(h, http.MethodDelete, "/v1/clusters/c1/popup").Code)
	assert.Equal(t, []string{"c1"}, d.clicks)
	assert.Equal(t, []string{"c1"}, d.closes)

	rr := do(h, http.MethodPost, "/v1/clusters/zz/popup")
	assert.Equal(t, 404, rr.Code)
	var p Problem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, "Cluster not found", p.Title)
	assert.Equal(t, "/v1/clusters/zz/popup", p.Instance)

	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodGet, "/v1/clusters/c1/popup").Code)
}

func TestDispatchRequest(t *testing.T) {
	_, d, h := newTestServer(t)
	assert.Equal(t, 202, do(h, http.MethodPost, "/v1/baecha/request").Code)

	d.dispatchErr = subscriber.ErrThrottled
	rr := do(h, http.MethodPost, "/v1/baecha/request")
	assert.Equal(t, 429, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	d.dispatchErr = subscriber.ErrNotConnected
	assert.Equal(t, 503, do(h, http.MethodPost, "/v1/baecha/request").Code)

	d.dispatchErr = dashboard.ErrStopped
	assert.Equal(t, 503, do(h, http.MethodPost, "/v1/baecha/request").Code)
	assert.Equal(t, 4, d.requests)
}

func TestDocsAndDebug(t *testing.T) {
	s, _, h := newTestServer(t)
	s.Info = map[string]any{"transport": "websocket"}

	rr := do(h, http.MethodGet, "/openapi.yaml")
	require.Equal(t, 200, rr.Code)
	assert.Contains(t, rr.Body.String(), "openapi: 3.0.3")

	rr = do(h, http.MethodGet, "/openapi.json")
	require.Equal(t, 200, rr.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	assert.Contains(t, doc["paths"], "/v1/baecha/request")

	assert.Contains(t, do(h, http.MethodGet, "/docs").Body.String(), "/openapi.yaml")
	assert.Contains(t, do(h, http.MethodGet, "/docs/swagger").Body.String(), "SwaggerUIBundle")

	rr = do(h, http.MethodGet, "/debug/info")
	require.Equal(t, 200, rr.Code)
	var info map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	assert.Contains(t, info, "build")
	assert.Equal(t, map[string]any{"transport": "websocket"}, info["config"])
}

func TestMetricsEndpoint(t *testing.T) {
	_, _, h := newTestServer(t)
	do(h, http.MethodGet, "/healthz")
	rr := do(h, http.MethodGet, "/metrics")
	require.Equal(t, 200, rr.Code)
	assert.Contains(t, rr.Body.String(), `http_requests_total{method="GET",path="GET /healthz",status="200"}`)
}

func TestWebhookAdmin(t *testing.T) {
	s, _, h := newTestServer(t)
	id := s.Hooks.Enqueue("baecha.cancelled", "http://h", "", []byte(`{}`))
	require.NoError(t, s.Hooks.Fail(id, "boom", 500, 1))

	rr := do(h, http.MethodGet, "/v1/admin/webhook-deliveries?status=dead")
	require.Equal(t, 200, rr.Code)
	assert.Contains(t, rr.Body.String(), id)

	assert.Equal(t, 202, do(h, http.MethodPost, "/v1/admin/webhook-dlq/"+id+"/requeue").Code)
	assert.Equal(t, 404, do(h, http.MethodPost, "/v1/admin/webhook-dlq/"+id+"/requeue").Code)
	assert.Len(t, s.Hooks.List(webhooks.StatusPending), 1)
}

func TestSceneStream(t *testing.T) {
	s, _, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/scene/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readSSE(resp)
	first := <-events
	assert.Equal(t, "frame", first[0])
	assert.Contains(t, first[1], `"seq":3`)

	// The handler subscribes before writing the first frame, so this is seen.
	FrameRelay{Broker: s.Broker}.PublishFrame(&dashboard.Frame{Seq: 4})
	select {
	case ev := <-events:
		assert.Equal(t, "frame", ev[0])
		assert.Contains(t, ev[1], `"seq":4`)
	case <-time.After(2 * time.Second):
		t.Fatal("no streamed frame")
	}
}

// readSSE yields [event, data] pairs.
func readSSE(resp *http.Response) <-chan [2]string {
	out := make(chan [2]string, 8)
	go func() {
		defer close(out)
		buf := make([]byte, 0, 4096)
		tmp := make([]byte, 1024)
		for {
			n, err := resp.Body.Read(tmp)
			buf = append(buf, tmp[:n]...)
			for {
				idx := strings.Index(string(buf), "\n\n")
				if idx < 0 {
					break
				}
				var ev [2]string
				for _, line := range strings.Split(string(buf[:idx]), "\n") {
					if v, ok := strings.CutPrefix(line, "event: "); ok {
						ev[0] = v
					}
					if v, ok := strings.CutPrefix(line, "data: "); ok {
						ev[1] = v
					}
				}
				out <- ev
				buf = buf[idx+2:]
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeBroadcaster) BroadcastToNamespace(ns, event string, args ...interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, ns+" "+event)
	return true
}

func (f *fakeBroadcaster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestSocketRelayFanout(t *testing.T) {
	s, _, _ := newTestServer(t)
	fb := &fakeBroadcaster{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { s.Relay().fanout(ctx, fb); close(done) }()

	require.Eventually(t, func() bool {
		FrameRelay{Broker: s.Broker}.PublishFrame(&dashboard.Frame{Seq: 9})
		return fb.count() > 0
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, "/ frame", fb.sent[0])
}

func TestAckText(t *testing.T) {
	assert.Equal(t, "ok", ackText(nil))
	assert.Equal(t, subscriber.ErrThrottled.Error(), ackText(subscriber.ErrThrottled))
}

package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// Event names on the upstream channel.
const (
	EventConnect       = "connect"
	EventDisconnect    = "disconnect"
	EventUpdate        = "update"
	EventPredict       = "predict"
	EventBaecha        = "baecha"
	EventCancelBaecha  = "cancel_baecha"
	EventRequestBaecha = "request_baecha"
)

var (
	ErrNotConnected = errors.New("channel not connected")
	ErrClosed       = errors.New("channel closed")
)

// Handler receives the raw payload of one event. connect and disconnect carry
// no payload.
type Handler func(data json.RawMessage)

// Channel is a bidirectional real-time event channel to the dispatch backend.
type Channel interface {
	// On registers h for event and returns the func that removes it.
	On(event string, h Handler) (off func())
	// Run connects and keeps the channel up until ctx is done or Close is
	// called, reconnecting as the transport allows.
	Run(ctx context.Context) error
	Emit(ctx context.Context, event string, payload any) error
	Connected() bool
	Close() error
}

// envelope frames one event on the websocket transport.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// handlerSet is the registration table shared by the transports.
type handlerSet struct {
	mu   sync.RWMutex
	next uint64
	m    map[string]map[uint64]Handler
}

func newHandlerSet() *handlerSet {
	return &handlerSet{m: map[string]map[uint64]Handler{}}
}

func (h *handlerSet) on(event string, fn Handler) func() {
	h.mu.Lock()
	h.next++
	id := h.next
	if h.m[event] == nil {
		h.m[event] = map[uint64]Handler{}
	}
	h.m[event][id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.m[event], id)
			if len(h.m[event]) == 0 {
				delete(h.m, event)
			}
			h.mu.Unlock()
		})
	}
}

func (h *handlerSet) dispatch(event string, data json.RawMessage) {
	h.mu.RLock()
	fns := make([]Handler, 0, len(h.m[event]))
	for _, fn := range h.m[event] {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(data)
	}
}

func (h *handlerSet) count(event string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.m[event])
}

func marshalPayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(payload)
}

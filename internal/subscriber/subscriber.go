// Package subscriber turns the dispatch backend's push messages into typed
// dashboard events.
package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"baechamap/internal/logger"
	"baechamap/internal/metrics"
	"baechamap/internal/model"
)

var ErrThrottled = errors.New("dispatch request throttled")

// Event is one decoded upstream message.
type Event interface{ eventName() string }

type Connected struct{}
type Disconnected struct{}

// PositionUpdate replaces the taxi list.
type PositionUpdate struct{ Taxis []model.Taxi }

// Prediction replaces the cluster mapping.
type Prediction struct{ Clusters model.Clusters }

// DispatchResult carries a baecha result.
type DispatchResult struct{ Result model.BaechaResult }

// CancelAssignment removes one taxi's assignment.
type CancelAssignment struct{ TaxiID string }

func (Connected) eventName() string        { return EventConnect }
func (Disconnected) eventName() string     { return EventDisconnect }
func (PositionUpdate) eventName() string   { return EventUpdate }
func (Prediction) eventName() string       { return EventPredict }
func (DispatchResult) eventName() string   { return EventBaecha }
func (CancelAssignment) eventName() string { return EventCancelBaecha }

type Options struct {
	// DispatchRate and DispatchBurst bound request_baecha emissions. A zero
	// rate disables throttling.
	DispatchRate  float64
	DispatchBurst int
	Buffer        int
}

type Subscriber struct {
	ch      Channel
	log     logger.Logger
	limiter *rate.Limiter
	out     chan Event

	mu   sync.Mutex
	offs []func()
	done chan struct{}
	once sync.Once
}

func New(ch Channel, opts Options, log logger.Logger) *Subscriber {
	if log == nil {
		log = logger.NopLogger{}
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if opts.DispatchRate > 0 {
		burst := opts.DispatchBurst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(opts.DispatchRate), burst)
	}
	return &Subscriber{ch: ch, log: log, limiter: lim, out: make(chan Event, opts.Buffer), done: make(chan struct{})}
}

// Events delivers decoded events in arrival order.
func (s *Subscriber) Events() <-chan Event { return s.out }

// Run registers the event handlers and drives the channel until ctx is done.
// Handlers are released when Run returns.
func (s *Subscriber) Run(ctx context.Context) error {
	s.mu.Lock()
	s.offs = []func(){
		s.ch.On(EventConnect, func(json.RawMessage) { s.deliver(Connected{}) }),
		s.ch.On(EventDisconnect, func(json.RawMessage) { s.deliver(Disconnected{}) }),
		s.ch.On(EventUpdate, s.onUpdate),
		s.ch.On(EventPredict, s.onPredict),
		s.ch.On(EventBaecha, s.onBaecha),
		s.ch.On(EventCancelBaecha, s.onCancel),
	}
	s.mu.Unlock()
	defer s.release()
	return s.ch.Run(ctx)
}

func (s *Subscriber) release() {
	s.mu.Lock()
	offs := s.offs
	s.offs = nil
	s.mu.Unlock()
	for _, off := range offs {
		off()
	}
}

// Close stops delivery and closes the channel.
func (s *Subscriber) Close() error {
	s.once.Do(func() { close(s.done) })
	s.release()
	return s.ch.Close()
}

// RequestDispatch asks the backend to run a dispatch round.
func (s *Subscriber) RequestDispatch(ctx context.Context) error {
	if !s.limiter.Allow() {
		metrics.DispatchRequests.WithLabelValues("throttled").Inc()
		return ErrThrottled
	}
	if err := s.ch.Emit(ctx, EventRequestBaecha, nil); err != nil {
		metrics.DispatchRequests.WithLabelValues("error").Inc()
		return fmt.Errorf("request dispatch: %w", err)
	}
	metrics.DispatchRequests.WithLabelValues("sent").Inc()
	return nil
}

func (s *Subscriber) deliver(e Event) {
	metrics.EventsReceived.WithLabelValues(e.eventName()).Inc()
	select {
	case s.out <- e:
	case <-s.done:
	}
}

func (s *Subscriber) dropped(event string, err error, data json.RawMessage) {
	metrics.DecodeFailures.WithLabelValues(event).Inc()
	s.log.Errorf("dropping malformed %s payload: %v (%d bytes)", event, err, len(data))
}

func (s *Subscriber) onUpdate(data json.RawMessage) {
	var taxis []model.Taxi
	if err := json.Unmarshal(data, &taxis); err != nil {
		s.dropped(EventUpdate, err, data)
		return
	}
	s.deliver(PositionUpdate{Taxis: taxis})
}

func (s *Subscriber) onPredict(data json.RawMessage) {
	clusters, err := model.DecodeClusters(data)
	if err != nil {
		s.dropped(EventPredict, err, data)
		return
	}
	s.deliver(Prediction{Clusters: clusters})
}

func (s *Subscriber) onBaecha(data json.RawMessage) {
	var r model.BaechaResult
	if err := json.Unmarshal(data, &r); err != nil {
		s.dropped(EventBaecha, err, data)
		return
	}
	s.log.Infof("received baecha result with %d assignments", len(r.Results))
	s.deliver(DispatchResult{Result: r})
}

func (s *Subscriber) onCancel(data json.RawMessage) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		s.dropped(EventCancelBaecha, err, data)
		return
	}
	s.log.Infof("%s canceled", id)
	s.deliver(CancelAssignment{TaxiID: id})
}

// Package dashboard runs the presentation loop. One goroutine owns the UI
// state, the overlay reconciler and the map host; everything else talks to it
// through channels and reads the latest published Frame.
package dashboard

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"baechamap/internal/logger"
	"baechamap/internal/maphost"
	"baechamap/internal/metrics"
	"baechamap/internal/overlay"
	"baechamap/internal/state"
	"baechamap/internal/subscriber"
)

const DefaultSuccessDisplay = 3 * time.Second

// Notification event types.
const (
	EventDispatched = "baecha.dispatched"
	EventCancelled  = "baecha.cancelled"
)

var ErrStopped = errors.New("dashboard stopped")

// Source is where the loop gets upstream events from. *subscriber.Subscriber
// satisfies it.
type Source interface {
	Events() <-chan subscriber.Event
	RequestDispatch(ctx context.Context) error
}

// Sink receives every frame the loop publishes.
type Sink interface {
	PublishFrame(f *Frame)
}

// Notifier is told about dispatch results and cancellations.
type Notifier interface {
	Emit(ctx context.Context, eventType string, data any)
}

type Options struct {
	// SuccessDisplay is how long the dispatch-succeeded flag stays up.
	SuccessDisplay time.Duration
	Map            maphost.Options
	Sink           Sink
	Notifier       Notifier
}

// Frame is what viewers see: the status readout and the map scene.
type Frame struct {
	Seq    uint64        `json:"seq"`
	At     time.Time     `json:"at"`
	Status state.Status  `json:"status"`
	Scene  maphost.Scene `json:"scene"`
}

type command struct {
	op    func() error
	reply chan error
}

type Dashboard struct {
	src  Source
	opts Options
	log  logger.Logger

	st   *state.State
	host *maphost.Host
	rec  *overlay.Reconciler

	timer  *time.Timer
	expire <-chan time.Time

	seq    uint64
	latest atomic.Pointer[Frame]
	cmds   chan command
	done   chan struct{}
}

func New(src Source, opts Options, log logger.Logger) *Dashboard {
	if log == nil {
		log = logger.NopLogger{}
	}
	if opts.SuccessDisplay <= 0 {
		opts.SuccessDisplay = DefaultSuccessDisplay
	}
	host := maphost.New(opts.Map)
	d := &Dashboard{
		src:  src,
		opts: opts,
		log:  log,
		st:   state.New(),
		host: host,
		rec:  overlay.New(host.Map(), log),
		cmds: make(chan command),
		done: make(chan struct{}),
	}
	d.rec.Reconcile(d.st.View())
	d.render(false)
	return d
}

// Latest returns the most recently published frame. It never blocks.
func (d *Dashboard) Latest() *Frame { return d.latest.Load() }

// Run drives the loop until ctx is done or the event source closes. Every
// overlay is released before Run returns.
func (d *Dashboard) Run(ctx context.Context) error {
	defer close(d.done)
	defer d.teardown()

	events := d.src.Events()
	for {
		dirty := false
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			dirty = d.apply(ctx, e)
		case c := <-d.cmds:
			err := c.op()
			dirty = err == nil
			c.reply <- err
		case <-d.expire:
			d.timer, d.expire = nil, nil
			dirty = d.st.SetDispatchSucceeded(false)
		}
		if dirty {
			d.rec.Reconcile(d.st.View())
			d.render(true)
		}
	}
}

func (d *Dashboard) apply(ctx context.Context, e subscriber.Event) bool {
	switch e := e.(type) {
	case subscriber.Connected:
		metrics.UpstreamConnected.Set(1)
		return d.st.SetConnected(true)
	case subscriber.Disconnected:
		metrics.UpstreamConnected.Set(0)
		return d.st.SetConnected(false)
	case subscriber.PositionUpdate:
		return d.st.ReplaceTaxis(e.Taxis)
	case subscriber.Prediction:
		return d.st.ReplaceClusters(e.Clusters)
	case subscriber.DispatchResult:
		applied := d.st.ApplyBaecha(e.Result)
		if applied {
			d.notify(ctx, EventDispatched, map[string]any{
				"assignments": e.Result.Assignments(),
				"reasons":     e.Result.Reasons(),
			})
		}
		if d.st.SetDispatchSucceeded(true) {
			d.armTimer()
			return true
		}
		return applied
	case subscriber.CancelAssignment:
		if !d.st.CancelAssignment(e.TaxiID) {
			d.log.Debugf("cancel for unassigned taxi %s", e.TaxiID)
			return false
		}
		d.notify(ctx, EventCancelled, map[string]any{"taxiId": e.TaxiID})
		return true
	default:
		d.log.Warnf("unhandled event %T", e)
		return false
	}
}

// armTimer starts the auto-clear countdown. It is only called when the flag
// goes up, so repeated results never extend it.
func (d *Dashboard) armTimer() {
	d.timer = time.NewTimer(d.opts.SuccessDisplay)
	d.expire = d.timer.C
}

func (d *Dashboard) notify(ctx context.Context, eventType string, data any) {
	if d.opts.Notifier == nil {
		return
	}
	d.opts.Notifier.Emit(ctx, eventType, data)
}

func (d *Dashboard) render(publish bool) {
	metrics.OverlaysLive.WithLabelValues(string(maphost.KindCircle)).Set(float64(d.host.Count(maphost.KindCircle)))
	metrics.OverlaysLive.WithLabelValues(string(maphost.KindMarker)).Set(float64(d.host.Count(maphost.KindMarker)))
	metrics.OverlaysLive.WithLabelValues(string(maphost.KindPolyline)).Set(float64(d.host.Count(maphost.KindPolyline)))

	d.seq++
	f := &Frame{Seq: d.seq, At: time.Now().UTC(), Status: d.st.View().Status(), Scene: d.host.Snapshot()}
	d.latest.Store(f)
	if publish && d.opts.Sink != nil {
		d.opts.Sink.PublishFrame(f)
	}
}

func (d *Dashboard) teardown() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer, d.expire = nil, nil
	}
	d.rec.Close()
	d.render(true)
	metrics.UpstreamConnected.Set(0)
}

func (d *Dashboard) do(ctx context.Context, op func() error) error {
	c := command{op: op, reply: make(chan error, 1)}
	select {
	case d.cmds <- c:
	case <-d.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClickCluster opens the detail popup of a cluster.
func (d *Dashboard) ClickCluster(ctx context.Context, clusterID string) error {
	return d.do(ctx, func() error { return d.rec.OpenPopup(clusterID) })
}

// ClosePopup closes a cluster's popup.
func (d *Dashboard) ClosePopup(ctx context.Context, clusterID string) error {
	return d.do(ctx, func() error { return d.rec.ClosePopup(clusterID) })
}

// RequestDispatch asks the backend for a dispatch round.
func (d *Dashboard) RequestDispatch(ctx context.Context) error {
	return d.src.RequestDispatch(ctx)
}

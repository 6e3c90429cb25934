// Package overlay keeps the map's overlays in step with dashboard state.
//
// Each state slice has a layer. Cluster circles and taxi markers are rebuilt
// as a whole pass whenever their slice changes: the previous pass is released
// before the next one attaches anything. Assignment lines are keyed by taxi
// and updated in place.
package overlay

import (
	"errors"

	"baechamap/internal/logger"
	"baechamap/internal/maphost"
	"baechamap/internal/metrics"
	"baechamap/internal/state"
)

const (
	LayerClusters    = "clusters"
	LayerTaxis       = "taxis"
	LayerAssignments = "assignments"
)

var (
	ErrUnknownCluster = errors.New("unknown cluster")
	ErrNoPopup        = errors.New("no popup open")
)

// pass is the set of overlays one reconciliation created.
type pass struct {
	overlays []maphost.Overlay
}

func (p *pass) attach(o maphost.Overlay) maphost.Overlay {
	p.overlays = append(p.overlays, o)
	return o
}

func (p *pass) release() {
	for _, o := range p.overlays {
		o.Detach()
	}
	p.overlays = nil
}

type Reconciler struct {
	m   maphost.Map
	log logger.Logger

	clusters clusterLayer
	taxis    taxiLayer
	lines    lineLayer
}

func New(m maphost.Map, log logger.Logger) *Reconciler {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Reconciler{
		m:        m,
		log:      log,
		clusters: clusterLayer{popups: map[string]maphost.Overlay{}},
		lines:    lineLayer{lines: map[string]maphost.Polyline{}},
	}
}

// Reconcile brings every layer whose inputs changed in line with v and
// returns the names of the layers it touched.
func (r *Reconciler) Reconcile(v state.View) []string {
	var touched []string
	if r.clusters.sync(r.m, r.log, v) {
		touched = append(touched, LayerClusters)
	}
	if r.taxis.sync(r.m, v) {
		touched = append(touched, LayerTaxis)
	}
	if r.lines.sync(r.m, r.log, v) {
		touched = append(touched, LayerAssignments)
	}
	for _, l := range touched {
		metrics.ReconcilePasses.WithLabelValues(l).Inc()
	}
	return touched
}

// OpenPopup opens the detail popup of a cluster, replacing any popup already
// open for it.
func (r *Reconciler) OpenPopup(clusterID string) error {
	return r.clusters.openPopup(r.m, r.log, clusterID)
}

// ClosePopup removes a cluster's popup and leaves its circle alone.
func (r *Reconciler) ClosePopup(clusterID string) error {
	return r.clusters.closePopup(clusterID)
}

// Close releases every overlay the reconciler owns.
func (r *Reconciler) Close() {
	r.clusters.release()
	r.taxis.release()
	r.lines.release()
}

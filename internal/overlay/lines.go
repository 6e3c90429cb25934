package overlay

import (
	"baechamap/internal/logger"
	"baechamap/internal/maphost"
	"baechamap/internal/model"
	"baechamap/internal/state"
)

const LineStyle = "shortdash"

// lineLayer owns one polyline per assigned taxi, from the taxi to its target
// cluster.
type lineLayer struct {
	synced bool
	revs   [3]uint64
	lines  map[string]maphost.Polyline
}

func (l *lineLayer) sync(m maphost.Map, log logger.Logger, v state.View) bool {
	revs := [3]uint64{v.TaxisRev, v.AssignmentsRev, v.ClustersRev}
	if l.synced && l.revs == revs {
		return false
	}

	assigned := map[string]struct{}{}
	for _, t := range v.Taxis {
		target, ok := v.Assignments[t.ID]
		if !ok || target == "" {
			continue
		}
		dst, ok := targetOf(v, target)
		if !ok {
			log.Debugf("taxi %s assigned to unknown cluster %s, no line drawn", t.ID, target)
			continue
		}
		assigned[t.ID] = struct{}{}
		path := []model.LatLng{t.Position(), dst}
		if ln, ok := l.lines[t.ID]; ok {
			ln.SetPath(path)
			continue
		}
		l.lines[t.ID] = m.AddPolyline(maphost.PolylineOptions{Key: t.ID, Path: path, StrokeStyle: LineStyle})
	}
	for id, ln := range l.lines {
		if _, ok := assigned[id]; !ok {
			ln.Detach()
			delete(l.lines, id)
		}
	}
	l.synced = true
	l.revs = revs
	return true
}

// targetOf prefers the predicted cluster position and falls back to the
// coordinates carried by the dispatch result.
func targetOf(v state.View, clusterID string) (model.LatLng, bool) {
	if c, ok := v.Clusters[clusterID]; ok {
		return c.Coords.LatLng(), true
	}
	if rc, ok := v.Targets[clusterID]; ok {
		return rc.LatLng(), true
	}
	return model.LatLng{}, false
}

func (l *lineLayer) release() {
	for id, ln := range l.lines {
		ln.Detach()
		delete(l.lines, id)
	}
}

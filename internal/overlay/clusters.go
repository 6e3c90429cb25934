package overlay

import (
	"fmt"
	"math"

	"baechamap/internal/logger"
	"baechamap/internal/maphost"
	"baechamap/internal/model"
	"baechamap/internal/state"
)

const (
	ClusterRadius      = 500.0 // meters
	ClusterFillColor   = "red"
	ClusterFillOpacity = 0.3

	PopupIcon   = "cluster-popup"
	PopupWidth  = 160
	PopupHeight = 60
	// PopupOffset lifts the popup north of the cluster center, in meters.
	PopupOffset = 500.0

	earthRadius = 6378137.0
)

type clusterLayer struct {
	synced bool
	rev    uint64

	cur     *pass
	data    model.Clusters
	circles map[string]maphost.Overlay
	popups  map[string]maphost.Overlay
}

func (l *clusterLayer) sync(m maphost.Map, log logger.Logger, v state.View) bool {
	if l.synced && l.rev == v.ClustersRev {
		return false
	}
	l.release()

	l.cur = &pass{}
	l.data = v.Clusters
	l.circles = make(map[string]maphost.Overlay, len(v.Clusters))
	for id, c := range v.Clusters {
		if c.Name == "Unknown" {
			log.Warnf("cluster %s is missing a description", id)
		}
		l.circles[id] = l.cur.attach(m.AddCircle(maphost.CircleOptions{
			Key:          id,
			Center:       c.Coords.LatLng(),
			Radius:       ClusterRadius,
			FillColor:    ClusterFillColor,
			FillOpacity:  ClusterFillOpacity,
			StrokeWeight: 0,
		}))
	}
	l.synced = true
	l.rev = v.ClustersRev
	return true
}

// release detaches the circles and every popup opened during the pass.
func (l *clusterLayer) release() {
	if l.cur != nil {
		l.cur.release()
		l.cur = nil
	}
	for id, p := range l.popups {
		p.Detach()
		delete(l.popups, id)
	}
	l.circles = nil
	l.data = nil
}

func (l *clusterLayer) openPopup(m maphost.Map, log logger.Logger, id string) error {
	c, ok := l.data[id]
	if _, circle := l.circles[id]; !ok || !circle {
		return fmt.Errorf("%w: %s", ErrUnknownCluster, id)
	}
	if prev, ok := l.popups[id]; ok {
		prev.Detach()
	}
	log.Debugf("opening popup for cluster %s", id)
	l.popups[id] = m.AddMarker(maphost.MarkerOptions{
		Key:      id,
		Position: popupAnchor(c.Coords.LatLng()),
		Title:    c.Name,
		Icon:     PopupIcon,
		Width:    PopupWidth,
		Height:   PopupHeight,
		Content:  popupContent(c),
	})
	return nil
}

func (l *clusterLayer) closePopup(id string) error {
	p, ok := l.popups[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPopup, id)
	}
	p.Detach()
	delete(l.popups, id)
	return nil
}

func popupContent(c model.Cluster) *maphost.Content {
	return &maphost.Content{
		Title:    c.Name,
		Body:     []string{fmt.Sprintf("예상 수요: %d명", c.ExpectedDemand()), c.Reason},
		Closable: true,
	}
}

func popupAnchor(p model.LatLng) model.LatLng {
	return model.LatLng{Lat: p.Lat + (PopupOffset/earthRadius)*(180/math.Pi), Lng: p.Lng}
}

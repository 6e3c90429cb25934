package maphost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baechamap/internal/model"
)

func TestNewDefaults(t *testing.T) {
	h := New(Options{})
	assert.Equal(t, DefaultCenter, h.Map().Center())
	assert.Equal(t, 17, h.Map().Zoom())

	h = New(Options{Center: model.LatLng{Lat: 37.5, Lng: 127}, Zoom: 12})
	assert.Equal(t, 12, h.Snapshot().Zoom)
	assert.Equal(t, 37.5, h.Snapshot().Center.Lat)
}

func TestAttachDetach(t *testing.T) {
	h := New(Options{})
	m := h.Map()
	c := m.AddCircle(CircleOptions{Key: "c1", Center: model.LatLng{Lat: 1, Lng: 2}, Radius: 500})
	mk := m.AddMarker(MarkerOptions{Key: "t1", Icon: "taxi"})
	require.True(t, c.Attached())
	assert.Equal(t, 1, h.Count(KindCircle))
	assert.Equal(t, 1, h.Count(KindMarker))

	c.Detach()
	c.Detach()
	assert.False(t, c.Attached())
	assert.Equal(t, 0, h.Count(KindCircle))

	sc := h.Snapshot()
	assert.Empty(t, sc.Circles)
	require.Len(t, sc.Markers, 1)
	assert.Equal(t, mk.ID(), sc.Markers[0].ID)
}

func TestPolylineSetPathInPlace(t *testing.T) {
	h := New(Options{})
	l := h.Map().AddPolyline(PolylineOptions{Key: "t1", Path: []model.LatLng{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}})
	id := l.ID()
	l.SetPath([]model.LatLng{{Lat: 3, Lng: 3}, {Lat: 4, Lng: 4}})

	sc := h.Snapshot()
	require.Len(t, sc.Polylines, 1)
	assert.Equal(t, id, sc.Polylines[0].ID)
	assert.Equal(t, 3.0, sc.Polylines[0].Path[0].Lat)
}

func TestSnapshotIsDetachedCopy(t *testing.T) {
	h := New(Options{})
	h.Map().AddMarker(MarkerOptions{Key: "c1", Content: &Content{Title: "A", Body: []string{"x"}}})
	sc := h.Snapshot()
	sc.Markers[0].Content.Body[0] = "mutated"
	assert.Equal(t, "x", h.Snapshot().Markers[0].Content.Body[0])
}

func TestGeoJSON(t *testing.T) {
	h := New(Options{})
	m := h.Map()
	m.AddCircle(CircleOptions{Key: "c1", Center: model.LatLng{Lat: 36, Lng: 127}, Radius: 500})
	m.AddPolyline(PolylineOptions{Key: "t1", Path: []model.LatLng{{Lat: 36.1, Lng: 127.1}, {Lat: 36, Lng: 127}}})

	fc := h.Snapshot().GeoJSON()
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "Point", fc.Features[0].Geometry.Type)
	assert.Equal(t, []float64{127, 36}, fc.Features[0].Geometry.Coordinates)
	assert.Equal(t, "LineString", fc.Features[1].Geometry.Type)
	assert.Equal(t, [][]float64{{127.1, 36.1}, {127, 36}}, fc.Features[1].Geometry.Coordinates)
}

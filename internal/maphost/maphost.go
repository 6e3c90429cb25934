// Package maphost owns the dashboard map and the overlay objects placed on it.
//
// The map is an in-process scene: overlays are plain values keyed by a handle
// id, and viewers render snapshots of it. A Host is not safe for concurrent
// use; the dashboard loop is its only caller.
package maphost

import (
	"sort"

	"github.com/google/uuid"

	"baechamap/internal/model"
)

// DefaultCenter is the initial map center (Daejeon).
var DefaultCenter = model.LatLng{Lat: 36.33135064483598, Lng: 127.43289957845893}

const DefaultZoom = 17

type Kind string

const (
	KindCircle   Kind = "circle"
	KindMarker   Kind = "marker"
	KindPolyline Kind = "polyline"
)

type CircleOptions struct {
	Key          string
	Center       model.LatLng
	Radius       float64 // meters
	FillColor    string
	FillOpacity  float64
	StrokeWeight int
}

// Content is the rich body of a marker, used for popups.
type Content struct {
	Title    string   `json:"title"`
	Body     []string `json:"body"`
	Closable bool     `json:"closable"`
}

type MarkerOptions struct {
	Key      string
	Position model.LatLng
	Title    string
	Icon     string
	Width    int
	Height   int
	Content  *Content
}

type PolylineOptions struct {
	Key         string
	Path        []model.LatLng
	StrokeStyle string
	StrokeColor string
}

// Overlay is a handle to an object placed on the map.
type Overlay interface {
	ID() string
	Attached() bool
	// Detach removes the overlay from the map. Detaching twice is a no-op.
	Detach()
}

// Polyline is an overlay whose path can be changed in place.
type Polyline interface {
	Overlay
	SetPath(path []model.LatLng)
	Path() []model.LatLng
}

// Map is the placement surface handed to overlay owners.
type Map interface {
	Center() model.LatLng
	Zoom() int
	AddCircle(opts CircleOptions) Overlay
	AddMarker(opts MarkerOptions) Overlay
	AddPolyline(opts PolylineOptions) Polyline
}

type Options struct {
	Center model.LatLng
	Zoom   int
}

// Host owns the live map instance.
type Host struct {
	m *canvas
}

// New initializes the map at the given center and zoom. Zero values fall back
// to DefaultCenter and DefaultZoom.
func New(opts Options) *Host {
	if opts.Center == (model.LatLng{}) {
		opts.Center = DefaultCenter
	}
	if opts.Zoom <= 0 {
		opts.Zoom = DefaultZoom
	}
	return &Host{m: &canvas{center: opts.Center, zoom: opts.Zoom, objects: map[string]*object{}}}
}

// Map returns the live map for overlay placement.
func (h *Host) Map() Map { return h.m }

// Count returns the number of attached overlays of the given kind.
func (h *Host) Count(k Kind) int {
	n := 0
	for _, o := range h.m.objects {
		if o.kind == k {
			n++
		}
	}
	return n
}

type canvas struct {
	center  model.LatLng
	zoom    int
	seq     uint64
	objects map[string]*object
}

func (c *canvas) Center() model.LatLng { return c.center }
func (c *canvas) Zoom() int            { return c.zoom }

func (c *canvas) add(o *object) *object {
	c.seq++
	o.id = uuid.NewString()
	o.seq = c.seq
	o.c = c
	c.objects[o.id] = o
	return o
}

func (c *canvas) AddCircle(opts CircleOptions) Overlay {
	return c.add(&object{kind: KindCircle, key: opts.Key, circle: opts})
}

func (c *canvas) AddMarker(opts MarkerOptions) Overlay {
	return c.add(&object{kind: KindMarker, key: opts.Key, marker: opts})
}

func (c *canvas) AddPolyline(opts PolylineOptions) Polyline {
	opts.Path = append([]model.LatLng(nil), opts.Path...)
	return c.add(&object{kind: KindPolyline, key: opts.Key, line: opts})
}

func (c *canvas) sorted() []*object {
	out := make([]*object, 0, len(c.objects))
	for _, o := range c.objects {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

type object struct {
	id   string
	seq  uint64
	kind Kind
	key  string
	c    *canvas

	circle CircleOptions
	marker MarkerOptions
	line   PolylineOptions
}

func (o *object) ID() string     { return o.id }
func (o *object) Attached() bool { return o.c != nil }

func (o *object) Detach() {
	if o.c == nil {
		return
	}
	delete(o.c.objects, o.id)
	o.c = nil
}

func (o *object) SetPath(path []model.LatLng) {
	o.line.Path = append(o.line.Path[:0], path...)
}

func (o *object) Path() []model.LatLng {
	return append([]model.LatLng(nil), o.line.Path...)
}

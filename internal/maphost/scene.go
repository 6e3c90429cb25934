package maphost

import "baechamap/internal/model"

// Scene is an immutable snapshot of the map and its attached overlays,
// in attach order.
type Scene struct {
	Center    model.LatLng   `json:"center"`
	Zoom      int            `json:"zoom"`
	Circles   []CircleView   `json:"circles"`
	Markers   []MarkerView   `json:"markers"`
	Polylines []PolylineView `json:"polylines"`
}

type CircleView struct {
	ID           string       `json:"id"`
	Key          string       `json:"key"`
	Center       model.LatLng `json:"center"`
	Radius       float64      `json:"radius"`
	FillColor    string       `json:"fillColor"`
	FillOpacity  float64      `json:"fillOpacity"`
	StrokeWeight int          `json:"strokeWeight"`
}

type MarkerView struct {
	ID       string       `json:"id"`
	Key      string       `json:"key"`
	Position model.LatLng `json:"position"`
	Title    string       `json:"title,omitempty"`
	Icon     string       `json:"icon,omitempty"`
	Width    int          `json:"width,omitempty"`
	Height   int          `json:"height,omitempty"`
	Content  *Content     `json:"content,omitempty"`
}

type PolylineView struct {
	ID          string         `json:"id"`
	Key         string         `json:"key"`
	Path        []model.LatLng `json:"path"`
	StrokeStyle string         `json:"strokeStyle,omitempty"`
	StrokeColor string         `json:"strokeColor,omitempty"`
}

// Snapshot copies the current map state.
func (h *Host) Snapshot() Scene {
	sc := Scene{
		Center:    h.m.center,
		Zoom:      h.m.zoom,
		Circles:   []CircleView{},
		Markers:   []MarkerView{},
		Polylines: []PolylineView{},
	}
	for _, o := range h.m.sorted() {
		switch o.kind {
		case KindCircle:
			sc.Circles = append(sc.Circles, CircleView{
				ID: o.id, Key: o.key, Center: o.circle.Center, Radius: o.circle.Radius,
				FillColor: o.circle.FillColor, FillOpacity: o.circle.FillOpacity, StrokeWeight: o.circle.StrokeWeight,
			})
		case KindMarker:
			mv := MarkerView{
				ID: o.id, Key: o.key, Position: o.marker.Position, Title: o.marker.Title,
				Icon: o.marker.Icon, Width: o.marker.Width, Height: o.marker.Height,
			}
			if o.marker.Content != nil {
				c := *o.marker.Content
				c.Body = append([]string(nil), c.Body...)
				mv.Content = &c
			}
			sc.Markers = append(sc.Markers, mv)
		case KindPolyline:
			sc.Polylines = append(sc.Polylines, PolylineView{
				ID: o.id, Key: o.key, Path: o.Path(), StrokeStyle: o.line.StrokeStyle, StrokeColor: o.line.StrokeColor,
			})
		}
	}
	return sc
}

// MarkersByIcon returns the markers using the given icon.
func (s Scene) MarkersByIcon(icon string) []MarkerView {
	out := []MarkerView{}
	for _, m := range s.Markers {
		if m.Icon == icon {
			out = append(out, m)
		}
	}
	return out
}

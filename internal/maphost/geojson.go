package maphost

import "baechamap/internal/model"

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

func point(p model.LatLng) Geometry {
	return Geometry{Type: "Point", Coordinates: []float64{p.Lng, p.Lat}}
}

// GeoJSON renders the scene as a FeatureCollection. Circles are points with a
// radius property since GeoJSON has no circle geometry.
func (s Scene) GeoJSON() FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
	for _, c := range s.Circles {
		fc.Features = append(fc.Features, Feature{
			Type: "Feature", ID: c.ID, Geometry: point(c.Center),
			Properties: map[string]any{
				"overlay": string(KindCircle), "key": c.Key, "radius": c.Radius,
				"fillColor": c.FillColor, "fillOpacity": c.FillOpacity,
			},
		})
	}
	for _, m := range s.Markers {
		props := map[string]any{"overlay": string(KindMarker), "key": m.Key, "icon": m.Icon}
		if m.Title != "" {
			props["title"] = m.Title
		}
		if m.Content != nil {
			props["content"] = m.Content
		}
		fc.Features = append(fc.Features, Feature{Type: "Feature", ID: m.ID, Geometry: point(m.Position), Properties: props})
	}
	for _, l := range s.Polylines {
		coords := make([][]float64, 0, len(l.Path))
		for _, p := range l.Path {
			coords = append(coords, []float64{p.Lng, p.Lat})
		}
		fc.Features = append(fc.Features, Feature{
			Type: "Feature", ID: l.ID,
			Geometry:   Geometry{Type: "LineString", Coordinates: coords},
			Properties: map[string]any{"overlay": string(KindPolyline), "key": l.Key, "strokeStyle": l.StrokeStyle},
		})
	}
	return fc
}

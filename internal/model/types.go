package model

import (
	"encoding/json"
	"math"
)

// LatLng is a WGS84 position.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RawCoords is a [lng, lat] pair as pushed by the dispatch backend.
type RawCoords [2]float64

func (c RawCoords) LatLng() LatLng { return LatLng{Lat: c[1], Lng: c[0]} }

type Taxi struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (t Taxi) Position() LatLng { return LatLng{Lat: t.Lat, Lng: t.Lng} }

// Cluster is a demand zone produced by the prediction model.
type Cluster struct {
	Coords RawCoords `json:"coords"`
	Name   string    `json:"cluster_name"`
	Demand float64   `json:"demand"`
	Reason string    `json:"reason"`
}

// ExpectedDemand rounds the demand estimate up to whole passengers.
func (c Cluster) ExpectedDemand() int { return int(math.Ceil(c.Demand)) }

// Clusters maps cluster id -> cluster.
type Clusters map[string]Cluster

// Assignments maps taxi id -> target cluster id.
type Assignments map[string]string

type BaechaEntry struct {
	Taxi   Taxi   `json:"taxi"`
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// BaechaResult is the dispatch result pushed after the backend assigns taxis.
type BaechaResult struct {
	Clusters map[string]RawCoords `json:"clusters"`
	Results  []BaechaEntry        `json:"results"`
}

// Taxis returns the taxis included in the result, in result order.
func (r BaechaResult) Taxis() []Taxi {
	out := make([]Taxi, 0, len(r.Results))
	for _, e := range r.Results {
		out = append(out, e.Taxi)
	}
	return out
}

// Assignments rebuilds the taxi -> cluster mapping. Later entries for the same
// taxi win.
func (r BaechaResult) Assignments() Assignments {
	out := Assignments{}
	for _, e := range r.Results {
		out[e.Taxi.ID] = e.Target
	}
	return out
}

// Reasons returns the per-taxi dispatch reason.
func (r BaechaResult) Reasons() map[string]string {
	out := map[string]string{}
	for _, e := range r.Results {
		out[e.Taxi.ID] = e.Reason
	}
	return out
}

// DecodeClusters accepts a prediction payload either as a bare cluster mapping
// or wrapped as {"clusters": {...}}.
func DecodeClusters(data []byte) (Clusters, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}
	if inner, ok := top["clusters"]; ok && len(top) == 1 {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(inner, &probe); err == nil {
			if _, isCluster := probe["coords"]; !isCluster {
				data = inner
			}
		}
	}
	out := Clusters{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

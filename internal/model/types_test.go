package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawCoordsAreLngLat(t *testing.T) {
	var c Cluster
	require.NoError(t, json.Unmarshal([]byte(`{"coords":[127.0,36.0],"cluster_name":"A","demand":4.2,"reason":"rush hour"}`), &c))
	assert.Equal(t, LatLng{Lat: 36.0, Lng: 127.0}, c.Coords.LatLng())
	assert.Equal(t, 5, c.ExpectedDemand())
}

func TestExpectedDemandWholeNumber(t *testing.T) {
	assert.Equal(t, 4, Cluster{Demand: 4}.ExpectedDemand())
	assert.Equal(t, 0, Cluster{Demand: 0}.ExpectedDemand())
}

func TestDecodeClustersBareAndWrapped(t *testing.T) {
	bare := []byte(`{"c1":{"coords":[127.0,36.0],"cluster_name":"A","demand":4.2,"reason":"rush hour"}}`)
	wrapped := []byte(`{"clusters":{"c1":{"coords":[127.0,36.0],"cluster_name":"A","demand":4.2,"reason":"rush hour"}}}`)

	a, err := DecodeClusters(bare)
	require.NoError(t, err)
	b, err := DecodeClusters(wrapped)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "A", a["c1"].Name)
}

func TestDecodeClustersNamedClusters(t *testing.T) {
	// a single cluster whose id happens to be "clusters" is not unwrapped
	got, err := DecodeClusters([]byte(`{"clusters":{"coords":[1,2],"cluster_name":"X","demand":1,"reason":""}}`))
	require.NoError(t, err)
	require.Contains(t, got, "clusters")
	assert.Equal(t, "X", got["clusters"].Name)
}

func TestDecodeClustersRejectsGarbage(t *testing.T) {
	_, err := DecodeClusters([]byte(`[1,2,3]`))
	assert.Error(t, err)
}

func TestBaechaResultProjections(t *testing.T) {
	var r BaechaResult
	require.NoError(t, json.Unmarshal([]byte(`{
		"clusters": {"c1": [127.4, 36.3]},
		"results": [
			{"taxi": {"id": "t1", "lat": 36.31, "lng": 127.41}, "target": "c1", "reason": "near"},
			{"taxi": {"id": "t2", "lat": 36.32, "lng": 127.42}, "target": "c2", "reason": "idle"}
		]
	}`), &r))

	assert.Equal(t, []Taxi{{ID: "t1", Lat: 36.31, Lng: 127.41}, {ID: "t2", Lat: 36.32, Lng: 127.42}}, r.Taxis())
	assert.Equal(t, Assignments{"t1": "c1", "t2": "c2"}, r.Assignments())
	assert.Equal(t, "idle", r.Reasons()["t2"])
	assert.Equal(t, RawCoords{127.4, 36.3}, r.Clusters["c1"])
}

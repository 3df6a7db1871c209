package associator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStations() []Station {
	return []Station{
		{Code: "A", Latitude: 34.0, Longitude: -118.0},
		{Code: "B", Latitude: 34.1, Longitude: -118.1},
		{Code: "C", Latitude: 33.9, Longitude: -117.9},
	}
}

func TestObserve_GroupsArrivalsWithinWindow(t *testing.T) {
	a := New(5*time.Second, testStations())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	arrivals := a.Observe("A", base)
	require.Len(t, arrivals, 1)

	arrivals = a.Observe("B", base.Add(2*time.Second))
	require.Len(t, arrivals, 2)

	arrivals = a.Observe("C", base.Add(4*time.Second))
	require.Len(t, arrivals, 3)

	byStation := map[string]float64{}
	for _, arr := range arrivals {
		byStation[arr.Station] = arr.ArrivalS
	}
	assert.InDelta(t, 0, byStation["A"], 0.01)
	assert.InDelta(t, 4, byStation["C"], 0.01)
}

func TestObserve_ExcludesArrivalsOutsideWindow(t *testing.T) {
	a := New(time.Second, testStations())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	a.Observe("A", base)
	arrivals := a.Observe("B", base.Add(10*time.Second))

	require.Len(t, arrivals, 1)
	assert.Equal(t, "B", arrivals[0].Station)
}

func TestObserve_IgnoresUnknownStation(t *testing.T) {
	a := New(5*time.Second, testStations())
	arrivals := a.Observe("ZZZ", time.Now())
	assert.Empty(t, arrivals)
}

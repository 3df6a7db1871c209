package locator

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seismonet/pipeline/internal/apperr"
)

func syntheticArrivals(trueLat, trueLon, trueDepth, velocity float64) []StationArrival {
	stations := []struct {
		name     string
		lat, lon float64
	}{
		{"A", trueLat + 0.5, trueLon},
		{"B", trueLat - 0.5, trueLon},
		{"C", trueLat, trueLon + 0.5},
		{"D", trueLat, trueLon - 0.5},
	}
	arrivals := make([]StationArrival, len(stations))
	for i, s := range stations {
		dist := haversineKM(trueLat, trueLon, s.lat, s.lon)
		slant := math.Hypot(dist, trueDepth)
		arrivals[i] = StationArrival{Station: s.name, Latitude: s.lat, Longitude: s.lon, ArrivalS: slant / velocity}
	}
	return arrivals
}

func TestLocate_RecoversKnownHypocenter(t *testing.T) {
	cfg := Config{MinStations: 4, GridStepDeg: 0.25, MaxIter: 100, EpsKM: 1, VelocityKMS: 6, BootstrapN: 20}
	l := New(cfg, rand.New(rand.NewSource(7)))

	arrivals := syntheticArrivals(35.0, -120.0, 8.0, 6.0)
	loc, err := l.Locate(arrivals)
	require.NoError(t, err)

	assert.InDelta(t, 35.0, loc.Hypocenter.Latitude, 0.3)
	assert.InDelta(t, -120.0, loc.Hypocenter.Longitude, 0.3)
	assert.Less(t, loc.RMSResidualS, 1.0)
	assert.Len(t, loc.StationsUsed, 4)
}

func TestLocate_RejectsTooFewStations(t *testing.T) {
	cfg := Config{MinStations: 4, GridStepDeg: 0.25, MaxIter: 10, EpsKM: 1, VelocityKMS: 6}
	l := New(cfg, nil)
	_, err := l.Locate(syntheticArrivals(35, -120, 8, 6)[:2])
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestErrorEllipseAreaKM2_IsFinite(t *testing.T) {
	cfg := Config{MinStations: 4, GridStepDeg: 0.25, MaxIter: 50, EpsKM: 1, VelocityKMS: 6, BootstrapN: 10}
	l := New(cfg, rand.New(rand.NewSource(1)))
	loc, err := l.Locate(syntheticArrivals(10, 10, 5, 6))
	require.NoError(t, err)
	area := loc.ErrorEllipseAreaKM2()
	assert.False(t, math.IsInf(area, 0))
	assert.False(t, math.IsNaN(area))
	assert.GreaterOrEqual(t, area, 0.0)
}

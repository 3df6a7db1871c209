package magnitude

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seismonet/pipeline/internal/apperr"
	"github.com/seismonet/pipeline/internal/domain"
	"github.com/seismonet/pipeline/internal/modelartifact"
)

func testArtifact() *modelartifact.MagnitudeArtifact {
	return &modelartifact.MagnitudeArtifact{
		SchemaID:         "v1",
		Weights:          []float64{0.1, 0.1},
		Bias:             0,
		TraditionalBlend: 0.5,
	}
}

func TestEstimate_ReturnsOrderedInterval(t *testing.T) {
	e := New(testArtifact(), 100, 0.9, rand.New(rand.NewSource(42)))
	fv := domain.FeatureVector{SchemaID: "v1", Values: []float64{10, 10}}
	amps := []StationAmplitude{{Station: "A", PeakAmp: 1000}, {Station: "B", PeakAmp: 1200}, {Station: "C", PeakAmp: 900}}

	mag, err := e.Estimate(fv, amps, domain.ScaleMl)
	require.NoError(t, err)
	assert.LessOrEqual(t, mag.Low, mag.Value)
	assert.LessOrEqual(t, mag.Value, mag.High)
	assert.Equal(t, domain.ScaleMl, mag.Scale)
}

func TestEstimate_RequiresAtLeastOneStation(t *testing.T) {
	e := New(testArtifact(), 50, 0.9, nil)
	fv := domain.FeatureVector{SchemaID: "v1", Values: []float64{1, 1}}
	_, err := e.Estimate(fv, nil, domain.ScaleMl)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestEstimate_SchemaMismatchErrors(t *testing.T) {
	e := New(testArtifact(), 50, 0.9, nil)
	fv := domain.FeatureVector{SchemaID: "v2", Values: []float64{1, 1}}
	amps := []StationAmplitude{{Station: "A", PeakAmp: 100}}
	_, err := e.Estimate(fv, amps, domain.ScaleMl)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.SchemaMismatch))
}

func TestTraditionalEstimate_UsesMaxAmplitude(t *testing.T) {
	amps := []StationAmplitude{{PeakAmp: 10}, {PeakAmp: 1000}, {PeakAmp: 50}}
	got := traditionalEstimate(amps)
	assert.InDelta(t, 4.0, got, 1e-9) // log10(1000) + 1.0
}

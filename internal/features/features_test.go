package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seismonet/pipeline/internal/apperr"
	"github.com/seismonet/pipeline/internal/domain"
)

func sineSegment(freqHz, rateHz float64, n int) domain.Segment {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * freqHz * float64(i) / rateHz)
	}
	return domain.Segment{
		Channel: domain.ChannelID{Network: "NC", Station: "X", Channel: "HHZ"},
		Start:   time.Now(),
		Rate:    rateHz,
		Samples: samples,
	}
}

func TestExtract_V1ProducesExpectedWidth(t *testing.T) {
	e, err := New("v1", nil, 0)
	require.NoError(t, err)
	fv, err := e.Extract(sineSegment(5, 100, 512))
	require.NoError(t, err)
	assert.Equal(t, "v1", fv.SchemaID)
	schema, _ := Lookup("v1")
	assert.Len(t, fv.Values, schema.Width())
}

func TestExtract_V2ProducesExpectedWidth(t *testing.T) {
	e, err := New("v2", nil, 0)
	require.NoError(t, err)
	fv, err := e.Extract(sineSegment(5, 100, 512))
	require.NoError(t, err)
	schema, _ := Lookup("v2")
	assert.Len(t, fv.Values, schema.Width())
}

func TestExtract_UnknownSchemaErrors(t *testing.T) {
	_, err := New("v99", nil, 0)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.SchemaMismatch))
}

func TestExtract_TooShortSegmentErrors(t *testing.T) {
	e, err := New("v1", nil, 0)
	require.NoError(t, err)
	_, err = e.Extract(domain.Segment{Rate: 100, Samples: []float64{1, 2, 3}})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestFreqFeatures_FindsDominantFrequency(t *testing.T) {
	seg := sineSegment(10, 100, 256)
	mags := magnitudeSpectrum(seg.Samples)
	stats := freqFeatures(mags, seg.Rate, len(seg.Samples))
	assert.InDelta(t, 10, stats.dominantHz, 1.0)
}

func TestExtract_CustomBandsAdjustSchemaWidthMismatch(t *testing.T) {
	e, err := New("v1", [][2]float64{{1, 5}}, 0)
	require.NoError(t, err)
	_, err = e.Extract(sineSegment(5, 100, 512))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.SchemaMismatch))
}

func TestDurationAboveThreshold_CountsSamplesOverThreshold(t *testing.T) {
	samples := []float64{0, 0, 5, 5, 0, 0, 5, 0}
	d := durationAboveThreshold(samples, 8, 1)
	assert.InDelta(t, 3.0/8, d, 1e-9)
}

func TestSpectralEntropy_HigherForNoiseThanPureTone(t *testing.T) {
	tone := sineSegment(10, 100, 256)
	toneMags := magnitudeSpectrum(tone.Samples)
	toneEntropy := spectralEntropy(toneMags)

	noise := make([]float64, 256)
	seed := uint64(12345)
	for i := range noise {
		seed = seed*6364136223846793005 + 1442695040888963407
		// Zero-mean, so the DC bin does not dominate the spectrum.
		noise[i] = float64(seed>>40)/float64(1<<24) - 0.5
	}
	noiseMags := magnitudeSpectrum(noise)
	noiseEntropy := spectralEntropy(noiseMags)

	assert.Greater(t, noiseEntropy, toneEntropy)
}

func TestBandPowerRatios_ConcentratesEnergyInMatchingBand(t *testing.T) {
	seg := sineSegment(5, 100, 512)
	mags := magnitudeSpectrum(seg.Samples)
	ratios := bandPowerRatios(mags, seg.Rate, len(seg.Samples), defaultBands)
	require.Len(t, ratios, 3)
	assert.Greater(t, ratios[1], ratios[0])
	assert.Greater(t, ratios[1], ratios[2])
}

func TestExtract_NoNaNInOutput(t *testing.T) {
	e, err := New("v1", nil, 0)
	require.NoError(t, err)
	flat := domain.Segment{
		Channel: domain.ChannelID{Network: "NC", Station: "X", Channel: "HHZ"},
		Start:   time.Now(),
		Rate:    100,
		Samples: make([]float64, 256), // all zero: degenerate std/skew/kurtosis
	}
	fv, err := e.Extract(flat)
	require.NoError(t, err)
	for _, v := range fv.Values {
		assert.False(t, math.IsNaN(v))
		assert.False(t, math.IsInf(v, 0))
	}
}

// Package magnitude estimates event magnitude with a bootstrap confidence
// interval (spec.md C8), grounded on
// _examples/original_source/src/seismic_classifier/advanced_analytics/magnitude_estimation.py's
// MagnitudeEstimator: a traditional amplitude-based estimate
// (log10(max_amp)+1.0) blended with a linear model over the Feature
// Vector, with uncertainty from resampling peak amplitudes across
// stations.
package magnitude

import (
	"math"
	"math/rand"

	"github.com/seismonet/pipeline/internal/apperr"
	"github.com/seismonet/pipeline/internal/domain"
	"github.com/seismonet/pipeline/internal/modelartifact"
)

// Estimator computes a blended magnitude estimate with a bootstrap CI.
type Estimator struct {
	artifact       *modelartifact.MagnitudeArtifact
	bootstrapN     int
	confidenceBand float64 // e.g. 0.90 for a 90% interval
	rng            *rand.Rand
}

// New builds an Estimator. rng may be nil, in which case a new source
// with the fixed seed 1 is used — bootstrap
// CI width is not required to be bit-reproducible, only statistically
// stable, so an injected *rand.Rand is for test determinism only.
func New(artifact *modelartifact.MagnitudeArtifact, bootstrapN int, confidenceBand float64, rng *rand.Rand) *Estimator {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if bootstrapN <= 0 {
		bootstrapN = 200
	}
	if confidenceBand <= 0 || confidenceBand >= 1 {
		confidenceBand = 0.90
	}
	return &Estimator{artifact: artifact, bootstrapN: bootstrapN, confidenceBand: confidenceBand, rng: rng}
}

// StationAmplitude is one station's peak amplitude observation, the unit
// the traditional estimate resamples over.
type StationAmplitude struct {
	Station   string
	PeakAmp   float64 // physical units (e.g. counts or velocity, pipeline-consistent)
}

// Estimate computes a Magnitude from the winning Feature Vector plus the
// peak amplitudes observed at each contributing station.
func (e *Estimator) Estimate(fv domain.FeatureVector, amps []StationAmplitude, scale domain.MagnitudeScale) (domain.Magnitude, error) {
	if len(amps) == 0 {
		return domain.Magnitude{}, apperr.New(apperr.Validation, "magnitude estimate requires at least one station amplitude")
	}
	if fv.SchemaID != e.artifact.SchemaID {
		return domain.Magnitude{}, apperr.New(apperr.SchemaMismatch,
			"feature vector schema "+fv.SchemaID+" does not match magnitude artifact "+e.artifact.SchemaID)
	}
	if len(e.artifact.Weights) != len(fv.Values) {
		return domain.Magnitude{}, apperr.New(apperr.SchemaMismatch, "magnitude artifact weight width mismatch")
	}

	point := e.blend(fv, amps)

	samples := make([]float64, e.bootstrapN)
	for i := 0; i < e.bootstrapN; i++ {
		resampled := bootstrapResample(amps, e.rng)
		samples[i] = e.blend(fv, resampled)
	}

	low, high := confidenceInterval(samples, e.confidenceBand)
	if low > point {
		low = point
	}
	if high < point {
		high = point
	}

	return domain.Magnitude{Value: point, Low: low, High: high, Scale: scale}, nil
}

// blend combines the traditional amplitude-based estimate with the linear
// ML term, weighted by the artifact's TraditionalBlend.
func (e *Estimator) blend(fv domain.FeatureVector, amps []StationAmplitude) float64 {
	traditional := traditionalEstimate(amps)

	var ml float64
	for i, w := range e.artifact.Weights {
		ml += w * fv.Values[i]
	}
	ml += e.artifact.Bias

	alpha := e.artifact.TraditionalBlend
	return alpha*traditional + (1-alpha)*ml
}

// traditionalEstimate is the classic Richter-style amplitude relation:
// magnitude = log10(max peak amplitude across stations) + 1.0.
func traditionalEstimate(amps []StationAmplitude) float64 {
	maxAmp := 0.0
	for _, a := range amps {
		if a.PeakAmp > maxAmp {
			maxAmp = a.PeakAmp
		}
	}
	if maxAmp <= 0 {
		return 0
	}
	return math.Log10(maxAmp) + 1.0
}

func bootstrapResample(amps []StationAmplitude, rng *rand.Rand) []StationAmplitude {
	out := make([]StationAmplitude, len(amps))
	for i := range out {
		out[i] = amps[rng.Intn(len(amps))]
	}
	return out
}

// confidenceInterval returns the [low, high] band covering the central
// `band` fraction of samples (e.g. band=0.90 -> 5th/95th percentiles).
func confidenceInterval(samples []float64, band float64) (low, high float64) {
	sorted := append([]float64(nil), samples...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	tail := (1 - band) / 2
	lowIdx := int(tail * float64(len(sorted)-1))
	highIdx := int((1 - tail) * float64(len(sorted)-1))
	return sorted[lowIdx], sorted[highIdx]
}

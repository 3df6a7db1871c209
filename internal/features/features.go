// Package features extracts a schema-versioned FeatureVector from a
// conditioned waveform Segment (spec.md C5): time-domain statistics,
// frequency-domain descriptors via a discrete Fourier transform, and a
// multi-level wavelet energy decomposition, grounded on
// _examples/original_source/src/seismic_classifier/feature_engineering/feature_extraction.py's
// time/frequency/wavelet/statistical feature groups. No example repo in
// the pack carries a DSP or wavelet library, so the transforms are
// implemented directly over []float64.
package features

import (
	"math"

	"github.com/seismonet/pipeline/internal/apperr"
	"github.com/seismonet/pipeline/internal/domain"
)

// defaultBands and defaultWaveletLevels match the registry schemas' fixed
// widths, used when a caller doesn't override them via New.
var defaultBands = [][2]float64{{1, 3}, {3, 10}, {10, 20}}

const defaultWaveletLevels = 4

// Extractor computes a FeatureVector for a given schema.
type Extractor struct {
	schema        Schema
	bands         [][2]float64
	waveletLevels int
}

// New builds an Extractor for the named schema. bands configures the
// frequency bands band-power ratios are computed over, and waveletLevels
// the depth of the wavelet energy decomposition; a nil/zero value falls
// back to the schema's trained default (3 bands, 4 levels).
func New(schemaID string, bands [][2]float64, waveletLevels int) (*Extractor, error) {
	s, ok := Lookup(schemaID)
	if !ok {
		return nil, apperr.New(apperr.SchemaMismatch, "unknown feature schema: "+schemaID)
	}
	if len(bands) == 0 {
		bands = defaultBands
	}
	if waveletLevels <= 0 {
		waveletLevels = defaultWaveletLevels
	}
	return &Extractor{schema: s, bands: bands, waveletLevels: waveletLevels}, nil
}

// Extract computes the feature vector for a conditioned segment.
func (e *Extractor) Extract(seg domain.Segment) (domain.FeatureVector, error) {
	if len(seg.Samples) < 8 {
		return domain.FeatureVector{}, apperr.New(apperr.Validation, "segment too short for feature extraction")
	}

	t := timeFeatures(seg.Samples)
	mags := magnitudeSpectrum(seg.Samples)
	f := freqFeatures(mags, seg.Rate, len(seg.Samples))
	entropy := spectralEntropy(mags)
	bandRatios := bandPowerRatios(mags, seg.Rate, len(seg.Samples), e.bands)
	duration := durationAboveThreshold(seg.Samples, seg.Rate, 2*t.rms)
	w := waveletEnergies(seg.Samples, e.waveletLevels)

	var values []float64
	switch e.schema.ID {
	case "v1":
		values = []float64{
			t.mean, t.std, t.skewness, t.kurtosis, t.peakAmplitude, t.rms, t.zeroCrossingRate,
			duration,
			f.dominantHz, f.centroidHz, f.bandwidthHz, f.rolloffHz, entropy,
		}
		values = append(values, bandRatios...)
		values = append(values, w...)
	case "v2":
		lag, peak := autocorrPeak(seg.Samples, seg.Rate)
		p10, p50, p90 := percentiles(seg.Samples)
		values = []float64{
			t.mean, t.std, t.skewness, t.kurtosis, t.peakAmplitude, t.rms, t.zeroCrossingRate,
			duration,
			p10, p50, p90, lag, peak,
			f.dominantHz, f.centroidHz, f.bandwidthHz, f.rolloffHz, entropy,
		}
		values = append(values, bandRatios...)
		values = append(values, w...)
	default:
		return domain.FeatureVector{}, apperr.New(apperr.SchemaMismatch, "unsupported feature schema: "+e.schema.ID)
	}

	if len(values) != e.schema.Width() {
		return domain.FeatureVector{}, apperr.New(apperr.SchemaMismatch,
			"configured bands/wavelet levels produce a feature vector that doesn't match schema "+e.schema.ID)
	}

	fv := domain.FeatureVector{SchemaID: e.schema.ID, Values: values}
	fv.Sanitize()
	return fv, nil
}

// durationAboveThreshold returns the total time, in seconds, that |sample|
// exceeds threshold — a coarse signal-duration feature distinguishing
// short impulsive arrivals from sustained coda.
func durationAboveThreshold(samples []float64, rateHz, threshold float64) float64 {
	if rateHz <= 0 || threshold <= 0 {
		return 0
	}
	count := 0
	for _, s := range samples {
		if math.Abs(s) > threshold {
			count++
		}
	}
	return float64(count) / rateHz
}

type timeStats struct {
	mean, std, skewness, kurtosis, peakAmplitude, rms, zeroCrossingRate float64
}

func timeFeatures(samples []float64) timeStats {
	n := float64(len(samples))

	var sum float64
	peak := 0.0
	for _, s := range samples {
		sum += s
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	mean := sum / n

	var sumSq, sumCube, sumQuad float64
	for _, s := range samples {
		d := s - mean
		sumSq += d * d
		sumCube += d * d * d
		sumQuad += d * d * d * d
	}
	variance := sumSq / n
	std := math.Sqrt(variance)

	var skew, kurt float64
	if std > 0 {
		skew = (sumCube / n) / (std * std * std)
		kurt = (sumQuad/n)/(variance*variance) - 3
	}

	var sumSqRaw float64
	zeroCrossings := 0
	for i, s := range samples {
		sumSqRaw += s * s
		if i > 0 && ((samples[i-1] < 0 && s >= 0) || (samples[i-1] >= 0 && s < 0)) {
			zeroCrossings++
		}
	}
	rmsVal := math.Sqrt(sumSqRaw / n)
	zcr := float64(zeroCrossings) / n

	return timeStats{mean: mean, std: std, skewness: skew, kurtosis: kurt, peakAmplitude: peak, rms: rmsVal, zeroCrossingRate: zcr}
}

func percentiles(samples []float64) (p10, p50, p90 float64) {
	sorted := append([]float64(nil), samples...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	pct := func(p float64) float64 {
		idx := int(p * float64(len(sorted)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx]
	}
	return pct(0.10), pct(0.50), pct(0.90)
}

// autocorrPeak returns the lag (in seconds) and value of the largest
// normalized autocorrelation peak outside lag zero, over at most the first
// half of the trace.
func autocorrPeak(samples []float64, rateHz float64) (lagSeconds, value float64) {
	n := len(samples)
	maxLag := n / 2
	if maxLag < 1 {
		return 0, 0
	}
	var energy float64
	for _, s := range samples {
		energy += s * s
	}
	if energy == 0 {
		return 0, 0
	}

	bestLag := 1
	bestVal := -2.0
	for lag := 1; lag < maxLag; lag++ {
		var acc float64
		for i := 0; i+lag < n; i++ {
			acc += samples[i] * samples[i+lag]
		}
		normalized := acc / energy
		if normalized > bestVal {
			bestVal = normalized
			bestLag = lag
		}
	}
	return float64(bestLag) / rateHz, bestVal
}

type freqStats struct {
	dominantHz, centroidHz, bandwidthHz, rolloffHz float64
}

// magnitudeSpectrum computes the magnitude spectrum of samples via a naive
// DFT over its first half (the conjugate-symmetric half for real input).
// Segments in this pipeline are short (tens of seconds at typical seismic
// sample rates), so an O(n^2) DFT is adequate and avoids pulling in an FFT
// library absent from the pack.
func magnitudeSpectrum(samples []float64) []float64 {
	n := len(samples)
	half := n / 2
	mags := make([]float64, half)

	for k := 0; k < half; k++ {
		var re, im float64
		for t, s := range samples {
			angle := -2 * math.Pi * float64(k) * float64(t) / float64(n)
			re += s * math.Cos(angle)
			im += s * math.Sin(angle)
		}
		mags[k] = math.Hypot(re, im)
	}
	return mags
}

// freqFeatures computes frequency-domain descriptors from a precomputed
// magnitude spectrum.
func freqFeatures(mags []float64, rateHz float64, n int) freqStats {
	freqStep := rateHz / float64(n)

	var totalEnergy, weightedFreqSum float64
	dominantBin := 0
	dominantMag := -1.0
	for k, m := range mags {
		totalEnergy += m * m
		weightedFreqSum += m * float64(k) * freqStep
		if m > dominantMag {
			dominantMag = m
			dominantBin = k
		}
	}

	var centroidHz float64
	var sumMags float64
	for _, m := range mags {
		sumMags += m
	}
	if sumMags > 0 {
		centroidHz = weightedFreqSum / sumMags
	}

	var varianceSum float64
	for k, m := range mags {
		d := float64(k)*freqStep - centroidHz
		varianceSum += m * d * d
	}
	bandwidthHz := 0.0
	if sumMags > 0 {
		bandwidthHz = math.Sqrt(varianceSum / sumMags)
	}

	rolloffHz := 0.0
	if totalEnergy > 0 {
		var cum float64
		for k, m := range mags {
			cum += m * m
			if cum >= 0.85*totalEnergy {
				rolloffHz = float64(k) * freqStep
				break
			}
		}
	}

	return freqStats{
		dominantHz:  float64(dominantBin) * freqStep,
		centroidHz:  centroidHz,
		bandwidthHz: bandwidthHz,
		rolloffHz:   rolloffHz,
	}
}

// spectralEntropy returns the Shannon entropy, normalized to [0,1], of the
// power spectrum treated as a probability distribution: flat (noise-like)
// spectra score near 1, spectra concentrated in a few bins near 0.
func spectralEntropy(mags []float64) float64 {
	var total float64
	for _, m := range mags {
		total += m * m
	}
	if total == 0 || len(mags) < 2 {
		return 0
	}
	var h float64
	for _, m := range mags {
		p := (m * m) / total
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h / math.Log2(float64(len(mags)))
}

// bandPowerRatios returns, for each [low,high) band in bands, the
// fraction of total spectral power falling within it.
func bandPowerRatios(mags []float64, rateHz float64, n int, bands [][2]float64) []float64 {
	freqStep := rateHz / float64(n)
	var total float64
	for _, m := range mags {
		total += m * m
	}

	out := make([]float64, len(bands))
	if total == 0 {
		return out
	}
	for i, band := range bands {
		var power float64
		for k, m := range mags {
			hz := float64(k) * freqStep
			if hz >= band[0] && hz < band[1] {
				power += m * m
			}
		}
		out[i] = power / total
	}
	return out
}

// waveletEnergies computes a coarse multi-level Haar wavelet energy
// decomposition (d1..dLevels), a pragmatic stand-in for the original
// pipeline's db4 decomposition: Haar is the simplest orthogonal wavelet,
// letting each level's detail energy be computed without a dedicated
// wavelet library.
func waveletEnergies(samples []float64, levels int) []float64 {
	energies := make([]float64, levels)
	approx := append([]float64(nil), samples...)

	for lvl := 0; lvl < levels; lvl++ {
		if len(approx) < 2 {
			break
		}
		n := len(approx) / 2
		detail := make([]float64, n)
		nextApprox := make([]float64, n)
		for i := 0; i < n; i++ {
			a, b := approx[2*i], approx[2*i+1]
			nextApprox[i] = (a + b) / math.Sqrt2
			detail[i] = (a - b) / math.Sqrt2
		}
		var e float64
		for _, d := range detail {
			e += d * d
		}
		energies[lvl] = e
		approx = nextApprox
	}
	return energies
}

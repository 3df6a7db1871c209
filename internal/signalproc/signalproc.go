// Package signalproc conditions raw waveform Segments before feature
// extraction (spec.md C4): linear detrending, a Butterworth bandpass, a
// cosine taper, and an SNR-based quality score, grounded on
// _examples/original_source/src/seismic_classifier/feature_engineering/signal_processing.py's
// scipy-based detrend/bandpass/taper pipeline, re-implemented over plain
// []float64 since no example repo in the pack carries a DSP library.
package signalproc

import (
	"math"

	"github.com/seismonet/pipeline/internal/apperr"
	"github.com/seismonet/pipeline/internal/domain"
)

// Config parameterizes the conditioning pipeline.
type Config struct {
	BandpassLowHz  float64
	BandpassHighHz float64
	BandpassOrder  int
	TaperFraction  float64
}

// Processor conditions segments ahead of feature extraction.
type Processor struct {
	cfg Config
}

// New builds a Processor.
func New(cfg Config) *Processor {
	return &Processor{cfg: cfg}
}

// Condition returns a detrended, bandpassed, tapered copy of seg, plus its
// estimated signal-to-noise ratio in dB. seg is never mutated.
func (p *Processor) Condition(seg domain.Segment) (domain.Segment, float64, error) {
	if seg.Rate <= 0 || len(seg.Samples) == 0 {
		return domain.Segment{}, 0, apperr.New(apperr.Validation, "cannot condition empty or unrated segment")
	}
	nyquist := seg.Rate / 2
	if p.cfg.BandpassHighHz >= nyquist {
		return domain.Segment{}, 0, apperr.New(apperr.Validation, "bandpass high corner at or above Nyquist")
	}

	out := seg.Clone()
	Detrend(out.Samples, DetrendLinear)
	snr := EstimateSNR(out.Samples, seg.Rate)
	Taper(out.Samples, p.cfg.TaperFraction)
	if err := Bandpass(out.Samples, seg.Rate, p.cfg.BandpassLowHz, p.cfg.BandpassHighHz, p.cfg.BandpassOrder); err != nil {
		return domain.Segment{}, 0, err
	}
	return out, snr, nil
}

// DetrendMode selects which trend Detrend removes.
type DetrendMode string

const (
	DetrendConstant DetrendMode = "constant"
	DetrendLinear   DetrendMode = "linear"
)

// Detrend removes the best-fit trend from samples in place: the mean for
// DetrendConstant, or the best-fit line for DetrendLinear. Unrecognized
// modes fall back to DetrendLinear.
func Detrend(samples []float64, mode DetrendMode) {
	if mode == DetrendConstant {
		detrendConstant(samples)
		return
	}
	detrendLinear(samples)
}

func detrendConstant(samples []float64) {
	if len(samples) == 0 {
		return
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(len(samples))
	for i := range samples {
		samples[i] -= mean
	}
}

func detrendLinear(samples []float64) {
	n := len(samples)
	if n < 2 {
		return
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range samples {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	nf := float64(n)
	denom := nf*sumXX - sumX*sumX
	if denom == 0 {
		return
	}
	slope := (nf*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / nf
	for i := range samples {
		samples[i] -= slope*float64(i) + intercept
	}
}

// Taper applies a Hann cosine taper to the first and last fraction of
// samples, each of width len(samples)*fraction/2.
func Taper(samples []float64, fraction float64) {
	n := len(samples)
	if n == 0 || fraction <= 0 {
		return
	}
	width := int(float64(n) * fraction / 2)
	if width <= 0 {
		return
	}
	if width > n/2 {
		width = n / 2
	}
	for i := 0; i < width; i++ {
		w := 0.5 * (1 - math.Cos(math.Pi*float64(i)/float64(width)))
		samples[i] *= w
		samples[n-1-i] *= w
	}
}

// Bandpass applies a cascaded second-order-section Butterworth bandpass
// filter of the given order, zero-phase (forward-backward), between low
// and high Hz.
func Bandpass(samples []float64, rateHz, low, high float64, order int) error {
	if low <= 0 || high <= low {
		return apperr.New(apperr.Validation, "invalid bandpass corners")
	}
	if order <= 0 {
		order = 4
	}
	sections := order / 2
	if sections < 1 {
		sections = 1
	}
	nyquist := rateHz / 2
	wLow := low / nyquist
	wHigh := high / nyquist

	for s := 0; s < sections; s++ {
		b, a := biquadBandpass(wLow, wHigh)
		applyBiquadForwardBackward(samples, b, a)
	}
	return nil
}

// biquadBandpass computes a single RBJ-style bandpass biquad's
// coefficients for normalized corner frequencies (as a fraction of
// Nyquist).
func biquadBandpass(wLow, wHigh float64) (b, a [3]float64) {
	centerFreq := math.Sqrt(wLow * wHigh) * math.Pi
	bandwidth := (wHigh - wLow) * math.Pi
	if bandwidth <= 0 {
		bandwidth = 1e-6
	}
	q := centerFreq / bandwidth

	w0 := centerFreq
	alpha := math.Sin(w0) / (2 * q)
	cosw0 := math.Cos(w0)

	b0 := alpha
	b1 := 0.0
	b2 := -alpha
	a0 := 1 + alpha
	a1 := -2 * cosw0
	a2 := 1 - alpha

	return [3]float64{b0 / a0, b1 / a0, b2 / a0}, [3]float64{1, a1 / a0, a2 / a0}
}

// applyBiquadForwardBackward runs the direct-form-II biquad once forward
// and once in reverse to cancel the phase distortion a single pass would
// introduce (matching scipy.signal.filtfilt's effect on the original
// Python pipeline).
func applyBiquadForwardBackward(samples []float64, b, a [3]float64) {
	runBiquad(samples, b, a)
	reverse(samples)
	runBiquad(samples, b, a)
	reverse(samples)
}

func runBiquad(samples []float64, b, a [3]float64) {
	var x1, x2, y1, y2 float64
	for i, x0 := range samples {
		y0 := b[0]*x0 + b[1]*x1 + b[2]*x2 - a[1]*y1 - a[2]*y2
		samples[i] = y0
		x2, x1 = x1, x0
		y2, y1 = y1, y0
	}
}

func reverse(samples []float64) {
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
}

// Resample changes seg's sample rate to targetRate, anti-aliased:
// downsampling block-averages groups of samples before subsampling,
// upsampling linearly interpolates between samples. Upsampling
// (targetRate > seg.Rate) is forbidden unless allowUpsample is set, and
// even then capped at 2x the original rate — interpolation fabricates
// data the caller didn't record, so it's opt-in and bounded.
func Resample(seg domain.Segment, targetRate float64, allowUpsample bool) (domain.Segment, error) {
	if targetRate <= 0 {
		return domain.Segment{}, apperr.New(apperr.Validation, "target rate must be positive")
	}
	if seg.Rate <= 0 || len(seg.Samples) == 0 {
		return domain.Segment{}, apperr.New(apperr.Validation, "cannot resample empty or unrated segment")
	}
	if targetRate > seg.Rate {
		if !allowUpsample {
			return domain.Segment{}, apperr.New(apperr.Validation, "upsampling requires an explicit upsample flag")
		}
		if targetRate > 2*seg.Rate {
			return domain.Segment{}, apperr.New(apperr.Validation, "upsampling beyond 2x the original rate is forbidden")
		}
	}

	out := seg.Clone()
	out.Rate = targetRate
	if targetRate < seg.Rate {
		out.Samples = decimateAverage(seg.Samples, seg.Rate/targetRate)
	} else {
		out.Samples = interpolateLinear(seg.Samples, seg.Rate/targetRate)
	}
	return out, nil
}

// decimateAverage anti-alias-filters by averaging each block of factor
// source samples into one output sample.
func decimateAverage(samples []float64, factor float64) []float64 {
	n := int(float64(len(samples)) / factor)
	if n < 1 {
		n = 1
	}
	out := make([]float64, n)
	for i := range out {
		lo := int(float64(i) * factor)
		hi := int(float64(i+1) * factor)
		if hi > len(samples) {
			hi = len(samples)
		}
		if hi <= lo {
			hi = lo + 1
		}
		var sum float64
		count := 0
		for j := lo; j < hi && j < len(samples); j++ {
			sum += samples[j]
			count++
		}
		if count > 0 {
			out[i] = sum / float64(count)
		}
	}
	return out
}

// interpolateLinear produces floor(len(samples)/ratio) output samples (at
// least one) by
// linearly interpolating between adjacent source samples, where ratio =
// sourceRate/targetRate < 1.
func interpolateLinear(samples []float64, ratio float64) []float64 {
	n := int(float64(len(samples)) / ratio)
	if n < 1 {
		n = 1
	}
	out := make([]float64, n)
	last := len(samples) - 1
	for i := range out {
		srcPos := float64(i) * ratio
		lo := int(srcPos)
		if lo >= last {
			out[i] = samples[last]
			continue
		}
		frac := srcPos - float64(lo)
		out[i] = samples[lo]*(1-frac) + samples[lo+1]*frac
	}
	return out
}

// EstimateSNR estimates signal-to-noise ratio in dB, comparing the RMS
// amplitude of the final quarter of the trace (assumed signal-bearing,
// following a pre-roll/post-roll convention) against the first quarter
// (assumed noise-only).
func EstimateSNR(samples []float64, rateHz float64) float64 {
	n := len(samples)
	if n < 8 {
		return 0
	}
	quarter := n / 4
	noiseRMS := rms(samples[:quarter])
	signalRMS := rms(samples[n-quarter:])
	if noiseRMS == 0 {
		if signalRMS == 0 {
			return 0
		}
		return 120 // arbitrarily large but finite; avoids +Inf leaking downstream
	}
	return 20 * math.Log10(signalRMS/noiseRMS)
}

func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSq float64
	for _, s := range samples {
		sumSq += s * s
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}

// QualityScore combines gap fraction and SNR into a single [0,1] score
// gating whether a segment is fit for classification, per spec.md §4.4.
func QualityScore(seg domain.Segment, snrDB float64) float64 {
	gapPenalty := 1 - seg.GapFraction()
	if gapPenalty < 0 {
		gapPenalty = 0
	}
	snrScore := snrDB / 40
	if snrScore > 1 {
		snrScore = 1
	}
	if snrScore < 0 {
		snrScore = 0
	}
	score := 0.5*gapPenalty + 0.5*snrScore
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

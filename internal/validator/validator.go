// Package validator implements the ingest gate (spec.md C3): structural and
// physical-plausibility checks on waveform Segments and catalog Events
// before they enter the pipeline, grounded on
// _examples/original_source/src/seismic_classifier/data_pipeline/validators.py's
// field-presence/range checks, re-expressed as a Go validator that returns
// a reason string instead of raising.
package validator

import (
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/seismonet/pipeline/internal/apperr"
	"github.com/seismonet/pipeline/internal/domain"
)

// Limits bounds the plausibility checks; DefaultLimits returns the
// defaults documented in spec.md §4.3. Zero-valued fields are used as
// given, except EarliestOrigin.
type Limits struct {
	MinRateHz      float64
	MaxRateHz      float64
	MaxGapFraction float64
	MaxAmplitude   float64 // physical units; guards against unit-conversion bugs
	Bounds         domain.BoundingBox
	MinDepthKM     float64
	MaxDepthKM     float64
	EarliestOrigin time.Time // zero means 1900-01-01
}

// DefaultLimits returns the spec's out-of-the-box plausibility bounds.
func DefaultLimits() Limits {
	return Limits{
		MinRateHz:      0.1,
		MaxRateHz:      20000,
		MaxGapFraction: 0.5,
		MaxAmplitude:   1e6,
		Bounds:         domain.BoundingBox{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180},
		MinDepthKM:     0,
		MaxDepthKM:     800,
		EarliestOrigin: time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Validator checks inbound records before they're handed to the Signal
// Processor or Locator.
type Validator struct {
	limits Limits
	clock  clockwork.Clock
}

// New builds a Validator with the given limits, using the real clock for
// origin-time sanity checks.
func New(limits Limits) *Validator {
	return NewWithClock(limits, clockwork.NewRealClock())
}

// NewWithClock builds a Validator with an injectable clock, for testing the
// origin-time sanity window without waiting on wall time.
func NewWithClock(limits Limits, clock clockwork.Clock) *Validator {
	if limits.EarliestOrigin.IsZero() {
		limits.EarliestOrigin = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &Validator{limits: limits, clock: clock}
}

// ValidateSegment reports an error if seg fails any structural or
// plausibility check; nil means seg may proceed.
func (v *Validator) ValidateSegment(seg domain.Segment) error {
	if seg.Channel.Network == "" || seg.Channel.Station == "" || seg.Channel.Channel == "" {
		return apperr.New(apperr.Validation, "segment missing channel identity")
	}
	if seg.Start.IsZero() {
		return apperr.New(apperr.Validation, "segment missing start time")
	}
	if len(seg.Samples) == 0 {
		return apperr.New(apperr.Validation, "segment has no samples")
	}
	if seg.Rate < v.limits.MinRateHz || seg.Rate > v.limits.MaxRateHz {
		return apperr.New(apperr.Validation, "segment sample rate out of bounds")
	}
	if seg.GapFraction() > v.limits.MaxGapFraction {
		return apperr.New(apperr.Validation, "segment gap fraction exceeds limit")
	}
	if err := validateGaps(seg); err != nil {
		return err
	}
	for _, s := range seg.Samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return apperr.New(apperr.Corruption, "segment contains NaN or Inf sample")
		}
		if math.Abs(s) > v.limits.MaxAmplitude {
			return apperr.New(apperr.Validation, "segment amplitude exceeds physical bound")
		}
	}
	return nil
}

// ValidateCatalogEvent reports an error if ev fails structural or
// geographic plausibility checks.
func (v *Validator) ValidateCatalogEvent(ev domain.CatalogEvent) error {
	if ev.ID == "" {
		return apperr.New(apperr.Validation, "catalog event missing ID")
	}
	if ev.OriginTime.IsZero() {
		return apperr.New(apperr.Validation, "catalog event missing origin time")
	}
	latest := v.clock.Now().Add(time.Hour)
	if ev.OriginTime.Before(v.limits.EarliestOrigin) || ev.OriginTime.After(latest) {
		return apperr.New(apperr.Validation, "catalog event origin time outside sane window")
	}
	if !v.limits.Bounds.Contains(ev.Hypocenter.Latitude, ev.Hypocenter.Longitude) {
		return apperr.New(apperr.Validation, "catalog event hypocenter outside configured bounds")
	}
	if ev.Hypocenter.DepthKM < v.limits.MinDepthKM || ev.Hypocenter.DepthKM > v.limits.MaxDepthKM {
		return apperr.New(apperr.Validation, "catalog event depth implausible")
	}
	if ev.Magnitude < -2 || ev.Magnitude > 10 {
		return apperr.New(apperr.Validation, "catalog event magnitude implausible")
	}
	if !domain.KnownScale(ev.Scale) {
		return apperr.New(apperr.Validation, "catalog event magnitude scale not recognized")
	}
	return nil
}

// validateGaps checks that seg.Gaps are pairwise disjoint and fall
// entirely within [seg.Start, seg.End()), per the Segment invariant.
func validateGaps(seg domain.Segment) error {
	if len(seg.Gaps) == 0 {
		return nil
	}
	sorted := append([]domain.Interval(nil), seg.Gaps...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Start.After(sorted[j].Start); j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	start, end := seg.Start, seg.End()
	for i, g := range sorted {
		if g.End.Before(g.Start) {
			return apperr.New(apperr.Validation, "segment gap has end before start")
		}
		if g.Start.Before(start) || g.End.After(end) {
			return apperr.New(apperr.Validation, "segment gap outside segment bounds")
		}
		if i > 0 && g.Start.Before(sorted[i-1].End) {
			return apperr.New(apperr.Validation, "segment gaps overlap")
		}
	}
	return nil
}

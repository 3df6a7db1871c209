package domain

import "time"

// Magnitude is a point estimate with a bootstrap-derived confidence
// interval; Low <= Value <= High is enforced by the estimator (C8).
type Magnitude struct {
	Value float64
	Low   float64
	High  float64
	Scale MagnitudeScale
}

// Location is a hypocenter estimate with an error ellipse and fit quality.
type Location struct {
	Hypocenter      Hypocenter
	HorizontalErrKM float64
	DepthErrKM      float64
	RMSResidualS    float64
	StationsUsed    []string
}

// ErrorEllipseAreaKM2 returns the horizontal 1-sigma error ellipse area,
// treating HorizontalErrKM as the semi-major/minor radius (circular
// approximation), per spec.md §8's "error ellipse area is finite" check.
func (l Location) ErrorEllipseAreaKM2() float64 {
	r := l.HorizontalErrKM
	return 3.14159265358979 * r * r
}

// PipelineTiming records per-stage latency for observability and the
// "sub-minute latency" operational goal from spec.md §1.
type PipelineTiming struct {
	DetectedAt    time.Time
	FeaturesAt    time.Time
	ClassifiedAt  time.Time
	LocatedAt     time.Time
	CommittedAt   time.Time
}

// ClassificationResult is the classifier's calibrated output.
type ClassificationResult struct {
	Label      string
	Confidence float64
}

// ClassifiedEvent is the join of a Candidate, its Feature Vector, and the
// outputs of classification, magnitude, and location. Immutable once
// written to the Event Store.
type ClassifiedEvent struct {
	ID             string
	Candidate      Candidate
	Features       FeatureVector
	Classification ClassificationResult
	Magnitude      Magnitude
	Location       Location
	Timing         PipelineTiming
}

// TriggerInstant is the ordering key the store and queries sort by.
func (e ClassifiedEvent) TriggerInstant() time.Time {
	return e.Candidate.TriggerInstant
}

package domain

import "time"

// MagnitudeScale is the scale a catalog magnitude was reported on.
type MagnitudeScale string

const (
	ScaleMl MagnitudeScale = "Ml"
	ScaleMw MagnitudeScale = "Mw"
	ScaleMs MagnitudeScale = "Ms"
	ScaleMb MagnitudeScale = "Mb"
)

// KnownScale reports whether s is one of the recognized magnitude scales.
func KnownScale(s MagnitudeScale) bool {
	switch s {
	case ScaleMl, ScaleMw, ScaleMs, ScaleMb:
		return true
	default:
		return false
	}
}

// Hypocenter is the (lat, lon, depth) of an inferred or reported source.
type Hypocenter struct {
	Latitude  float64
	Longitude float64
	DepthKM   float64
}

// CatalogEvent is an external-origin earthquake record. Immutable once
// accepted; RawPayload retains the verbatim upstream body for audit.
type CatalogEvent struct {
	ID          string
	OriginTime  time.Time
	Hypocenter  Hypocenter
	Magnitude   float64
	Scale       MagnitudeScale
	SourceAgency string
	RawPayload  []byte
}

// BoundingBox filters events/stations by geographic extent.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Contains reports whether (lat, lon) falls inside the box.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

package validator

import (
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seismonet/pipeline/internal/apperr"
	"github.com/seismonet/pipeline/internal/domain"
)

func validCatalogEvent() domain.CatalogEvent {
	return domain.CatalogEvent{
		ID:         "us1",
		OriginTime: time.Now(),
		Hypocenter: domain.Hypocenter{Latitude: 35, Longitude: -118, DepthKM: 10},
		Magnitude:  4.5,
		Scale:      domain.ScaleMw,
	}
}

func validSegment() domain.Segment {
	return domain.Segment{
		Channel: domain.ChannelID{Network: "NC", Station: "PFO", Channel: "HHZ"},
		Start:   time.Now(),
		Rate:    100,
		Samples: []float64{0.1, 0.2, 0.3},
		Quality: domain.QualityGood,
	}
}

func TestValidateSegment_Accepts(t *testing.T) {
	v := New(DefaultLimits())
	require.NoError(t, v.ValidateSegment(validSegment()))
}

func TestValidateSegment_RejectsMissingChannel(t *testing.T) {
	v := New(DefaultLimits())
	seg := validSegment()
	seg.Channel = domain.ChannelID{}
	err := v.ValidateSegment(seg)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestValidateSegment_RejectsNaN(t *testing.T) {
	v := New(DefaultLimits())
	seg := validSegment()
	seg.Samples[1] = math.NaN()
	err := v.ValidateSegment(seg)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Corruption))
}

func TestValidateSegment_RejectsExcessiveGaps(t *testing.T) {
	v := New(DefaultLimits())
	seg := validSegment()
	seg.Samples = make([]float64, 1000)
	seg.Gaps = []domain.Interval{{Start: seg.Start, End: seg.Start.Add(9 * time.Second)}}
	err := v.ValidateSegment(seg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gap")
}

func TestValidateCatalogEvent_RejectsOutOfBounds(t *testing.T) {
	v := New(DefaultLimits())
	ev := domain.CatalogEvent{
		ID: "x", OriginTime: time.Now(),
		Hypocenter: domain.Hypocenter{Latitude: 200, Longitude: 0},
		Scale:      domain.ScaleMw,
	}
	err := v.ValidateCatalogEvent(ev)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestValidateCatalogEvent_Accepts(t *testing.T) {
	v := New(DefaultLimits())
	require.NoError(t, v.ValidateCatalogEvent(validCatalogEvent()))
}

func TestValidateCatalogEvent_RejectsDepthOutOfBounds(t *testing.T) {
	v := New(DefaultLimits())
	ev := validCatalogEvent()
	ev.Hypocenter.DepthKM = 900
	err := v.ValidateCatalogEvent(ev)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestValidateCatalogEvent_RejectsNegativeDepth(t *testing.T) {
	v := New(DefaultLimits())
	ev := validCatalogEvent()
	ev.Hypocenter.DepthKM = -5
	err := v.ValidateCatalogEvent(ev)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestValidateCatalogEvent_RejectsUnrecognizedScale(t *testing.T) {
	v := New(DefaultLimits())
	ev := validCatalogEvent()
	ev.Scale = domain.MagnitudeScale("bogus")
	err := v.ValidateCatalogEvent(ev)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestValidateCatalogEvent_RejectsOriginTimeTooOld(t *testing.T) {
	v := New(DefaultLimits())
	ev := validCatalogEvent()
	ev.OriginTime = time.Date(1850, 1, 1, 0, 0, 0, 0, time.UTC)
	err := v.ValidateCatalogEvent(ev)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestValidateCatalogEvent_RejectsOriginTimeTooFarInFuture(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := NewWithClock(DefaultLimits(), clock)
	ev := validCatalogEvent()
	ev.OriginTime = clock.Now().Add(2 * time.Hour)
	err := v.ValidateCatalogEvent(ev)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestValidateSegment_RejectsOverlappingGaps(t *testing.T) {
	v := New(DefaultLimits())
	seg := validSegment()
	seg.Samples = make([]float64, 1000)
	seg.Gaps = []domain.Interval{
		{Start: seg.Start.Add(time.Second), End: seg.Start.Add(3 * time.Second)},
		{Start: seg.Start.Add(2 * time.Second), End: seg.Start.Add(4 * time.Second)},
	}
	err := v.ValidateSegment(seg)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestValidateSegment_RejectsGapOutsideBounds(t *testing.T) {
	v := New(DefaultLimits())
	seg := validSegment()
	seg.Samples = make([]float64, 1000)
	seg.Gaps = []domain.Interval{{Start: seg.Start.Add(-time.Second), End: seg.Start.Add(time.Second)}}
	err := v.ValidateSegment(seg)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

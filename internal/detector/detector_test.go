package detector

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seismonet/pipeline/internal/domain"
)

func testConfig() Config {
	return Config{
		STA: time.Second, LTA: 10 * time.Second,
		ROn: 4.0, ROff: 2.0,
		DMin: time.Second, DMax: 30 * time.Second,
		PreRoll: 5 * time.Second, PostRoll: 5 * time.Second,
		Refractory: 2 * time.Second,
	}
}

func buildSegment(start time.Time, rate float64, n int, amplitudeFn func(i int) float64) domain.Segment {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amplitudeFn(i)
	}
	return domain.Segment{
		Channel: domain.ChannelID{Network: "NC", Station: "PFO", Channel: "HHZ"},
		Start:   start,
		Rate:    rate,
		Samples: samples,
	}
}

func TestDetector_NoiseOnlyProducesNoTrigger(t *testing.T) {
	d := New("det1", domain.ChannelID{Network: "NC", Station: "PFO"}, testConfig())
	seg := buildSegment(time.Now(), 100, 2000, func(i int) float64 {
		return 0.001 * math.Sin(float64(i))
	})
	candidates := d.Feed(seg)
	assert.Empty(t, candidates)
}

func TestDetector_ClearEarthquakeConfirms(t *testing.T) {
	d := New("det1", domain.ChannelID{Network: "NC", Station: "PFO"}, testConfig())
	rate := 100.0
	start := time.Now()

	warmup := buildSegment(start, rate, 1500, func(i int) float64 { return 0.001 })
	d.Feed(warmup)

	burst := buildSegment(start.Add(15*time.Second), rate, 1000, func(i int) float64 {
		if i < 500 {
			return 1.0
		}
		return 0.001
	})
	candidates := d.Feed(burst)

	tail := buildSegment(start.Add(25*time.Second), rate, 500, func(i int) float64 { return 0.001 })
	candidates = append(candidates, d.Feed(tail)...)

	require.NotEmpty(t, candidates)
	found := false
	for _, c := range candidates {
		if c.State == domain.StateConfirmed {
			found = true
		}
	}
	assert.True(t, found, "expected at least one confirmed candidate")
}

func TestDetector_NoTriggerDuringLTAWarmup(t *testing.T) {
	d := New("det1", domain.ChannelID{Network: "NC", Station: "PFO"}, testConfig())
	rate := 100.0
	start := time.Now()

	// A loud burst arrives immediately, well before the 10s LTA window has
	// accumulated any history: the detector must still be IDLE and must not
	// trigger on it.
	burst := buildSegment(start, rate, 500, func(i int) float64 {
		if i < 100 {
			return 1.0
		}
		return 0.001
	})
	candidates := d.Feed(burst)
	assert.Empty(t, candidates, "a burst during LTA warmup must not produce a trigger")
	assert.Equal(t, phaseIdle, d.phase)
}

func TestDetector_GapDuringWarmupResetsAccumulation(t *testing.T) {
	d := New("det1", domain.ChannelID{Network: "NC", Station: "PFO"}, testConfig())
	rate := 100.0
	start := time.Now()

	// 15s would fill the 10s LTA window, but only 6.5s follow the gap.
	seg := buildSegment(start, rate, 1500, func(i int) float64 { return 0.001 })
	seg.Gaps = []domain.Interval{{Start: start.Add(8 * time.Second), End: start.Add(8500 * time.Millisecond)}}
	d.Feed(seg)

	assert.Equal(t, phaseIdle, d.phase, "a gap before the window fills must reset accumulation, not arm")
}

func TestDetector_SubThresholdBlipNeverTriggers(t *testing.T) {
	d := New("det1", domain.ChannelID{Network: "NC", Station: "PFO"}, testConfig())
	rate := 100.0
	start := time.Now()
	warmup := buildSegment(start, rate, 1500, func(i int) float64 { return 0.001 })
	d.Feed(warmup)

	blip := buildSegment(start.Add(15*time.Second), rate, 50, func(i int) float64 {
		if i < 5 {
			return 0.0015
		}
		return 0.001
	})
	candidates := d.Feed(blip)
	assert.Empty(t, candidates)
}

// Package detector implements the real-time STA/LTA trigger state machine
// (spec.md C6), grounded on
// _examples/original_source/src/seismic_classifier/advanced_analytics/event_detection.py's
// RealTimeDetector: recursive short-term/long-term average ratio tracking
// with configurable trigger/detrigger thresholds, re-expressed as an
// incremental Go state machine fed one conditioned Segment at a time.
package detector

import (
	"time"

	"github.com/seismonet/pipeline/internal/domain"
)

// Config parameterizes the trigger state machine, mirroring spec.md §4.6.
type Config struct {
	STA        time.Duration
	LTA        time.Duration
	ROn        float64
	ROff       float64
	DMin       time.Duration
	DMax       time.Duration
	PreRoll    time.Duration
	PostRoll   time.Duration
	Refractory time.Duration
}

type phase int

const (
	// phaseIdle accumulates LTA history; triggers cannot fire yet.
	phaseIdle phase = iota
	// phaseArmed has a full, gap-free LTA window behind it and may trigger.
	phaseArmed
	phaseTriggered
	phaseRefractory
)

// Detector runs the recursive STA/LTA algorithm over a single channel's
// sample stream, incrementally, across Segment boundaries.
type Detector struct {
	id      string
	channel domain.ChannelID
	cfg     Config

	phase phase

	sta, lta float64
	ltaWarm  bool

	// warmAccum is the gap-free duration accumulated toward phaseArmed's
	// gate: a full LTA window with no gap, reset to zero whenever a gap is
	// encountered before arming.
	warmAccum time.Duration

	triggerInstant  time.Time
	triggerRatio    float64
	refractoryUntil time.Time

	seq uint64
}

// Channel returns the channel this Detector was built for.
func (d *Detector) Channel() domain.ChannelID {
	return d.channel
}

// New builds a Detector for one channel.
func New(id string, channel domain.ChannelID, cfg Config) *Detector {
	return &Detector{id: id, channel: channel, cfg: cfg}
}

// Feed processes one conditioned Segment in order and returns any
// Candidates finalized (CONFIRMED or REJECTED) while processing it. A
// segment's internal gaps are treated as invalidating any trigger active
// during them.
func (d *Detector) Feed(seg domain.Segment) []domain.Candidate {
	if seg.Rate <= 0 || len(seg.Samples) == 0 {
		return nil
	}
	dt := time.Duration(float64(time.Second) / seg.Rate)
	staAlpha := dt.Seconds() / d.cfg.STA.Seconds()
	ltaAlpha := dt.Seconds() / d.cfg.LTA.Seconds()

	var out []domain.Candidate
	t := seg.Start

	for _, sample := range seg.Samples {
		cf := sample * sample // characteristic function: squared amplitude

		if !d.ltaWarm {
			d.sta = cf
			d.lta = cf
			d.ltaWarm = true
		} else {
			d.sta += staAlpha * (cf - d.sta)
			d.lta += ltaAlpha * (cf - d.lta)
		}

		ratio := 0.0
		if d.lta > 0 {
			ratio = d.sta / d.lta
		}

		if d.phase == phaseRefractory && !t.Before(d.refractoryUntil) {
			// The LTA window is already warm from before the trigger, so
			// resume straight to armed rather than re-accumulating.
			d.phase = phaseArmed
		}

		switch d.phase {
		case phaseIdle:
			if sampleInGap(seg, t) {
				d.warmAccum = 0
			} else {
				d.warmAccum += dt
				if d.warmAccum >= d.cfg.LTA {
					d.phase = phaseArmed
				}
			}
		case phaseArmed:
			if ratio >= d.cfg.ROn {
				d.phase = phaseTriggered
				d.triggerInstant = t
				d.triggerRatio = ratio
			}
		case phaseTriggered:
			elapsed := t.Sub(d.triggerInstant)
			if ratio <= d.cfg.ROff || elapsed >= d.cfg.DMax {
				if c, ok := d.finalize(t, seg); ok {
					out = append(out, c)
				}
			}
		}

		t = t.Add(dt)
	}

	if d.phase == phaseTriggered && segmentHasGapDuringTrigger(seg, d.triggerInstant) {
		if c, ok := d.finalize(seg.End(), seg); ok {
			c.RejectReason = domain.RejectGapDuringTrigger
			c.State = domain.StateRejected
			out = append(out, c)
		}
	}

	return out
}

// sampleInGap reports whether t falls inside one of seg's recorded gaps.
func sampleInGap(seg domain.Segment, t time.Time) bool {
	for _, g := range seg.Gaps {
		if !t.Before(g.Start) && t.Before(g.End) {
			return true
		}
	}
	return false
}

func segmentHasGapDuringTrigger(seg domain.Segment, triggerInstant time.Time) bool {
	for _, g := range seg.Gaps {
		if g.End.After(triggerInstant) {
			return true
		}
	}
	return false
}

// finalize ends the active trigger at detriggerInstant, classifying it as
// CONFIRMED or REJECTED(below_min_duration) by duration, and resets to
// refractory.
func (d *Detector) finalize(detriggerInstant time.Time, seg domain.Segment) (domain.Candidate, bool) {
	duration := detriggerInstant.Sub(d.triggerInstant)
	d.seq++

	c := domain.Candidate{
		DetectorID:     d.id,
		Channel:        d.channel,
		SequenceNum:    d.seq,
		TriggerInstant: d.triggerInstant,
		TriggerRatio:   d.triggerRatio,
		PreRoll:        domain.Interval{Start: d.triggerInstant.Add(-d.cfg.PreRoll), End: d.triggerInstant},
		PostRoll:       domain.Interval{Start: detriggerInstant, End: detriggerInstant.Add(d.cfg.PostRoll)},
	}

	if duration < d.cfg.DMin {
		c.State = domain.StateRejected
		c.RejectReason = domain.RejectBelowMinDuration
	} else {
		c.State = domain.StateConfirmed
	}

	d.phase = phaseRefractory
	d.refractoryUntil = detriggerInstant.Add(d.cfg.Refractory)

	return c, true
}

package domain

import "time"

// CandidateState is the lifecycle state of a detector-originated event.
type CandidateState string

const (
	StateProvisional CandidateState = "PROVISIONAL"
	StateConfirmed   CandidateState = "CONFIRMED"
	StateRejected    CandidateState = "REJECTED"
)

// RejectReason names why a Candidate finalized as REJECTED, for the
// dead-letter stream and for test assertions against spec.md §8's literal
// scenarios (e.g. "below_min_duration").
type RejectReason string

const (
	RejectBelowMinDuration RejectReason = "below_min_duration"
	RejectGapDuringTrigger RejectReason = "gap_during_trigger"
	RejectValidation       RejectReason = "validation_failed"
	RejectSchemaMismatch   RejectReason = "schema_mismatch"
	RejectLocatorFailed    RejectReason = "locator_non_convergent"
)

// Candidate is an internal-origin detection emitted by the Event Detector.
// SequenceNum is assigned at emit time and is the correlation key the
// orchestrator uses to restore trigger-instant ordering downstream, per
// spec.md §4.10 and the DESIGN NOTES' "typed event-sequence number" pattern.
type Candidate struct {
	DetectorID     string
	Channel        ChannelID
	SequenceNum    uint64
	TriggerInstant time.Time
	TriggerRatio   float64
	PreRoll        Interval
	PostRoll       Interval
	State          CandidateState
	RejectReason   RejectReason
}

// Duration returns the time between PreRoll.End (trigger) and PostRoll.Start
// (detrigger) — the confirmed event's core span, excluding roll windows.
func (c Candidate) Duration() time.Duration {
	return c.PostRoll.Start.Sub(c.PreRoll.End)
}

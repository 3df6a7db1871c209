// Package domain models the seismic pipeline's core records: waveform
// segments and streams ingested from a data center, catalog events fetched
// from an external authoritative catalog, candidate events emitted by the
// real-time detector, feature vectors, and the classified events that reach
// the store.
//
// # Ownership
//
// Waveform Segments are owned by their producing client and handed
// downstream by value; no stage mutates another stage's samples. Candidate
// Events are owned by the detector until emitted, then by the pipeline
// orchestrator until they become Classified Events.
package domain

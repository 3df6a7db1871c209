package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seismonet/pipeline/internal/apperr"
	"github.com/seismonet/pipeline/internal/domain"
)

func sampleEvent(id string, t time.Time) domain.ClassifiedEvent {
	return domain.ClassifiedEvent{
		ID: id,
		Candidate: domain.Candidate{
			DetectorID:     "det1",
			TriggerInstant: t,
			State:          domain.StateConfirmed,
		},
		Classification: domain.ClassificationResult{Label: "earthquake", Confidence: 0.9},
	}
}

func TestStore_AppendAndGet(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "v1", FsyncPerWrite)
	require.NoError(t, err)
	defer s.Close()

	ev := sampleEvent("evt-1", time.Now())
	require.NoError(t, s.Append(ev))

	got, err := s.Get("evt-1")
	require.NoError(t, err)
	assert.Equal(t, "evt-1", got.ID)
	assert.Equal(t, "earthquake", got.Classification.Label)
}

func TestStore_RejectsDuplicateID(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "v1", FsyncPerWrite)
	require.NoError(t, err)
	defer s.Close()

	ev := sampleEvent("evt-1", time.Now())
	require.NoError(t, s.Append(ev))
	err = s.Append(ev)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestStore_RangeOrdersByTime(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "v1", FsyncPerWrite)
	require.NoError(t, err)
	defer s.Close()

	base := time.Now()
	require.NoError(t, s.Append(sampleEvent("evt-2", base.Add(2*time.Second))))
	require.NoError(t, s.Append(sampleEvent("evt-1", base)))
	require.NoError(t, s.Append(sampleEvent("evt-3", base.Add(4*time.Second))))

	events, err := s.Range(Query{Start: base, End: base.Add(3 * time.Second)})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt-1", events[0].ID)
	assert.Equal(t, "evt-2", events[1].ID)
}

func TestStore_RangeAppliesFilters(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "v1", FsyncPerWrite)
	require.NoError(t, err)
	defer s.Close()

	base := time.Now()

	inBox := sampleEvent("evt-near", base)
	inBox.Location.Hypocenter = domain.Hypocenter{Latitude: 35.0, Longitude: -118.0}
	inBox.Magnitude = domain.Magnitude{Value: 4.5}
	require.NoError(t, s.Append(inBox))

	outOfBox := sampleEvent("evt-far", base.Add(time.Second))
	outOfBox.Location.Hypocenter = domain.Hypocenter{Latitude: 60.0, Longitude: 10.0}
	outOfBox.Magnitude = domain.Magnitude{Value: 4.5}
	require.NoError(t, s.Append(outOfBox))

	wrongLabel := sampleEvent("evt-noise", base.Add(2*time.Second))
	wrongLabel.Classification.Label = "noise"
	wrongLabel.Location.Hypocenter = inBox.Location.Hypocenter
	wrongLabel.Magnitude = domain.Magnitude{Value: 4.5}
	require.NoError(t, s.Append(wrongLabel))

	tooSmall := sampleEvent("evt-small", base.Add(3*time.Second))
	tooSmall.Location.Hypocenter = inBox.Location.Hypocenter
	tooSmall.Magnitude = domain.Magnitude{Value: 1.0}
	require.NoError(t, s.Append(tooSmall))

	events, err := s.Range(Query{
		Start:        base,
		End:          base.Add(10 * time.Second),
		Bbox:         &domain.BoundingBox{MinLat: 30, MaxLat: 40, MinLon: -120, MaxLon: -110},
		Label:        "earthquake",
		MinMagnitude: 3.0,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-near", events[0].ID)
}

func TestStore_ReopenRebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "v1", FsyncPerWrite)
	require.NoError(t, err)
	base := time.Now()
	require.NoError(t, s.Append(sampleEvent("evt-1", base)))
	require.NoError(t, s.Append(sampleEvent("evt-2", base.Add(time.Second))))
	require.NoError(t, s.Close())

	s2, err := Open(dir, "v1", FsyncPerWrite)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get("evt-2")
	require.NoError(t, err)
	assert.Equal(t, "evt-2", got.ID)

	events, err := s2.Range(Query{Start: base.Add(-time.Minute), End: base.Add(time.Minute)})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestStore_AppendDeadLetter(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "v1", FsyncPerWrite)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.AppendDeadLetter("below_min_duration", map[string]string{"id": "cand-1"}))
}

package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seismonet/pipeline/internal/domain"
)

type recordingSink struct {
	mu        sync.Mutex
	committed []domain.ClassifiedEvent
	deadLettered []domain.Candidate
}

func (s *recordingSink) Commit(ctx context.Context, ev domain.ClassifiedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, ev)
	return nil
}

func (s *recordingSink) DeadLetter(ctx context.Context, c domain.Candidate, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadLettered = append(s.deadLettered, c)
	return nil
}

func (s *recordingSink) commitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.committed)
}

func (s *recordingSink) deadLetterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deadLettered)
}

func passthroughStage(ctx context.Context, c domain.Candidate) (domain.ClassifiedEvent, error) {
	return domain.ClassifiedEvent{ID: c.Channel.String(), Candidate: c}, nil
}

func TestPipeline_ProcessesConfirmedCandidates(t *testing.T) {
	sink := &recordingSink{}
	p := New(Config{QueueCapacity: 10, WorkerCount: 2, ReorderWindow: 10 * time.Millisecond}, passthroughStage, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	c := domain.Candidate{DetectorID: "d1", SequenceNum: 1, State: domain.StateConfirmed}
	require.NoError(t, p.Submit(ctx, c))

	require.Eventually(t, func() bool { return sink.commitCount() == 1 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestPipeline_DeadLettersRejectedCandidates(t *testing.T) {
	sink := &recordingSink{}
	p := New(Config{QueueCapacity: 10, WorkerCount: 1, ReorderWindow: time.Millisecond}, passthroughStage, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	c := domain.Candidate{DetectorID: "d1", SequenceNum: 1, State: domain.StateRejected, RejectReason: domain.RejectBelowMinDuration}
	require.NoError(t, p.Submit(ctx, c))

	require.Eventually(t, func() bool { return sink.deadLetterCount() == 1 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestPipeline_SubmitBlocksInsteadOfDropping(t *testing.T) {
	blockStage := func(ctx context.Context, c domain.Candidate) (domain.ClassifiedEvent, error) {
		<-ctx.Done()
		return domain.ClassifiedEvent{}, ctx.Err()
	}
	sink := &recordingSink{}
	p := New(Config{QueueCapacity: 1, WorkerCount: 1, ReorderWindow: time.Millisecond}, blockStage, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	// Fill the single queue slot and occupy the one worker so the next
	// Submit has nowhere to go.
	require.NoError(t, p.Submit(ctx, domain.Candidate{DetectorID: "d1", SequenceNum: 1, State: domain.StateConfirmed}))
	require.NoError(t, p.Submit(ctx, domain.Candidate{DetectorID: "d1", SequenceNum: 2, State: domain.StateConfirmed}))

	submitReturned := make(chan error, 1)
	go func() {
		submitReturned <- p.Submit(ctx, domain.Candidate{DetectorID: "d1", SequenceNum: 3, State: domain.StateConfirmed})
	}()

	select {
	case <-submitReturned:
		t.Fatal("Submit returned while the queue was full; overflow must block, not drop")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	<-done
	err := <-submitReturned
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSequenceBuffer_ReleasesInOrder(t *testing.T) {
	buf := newSequenceBuffer()
	now := time.Now()

	buf.push(domain.Candidate{SequenceNum: 2}, now)
	released := buf.drain(time.Second, now)
	assert.Empty(t, released, "seq 2 should wait for seq 1 or window expiry")

	buf.push(domain.Candidate{SequenceNum: 1}, now)
	released = buf.drain(time.Second, now)
	require.Len(t, released, 2)
	assert.Equal(t, uint64(1), released[0].SequenceNum)
	assert.Equal(t, uint64(2), released[1].SequenceNum)
}

func TestSequenceBuffer_ForcesThroughAfterWindow(t *testing.T) {
	buf := newSequenceBuffer()
	now := time.Now()
	buf.push(domain.Candidate{SequenceNum: 5}, now)
	released := buf.drain(time.Second, now.Add(2*time.Second))
	require.Len(t, released, 1)
	assert.Equal(t, uint64(5), released[0].SequenceNum)
}

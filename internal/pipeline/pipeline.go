// Package pipeline implements the concurrent, backpressured orchestrator
// (spec.md C10): a bounded queue feeding a fixed worker pool, with a
// per-detector reorder buffer restoring SequenceNum order before a
// candidate is handed to the processing stages. Grounded on the teacher's
// extract-transform-load main loop (internal/pipeline/pipeline.go,
// deleted after grounding): a single Run loop reading from a channel,
// dispatching to workers, and observing shutdown via context
// cancellation, generalized from a fixed three-stage ETL into an N-worker
// pool running the full detector-to-store chain per candidate.
package pipeline

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/seismonet/pipeline/internal/domain"
)

// Stage processes one Candidate into a ClassifiedEvent, or returns an error
// that the orchestrator routes to the dead-letter log.
type Stage func(ctx context.Context, c domain.Candidate) (domain.ClassifiedEvent, error)

// Sink receives the outcome of processing a candidate: either a
// ClassifiedEvent, or an error with the reason it could not be produced.
type Sink interface {
	Commit(ctx context.Context, ev domain.ClassifiedEvent) error
	DeadLetter(ctx context.Context, c domain.Candidate, reason string) error
}

// Observer receives orchestrator telemetry for metrics wiring.
type Observer interface {
	ObserveQueueDepth(n int)
	ObserveBlocked()
	ObserveStageDuration(stage string, d time.Duration)
	ObserveRunning(running bool)
}

// Config parameterizes the orchestrator.
type Config struct {
	QueueCapacity int
	WorkerCount   int
	ReorderWindow time.Duration
}

// Pipeline is the concurrent orchestrator tying the detector's Candidate
// stream to the processing Stage and the Sink.
type Pipeline struct {
	cfg   Config
	stage Stage
	sink  Sink
	obs   Observer

	queue chan domain.Candidate

	reorderMu sync.Mutex
	reorder   map[string]*sequenceBuffer

	wg sync.WaitGroup
}

// New builds a Pipeline. stage performs feature extraction through
// location for a single candidate; sink durably commits the result.
func New(cfg Config, stage Stage, sink Sink, obs Observer) *Pipeline {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	return &Pipeline{
		cfg:     cfg,
		stage:   stage,
		sink:    sink,
		obs:     obs,
		queue:   make(chan domain.Candidate, cfg.QueueCapacity),
		reorder: make(map[string]*sequenceBuffer),
	}
}

// Submit enqueues a candidate for processing, restoring per-detector
// sequence order before it reaches the bounded queue. The overflow policy
// is backpressure, not drop: when the queue is full, Submit blocks the
// caller until space frees up or ctx is canceled — dropping a seismic
// event silently is never acceptable. Returns ctx.Err() if ctx is canceled
// before every ready candidate could be enqueued.
func (p *Pipeline) Submit(ctx context.Context, c domain.Candidate) error {
	ready := p.admitInOrder(c)
	for _, rc := range ready {
		select {
		case p.queue <- rc:
		default:
			if p.obs != nil {
				p.obs.ObserveBlocked()
			}
			select {
			case p.queue <- rc:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if p.obs != nil {
			p.obs.ObserveQueueDepth(len(p.queue))
		}
	}
	return nil
}

// admitInOrder releases candidates from the per-detector reorder buffer
// that are now in contiguous SequenceNum order, or have waited past
// ReorderWindow (at which point gaps are assumed lost and skipped).
func (p *Pipeline) admitInOrder(c domain.Candidate) []domain.Candidate {
	p.reorderMu.Lock()
	defer p.reorderMu.Unlock()

	buf, ok := p.reorder[c.DetectorID]
	if !ok {
		buf = newSequenceBuffer()
		p.reorder[c.DetectorID] = buf
	}
	buf.push(c, time.Now())
	return buf.drain(p.cfg.ReorderWindow, time.Now())
}

// Run starts the worker pool and blocks until ctx is canceled, at which
// point it drains in-flight workers before returning.
func (p *Pipeline) Run(ctx context.Context) {
	if p.obs != nil {
		p.obs.ObserveRunning(true)
		defer p.obs.ObserveRunning(false)
	}

	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	<-ctx.Done()
	close(p.queue)
	p.wg.Wait()
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for c := range p.queue {
		p.process(ctx, c)
	}
}

func (p *Pipeline) process(ctx context.Context, c domain.Candidate) {
	if c.State == domain.StateRejected {
		_ = p.sink.DeadLetter(ctx, c, string(c.RejectReason))
		return
	}

	start := time.Now()
	ev, err := p.stage(ctx, c)
	if p.obs != nil {
		p.obs.ObserveStageDuration("process", time.Since(start))
	}
	if err != nil {
		_ = p.sink.DeadLetter(ctx, c, err.Error())
		return
	}
	_ = p.sink.Commit(ctx, ev)
}

// sequenceBuffer holds out-of-order candidates for one detector, released
// once contiguous or once the oldest has waited past the reorder window.
type sequenceBuffer struct {
	next  uint64
	items pendingHeap
}

type pending struct {
	c         domain.Candidate
	arrivedAt time.Time
}

// newSequenceBuffer expects SequenceNum 1 first, the first number a
// detector assigns.
func newSequenceBuffer() *sequenceBuffer {
	return &sequenceBuffer{next: 1, items: pendingHeap{}}
}

func (b *sequenceBuffer) push(c domain.Candidate, now time.Time) {
	heap.Push(&b.items, pending{c: c, arrivedAt: now})
}

// drain releases candidates in increasing SequenceNum order as long as
// they're contiguous with b.next, or the oldest pending item has waited
// longer than window — in which case b.next jumps forward to avoid an
// indefinite stall on a message that will never arrive.
func (b *sequenceBuffer) drain(window time.Duration, now time.Time) []domain.Candidate {
	var out []domain.Candidate

	for b.items.Len() > 0 {
		top := b.items[0]
		if top.c.SequenceNum == b.next {
			heap.Pop(&b.items)
			out = append(out, top.c)
			b.next++
			continue
		}
		if now.Sub(top.arrivedAt) >= window {
			b.next = top.c.SequenceNum
			continue
		}
		break
	}
	return out
}

type pendingHeap []pending

func (h pendingHeap) Len() int { return len(h) }
func (h pendingHeap) Less(i, j int) bool {
	return h[i].c.SequenceNum < h[j].c.SequenceNum
}
func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *pendingHeap) Push(x any)   { *h = append(*h, x.(pending)) }
func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

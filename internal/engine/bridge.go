package engine

import (
	"log/slog"
	"sync"
)

// Bridge delivers finished jobs from worker goroutines into the host loop.
// It is the only structure shared across that boundary: Call is safe under
// concurrent producers, Drain is called by the single consumer (the host
// loop). Delivery order is arrival order at the bridge, which may differ
// from submission order when workers finish out of order.
type Bridge struct {
	logger *slog.Logger

	mu    sync.Mutex
	queue []*JobContext

	// ready carries at most one pending wake-up; the host loop drains the
	// whole queue per wake-up, so coalescing signals is fine.
	ready chan struct{}
}

// NewBridge creates an empty bridge.
func NewBridge(logger *slog.Logger) *Bridge {
	return &Bridge{
		logger: logger,
		ready:  make(chan struct{}, 1),
	}
}

// Call enqueues a completed job for delivery and wakes the host loop if it
// is idle. Called from worker goroutines; the worker must not touch the job
// afterwards — ownership transfers to the host loop here.
func (b *Bridge) Call(job *JobContext) {
	b.mu.Lock()
	b.queue = append(b.queue, job)
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// Ready returns the wake-up channel the host loop selects on.
func (b *Bridge) Ready() <-chan struct{} {
	return b.ready
}

// Drain pops every queued job in arrival order and, for each, exactly once:
// invokes its completion handler and disposes it. Must be called only from
// the host loop. Returns the number of jobs delivered.
func (b *Bridge) Drain() int {
	b.mu.Lock()
	jobs := b.queue
	b.queue = nil
	b.mu.Unlock()

	for _, job := range jobs {
		b.deliverOne(job)
	}
	return len(jobs)
}

// deliverOne delivers and disposes a single job, containing a panicking
// completion handler so it cannot kill the host loop or drop the rest of
// the batch.
func (b *Bridge) deliverOne(job *JobContext) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("completion handler panicked", "run_id", job.RunID(), "panic", r)
		}
	}()
	if err := job.deliver(); err != nil {
		b.logger.Error("deliver job", "run_id", job.RunID(), "error", err)
		return
	}
	if err := job.dispose(); err != nil {
		b.logger.Error("dispose job", "run_id", job.RunID(), "error", err)
	}
}

// Pending returns the number of jobs awaiting delivery.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

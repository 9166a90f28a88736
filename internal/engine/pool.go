package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seantiz/tensord/internal/compute"
)

// DefaultWorkers is the pool size when none is configured.
const DefaultWorkers = 4

// ErrPoolClosed is returned by Submit after Close; no job is created and the
// completion handler will not fire.
var ErrPoolClosed = errors.New("worker pool is closed")

// Pool runs session executions on a fixed set of worker goroutines. The
// intake queue is FIFO and unbounded — there is no admission control, no
// priority, no cancellation, and no timeout: a submitted job always runs to
// completion and its result always reaches the bridge.
type Pool struct {
	engine compute.Engine
	bridge *Bridge
	logger *slog.Logger

	mu      sync.Mutex
	backlog []*JobContext
	closing bool

	// signal carries at most one pending wake-up for the dispatcher.
	signal chan struct{}
	work   chan *JobContext
	wg     sync.WaitGroup
	done   chan struct{}
}

// NewPool starts a pool with the given number of workers (DefaultWorkers if
// workers is not positive) executing jobs against eng.
func NewPool(workers int, eng compute.Engine, bridge *Bridge, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	p := &Pool{
		engine: eng,
		bridge: bridge,
		logger: logger,
		signal: make(chan struct{}, 1),
		work:   make(chan *JobContext),
		done:   make(chan struct{}),
	}
	go p.dispatch()
	for i := 0; i < workers; i++ {
		p.wg.Go(p.worker)
	}
	return p
}

// Submit enqueues a job. It returns immediately; the job's completion
// handler fires later, on the host loop, exactly once.
func (p *Pool) Submit(job *JobContext) error {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if err := job.advance(StateQueued); err != nil {
		p.mu.Unlock()
		return err
	}
	p.backlog = append(p.backlog, job)
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
	return nil
}

// Close stops intake, lets every already-submitted job run to completion,
// and waits for the workers to exit. Results of draining jobs still reach
// the bridge; the caller must drain it afterwards.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.closing = true
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
	p.wg.Wait()
	<-p.done
}

// dispatch feeds the backlog to workers one job at a time, preserving FIFO
// order. It closes the work channel once intake has stopped and the backlog
// is empty.
func (p *Pool) dispatch() {
	defer close(p.done)
	for {
		p.mu.Lock()
		if len(p.backlog) == 0 {
			closing := p.closing
			p.mu.Unlock()
			if closing {
				close(p.work)
				return
			}
			<-p.signal
			continue
		}
		job := p.backlog[0]
		p.backlog[0] = nil
		p.backlog = p.backlog[1:]
		p.mu.Unlock()

		p.work <- job
	}
}

// worker executes jobs until the work channel closes. Workers touch only
// the job they hold and the bridge; never the registry or another job.
func (p *Pool) worker() {
	for job := range p.work {
		p.run(job)
	}
}

// run executes one job and hands it to the bridge. Success and failure take
// the identical path; only the result slot differs.
func (p *Pool) run(job *JobContext) {
	if err := job.advance(StateRunning); err != nil {
		p.logger.Error("start job", "run_id", job.RunID(), "error", err)
		return
	}
	if job.onStart != nil {
		job.onStart()
	}

	jobsInFlight.Inc()
	start := time.Now()
	outputs, err := p.runSession(job)
	jobDuration.Observe(time.Since(start).Seconds())
	jobsInFlight.Dec()

	outcome := outcomeCompleted
	if err != nil {
		outcome = outcomeFailed
	}
	jobsTotal.WithLabelValues(outcome).Inc()

	if ferr := job.finish(outputs, err); ferr != nil {
		p.logger.Error("finish job", "run_id", job.RunID(), "error", ferr)
		return
	}
	p.bridge.Call(job)
}

// runSession invokes the engine and converts a panic into an ordinary job
// failure, so a faulty session cannot take a worker down with it. The result
// still reaches the bridge exactly once.
func (p *Pool) runSession(job *JobContext) (outputs []*compute.Tensor, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("session panicked", "run_id", job.RunID(), "panic", r)
			outputs, err = nil, fmt.Errorf("session panicked: %v", r)
		}
	}()
	return p.engine.RunSession(job.session, job.inputs, job.inputNames, job.outputNames)
}

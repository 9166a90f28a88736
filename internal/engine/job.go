package engine

import (
	"fmt"

	"github.com/seantiz/tensord/internal/compute"
	"github.com/seantiz/tensord/internal/model"
)

// Job state constants. The chain is strictly linear; no state is skipped
// and disposed is terminal.
const (
	StateCreated   = "created"
	StateQueued    = "queued"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateDelivered = "delivered"
	StateDisposed  = "disposed"
)

// nextState maps each job state to its only legal successor.
var nextState = map[string]string{
	StateCreated:   StateQueued,
	StateQueued:    StateRunning,
	StateRunning:   StateCompleted,
	StateCompleted: StateDelivered,
	StateDelivered: StateDisposed,
}

// CompletionFunc receives a job's result on the host loop, exactly once per
// submitted job, with either outputs or a non-nil error — never both, never
// neither.
type CompletionFunc func(outputs []*compute.Tensor, err error)

// JobContext is the per-request bundle for one asynchronous run. Exactly one
// exists per submission and it is never shared across requests. Its mutable
// fields have a single owner at any time: the host loop until Submit, the
// worker between dequeue and the bridge hand-off, and the host loop again
// from drain onward.
type JobContext struct {
	runID       string
	modelID     model.Handle
	session     compute.Session
	inputs      []*compute.Tensor
	inputNames  []string
	outputNames []string

	// onStart is invoked by the worker when execution begins. It must not
	// touch host-only state; store and broker updates are safe.
	onStart func()

	complete CompletionFunc

	outputs []*compute.Tensor
	err     error
	state   string
}

// NewJob builds a job in the created state. complete is the host-supplied
// completion handler the bridge captures for this specific job.
func NewJob(runID string, modelID model.Handle, session compute.Session,
	inputs []*compute.Tensor, inputNames, outputNames []string,
	onStart func(), complete CompletionFunc) *JobContext {
	return &JobContext{
		runID:       runID,
		modelID:     modelID,
		session:     session,
		inputs:      inputs,
		inputNames:  inputNames,
		outputNames: outputNames,
		onStart:     onStart,
		complete:    complete,
		state:       StateCreated,
	}
}

// RunID returns the job's run identifier.
func (j *JobContext) RunID() string { return j.runID }

// ModelID returns the handle of the model the job executes.
func (j *JobContext) ModelID() model.Handle { return j.modelID }

// State returns the job's current lifecycle state.
func (j *JobContext) State() string { return j.state }

// advance moves the job to the given state, enforcing the linear chain.
func (j *JobContext) advance(to string) error {
	if nextState[j.state] != to {
		return fmt.Errorf("job %s: invalid state transition %s -> %s", j.runID, j.state, to)
	}
	j.state = to
	return nil
}

// finish records the worker's result and marks the job completed. Success
// and failure are both completions; they differ only in which slot is set.
func (j *JobContext) finish(outputs []*compute.Tensor, err error) error {
	if err != nil {
		j.err = err
	} else {
		j.outputs = outputs
	}
	return j.advance(StateCompleted)
}

// deliver invokes the captured completion handler. It refuses to fire from
// any state but completed, which is what makes double delivery impossible.
func (j *JobContext) deliver() error {
	if err := j.advance(StateDelivered); err != nil {
		return err
	}
	j.complete(j.outputs, j.err)
	return nil
}

// dispose releases the job's references. Terminal; the job must not be
// touched afterwards.
func (j *JobContext) dispose() error {
	if err := j.advance(StateDisposed); err != nil {
		return err
	}
	j.session = nil
	j.inputs = nil
	j.outputs = nil
	j.complete = nil
	j.onStart = nil
	return nil
}

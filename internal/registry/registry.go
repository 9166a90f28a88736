// Package registry owns the handle table: the mapping from integer handles
// to live tensors and loaded models. The registry is confined to the host
// loop goroutine — every method must be called from it — so the maps need
// no locking. Worker goroutines never see the registry; they only hold the
// session and tensor references captured into a job at submission time.
package registry

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/seantiz/tensord/internal/compute"
	"github.com/seantiz/tensord/internal/model"
)

// ErrNotFound is returned when no live resource has the requested handle.
var ErrNotFound = errors.New("resource not found")

// ErrBusy is returned when a model with in-flight runs is deleted. The entry
// is marked for deletion and freed asynchronously once the last run is
// delivered, so the caller must not retry.
var ErrBusy = errors.New("model has in-flight runs")

// Kind selects a resource class for counting.
type Kind string

// Resource kinds.
const (
	KindTensor Kind = "tensor"
	KindModel  Kind = "model"
)

// modelEntry bundles the session/graph pair so they are owned and torn down
// together, plus the in-flight run count gating the actual free.
type modelEntry struct {
	session       compute.Session
	graph         compute.Graph
	inflight      int
	deletePending bool
}

// Registry is the handle table. Handles come from a single monotonic
// counter shared by tensors and models: a handle is never reused while its
// resource is alive and the counter never resets.
type Registry struct {
	next    model.Handle
	tensors map[model.Handle]*compute.Tensor
	models  map[model.Handle]*modelEntry
	logger  *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		tensors: make(map[model.Handle]*compute.Tensor),
		models:  make(map[model.Handle]*modelEntry),
		logger:  logger,
	}
}

func (r *Registry) nextHandle() model.Handle {
	r.next++
	return r.next
}

// InsertTensor stores a tensor and returns its new handle. Never fails.
func (r *Registry) InsertTensor(t *compute.Tensor) model.Handle {
	id := r.nextHandle()
	r.tensors[id] = t
	liveTensors.Inc()
	return id
}

// GetTensor looks up a live tensor.
func (r *Registry) GetTensor(id model.Handle) (*compute.Tensor, error) {
	t, ok := r.tensors[id]
	if !ok {
		return nil, fmt.Errorf("tensor %d: %w", id, ErrNotFound)
	}
	return t, nil
}

// DeleteTensor removes a tensor. The buffer itself stays alive as long as
// an in-flight run still references it; dropping the map entry is the free.
func (r *Registry) DeleteTensor(id model.Handle) error {
	if _, ok := r.tensors[id]; !ok {
		return fmt.Errorf("tensor %d: %w", id, ErrNotFound)
	}
	delete(r.tensors, id)
	liveTensors.Dec()
	return nil
}

// InsertModel stores a session/graph pair and returns its new handle.
func (r *Registry) InsertModel(sess compute.Session, graph compute.Graph) model.Handle {
	id := r.nextHandle()
	r.models[id] = &modelEntry{session: sess, graph: graph}
	liveModels.Inc()
	return id
}

// BeginRun marks one in-flight run against the model and returns the session
// reference the job will execute on. Fails if the handle is unknown or the
// model is already marked for deletion.
func (r *Registry) BeginRun(id model.Handle) (compute.Session, error) {
	e, ok := r.models[id]
	if !ok || e.deletePending {
		return nil, fmt.Errorf("model %d: %w", id, ErrNotFound)
	}
	e.inflight++
	return e.session, nil
}

// EndRun drops one in-flight run. If the model was marked for deletion and
// this was the last run, the session/graph pair is freed now.
func (r *Registry) EndRun(id model.Handle) {
	e, ok := r.models[id]
	if !ok {
		r.logger.Error("end run on unknown model", "model_id", id)
		return
	}
	if e.inflight == 0 {
		r.logger.Error("in-flight count underflow", "model_id", id)
		return
	}
	e.inflight--
	if e.deletePending && e.inflight == 0 {
		delete(r.models, id)
		liveModels.Dec()
		r.freeModel(id, e)
	}
}

// DeleteModel removes a model. With runs in flight it returns ErrBusy and
// defers the free: the entry is marked, new runs are refused, and the last
// EndRun tears it down.
func (r *Registry) DeleteModel(id model.Handle) error {
	e, ok := r.models[id]
	if !ok {
		return fmt.Errorf("model %d: %w", id, ErrNotFound)
	}
	if e.deletePending {
		return fmt.Errorf("model %d: %w", id, ErrNotFound)
	}
	if e.inflight > 0 {
		e.deletePending = true
		return fmt.Errorf("model %d: %w", id, ErrBusy)
	}
	delete(r.models, id)
	liveModels.Dec()
	r.freeModel(id, e)
	return nil
}

// Count returns the number of live resources of the given kind. Models
// marked for deletion no longer count as live.
func (r *Registry) Count(kind Kind) int {
	switch kind {
	case KindTensor:
		return len(r.tensors)
	case KindModel:
		n := 0
		for _, e := range r.models {
			if !e.deletePending {
				n++
			}
		}
		return n
	}
	return 0
}

// Close frees every remaining resource. Models with in-flight runs are torn
// down too, so callers must drain the worker pool first.
func (r *Registry) Close() {
	for id, e := range r.models {
		delete(r.models, id)
		liveModels.Dec()
		r.freeModel(id, e)
	}
	liveTensors.Sub(float64(len(r.tensors)))
	clear(r.tensors)
}

// freeModel tears down the pair in dependency order: session before graph.
func (r *Registry) freeModel(id model.Handle, e *modelEntry) {
	if err := e.session.Close(); err != nil {
		r.logger.Error("close session", "model_id", id, "error", err)
	}
	if err := e.graph.Close(); err != nil {
		r.logger.Error("close graph", "model_id", id, "error", err)
	}
}

package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seantiz/tensord/internal/compute"
	"github.com/seantiz/tensord/internal/engine"
	"github.com/seantiz/tensord/internal/host"
	"github.com/seantiz/tensord/internal/model"
	"github.com/seantiz/tensord/internal/registry"
	"github.com/seantiz/tensord/internal/store"
)

// RunCallback receives a run's final result on the host loop, exactly once.
// On success infos lists the freshly registered output tensors; on failure
// err is non-nil and infos is nil.
type RunCallback func(infos []model.TensorInfo, err error)

// Backend exposes tensor and model operations to concurrent callers. Each
// operation posts a closure to the host loop, which is the only goroutine
// allowed to touch the registry, so handle state never needs a lock.
type Backend struct {
	loop   *host.Loop
	reg    *registry.Registry
	eng    compute.Engine
	pool   *engine.Pool
	broker *engine.EventBroker
	store  store.Store
	logger *slog.Logger
}

// New wires a backend from its already-constructed parts. The caller owns
// startup order (loop must be started) and teardown via Shutdown.
func New(loop *host.Loop, reg *registry.Registry, eng compute.Engine,
	pool *engine.Pool, broker *engine.EventBroker, st store.Store,
	logger *slog.Logger) *Backend {
	return &Backend{
		loop:   loop,
		reg:    reg,
		eng:    eng,
		pool:   pool,
		broker: broker,
		store:  st,
		logger: logger.With("component", "backend"),
	}
}

// CreateTensor materializes a tensor from raw little-endian bytes and
// registers it, returning its handle.
func (b *Backend) CreateTensor(ctx context.Context, dtype model.DType, shape []int64, data []byte) (model.TensorInfo, error) {
	var (
		info  model.TensorInfo
		opErr error
	)
	err := b.loop.Call(ctx, func() {
		t, err := b.eng.CreateTensor(dtype, shape, data)
		if err != nil {
			opErr = err
			return
		}
		id := b.reg.InsertTensor(t)
		info = model.TensorInfo{ID: id, DType: t.DType(), Shape: t.Shape()}
	})
	if err != nil {
		return model.TensorInfo{}, err
	}
	return info, opErr
}

// DeleteTensor removes a tensor handle. Unknown handles report
// registry.ErrNotFound.
func (b *Backend) DeleteTensor(ctx context.Context, id model.Handle) error {
	var opErr error
	if err := b.loop.Call(ctx, func() {
		opErr = b.reg.DeleteTensor(id)
	}); err != nil {
		return err
	}
	return opErr
}

// GetTensorData returns a tensor's metadata and its backing bytes. The
// returned slice is a copy; callers may hold it past the next registry
// mutation.
func (b *Backend) GetTensorData(ctx context.Context, id model.Handle) (model.TensorInfo, []byte, error) {
	var (
		info  model.TensorInfo
		data  []byte
		opErr error
	)
	err := b.loop.Call(ctx, func() {
		t, err := b.reg.GetTensor(id)
		if err != nil {
			opErr = err
			return
		}
		info = model.TensorInfo{ID: id, DType: t.DType(), Shape: t.Shape()}
		raw := t.Data()
		data = make([]byte, len(raw))
		copy(data, raw)
	})
	if err != nil {
		return model.TensorInfo{}, nil, err
	}
	return info, data, opErr
}

// ExecuteOp runs a named operation synchronously against registered input
// tensors and registers every output, returning their handles in order.
func (b *Backend) ExecuteOp(ctx context.Context, name string, attrs compute.Attrs, inputIDs []model.Handle, numOutputs int) ([]model.TensorInfo, error) {
	var (
		infos []model.TensorInfo
		opErr error
	)
	err := b.loop.Call(ctx, func() {
		inputs, err := b.resolveTensors(inputIDs)
		if err != nil {
			opErr = err
			return
		}
		outputs, err := b.eng.ExecuteOp(name, attrs, inputs, numOutputs)
		if err != nil {
			opErr = err
			return
		}
		infos = b.registerOutputs(outputs)
	})
	if err != nil {
		return nil, err
	}
	return infos, opErr
}

// LoadModel loads a saved model from disk under the given tag set and
// registers its session and graph as one handle.
func (b *Backend) LoadModel(ctx context.Context, path string, tags []string) (model.Handle, error) {
	var (
		id    model.Handle
		opErr error
	)
	err := b.loop.Call(ctx, func() {
		sess, graph, err := b.eng.LoadModel(path, tags)
		if err != nil {
			opErr = err
			return
		}
		id = b.reg.InsertModel(sess, graph)
		b.logger.Info("model loaded", "model_id", id, "path", path)
	})
	if err != nil {
		return 0, err
	}
	return id, opErr
}

// DeleteModel removes a model handle. A model with runs in flight is marked
// for deletion and registry.ErrBusy is returned; the resources are freed
// when the last run finishes.
func (b *Backend) DeleteModel(ctx context.Context, id model.Handle) error {
	var opErr error
	if err := b.loop.Call(ctx, func() {
		opErr = b.reg.DeleteModel(id)
	}); err != nil {
		return err
	}
	return opErr
}

// TensorCount reports the number of live tensor handles.
func (b *Backend) TensorCount(ctx context.Context) (int, error) {
	var n int
	err := b.loop.Call(ctx, func() { n = b.reg.Count(registry.KindTensor) })
	return n, err
}

// ModelCount reports the number of live model handles. Models marked for
// deletion with runs still in flight are already gone from the caller's
// point of view and are not counted.
func (b *Backend) ModelCount(ctx context.Context) (int, error) {
	var n int
	err := b.loop.Call(ctx, func() { n = b.reg.Count(registry.KindModel) })
	return n, err
}

// RunModel starts an asynchronous run of a loaded model and returns its
// pending run record immediately. cb fires on the host loop exactly once
// when the run finishes, after the outputs are registered and the run row
// is updated; cb may be nil.
func (b *Backend) RunModel(ctx context.Context, modelID model.Handle, inputIDs []model.Handle, inputNames, outputNames []string, cb RunCallback) (*model.Run, error) {
	var (
		run   *model.Run
		opErr error
	)
	err := b.loop.Call(ctx, func() {
		sess, err := b.reg.BeginRun(modelID)
		if err != nil {
			opErr = err
			return
		}
		inputs, err := b.resolveTensors(inputIDs)
		if err != nil {
			b.reg.EndRun(modelID)
			opErr = err
			return
		}

		now := time.Now().UTC()
		run = &model.Run{
			ID:        model.NewID(),
			ModelID:   modelID,
			Status:    model.StatusPending,
			CreatedAt: now,
		}
		if err := b.store.InsertRun(context.Background(), run); err != nil {
			b.reg.EndRun(modelID)
			run = nil
			opErr = fmt.Errorf("recording run: %w", err)
			return
		}

		// started is written by the worker in onStart and read by the host
		// loop in the completion handler; the bridge mutex orders the two.
		var started time.Time
		job := engine.NewJob(run.ID, modelID, sess, inputs, inputNames, outputNames,
			func() {
				started = time.Now().UTC()
				if err := b.store.UpdateRunStatus(context.Background(), run.ID, model.StatusRunning); err != nil {
					b.logger.Error("failed to mark run running", "run_id", run.ID, "error", err)
				}
				b.broker.Publish(run.ID, model.StatusRunning, "")
			},
			func(outputs []*compute.Tensor, err error) {
				b.reg.EndRun(modelID)
				b.finishRun(run, started, outputs, err, cb)
			})

		if err := b.pool.Submit(job); err != nil {
			b.reg.EndRun(modelID)
			b.failRun(run, err)
			run = nil
			opErr = err
			return
		}
		b.broker.Publish(run.ID, model.StatusPending, "")
	})
	if err != nil {
		return nil, err
	}
	return run, opErr
}

// finishRun runs on the host loop after a job completes. It registers output
// tensors, persists the final run row, publishes the terminal event, and
// only then invokes the caller's callback.
func (b *Backend) finishRun(run *model.Run, started time.Time, outputs []*compute.Tensor, runErr error, cb RunCallback) {
	now := time.Now().UTC()
	fin := *run
	fin.FinishedAt = &now
	if !started.IsZero() {
		fin.StartedAt = &started
		ms := int(now.Sub(started).Milliseconds())
		fin.DurationMS = &ms
	}

	var infos []model.TensorInfo
	if runErr != nil {
		fin.Status = model.StatusFailed
		fin.Error = runErr.Error()
	} else {
		infos = b.registerOutputs(outputs)
		fin.Status = model.StatusCompleted
		fin.Outputs = infos
	}

	if err := b.store.UpdateRun(context.Background(), &fin); err != nil {
		b.logger.Error("failed to persist run result", "run_id", fin.ID, "error", err)
	}
	b.broker.Publish(fin.ID, fin.Status, fin.Error)
	b.broker.Close(fin.ID)

	if runErr != nil {
		b.logger.Warn("run failed", "run_id", fin.ID, "model_id", fin.ModelID, "error", runErr)
	} else {
		b.logger.Info("run completed", "run_id", fin.ID, "model_id", fin.ModelID, "outputs", len(infos))
	}
	if cb != nil {
		cb(infos, runErr)
	}
}

// failRun marks a run failed before it ever reached a worker.
func (b *Backend) failRun(run *model.Run, cause error) {
	now := time.Now().UTC()
	fin := *run
	fin.Status = model.StatusFailed
	fin.Error = cause.Error()
	fin.FinishedAt = &now
	if err := b.store.UpdateRun(context.Background(), &fin); err != nil {
		b.logger.Error("failed to persist run failure", "run_id", fin.ID, "error", err)
	}
	b.broker.Close(fin.ID)
}

// resolveTensors looks up each handle, failing on the first unknown one.
// Host loop only.
func (b *Backend) resolveTensors(ids []model.Handle) ([]*compute.Tensor, error) {
	tensors := make([]*compute.Tensor, len(ids))
	for i, id := range ids {
		t, err := b.reg.GetTensor(id)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		tensors[i] = t
	}
	return tensors, nil
}

// registerOutputs inserts each tensor and returns its descriptor. Host loop
// only.
func (b *Backend) registerOutputs(outputs []*compute.Tensor) []model.TensorInfo {
	infos := make([]model.TensorInfo, len(outputs))
	for i, t := range outputs {
		id := b.reg.InsertTensor(t)
		infos[i] = model.TensorInfo{ID: id, DType: t.DType(), Shape: t.Shape()}
	}
	return infos
}

// Shutdown tears the backend down in dependency order: the pool first so
// every accepted job completes and reaches the bridge, then the loop so the
// final drain delivers them, then the registry. After Shutdown the loop is
// stopped, so the registry can be closed from this goroutine directly.
func (b *Backend) Shutdown() {
	b.pool.Close()
	b.loop.Stop()
	b.reg.Close()
}

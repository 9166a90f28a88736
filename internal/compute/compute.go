package compute

import (
	"errors"

	"github.com/seantiz/tensord/internal/model"
)

// ErrInvalidArgument is returned when a request is malformed (bad dtype,
// shape, attr, or buffer) and is rejected before any resource is touched.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrUnknownOp is returned when an op name is not registered.
var ErrUnknownOp = errors.New("unknown op")

// Session holds per-model execution state. A session depends on its graph
// and must be closed before the graph is.
type Session interface {
	// Close releases the session. Further RunSession calls fail.
	Close() error
}

// Graph is the immutable structure of a loaded model.
type Graph interface {
	// Close releases the graph. The owning session must already be closed.
	Close() error
}

// Engine is the interface that compute implementations must satisfy. All
// methods are synchronous; RunSession may take arbitrarily long and is the
// only primitive the serving core runs off the host goroutine. RunSession
// must be safe for concurrent invocation on the same session.
type Engine interface {
	// CreateTensor materializes a tensor from a raw little-endian buffer.
	CreateTensor(dtype model.DType, shape []int64, data []byte) (*Tensor, error)

	// ExecuteOp runs a registered op eagerly over the given inputs and
	// returns exactly numOutputs tensors.
	ExecuteOp(name string, attrs Attrs, inputs []*Tensor, numOutputs int) ([]*Tensor, error)

	// LoadModel loads a model from a directory, verifying that it carries
	// every requested tag. It returns the session/graph pair; the caller
	// owns both and must tear the session down before the graph.
	LoadModel(path string, tags []string) (Session, Graph, error)

	// RunSession feeds the named inputs through the model and returns one
	// tensor per requested output name.
	RunSession(sess Session, inputs []*Tensor, inputNames, outputNames []string) ([]*Tensor, error)
}

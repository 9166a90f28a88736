package compute

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/seantiz/tensord/internal/model"
)

// manifestFile is the model description inside an export directory.
const manifestFile = "model.json"

// manifest is the on-disk model format: tags, a typed input signature, the
// requested output names, and the graph nodes evaluated in order.
type manifest struct {
	Tags    []string        `json:"tags"`
	Inputs  []manifestInput `json:"inputs"`
	Outputs []string        `json:"outputs"`
	Nodes   []manifestNode  `json:"nodes"`
}

type manifestInput struct {
	Name  string      `json:"name"`
	DType model.DType `json:"dtype"`
	Shape []int64     `json:"shape"`
}

type manifestNode struct {
	Name   string   `json:"name"`
	Op     string   `json:"op"`
	Inputs []string `json:"inputs"`
	Attrs  Attrs    `json:"attrs,omitempty"`
}

// localGraph is the parsed, immutable model structure. It is read-only after
// LoadModel, so concurrent sessions may evaluate it without locking.
type localGraph struct {
	path   string
	m      *manifest
	closed bool
}

func (g *localGraph) Close() error {
	if g.closed {
		return fmt.Errorf("graph %q already closed", g.path)
	}
	g.closed = true
	g.m = nil
	return nil
}

// localSession executes runs against a localGraph. Sessions carry no mutable
// per-run state, so RunSession is safe under concurrent invocation.
type localSession struct {
	graph  *localGraph
	closed bool
}

func (s *localSession) Close() error {
	if s.closed {
		return fmt.Errorf("session already closed")
	}
	s.closed = true
	return nil
}

// LocalEngine is the pure-Go compute engine. It evaluates ops from the
// package op registry and loads models from JSON manifests.
type LocalEngine struct{}

// Compile-time interface satisfaction check.
var _ Engine = (*LocalEngine)(nil)

// NewLocalEngine creates the local compute engine.
func NewLocalEngine() *LocalEngine {
	return &LocalEngine{}
}

// CreateTensor materializes a tensor from a raw little-endian buffer.
func (e *LocalEngine) CreateTensor(dtype model.DType, shape []int64, data []byte) (*Tensor, error) {
	return NewTensor(dtype, shape, data)
}

// ExecuteOp runs a registered op eagerly.
func (e *LocalEngine) ExecuteOp(name string, attrs Attrs, inputs []*Tensor, numOutputs int) ([]*Tensor, error) {
	fn, err := lookupOp(name)
	if err != nil {
		return nil, err
	}
	outputs, err := fn(attrs, inputs)
	if err != nil {
		return nil, fmt.Errorf("op %s: %w", name, err)
	}
	if len(outputs) != numOutputs {
		return nil, fmt.Errorf("%w: op %s produced %d outputs, caller expected %d",
			ErrInvalidArgument, name, len(outputs), numOutputs)
	}
	return outputs, nil
}

// LoadModel parses the manifest under path and verifies the requested tags.
func (e *LocalEngine) LoadModel(path string, tags []string) (Session, Graph, error) {
	raw, err := os.ReadFile(filepath.Join(path, manifestFile))
	if err != nil {
		return nil, nil, fmt.Errorf("read model manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("parse model manifest: %w", err)
	}
	for _, tag := range tags {
		if !slices.Contains(m.Tags, tag) {
			return nil, nil, fmt.Errorf("model at %q does not carry tag %q", path, tag)
		}
	}
	if len(m.Outputs) == 0 {
		return nil, nil, fmt.Errorf("model at %q declares no outputs", path)
	}
	g := &localGraph{path: path, m: &m}
	return &localSession{graph: g}, g, nil
}

// RunSession evaluates the graph nodes in manifest order and returns the
// requested outputs.
func (e *LocalEngine) RunSession(sess Session, inputs []*Tensor, inputNames, outputNames []string) ([]*Tensor, error) {
	s, ok := sess.(*localSession)
	if !ok {
		return nil, fmt.Errorf("%w: session was not created by this engine", ErrInvalidArgument)
	}
	if s.closed {
		return nil, fmt.Errorf("run on closed session")
	}
	if len(inputs) != len(inputNames) {
		return nil, fmt.Errorf("%w: %d inputs but %d input names", ErrInvalidArgument, len(inputs), len(inputNames))
	}
	m := s.graph.m

	// Bind inputs against the signature.
	values := make(map[string]*Tensor, len(m.Inputs)+len(m.Nodes))
	for i, name := range inputNames {
		sig := findInput(m, name)
		if sig == nil {
			return nil, fmt.Errorf("%w: model has no input named %q", ErrInvalidArgument, name)
		}
		t := inputs[i]
		if t.DType() != sig.DType {
			return nil, fmt.Errorf("%w: input %q is %v, model expects %v", ErrInvalidArgument, name, t.DType(), sig.DType)
		}
		if len(sig.Shape) > 0 && !sameShape(t.Shape(), sig.Shape) {
			return nil, fmt.Errorf("%w: input %q has shape %v, model expects %v", ErrInvalidArgument, name, t.Shape(), sig.Shape)
		}
		values[name] = t
	}
	for _, sig := range m.Inputs {
		if _, bound := values[sig.Name]; !bound {
			return nil, fmt.Errorf("%w: model input %q was not fed", ErrInvalidArgument, sig.Name)
		}
	}

	// Evaluate nodes in manifest order. Each node sees only values produced
	// before it, which makes the manifest order a topological order by
	// construction.
	for _, node := range m.Nodes {
		fn, err := lookupOp(node.Op)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", node.Name, err)
		}
		nodeInputs := make([]*Tensor, len(node.Inputs))
		for i, ref := range node.Inputs {
			t, ok := values[ref]
			if !ok {
				return nil, fmt.Errorf("node %q references unknown value %q", node.Name, ref)
			}
			nodeInputs[i] = t
		}
		outs, err := fn(node.Attrs, nodeInputs)
		if err != nil {
			return nil, fmt.Errorf("node %q (%s): %w", node.Name, node.Op, err)
		}
		if len(outs) != 1 {
			return nil, fmt.Errorf("node %q (%s) produced %d outputs, want 1", node.Name, node.Op, len(outs))
		}
		values[node.Name] = outs[0]
	}

	outputs := make([]*Tensor, len(outputNames))
	for i, name := range outputNames {
		t, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("%w: model has no output named %q", ErrInvalidArgument, name)
		}
		outputs[i] = t
	}
	return outputs, nil
}

func findInput(m *manifest, name string) *manifestInput {
	for i := range m.Inputs {
		if m.Inputs[i].Name == name {
			return &m.Inputs[i]
		}
	}
	return nil
}

package compute

import (
	"fmt"

	"github.com/seantiz/tensord/internal/model"
)

// OpFunc executes one eager op over validated inputs.
type OpFunc func(attrs Attrs, inputs []*Tensor) ([]*Tensor, error)

// opRegistry maps op names to their implementations. Registered once at
// package init; read-only afterwards, so worker goroutines may consult it
// without locking.
var opRegistry = map[string]OpFunc{
	"Identity": opIdentity,
	"Add":      binaryOp("Add", func(x, y float64) float64 { return x + y }, func(x, y int64) int64 { return x + y }),
	"Sub":      binaryOp("Sub", func(x, y float64) float64 { return x - y }, func(x, y int64) int64 { return x - y }),
	"Mul":      binaryOp("Mul", func(x, y float64) float64 { return x * y }, func(x, y int64) int64 { return x * y }),
	"Neg":      opNeg,
	"MatMul":   opMatMul,
	"Reshape":  opReshape,
	"Cast":     opCast,
	"Concat":   opConcat,
}

// lookupOp resolves an op by name.
func lookupOp(name string) (OpFunc, error) {
	fn, ok := opRegistry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, name)
	}
	return fn, nil
}

func wantInputs(name string, inputs []*Tensor, n int) error {
	if len(inputs) != n {
		return fmt.Errorf("%w: %s takes %d inputs, got %d", ErrInvalidArgument, name, n, len(inputs))
	}
	return nil
}

func opIdentity(_ Attrs, inputs []*Tensor) ([]*Tensor, error) {
	if err := wantInputs("Identity", inputs, 1); err != nil {
		return nil, err
	}
	out, err := NewTensor(inputs[0].dtype, inputs[0].shape, inputs[0].data)
	if err != nil {
		return nil, err
	}
	return []*Tensor{out}, nil
}

// binaryOp builds an elementwise op over two same-shape, same-dtype tensors.
// Float dtypes go through ff, integer dtypes through fi; bool is rejected.
func binaryOp(name string, ff func(x, y float64) float64, fi func(x, y int64) int64) OpFunc {
	return func(_ Attrs, inputs []*Tensor) ([]*Tensor, error) {
		if err := wantInputs(name, inputs, 2); err != nil {
			return nil, err
		}
		a, b := inputs[0], inputs[1]
		if a.dtype != b.dtype {
			return nil, fmt.Errorf("%w: %s dtype mismatch %v vs %v", ErrInvalidArgument, name, a.dtype, b.dtype)
		}
		if !sameShape(a.shape, b.shape) {
			return nil, fmt.Errorf("%w: %s shape mismatch %v vs %v", ErrInvalidArgument, name, a.shape, b.shape)
		}
		if a.dtype == model.Bool {
			return nil, fmt.Errorf("%w: %s does not support bool tensors", ErrInvalidArgument, name)
		}
		n := int(a.NumElements())
		out := make([]byte, len(a.data))
		if a.IsFloat() {
			for i := 0; i < n; i++ {
				putFloat(a.dtype, out, i, ff(a.floatAt(i), b.floatAt(i)))
			}
		} else {
			for i := 0; i < n; i++ {
				putInt(a.dtype, out, i, fi(a.intAt(i), b.intAt(i)))
			}
		}
		return []*Tensor{newTensorNoCopy(a.dtype, a.shape, out)}, nil
	}
}

func opNeg(_ Attrs, inputs []*Tensor) ([]*Tensor, error) {
	if err := wantInputs("Neg", inputs, 1); err != nil {
		return nil, err
	}
	t := inputs[0]
	if t.dtype == model.Bool || t.dtype == model.Uint8 {
		return nil, fmt.Errorf("%w: Neg does not support %v tensors", ErrInvalidArgument, t.dtype)
	}
	n := int(t.NumElements())
	out := make([]byte, len(t.data))
	if t.IsFloat() {
		for i := 0; i < n; i++ {
			putFloat(t.dtype, out, i, -t.floatAt(i))
		}
	} else {
		for i := 0; i < n; i++ {
			putInt(t.dtype, out, i, -t.intAt(i))
		}
	}
	return []*Tensor{newTensorNoCopy(t.dtype, t.shape, out)}, nil
}

func opMatMul(_ Attrs, inputs []*Tensor) ([]*Tensor, error) {
	if err := wantInputs("MatMul", inputs, 2); err != nil {
		return nil, err
	}
	a, b := inputs[0], inputs[1]
	if !a.IsFloat() || a.dtype != b.dtype {
		return nil, fmt.Errorf("%w: MatMul requires two float tensors of the same dtype", ErrInvalidArgument)
	}
	if len(a.shape) != 2 || len(b.shape) != 2 {
		return nil, fmt.Errorf("%w: MatMul requires rank-2 tensors, got ranks %d and %d",
			ErrInvalidArgument, len(a.shape), len(b.shape))
	}
	if a.shape[1] != b.shape[0] {
		return nil, fmt.Errorf("%w: MatMul inner dimensions differ: %v x %v", ErrInvalidArgument, a.shape, b.shape)
	}
	m, k, n := int(a.shape[0]), int(a.shape[1]), int(b.shape[1])
	outShape := []int64{int64(m), int64(n)}
	total, err := model.NumElements(outShape)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	out := make([]byte, total*int64(a.dtype.Size()))
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for p := 0; p < k; p++ {
				sum += a.floatAt(i*k+p) * b.floatAt(p*n+j)
			}
			putFloat(a.dtype, out, i*n+j, sum)
		}
	}
	return []*Tensor{newTensorNoCopy(a.dtype, outShape, out)}, nil
}

func opReshape(attrs Attrs, inputs []*Tensor) ([]*Tensor, error) {
	if err := wantInputs("Reshape", inputs, 1); err != nil {
		return nil, err
	}
	shape, err := attrs.Shape("shape")
	if err != nil {
		return nil, err
	}
	t := inputs[0]
	n, err := model.NumElements(shape)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if n != t.NumElements() {
		return nil, fmt.Errorf("%w: Reshape to %v changes element count %d -> %d",
			ErrInvalidArgument, shape, t.NumElements(), n)
	}
	return []*Tensor{newTensorNoCopy(t.dtype, append([]int64(nil), shape...), t.data)}, nil
}

func opCast(attrs Attrs, inputs []*Tensor) ([]*Tensor, error) {
	if err := wantInputs("Cast", inputs, 1); err != nil {
		return nil, err
	}
	target, err := attrs.DType("dtype")
	if err != nil {
		return nil, err
	}
	t := inputs[0]
	if t.dtype == model.Bool || target == model.Bool {
		return nil, fmt.Errorf("%w: Cast does not support bool tensors", ErrInvalidArgument)
	}
	n := int(t.NumElements())
	out := make([]byte, n*target.Size())
	for i := 0; i < n; i++ {
		var v float64
		if t.IsFloat() {
			v = t.floatAt(i)
		} else {
			v = float64(t.intAt(i))
		}
		switch target {
		case model.Float16, model.Float32, model.Float64:
			putFloat(target, out, i, v)
		default:
			putInt(target, out, i, int64(v))
		}
	}
	return []*Tensor{newTensorNoCopy(target, t.shape, out)}, nil
}

func opConcat(attrs Attrs, inputs []*Tensor) ([]*Tensor, error) {
	if len(inputs) < 2 {
		return nil, fmt.Errorf("%w: Concat takes at least 2 inputs, got %d", ErrInvalidArgument, len(inputs))
	}
	axis, err := attrs.Int("axis")
	if err != nil {
		return nil, err
	}
	first := inputs[0]
	rank := len(first.shape)
	if axis < 0 || axis >= rank {
		return nil, fmt.Errorf("%w: Concat axis %d out of range for rank %d", ErrInvalidArgument, axis, rank)
	}
	outShape := append([]int64(nil), first.shape...)
	for _, t := range inputs[1:] {
		if t.dtype != first.dtype {
			return nil, fmt.Errorf("%w: Concat dtype mismatch %v vs %v", ErrInvalidArgument, first.dtype, t.dtype)
		}
		if len(t.shape) != rank {
			return nil, fmt.Errorf("%w: Concat rank mismatch %d vs %d", ErrInvalidArgument, rank, len(t.shape))
		}
		for d := 0; d < rank; d++ {
			if d != axis && t.shape[d] != first.shape[d] {
				return nil, fmt.Errorf("%w: Concat shapes %v and %v differ outside axis %d",
					ErrInvalidArgument, first.shape, t.shape, axis)
			}
		}
		outShape[axis] += t.shape[axis]
	}

	// Copy row blocks: each input contributes a contiguous chunk per outer
	// index, where a chunk spans the axis dimension times the inner stride.
	elemSize := first.dtype.Size()
	outer := 1
	for d := 0; d < axis; d++ {
		outer *= int(first.shape[d])
	}
	inner := elemSize
	for d := axis + 1; d < rank; d++ {
		inner *= int(first.shape[d])
	}

	total, err := model.NumElements(outShape)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	out := make([]byte, total*int64(elemSize))
	offset := 0
	for o := 0; o < outer; o++ {
		for _, t := range inputs {
			chunk := int(t.shape[axis]) * inner
			copy(out[offset:], t.data[o*chunk:(o+1)*chunk])
			offset += chunk
		}
	}
	return []*Tensor{newTensorNoCopy(first.dtype, outShape, out)}, nil
}

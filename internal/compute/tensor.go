package compute

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/seantiz/tensord/internal/model"
)

// Tensor is an engine-owned value: an element type, a shape, and a raw
// little-endian buffer. Tensors are immutable after creation — ops always
// allocate fresh outputs — so a tensor may be safely referenced from an
// in-flight run even after its registry entry is deleted.
type Tensor struct {
	dtype model.DType
	shape []int64
	data  []byte
}

// NewTensor validates dtype, shape, and buffer length and returns a tensor
// backed by a copy of data.
func NewTensor(dtype model.DType, shape []int64, data []byte) (*Tensor, error) {
	if !dtype.Valid() {
		return nil, fmt.Errorf("%w: unsupported dtype %q", ErrInvalidArgument, dtype)
	}
	n, err := model.NumElements(shape)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	size := int64(dtype.Size())
	if n > math.MaxInt64/size {
		return nil, fmt.Errorf("%w: shape %v overflows the %v buffer size", ErrInvalidArgument, shape, dtype)
	}
	want := n * size
	if int64(len(data)) != want {
		return nil, fmt.Errorf("%w: buffer is %d bytes, want %d for %v %v",
			ErrInvalidArgument, len(data), want, dtype, shape)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Tensor{dtype: dtype, shape: append([]int64(nil), shape...), data: buf}, nil
}

// newTensorNoCopy wraps an engine-produced buffer without copying. The
// caller must not retain the buffer.
func newTensorNoCopy(dtype model.DType, shape []int64, data []byte) *Tensor {
	return &Tensor{dtype: dtype, shape: shape, data: data}
}

// DType returns the tensor's element type.
func (t *Tensor) DType() model.DType { return t.dtype }

// Shape returns the tensor's shape. Callers must not modify it.
func (t *Tensor) Shape() []int64 { return t.shape }

// Data returns the raw little-endian buffer. Callers must not modify it.
func (t *Tensor) Data() []byte { return t.data }

// NumElements returns the element count of the tensor.
func (t *Tensor) NumElements() int64 {
	n, _ := model.NumElements(t.shape)
	return n
}

// IsFloat reports whether the tensor holds a floating-point dtype.
func (t *Tensor) IsFloat() bool {
	switch t.dtype {
	case model.Float16, model.Float32, model.Float64:
		return true
	}
	return false
}

// floatAt returns element i as float64. Valid only for float dtypes.
func (t *Tensor) floatAt(i int) float64 {
	switch t.dtype {
	case model.Float16:
		return float64(float16.Frombits(binary.LittleEndian.Uint16(t.data[i*2:])).Float32())
	case model.Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(t.data[i*4:])))
	case model.Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(t.data[i*8:]))
	}
	panic(fmt.Sprintf("floatAt on %v tensor", t.dtype))
}

// intAt returns element i as int64. Valid only for integer dtypes.
func (t *Tensor) intAt(i int) int64 {
	switch t.dtype {
	case model.Int32:
		return int64(int32(binary.LittleEndian.Uint32(t.data[i*4:])))
	case model.Int64:
		return int64(binary.LittleEndian.Uint64(t.data[i*8:]))
	case model.Uint8:
		return int64(t.data[i])
	}
	panic(fmt.Sprintf("intAt on %v tensor", t.dtype))
}

// putFloat stores v as element i of a buffer with the given float dtype.
func putFloat(dtype model.DType, data []byte, i int, v float64) {
	switch dtype {
	case model.Float16:
		binary.LittleEndian.PutUint16(data[i*2:], float16.Fromfloat32(float32(v)).Bits())
	case model.Float32:
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(float32(v)))
	case model.Float64:
		binary.LittleEndian.PutUint64(data[i*8:], math.Float64bits(v))
	default:
		panic(fmt.Sprintf("putFloat with %v dtype", dtype))
	}
}

// putInt stores v as element i of a buffer with the given integer dtype.
func putInt(dtype model.DType, data []byte, i int, v int64) {
	switch dtype {
	case model.Int32:
		binary.LittleEndian.PutUint32(data[i*4:], uint32(int32(v)))
	case model.Int64:
		binary.LittleEndian.PutUint64(data[i*8:], uint64(v))
	case model.Uint8:
		data[i] = byte(v)
	default:
		panic(fmt.Sprintf("putInt with %v dtype", dtype))
	}
}

// sameShape reports whether two shapes are identical.
func sameShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

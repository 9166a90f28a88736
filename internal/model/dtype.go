package model

import (
	"fmt"
	"math"
)

// DType identifies the element type of a tensor buffer.
type DType string

// Supported tensor element types.
const (
	Float16 DType = "float16"
	Float32 DType = "float32"
	Float64 DType = "float64"
	Int32   DType = "int32"
	Int64   DType = "int64"
	Uint8   DType = "uint8"
	Bool    DType = "bool"
)

// dtypeSizes maps each dtype to its element size in bytes.
var dtypeSizes = map[DType]int{
	Float16: 2,
	Float32: 4,
	Float64: 8,
	Int32:   4,
	Int64:   8,
	Uint8:   1,
	Bool:    1,
}

// Size returns the element size in bytes, or 0 for an unknown dtype.
func (d DType) Size() int {
	return dtypeSizes[d]
}

// Valid reports whether d is a supported dtype.
func (d DType) Valid() bool {
	_, ok := dtypeSizes[d]
	return ok
}

// NumElements returns the element count implied by shape. It returns an
// error for negative dimensions and for products that do not fit in an
// int64; a scalar (empty shape) has one element.
func NumElements(shape []int64) (int64, error) {
	n := int64(1)
	for i, dim := range shape {
		if dim < 0 {
			return 0, fmt.Errorf("shape dimension %d is negative: %d", i, dim)
		}
		if dim != 0 && n > math.MaxInt64/dim {
			return 0, fmt.Errorf("shape %v overflows the element count", shape)
		}
		n *= dim
	}
	return n, nil
}

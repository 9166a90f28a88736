package compute

import (
	"fmt"

	"github.com/seantiz/tensord/internal/model"
)

// Attrs carries op attributes as decoded JSON values (numbers arrive as
// float64, shapes as []any). The typed getters coerce and validate.
type Attrs map[string]any

// Int returns the named attribute as an int.
func (a Attrs) Int(name string) (int, error) {
	v, ok := a[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing attr %q", ErrInvalidArgument, name)
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	}
	return 0, fmt.Errorf("%w: attr %q is %T, want integer", ErrInvalidArgument, name, v)
}

// Float returns the named attribute as a float64.
func (a Attrs) Float(name string) (float64, error) {
	v, ok := a[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing attr %q", ErrInvalidArgument, name)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	}
	return 0, fmt.Errorf("%w: attr %q is %T, want number", ErrInvalidArgument, name, v)
}

// Bool returns the named attribute as a bool.
func (a Attrs) Bool(name string) (bool, error) {
	v, ok := a[name]
	if !ok {
		return false, fmt.Errorf("%w: missing attr %q", ErrInvalidArgument, name)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: attr %q is %T, want bool", ErrInvalidArgument, name, v)
	}
	return b, nil
}

// String returns the named attribute as a string.
func (a Attrs) String(name string) (string, error) {
	v, ok := a[name]
	if !ok {
		return "", fmt.Errorf("%w: missing attr %q", ErrInvalidArgument, name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: attr %q is %T, want string", ErrInvalidArgument, name, v)
	}
	return s, nil
}

// DType returns the named attribute as a dtype.
func (a Attrs) DType(name string) (model.DType, error) {
	s, err := a.String(name)
	if err != nil {
		return "", err
	}
	d := model.DType(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: attr %q: unsupported dtype %q", ErrInvalidArgument, name, s)
	}
	return d, nil
}

// Shape returns the named attribute as a shape.
func (a Attrs) Shape(name string) ([]int64, error) {
	v, ok := a[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing attr %q", ErrInvalidArgument, name)
	}
	switch dims := v.(type) {
	case []int64:
		return dims, nil
	case []any:
		shape := make([]int64, len(dims))
		for i, d := range dims {
			n, ok := d.(float64)
			if !ok {
				return nil, fmt.Errorf("%w: attr %q dim %d is %T, want integer", ErrInvalidArgument, name, i, d)
			}
			shape[i] = int64(n)
		}
		return shape, nil
	}
	return nil, fmt.Errorf("%w: attr %q is %T, want shape", ErrInvalidArgument, name, v)
}

// Package tensor holds the dense float32 tensors passed between the
// preprocessing and inference stages.
package tensor

import (
	"errors"
	"fmt"
	"sync"
)

var ErrReleased = errors.New("tensor already released")

type Shape []int64

// Size is the number of elements a tensor of this shape holds.
func (s Shape) Size() int64 {
	if len(s) == 0 {
		return 0
	}

	size := int64(1)
	for _, dim := range s {
		size *= dim
	}

	return size
}

func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}

	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}

	return true
}

func (s Shape) String() string {
	return fmt.Sprint([]int64(s))
}

// Tensor is a row-major float32 tensor. A tensor must be released once it is
// no longer needed; tensors backed by runtime memory free it on Release.
type Tensor struct {
	shape Shape
	data  []float32

	mu       sync.Mutex
	released bool
	onFree   func()
}

func New(shape Shape, data []float32) (*Tensor, error) {
	if int64(len(data)) != shape.Size() {
		return nil, fmt.Errorf("tensor data has %d elements, shape %s needs %d", len(data), shape, shape.Size())
	}

	return &Tensor{shape: shape, data: data}, nil
}

func Zeros(shape Shape) *Tensor {
	return &Tensor{shape: shape, data: make([]float32, shape.Size())}
}

// WithRelease attaches a function that runs exactly once when the tensor is
// released, e.g. to destroy the runtime value it was copied from.
func (t *Tensor) WithRelease(fn func()) *Tensor {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.onFree = fn
	return t
}

func (t *Tensor) Shape() Shape {
	return t.shape
}

// Data returns the backing slice; it is nil after Release.
func (t *Tensor) Data() []float32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.data
}

// ExpandDims inserts a dimension of size 1 at axis without copying data.
func (t *Tensor) ExpandDims(axis int) (*Tensor, error) {
	if axis < 0 || axis > len(t.shape) {
		return nil, fmt.Errorf("axis %d out of range for rank %d", axis, len(t.shape))
	}

	shape := make(Shape, 0, len(t.shape)+1)
	shape = append(shape, t.shape[:axis]...)
	shape = append(shape, 1)
	shape = append(shape, t.shape[axis:]...)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.released {
		return nil, ErrReleased
	}

	expanded := &Tensor{shape: shape, data: t.data, onFree: t.onFree}
	t.data = nil
	t.released = true
	t.onFree = nil

	return expanded, nil
}

// Release frees the tensor. Releasing twice is a no-op.
func (t *Tensor) Release() {
	if t == nil {
		return
	}

	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return
	}
	t.released = true
	t.data = nil
	onFree := t.onFree
	t.onFree = nil
	t.mu.Unlock()

	if onFree != nil {
		onFree()
	}
}

func (t *Tensor) Released() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.released
}

// ReleaseAll releases every tensor in ts, skipping nils.
func ReleaseAll(ts ...*Tensor) {
	for _, t := range ts {
		t.Release()
	}
}

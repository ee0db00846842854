package tensor

import (
	"errors"
	"testing"
)

func TestNewChecksSize(t *testing.T) {
	if _, err := New(Shape{2, 3}, make([]float32, 5)); err == nil {
		t.Error("expected error for mismatched data length")
	}

	tt, err := New(Shape{2, 3}, make([]float32, 6))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if tt.Shape().Size() != 6 {
		t.Errorf("expected size 6, got %d", tt.Shape().Size())
	}
}

func TestExpandDims(t *testing.T) {
	base := Zeros(Shape{224, 224, 3})

	batched, err := base.ExpandDims(0)
	if err != nil {
		t.Fatalf("ExpandDims returned error: %v", err)
	}

	if !batched.Shape().Equal(Shape{1, 224, 224, 3}) {
		t.Errorf("unexpected shape %s", batched.Shape())
	}
	if !base.Released() {
		t.Error("the source tensor must hand its data over and become released")
	}
	if _, err := base.ExpandDims(0); !errors.Is(err, ErrReleased) {
		t.Errorf("expected ErrReleased, got %v", err)
	}
	if _, err := batched.ExpandDims(9); err == nil {
		t.Error("expected out of range error")
	}
}

func TestReleaseRunsHookOnce(t *testing.T) {
	calls := 0
	tt := Zeros(Shape{1, 3}).WithRelease(func() { calls++ })

	tt.Release()
	tt.Release()

	if calls != 1 {
		t.Errorf("expected release hook to run once, ran %d times", calls)
	}
	if tt.Data() != nil {
		t.Error("expected data to be dropped after release")
	}
}

func TestReleaseHookFollowsExpandDims(t *testing.T) {
	calls := 0
	base := Zeros(Shape{3}).WithRelease(func() { calls++ })

	batched, err := base.ExpandDims(0)
	if err != nil {
		t.Fatalf("ExpandDims returned error: %v", err)
	}
	if calls != 0 {
		t.Fatal("hook must not run when ownership moves")
	}

	ReleaseAll(base, batched, nil)
	if calls != 1 {
		t.Errorf("expected hook to run once, ran %d times", calls)
	}
}

package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFutureResolvesOnce(t *testing.T) {
	f := NewFuture[int]()

	if _, resolved, _ := f.Peek(); resolved {
		t.Fatal("new future must not be resolved")
	}

	if !f.Resolve(1, nil) {
		t.Fatal("first Resolve must win")
	}
	if f.Resolve(2, errors.New("late")) {
		t.Fatal("second Resolve must be ignored")
	}

	v, resolved, err := f.Peek()
	if !resolved || v != 1 || err != nil {
		t.Errorf("unexpected Peek result: %d %v %v", v, resolved, err)
	}
}

func TestFutureWait(t *testing.T) {
	f := NewFuture[string]()

	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Resolve("ready", nil)
	}()

	v, err := f.Wait(context.Background())
	if err != nil || v != "ready" {
		t.Errorf("unexpected Wait result: %q %v", v, err)
	}
}

func TestFutureWaitHonorsContext(t *testing.T) {
	f := NewFuture[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestResolvedFuture(t *testing.T) {
	want := errors.New("load failed")
	f := Resolved(0, want)

	select {
	case <-f.Done():
	default:
		t.Fatal("Resolved future must be done")
	}

	if _, _, err := f.Peek(); !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}

package model

import (
	"context"
	"os"
	"testing"

	"github.com/cozy-creator/cattleid/internal/tensor"
)

// TestOnnxModelExecute runs a real bundle when one is available:
//
//	CATTLEID_TEST_BUNDLE=/path/to/modelA CATTLEID_TEST_ORT_LIB=/usr/lib/libonnxruntime.so go test ./internal/model
func TestOnnxModelExecute(t *testing.T) {
	dir := os.Getenv("CATTLEID_TEST_BUNDLE")
	if dir == "" {
		t.Skip("CATTLEID_TEST_BUNDLE not set")
	}

	if err := InitRuntime(os.Getenv("CATTLEID_TEST_ORT_LIB")); err != nil {
		t.Fatalf("InitRuntime returned error: %v", err)
	}
	defer DestroyRuntime()

	m, err := LoadOnnx(dir)
	if err != nil {
		t.Fatalf("LoadOnnx returned error: %v", err)
	}
	defer m.Close()

	input := tensor.Zeros(m.Manifest().InputShape())
	defer input.Release()

	outputs, err := m.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	defer tensor.ReleaseAll(outputs...)

	if len(outputs) != len(m.Manifest().Outputs) {
		t.Fatalf("expected %d outputs, got %d", len(m.Manifest().Outputs), len(outputs))
	}

	m.Close()
	if _, err := m.Execute(context.Background(), input); err != ErrClosed {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}

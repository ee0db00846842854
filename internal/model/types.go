// Package model loads classifier bundles and runs them. A bundle is a
// directory holding manifest.json, the graph file and its weight shards.
package model

import (
	"context"
	"errors"

	"github.com/cozy-creator/cattleid/internal/tensor"
)

type ModelState string

const (
	ModelStateLoading ModelState = "loading"
	ModelStateReady   ModelState = "ready"
	ModelStateFailed  ModelState = "failed"
)

var (
	ErrLoad            = errors.New("failed to load model")
	ErrClosed          = errors.New("model is closed")
	ErrUnsupported     = errors.New("unsupported model format")
	ErrShardMismatch   = errors.New("weight shard digest mismatch")
	ErrInvalidManifest = errors.New("invalid model manifest")
)

// Model runs a forward pass. Execute may block for the duration of the
// graph, including graphs with control flow. The caller owns the returned
// tensors and must release every one of them.
type Model interface {
	Execute(ctx context.Context, input *tensor.Tensor) ([]*tensor.Tensor, error)
	Close() error
}

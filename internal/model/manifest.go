package model

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cozy-creator/cattleid/internal/tensor"
	"github.com/cozy-creator/cattleid/internal/utils/hashutil"
)

const (
	ManifestFile = "manifest.json"
	FormatONNX   = "onnx"
)

type TensorSpec struct {
	Name  string  `json:"name"`
	Shape []int64 `json:"shape"`
}

type Shard struct {
	Path   string `json:"path"`
	Blake3 string `json:"blake3,omitempty"`
}

// Manifest describes a bundle: the graph topology file, the weight shards
// stored next to it, and the graph's input and output tensors.
type Manifest struct {
	Name    string       `json:"name"`
	Format  string       `json:"format"`
	Graph   Shard        `json:"graph"`
	Weights []Shard      `json:"weights,omitempty"`
	Inputs  []TensorSpec `json:"inputs"`
	Outputs []TensorSpec `json:"outputs"`
}

func ReadManifest(dir string) (*Manifest, error) {
	file, err := os.Open(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	defer file.Close()

	return DecodeManifest(file)
}

// DecodeManifest parses and validates a manifest read from r.
func DecodeManifest(r io.Reader) (*Manifest, error) {
	var manifest Manifest
	if err := json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	return &manifest, nil
}

func (m *Manifest) Validate() error {
	if m.Format == "" {
		m.Format = FormatONNX
	}

	if !strings.EqualFold(m.Format, FormatONNX) {
		return fmt.Errorf("%w: %s", ErrUnsupported, m.Format)
	}

	if m.Graph.Path == "" {
		return fmt.Errorf("%w: graph path is empty", ErrInvalidManifest)
	}

	if len(m.Inputs) != 1 {
		return fmt.Errorf("%w: expected exactly one input, got %d", ErrInvalidManifest, len(m.Inputs))
	}

	if len(m.Outputs) == 0 {
		return fmt.Errorf("%w: no outputs declared", ErrInvalidManifest)
	}

	for _, spec := range append(append([]TensorSpec{}, m.Inputs...), m.Outputs...) {
		if spec.Name == "" {
			return fmt.Errorf("%w: tensor without a name", ErrInvalidManifest)
		}
		if tensor.Shape(spec.Shape).Size() <= 0 {
			return fmt.Errorf("%w: tensor %s has shape %v", ErrInvalidManifest, spec.Name, spec.Shape)
		}
	}

	for _, shard := range m.Files() {
		if filepath.IsAbs(shard.Path) || strings.HasPrefix(filepath.Clean(shard.Path), "..") {
			return fmt.Errorf("%w: shard %s escapes the bundle", ErrInvalidManifest, shard.Path)
		}
	}

	return nil
}

// Files lists the graph followed by every weight shard.
func (m *Manifest) Files() []Shard {
	return append([]Shard{m.Graph}, m.Weights...)
}

func (m *Manifest) InputShape() tensor.Shape {
	return tensor.Shape(m.Inputs[0].Shape)
}

// Verify checks that every file exists in dir and that shards carrying a
// blake3 digest match it.
func (m *Manifest) Verify(dir string) error {
	for _, shard := range m.Files() {
		path := filepath.Join(dir, shard.Path)

		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("missing bundle file %s: %w", shard.Path, err)
		}

		if shard.Blake3 == "" {
			file.Close()
			continue
		}

		digest, err := hashutil.Blake3Reader(file)
		file.Close()
		if err != nil {
			return fmt.Errorf("failed to hash %s: %w", shard.Path, err)
		}

		if !hashutil.EqualHex(digest, shard.Blake3) {
			return fmt.Errorf("%w: %s", ErrShardMismatch, shard.Path)
		}
	}

	return nil
}

package model

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cozy-creator/cattleid/internal/tensor"

	ort "github.com/yalue/onnxruntime_go"
)

var runtime struct {
	mu    sync.Mutex
	users int
}

// InitRuntime initializes the ONNX Runtime environment. libPath points at
// the onnxruntime shared library; empty uses the platform default. Every
// successful call must be paired with DestroyRuntime.
func InitRuntime(libPath string) error {
	runtime.mu.Lock()
	defer runtime.mu.Unlock()

	if runtime.users == 0 {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}

		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	runtime.users++
	return nil
}

func DestroyRuntime() error {
	runtime.mu.Lock()
	defer runtime.mu.Unlock()

	if runtime.users == 0 {
		return nil
	}

	runtime.users--
	if runtime.users > 0 {
		return nil
	}

	return ort.DestroyEnvironment()
}

// OnnxModel runs a bundle through ONNX Runtime. Input and output tensors
// are allocated per call so concurrent callers never share runtime memory.
type OnnxModel struct {
	manifest *Manifest
	session  *ort.DynamicAdvancedSession

	mu     sync.RWMutex
	closed bool
}

// LoadOnnx verifies the bundle in dir and opens an inference session for it.
// InitRuntime must have been called.
func LoadOnnx(dir string) (*OnnxModel, error) {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	if err := manifest.Verify(dir); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	inputNames := []string{manifest.Inputs[0].Name}
	outputNames := make([]string, len(manifest.Outputs))
	for i, output := range manifest.Outputs {
		outputNames[i] = output.Name
	}

	// External weight shards are resolved relative to the graph file.
	session, err := ort.NewDynamicAdvancedSession(
		filepath.Join(dir, manifest.Graph.Path),
		inputNames, outputNames, nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create ONNX session: %w", ErrLoad, err)
	}

	return &OnnxModel{manifest: manifest, session: session}, nil
}

func (m *OnnxModel) Manifest() *Manifest {
	return m.manifest
}

func (m *OnnxModel) Execute(ctx context.Context, input *tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	if !input.Shape().Equal(m.manifest.InputShape()) {
		return nil, fmt.Errorf("input shape %s does not match model input %s", input.Shape(), m.manifest.InputShape())
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(input.Shape()...), input.Data())
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensors := make([]*ort.Tensor[float32], 0, len(m.manifest.Outputs))
	destroyOutputs := func() {
		for _, t := range outputTensors {
			t.Destroy()
		}
	}

	outputs := make([]ort.ArbitraryTensor, 0, len(m.manifest.Outputs))
	for _, spec := range m.manifest.Outputs {
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.Shape...))
		if err != nil {
			destroyOutputs()
			return nil, fmt.Errorf("failed to create output tensor %s: %w", spec.Name, err)
		}

		outputTensors = append(outputTensors, t)
		outputs = append(outputs, t)
	}

	if err := m.session.Run([]ort.ArbitraryTensor{inputTensor}, outputs); err != nil {
		destroyOutputs()
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	results := make([]*tensor.Tensor, 0, len(outputTensors))
	for i, t := range outputTensors {
		out, err := tensor.New(tensor.Shape(m.manifest.Outputs[i].Shape), t.GetData())
		if err != nil {
			tensor.ReleaseAll(results...)
			for _, rest := range outputTensors[i:] {
				rest.Destroy()
			}
			return nil, err
		}

		t := t
		results = append(results, out.WithRelease(func() { t.Destroy() }))
	}

	return results, nil
}

func (m *OnnxModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	return m.session.Destroy()
}

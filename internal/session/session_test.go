package session

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/cozy-creator/cattleid/internal/encoding"
	"github.com/cozy-creator/cattleid/internal/labels"
	"github.com/cozy-creator/cattleid/internal/model"
	"github.com/cozy-creator/cattleid/internal/prediction"
	"github.com/cozy-creator/cattleid/internal/tensor"
)

type fakeModel struct {
	mu       sync.Mutex
	scores   []float32
	extra    int
	err      error
	panics   bool
	inputs   []*tensor.Tensor
	outputs  []*tensor.Tensor
	closed   bool
	gotShape tensor.Shape
}

func (f *fakeModel) Execute(ctx context.Context, input *tensor.Tensor) ([]*tensor.Tensor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inputs = append(f.inputs, input)
	f.gotShape = input.Shape()

	if f.panics {
		panic("graph exploded")
	}
	if f.err != nil {
		return nil, f.err
	}

	out, err := tensor.New(tensor.Shape{1, int64(len(f.scores))}, append([]float32(nil), f.scores...))
	if err != nil {
		return nil, err
	}
	outputs := []*tensor.Tensor{out}
	for i := 0; i < f.extra; i++ {
		outputs = append(outputs, tensor.Zeros(tensor.Shape{1, 4}))
	}
	f.outputs = append(f.outputs, outputs...)

	return outputs, nil
}

func (f *fakeModel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeModel) assertReleased(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, in := range f.inputs {
		if !in.Released() {
			t.Errorf("input %d not released", i)
		}
	}
	for i, out := range f.outputs {
		if !out.Released() {
			t.Errorf("output %d not released", i)
		}
	}
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	return img
}

func newTestSession(t *testing.T, models map[string]model.Model, table labels.Table) *Session {
	t.Helper()

	specs := make(map[string]ModelSpec, len(models))
	for id := range models {
		specs[id] = ModelSpec{Name: "model " + id, Variant: encoding.NormalizedRGB}
	}

	s, err := New(Options{
		Models: specs,
		LoadModel: func(ctx context.Context, id string) (model.Model, error) {
			m := models[id]
			if m == nil {
				return nil, errors.New("bundle missing")
			}
			return m, nil
		},
		LoadLabels: func(ctx context.Context) labels.Table { return table },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	s.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}

	return s
}

func TestIdentify(t *testing.T) {
	tests := []struct {
		name       string
		scores     []float32
		table      labels.Table
		wantID     string
		wantStatus prediction.Status
	}{
		{"recognized", []float32{0.1, 0.8, 0.1}, labels.Table{"Angus", "Hereford", "Jersey"}, "Hereford", prediction.StatusRecognized},
		{"below threshold", []float32{0.3, 0.3, 0.4}, labels.Table{"Angus", "Hereford", "Jersey"}, prediction.NotRecognized, prediction.StatusNotRecognized},
		{"label missing", []float32{0.05, 0.05, 0.9}, labels.Table{"Angus"}, "Class 2", prediction.StatusRecognized},
		{"empty table", []float32{0.9, 0.1}, labels.Table{}, "Class 0", prediction.StatusRecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeModel{scores: tt.scores, extra: 1}
			s := newTestSession(t, map[string]model.Model{"a": fake}, tt.table)

			result, err := s.Identify(context.Background(), "a", testImage())
			if err != nil {
				t.Fatalf("Identify: %v", err)
			}

			if result.ID != tt.wantID || result.Status != tt.wantStatus {
				t.Errorf("got %q (%s), want %q (%s)", result.ID, result.Status, tt.wantID, tt.wantStatus)
			}
			if result.Model != "a" || result.RequestID == "" {
				t.Errorf("result missing model or request id: %+v", result)
			}
			if !fake.gotShape.Equal(encoding.InputShape()) {
				t.Errorf("model received shape %v", fake.gotShape)
			}

			fake.assertReleased(t)
		})
	}
}

func TestIdentifyFailuresAreReported(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeModel
	}{
		{"execute error", &fakeModel{err: errors.New("kernel failed")}},
		{"panic", &fakeModel{panics: true}},
		{"no usable scores", &fakeModel{scores: []float32{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, map[string]model.Model{"a": tt.fake}, labels.Table{"Angus"})

			result, err := s.Identify(context.Background(), "a", testImage())
			if err != nil {
				t.Fatalf("Identify: %v", err)
			}
			if !result.Failed() || result.Error != prediction.PredictionFailed {
				t.Errorf("expected failed result, got %+v", result)
			}

			tt.fake.assertReleased(t)
		})
	}
}

func TestIdentifyReadiness(t *testing.T) {
	s := newTestSession(t, map[string]model.Model{"a": &fakeModel{scores: []float32{1}}, "b": nil}, labels.Table{})

	if _, err := s.Identify(context.Background(), "z", testImage()); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}

	if _, err := s.Identify(context.Background(), "b", testImage()); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady for failed load, got %v", err)
	}

	if state, _ := s.State("b"); state != model.ModelStateFailed {
		t.Errorf("expected failed state, got %s", state)
	}
	if !s.Ready("a") || s.Ready("b") {
		t.Error("unexpected readiness")
	}

	statuses := s.Status()
	if len(statuses) != 2 || statuses[0].ID != "a" || statuses[1].Error == "" {
		t.Errorf("unexpected status: %+v", statuses)
	}
}

func TestIdentifyBeforeLoad(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeModel{scores: []float32{1}}

	s, err := New(Options{
		Models: map[string]ModelSpec{"a": {Variant: encoding.MeanCenteredBGR}},
		LoadModel: func(ctx context.Context, id string) (model.Model, error) {
			<-release
			return fake, nil
		},
		LoadLabels: func(ctx context.Context) labels.Table { return labels.Table{"Angus"} },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	s.Start(context.Background())

	if _, err := s.Identify(context.Background(), "a", testImage()); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady while loading, got %v", err)
	}
	if state, _ := s.State("a"); state != model.ModelStateLoading {
		t.Errorf("expected loading state, got %s", state)
	}

	close(release)
	if err := s.WaitReady(context.Background()); err != nil {
		t.Fatal(err)
	}

	result, err := s.Identify(context.Background(), "a", testImage())
	if err != nil || result.ID != "Angus" {
		t.Errorf("unexpected result after load: %+v %v", result, err)
	}
}

func TestIdentifyWaitsForLabels(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeModel{scores: []float32{0.2, 0.8}}

	s, err := New(Options{
		Models: map[string]ModelSpec{"a": {Variant: encoding.NormalizedRGB}},
		LoadModel: func(ctx context.Context, id string) (model.Model, error) {
			return fake, nil
		},
		LoadLabels: func(ctx context.Context) labels.Table {
			<-release
			return labels.Table{"Angus", "Holstein"}
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	defer func() {
		select {
		case <-release:
		default:
			close(release)
		}
	}()

	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for {
		if state, _ := s.State("a"); state == model.ModelStateReady {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("model never loaded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if s.Ready("a") {
		t.Error("Ready reported true while labels are loading")
	}
	if _, loaded := s.Labels(); loaded {
		t.Error("labels reported loaded before release")
	}
	if _, err := s.Identify(context.Background(), "a", testImage()); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady while labels load, got %v", err)
	}

	fake.mu.Lock()
	calls := len(fake.inputs)
	fake.mu.Unlock()
	if calls != 0 {
		t.Errorf("model ran %d times before labels loaded", calls)
	}

	close(release)
	if err := s.WaitReady(context.Background()); err != nil {
		t.Fatal(err)
	}

	result, err := s.Identify(context.Background(), "a", testImage())
	if err != nil || result.ID != "Holstein" {
		t.Errorf("unexpected result after labels loaded: %+v %v", result, err)
	}
}

func TestCloseClosesModels(t *testing.T) {
	fake := &fakeModel{scores: []float32{1}}
	s := newTestSession(t, map[string]model.Model{"a": fake}, labels.Table{})

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if !fake.closed {
		t.Error("model not closed")
	}
	if _, err := s.Identify(context.Background(), "a", testImage()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

// Package session owns the loaded classifiers and the label table. Loads
// run in the background; identification is refused until both the chosen
// model and the labels have resolved.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/cozy-creator/cattleid/internal/encoding"
	"github.com/cozy-creator/cattleid/internal/labels"
	"github.com/cozy-creator/cattleid/internal/model"
	"github.com/cozy-creator/cattleid/internal/prediction"
	"github.com/cozy-creator/cattleid/internal/tensor"
	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotReady     = errors.New("model is not ready")
	ErrUnknownModel = errors.New("unknown model")
	ErrClosed       = errors.New("session is closed")
)

// LoadModelFunc loads the model registered under id.
type LoadModelFunc func(ctx context.Context, id string) (model.Model, error)

// LoadLabelsFunc never fails; an unavailable table is reported as empty.
type LoadLabelsFunc func(ctx context.Context) labels.Table

type ModelSpec struct {
	Name    string
	Variant encoding.Variant
}

type Options struct {
	Models           map[string]ModelSpec
	LoadModel        LoadModelFunc
	LoadLabels       LoadLabelsFunc
	InferenceWorkers int
	Logger           *zap.Logger
}

type ModelStatus struct {
	ID       string           `json:"id" msgpack:"id"`
	Name     string           `json:"name" msgpack:"name"`
	Encoding string           `json:"encoding" msgpack:"encoding"`
	State    model.ModelState `json:"state" msgpack:"state"`
	Error    string           `json:"error,omitempty" msgpack:"error,omitempty"`
}

type entry struct {
	id    string
	spec  ModelSpec
	model *Future[model.Model]
}

type Session struct {
	logger     *zap.Logger
	loadModel  LoadModelFunc
	loadLabels LoadLabelsFunc

	models map[string]*entry
	labels *Future[labels.Table]

	loaders   *workerpool.WorkerPool
	inference *workerpool.WorkerPool

	mu      sync.RWMutex
	started bool
	closed  bool
}

func New(opts Options) (*Session, error) {
	if len(opts.Models) == 0 {
		return nil, fmt.Errorf("session needs at least one model")
	}
	if opts.LoadModel == nil || opts.LoadLabels == nil {
		return nil, fmt.Errorf("session needs model and label loaders")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	workers := opts.InferenceWorkers
	if workers < 1 {
		workers = 1
	}

	models := make(map[string]*entry, len(opts.Models))
	for id, spec := range opts.Models {
		if spec.Name == "" {
			spec.Name = id
		}
		models[id] = &entry{id: id, spec: spec, model: NewFuture[model.Model]()}
	}

	return &Session{
		logger:     logger.Named("session"),
		loadModel:  opts.LoadModel,
		loadLabels: opts.LoadLabels,
		models:     models,
		labels:     NewFuture[labels.Table](),
		loaders:    workerpool.New(len(models) + 1),
		inference:  workerpool.New(workers),
	}, nil
}

// Start launches every model load and the label fetch concurrently. It
// returns immediately; use WaitReady or Ready to observe completion.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.closed {
		return
	}
	s.started = true

	for _, e := range s.models {
		e := e
		s.loaders.Submit(func() {
			m, err := s.loadModel(ctx, e.id)
			if err != nil {
				s.logger.Error("failed to load model", zap.String("model", e.id), zap.Error(err))
				e.model.Resolve(nil, err)
				return
			}

			s.logger.Info("model ready", zap.String("model", e.id), zap.String("encoding", e.spec.Variant.String()))
			e.model.Resolve(m, nil)
		})
	}

	s.loaders.Submit(func() {
		table := s.loadLabels(ctx)
		s.logger.Info("labels ready", zap.Int("classes", len(table)))
		s.labels.Resolve(table, nil)
	})
}

// Ready reports whether id can serve identification right now.
func (s *Session) Ready(id string) bool {
	e, ok := s.models[id]
	if !ok {
		return false
	}

	m, resolved, err := e.model.Peek()
	if !resolved || err != nil || m == nil {
		return false
	}

	_, resolved, _ = s.labels.Peek()
	return resolved
}

func (s *Session) State(id string) (model.ModelState, error) {
	e, ok := s.models[id]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}

	return e.state(), nil
}

func (s *Session) Has(id string) bool {
	_, ok := s.models[id]
	return ok
}

// Status lists every registered model sorted by id.
func (s *Session) Status() []ModelStatus {
	statuses := make([]ModelStatus, 0, len(s.models))
	for id, e := range s.models {
		status := ModelStatus{
			ID:       id,
			Name:     e.spec.Name,
			Encoding: e.spec.Variant.String(),
			State:    e.state(),
		}
		if _, resolved, err := e.model.Peek(); resolved && err != nil {
			status.Error = err.Error()
		}
		statuses = append(statuses, status)
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

// Labels returns the label table once it has resolved.
func (s *Session) Labels() (labels.Table, bool) {
	table, resolved, _ := s.labels.Peek()
	return table, resolved
}

// WaitReady blocks until every load has resolved, successfully or not.
func (s *Session) WaitReady(ctx context.Context) error {
	for _, e := range s.models {
		select {
		case <-e.model.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	_, err := s.labels.Wait(ctx)
	return err
}

// Identify classifies img with the model registered under id. Inference
// failures are logged and reported as a failed Result, not as an error;
// errors are reserved for requests that could not be attempted.
func (s *Session) Identify(ctx context.Context, id string, img image.Image) (*prediction.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	e, ok := s.models[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}

	m, resolved, err := e.model.Peek()
	if !resolved || err != nil || m == nil {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotReady, id, e.state())
	}

	table, resolved, _ := s.labels.Peek()
	if !resolved {
		return nil, fmt.Errorf("%w: labels are loading", ErrNotReady)
	}

	requestID := uuid.NewString()
	done := make(chan prediction.Result, 1)

	s.inference.Submit(func() {
		if ctx.Err() != nil {
			done <- prediction.Failed()
			return
		}
		done <- s.run(ctx, e, m, img, table, requestID)
	})

	select {
	case result := <-done:
		result.RequestID = requestID
		result.Model = id
		return &result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) run(ctx context.Context, e *entry, m model.Model, img image.Image, table labels.Table, requestID string) (result prediction.Result) {
	logger := s.logger.With(zap.String("request_id", requestID), zap.String("model", e.id))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("inference panicked", zap.Any("panic", r))
			result = prediction.Failed()
		}
	}()

	input, err := e.spec.Variant.Encode(img)
	if err != nil {
		logger.Error("failed to encode image", zap.Error(err))
		return prediction.Failed()
	}
	defer input.Release()

	outputs, err := m.Execute(ctx, input)
	defer tensor.ReleaseAll(outputs...)
	if err != nil {
		logger.Error("inference failed", zap.Error(err))
		return prediction.Failed()
	}

	if len(outputs) == 0 {
		logger.Error("model returned no outputs")
		return prediction.Failed()
	}

	result, err = prediction.Decide(outputs[0].Data(), table)
	if err != nil {
		logger.Error("failed to decide prediction", zap.Error(err))
		return prediction.Failed()
	}

	logger.Debug("prediction",
		zap.String("id", result.ID),
		zap.Float32("confidence", result.Confidence),
		zap.String("status", string(result.Status)),
	)

	return result
}

// Close waits for in-flight loads, stops the inference workers and
// closes every loaded model.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.loaders.StopWait()
	s.inference.StopWait()

	var errs []error
	for id, e := range s.models {
		m, resolved, err := e.model.Peek()
		if !resolved {
			e.model.Resolve(nil, ErrClosed)
			continue
		}
		if err != nil || m == nil {
			continue
		}
		if err := m.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close model %s: %w", id, err))
		}
	}

	return errors.Join(errs...)
}

func (e *entry) state() model.ModelState {
	_, resolved, err := e.model.Peek()
	switch {
	case !resolved:
		return model.ModelStateLoading
	case err != nil:
		return model.ModelStateFailed
	default:
		return model.ModelStateReady
	}
}

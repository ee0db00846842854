package capture

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Registry tracks open captures by ID so they can be driven across
// requests and released on shutdown. A capture stays registered until its
// frame has been taken or it is cancelled.
type Registry struct {
	device Device
	logger *zap.Logger

	mu       sync.Mutex
	captures map[string]*slot
}

type slot struct {
	capture *Capture
	busy    bool
}

func NewRegistry(device Device, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		device:   device,
		logger:   logger.Named("capture"),
		captures: make(map[string]*slot),
	}
}

func (r *Registry) Open(ctx context.Context) (*Capture, error) {
	c, err := Open(ctx, r.device, r.logger)
	if err != nil {
		r.logger.Warn("failed to open camera", zap.Error(err))
		return nil, err
	}

	r.mu.Lock()
	r.captures[c.ID] = &slot{capture: c}
	r.mu.Unlock()

	return c, nil
}

// Frame takes the single frame of capture id and forgets the capture once
// the read returns. A second Frame while one is in flight is ErrCaptureClosed.
func (r *Registry) Frame(ctx context.Context, id string, quality int) ([]byte, error) {
	s, err := r.take(id)
	if err != nil {
		return nil, err
	}

	data, err := s.capture.Frame(ctx, quality)

	r.mu.Lock()
	if r.captures[id] == s {
		delete(r.captures, id)
	}
	r.mu.Unlock()

	return data, err
}

// Cancel releases capture id, including one whose frame is in flight.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	s, ok := r.captures[id]
	delete(r.captures, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrCaptureNotFound, id)
	}

	s.capture.Cancel()
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.captures)
}

// CloseAll cancels every open capture, busy or not.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	captures := r.captures
	r.captures = make(map[string]*slot)
	r.mu.Unlock()

	for _, s := range captures {
		s.capture.Cancel()
	}

	if len(captures) > 0 {
		r.logger.Info("released open captures", zap.Int("count", len(captures)))
	}
}

// take marks capture id busy without removing it, so Cancel and CloseAll
// still reach it during the read.
func (r *Registry) take(id string) (*slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.captures[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCaptureNotFound, id)
	}
	if s.busy {
		return nil, fmt.Errorf("%w: frame already in progress", ErrCaptureClosed)
	}
	s.busy = true

	return s, nil
}

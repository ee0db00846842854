// Package capture acquires still frames from a camera. A Capture owns its
// stream exclusively and stops every track exactly once, whichever way the
// flow ends.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/cozy-creator/cattleid/internal/utils/imageutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrCaptureClosed     = errors.New("capture is closed")
	ErrCaptureNotFound   = errors.New("capture not found")
)

type Track interface {
	Kind() string
	Stop()
}

type Stream interface {
	Tracks() []Track
	ReadFrame(ctx context.Context) (image.Image, error)
}

type Device interface {
	Open(ctx context.Context) (Stream, error)
}

type Capture struct {
	ID string

	logger *zap.Logger
	stream Stream

	mu        sync.Mutex
	closed    bool
	cancelled bool
	stopOnce  sync.Once
}

// Open acquires a stream from device. Any failure is reported as
// ErrCameraUnavailable.
func Open(ctx context.Context, device Device, logger *zap.Logger) (*Capture, error) {
	if device == nil {
		return nil, fmt.Errorf("%w: no camera configured", ErrCameraUnavailable)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	stream, err := device.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}

	c := &Capture{ID: uuid.NewString(), logger: logger, stream: stream}
	c.logger.Debug("capture opened", zap.String("capture", c.ID), zap.Int("tracks", len(stream.Tracks())))

	return c, nil
}

// Frame freezes the next frame, encodes it as JPEG and releases the stream.
// A capture yields at most one frame; Cancel interrupts a read in flight.
func (c *Capture) Frame(ctx context.Context, quality int) ([]byte, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrCaptureClosed
	}
	c.closed = true
	c.mu.Unlock()

	img, err := c.stream.ReadFrame(ctx)
	c.stopTracks()
	if err != nil {
		if c.wasCancelled() {
			return nil, ErrCaptureClosed
		}
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}

	return imageutil.EncodeJPEG(img, quality)
}

// Cancel releases the stream without taking a frame, interrupting a frame
// in flight. It is safe to call any number of times, including after Frame.
func (c *Capture) Cancel() {
	c.mu.Lock()
	c.closed = true
	c.cancelled = true
	c.mu.Unlock()

	c.stopTracks()
}

func (c *Capture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func (c *Capture) wasCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cancelled
}

func (c *Capture) stopTracks() {
	c.stopOnce.Do(func() {
		for _, track := range c.stream.Tracks() {
			track.Stop()
		}
		c.logger.Debug("capture released", zap.String("capture", c.ID))
	})
}

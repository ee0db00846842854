package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cozy-creator/cattleid/internal/utils/imageutil"
)

const maxFrameBytes = 16 << 20

// MJPEGCamera is a network camera serving either a multipart/x-mixed-replace
// MJPEG stream or a single JPEG snapshot per request. Timeout bounds both the
// connect and the wait for a frame.
type MJPEGCamera struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

func NewMJPEGCamera(url string, timeout time.Duration) *MJPEGCamera {
	return &MJPEGCamera{URL: url, Timeout: timeout, Client: http.DefaultClient}
}

func (m *MJPEGCamera) Open(ctx context.Context) (Stream, error) {
	if m.URL == "" {
		return nil, fmt.Errorf("camera url is not set")
	}

	// The stream outlives ctx; ctx and Timeout bound only the connect here.
	streamCtx, cancel := context.WithCancel(context.Background())
	stopOnCancel := context.AfterFunc(ctx, cancel)
	defer stopOnCancel()

	if m.Timeout > 0 {
		timer := time.AfterFunc(m.Timeout, cancel)
		defer timer.Stop()
	}

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, m.URL, nil)
	if err != nil {
		cancel()
		return nil, err
	}

	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("camera returned status %d", resp.StatusCode)
	}

	track := &videoTrack{body: resp.Body, cancel: cancel}
	stream := &mjpegStream{track: track, body: resp.Body, timeout: m.Timeout}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err == nil && strings.HasPrefix(mediaType, "multipart/") {
		boundary := strings.TrimPrefix(params["boundary"], "--")
		if boundary == "" {
			track.Stop()
			return nil, fmt.Errorf("camera stream has no multipart boundary")
		}
		stream.parts = multipart.NewReader(resp.Body, boundary)
	}

	return stream, nil
}

type mjpegStream struct {
	track   *videoTrack
	body    io.Reader
	parts   *multipart.Reader
	timeout time.Duration

	mu       sync.Mutex
	consumed bool
}

func (s *mjpegStream) Tracks() []Track {
	return []Track{s.track}
}

func (s *mjpegStream) ReadFrame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.track.isStopped() {
		return nil, ErrCaptureClosed
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	// A camera that stops sending must not hold the device past ctx.
	stop := context.AfterFunc(ctx, s.track.Stop)
	defer stop()

	data, err := s.nextFrame()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	img, _, err := imageutil.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode camera frame: %w", err)
	}

	return img, nil
}

func (s *mjpegStream) nextFrame() ([]byte, error) {
	if s.parts == nil {
		if s.consumed {
			return nil, fmt.Errorf("snapshot already read")
		}
		s.consumed = true
		return readLimited(s.body)
	}

	for {
		part, err := s.parts.NextPart()
		if err != nil {
			return nil, fmt.Errorf("failed to read camera frame: %w", err)
		}

		data, err := readLimited(part)
		part.Close()
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(data)) > 0 {
			return data, nil
		}
	}
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxFrameBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read camera frame: %w", err)
	}
	if len(data) > maxFrameBytes {
		return nil, fmt.Errorf("camera frame exceeds %d bytes", maxFrameBytes)
	}

	return data, nil
}

type videoTrack struct {
	body   io.Closer
	cancel context.CancelFunc

	once    sync.Once
	mu      sync.Mutex
	stopped bool
}

func (t *videoTrack) Kind() string {
	return "video"
}

func (t *videoTrack) Stop() {
	t.once.Do(func() {
		t.mu.Lock()
		t.stopped = true
		t.mu.Unlock()

		t.cancel()
		t.body.Close()
	})
}

func (t *videoTrack) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stopped
}

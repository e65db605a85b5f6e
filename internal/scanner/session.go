package scanner

import (
	"context"
	"sync"
	"time"

	"satroute/internal/logging"
)

// Facing is the requested camera orientation.
type Facing string

const (
	FacingRear Facing = "environment"
	FacingAny  Facing = "any"
)

// Frame is one captured video frame handed to the decoder.
type Frame struct {
	Pixels []byte
	Width  int
	Height int
}

// Stream is an acquired capture device. ReadFrame returns a nil frame
// when the device has not buffered a full frame yet; that tick is a
// no-op. Close releases all device tracks and is idempotent.
type Stream interface {
	ReadFrame() (*Frame, error)
	Close() error
}

// DeviceOpener acquires the camera hardware. The device is exclusive:
// at most one live stream exists system-wide, which the session
// enforces by closing the old stream before opening a new one.
type DeviceOpener interface {
	Open(ctx context.Context, facing Facing) (Stream, error)
}

// DecodeFunc attempts to decode a QR payload from one frame.
type DecodeFunc func(f *Frame) (text string, ok bool)

// DefaultFrameInterval approximates one decode attempt per display
// refresh.
const DefaultFrameInterval = 16 * time.Millisecond

// Session drives a camera-backed decode loop whose lifetime can be
// ended at any moment, including while device acquisition is still in
// flight. The epoch counter is the cancellation primitive: every
// suspension point re-checks it on resumption and a superseded
// acquisition closes its freshly acquired stream instead of using it.
type Session struct {
	opener        DeviceOpener
	decode        DecodeFunc
	onDecode      func(text string)
	onError       func(err error)
	frameInterval time.Duration

	mu      sync.Mutex
	epoch   uint64
	active  bool
	stream  Stream
	lastErr error
}

// Config wires a session's collaborators. OnDecode is required;
// OnError is optional. A zero FrameInterval uses the default.
type Config struct {
	Opener        DeviceOpener
	Decode        DecodeFunc
	OnDecode      func(text string)
	OnError       func(err error)
	FrameInterval time.Duration
}

// NewSession creates a stopped session.
func NewSession(cfg Config) *Session {
	interval := cfg.FrameInterval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Session{
		opener:        cfg.Opener,
		decode:        cfg.Decode,
		onDecode:      cfg.OnDecode,
		onError:       cfg.OnError,
		frameInterval: interval,
	}
}

// Start acquires the camera and begins the decode loop. Re-entering
// Start while a cycle is live implicitly stops it first, so exactly
// one start/stop cycle is ever live. Acquisition prefers the rear
// camera and falls back to any camera. Device errors are surfaced
// through OnError and Err, never panicked; Start may be retried.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	s.stopLocked()
	s.epoch++
	epoch := s.epoch
	s.active = true
	s.lastErr = nil
	s.mu.Unlock()

	go s.run(ctx, epoch)
}

func (s *Session) run(ctx context.Context, epoch uint64) {
	stream, err := s.opener.Open(ctx, FacingRear)
	if err != nil {
		logging.Scanner.Printf("rear camera unavailable, trying any: %v", err)
		stream, err = s.opener.Open(ctx, FacingAny)
	}
	if err != nil {
		s.fail(epoch, err)
		return
	}

	// The session may have been stopped or restarted while we were
	// waiting on the device. The stream we just acquired must not
	// leak a hardware handle.
	s.mu.Lock()
	if epoch != s.epoch || !s.active || ctx.Err() != nil {
		s.mu.Unlock()
		stream.Close()
		return
	}
	s.stream = stream
	s.mu.Unlock()

	s.loop(ctx, epoch, stream)
}

// loop runs decode ticks strictly sequentially: the next tick is not
// considered until the previous one finished.
func (s *Session) loop(ctx context.Context, epoch uint64, stream Stream) {
	for {
		time.Sleep(s.frameInterval)

		s.mu.Lock()
		current := epoch == s.epoch && s.active
		s.mu.Unlock()
		if !current || ctx.Err() != nil {
			return
		}

		frame, err := stream.ReadFrame()
		if err != nil {
			s.fail(epoch, err)
			return
		}
		if frame == nil {
			continue
		}

		if text, ok := s.decode(frame); ok {
			// The caller decides whether to stop; the loop keeps
			// going until told otherwise.
			s.onDecode(text)
		}
	}
}

func (s *Session) fail(epoch uint64, err error) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.lastErr = err
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	logging.Scanner.Printf("capture error: %v", err)
	if s.onError != nil {
		s.onError(err)
	}
}

// Stop releases the device and ends the decode loop. Idempotent and
// safe to call while Start's acquisition is still in flight: the
// epoch bump makes the acquisition close its stream on arrival.
func (s *Session) Stop() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
}

func (s *Session) stopLocked() {
	s.epoch++
	s.active = false
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
}

// Active reports whether a decode cycle is currently live.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Err returns the last device error, cleared on the next Start.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

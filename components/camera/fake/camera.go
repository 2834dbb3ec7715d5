// Package fake implements a synthetic depth camera which produces a deterministic depth and
// color frame per request.
package fake

import (
	"context"
	"encoding/binary"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/depthsave/components/camera"
	"go.viam.com/depthsave/logging"
)

// Model is the registered name of the fake source.
const Model = "fake"

const (
	initialWidth  = 640
	initialHeight = 480

	// gradient depth range in millimeters
	nearDepth = 300
	farDepth  = 4000
)

// Depth patterns.
const (
	ModeGradient = "gradient"
	ModeConstant = "constant"
)

func init() {
	camera.RegisterSource(Model, camera.Registration[*Config]{
		Constructor: func(ctx context.Context, conf *Config, logger logging.Logger) (camera.FrameSource, error) {
			return NewSource(conf, clock.New(), logger)
		},
	})
}

// Config are the attributes of the fake source.
type Config struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
	// Stride of the depth buffer in bytes. Defaults to 2*Width.
	Stride int    `json:"stride,omitempty"`
	Mode   string `json:"mode,omitempty"`
	// Value is the depth of every pixel in constant mode.
	Value int `json:"value,omitempty"`
	// FrameRate paces WaitForFrames. Zero returns frames as fast as they are requested.
	FrameRate float64 `json:"frame_rate,omitempty"`
	// FailAt makes the n-th (1-based) WaitForFrames call fail with a device error.
	FailAt int `json:"fail_at,omitempty"`
	// Motion adds an inertial frame to every set.
	Motion bool `json:"motion,omitempty"`
}

// Validate checks that the config attributes are valid for a fake source.
func (conf *Config) Validate(path string) error {
	if conf.Width < 0 || conf.Height < 0 {
		return errors.Errorf("%s: width and height cannot be negative", path)
	}
	width := conf.Width
	if width == 0 {
		width = initialWidth
	}
	if conf.Stride != 0 && conf.Stride < 2*width {
		return errors.Errorf("%s: stride %d is too small for width %d", path, conf.Stride, width)
	}
	if conf.Value < 0 || conf.Value > math.MaxUint16 {
		return errors.Errorf("%s: value %d is outside the 16-bit depth range", path, conf.Value)
	}
	switch conf.Mode {
	case "", ModeGradient, ModeConstant:
	default:
		return errors.Errorf("%s: unknown mode %q", path, conf.Mode)
	}
	if conf.FrameRate < 0 {
		return errors.Errorf("%s: frame rate cannot be negative", path)
	}
	if conf.FailAt < 0 {
		return errors.Errorf("%s: fail_at cannot be negative", path)
	}
	return nil
}

// Source is a fake camera. Buffers are recycled once their frame set is released, like the
// queue of a real device.
type Source struct {
	width, height, stride int
	mode                  string
	value                 uint16
	interval              time.Duration
	failAt                int
	motion                bool

	clk    clock.Clock
	logger logging.Logger

	mu       sync.Mutex
	started  bool
	closed   bool
	calls    int
	number   uint64
	last     *camera.FrameSet
	free     [][]byte
	lastTick time.Time
}

// NewSource returns an unstarted fake source.
func NewSource(conf *Config, clk clock.Clock, logger logging.Logger) (*Source, error) {
	if err := conf.Validate(Model); err != nil {
		return nil, err
	}
	s := &Source{
		width:  conf.Width,
		height: conf.Height,
		stride: conf.Stride,
		mode:   conf.Mode,
		value:  uint16(conf.Value),
		failAt: conf.FailAt,
		motion: conf.Motion,
		clk:    clk,
		logger: logger,
	}
	if s.width == 0 {
		s.width = initialWidth
	}
	if s.height == 0 {
		s.height = initialHeight
	}
	if s.stride == 0 {
		s.stride = 2 * s.width
	}
	if s.mode == "" {
		s.mode = ModeGradient
	}
	if conf.FrameRate > 0 {
		s.interval = time.Duration(float64(time.Second) / conf.FrameRate)
	}
	return s, nil
}

// Start begins streaming.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return camera.ErrClosed
	}
	s.started = true
	s.logger.CDebugw(ctx, "fake source started", "width", s.width, "height", s.height, "stride", s.stride, "mode", s.mode)
	return nil
}

// WaitForFrames returns the next synthetic frame set.
func (s *Source) WaitForFrames(ctx context.Context) (*camera.FrameSet, error) {
	// requesting a new set releases the previous one
	s.mu.Lock()
	last := s.last
	s.last = nil
	s.mu.Unlock()
	if last != nil {
		last.Release()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, camera.ErrClosed
	}
	if !s.started {
		return nil, camera.ErrNotStarted
	}

	s.calls++
	if s.failAt != 0 && s.calls == s.failAt {
		return nil, camera.NewDeviceError("wait_for_frames", "fake:"+strconv.Itoa(s.calls),
			errors.New("frame didn't arrive within 5000"))
	}
	if err := s.pace(ctx); err != nil {
		return nil, err
	}

	s.number++
	now := s.clk.Now()
	depthBuf := s.takeBuffer(s.height * s.stride)
	s.fillDepth(depthBuf)
	depth, err := camera.NewVideoFrame(camera.VideoFrameConfig{
		Stream:    camera.StreamDepth,
		Format:    camera.FormatZ16,
		Width:     s.width,
		Height:    s.height,
		Stride:    s.stride,
		Number:    s.number,
		Timestamp: now,
	}, depthBuf)
	if err != nil {
		return nil, err
	}

	colorStride := 3 * s.width
	colorBuf := s.takeBuffer(s.height * colorStride)
	s.fillColor(colorBuf, colorStride)
	color, err := camera.NewVideoFrame(camera.VideoFrameConfig{
		Stream:    camera.StreamColor,
		Format:    camera.FormatRGB8,
		Width:     s.width,
		Height:    s.height,
		Stride:    colorStride,
		Number:    s.number,
		Timestamp: now,
	}, colorBuf)
	if err != nil {
		return nil, err
	}

	frames := []camera.Frame{depth, color}
	if s.motion {
		frames = append(frames, camera.NewMotionFrame(s.number, now, make([]byte, 12)))
	}
	set := camera.NewFrameSet(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.recycle(depthBuf)
		s.recycle(colorBuf)
	}, frames...)
	s.last = set
	return set, nil
}

// pace waits until the next frame is due. Called with mu held.
func (s *Source) pace(ctx context.Context) error {
	if s.interval == 0 {
		return nil
	}
	now := s.clk.Now()
	if !s.lastTick.IsZero() {
		if wait := s.lastTick.Add(s.interval).Sub(now); wait > 0 {
			timer := s.clk.Timer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	s.lastTick = s.clk.Now()
	return nil
}

func (s *Source) takeBuffer(size int) []byte {
	for i, buf := range s.free {
		if cap(buf) >= size {
			s.free = append(s.free[:i], s.free[i+1:]...)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// recycle poisons a released buffer so reads after release are visible, then queues it for reuse.
func (s *Source) recycle(buf []byte) {
	for i := range buf {
		buf[i] = 0xAB
	}
	s.free = append(s.free, buf)
}

func (s *Source) fillDepth(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	diag := math.Hypot(float64(s.width), float64(s.height))
	for y := 0; y < s.height; y++ {
		row := buf[y*s.stride:]
		for x := 0; x < s.width; x++ {
			v := s.value
			if s.mode == ModeGradient {
				dist := math.Hypot(float64(x), float64(y)) / diag
				v = uint16(nearDepth + (farDepth-nearDepth)*dist)
			}
			binary.LittleEndian.PutUint16(row[2*x:], v)
		}
	}
}

// fillColor draws a yellow to blue gradient.
func (s *Source) fillColor(buf []byte, stride int) {
	diag := math.Hypot(float64(s.width), float64(s.height))
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			dist := math.Hypot(float64(x), float64(y)) / diag
			off := y*stride + 3*x
			buf[off] = uint8(255 - (255 * dist))
			buf[off+1] = uint8(255 - (255 * dist))
			buf[off+2] = uint8(255 * dist)
		}
	}
}

// Close stops the source. Outstanding frame sets stay readable until released.
func (s *Source) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.logger.CDebugw(ctx, "fake source closed", "frames", s.number)
	return nil
}

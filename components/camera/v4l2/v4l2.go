//go:build linux

package v4l2

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/depthsave/components/camera"
	"go.viam.com/depthsave/logging"
)

// Model is the registered name of the v4l2 source.
const Model = "v4l2"

const (
	// fourcc codes from videodev2.h
	pixFmtZ16  = webcam.PixelFormat('Z' | '1'<<8 | '6'<<16 | ' '<<24)
	pixFmtYUYV = webcam.PixelFormat(0x56595559)

	// seconds to wait for a frame before reporting a device error
	frameTimeout = 5
	probeNodes   = 20
	bufferCount  = 4
)

func init() {
	camera.RegisterSource(Model, camera.Registration[*Config]{
		Constructor: func(ctx context.Context, conf *Config, logger logging.Logger) (camera.FrameSource, error) {
			return NewSource(conf, logger)
		},
	})
}

// Config selects the capture nodes. With no depth path the first node offering Z16 is used.
type Config struct {
	DepthPath string `json:"depth_path,omitempty"`
	ColorPath string `json:"color_path,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.ColorPath != "" && conf.ColorPath == conf.DepthPath {
		return errors.Errorf("%s: depth and color cannot share node %q", path, conf.ColorPath)
	}
	return nil
}

// device is the part of *webcam.Webcam used once streaming.
type device interface {
	WaitForFrame(timeout uint32) error
	GetFrame() ([]byte, uint32, error)
	ReleaseFrame(index uint32) error
	StopStreaming() error
	Close() error
}

type openFunc func(path string, format webcam.PixelFormat) (device, uint32, uint32, error)

// node is one streaming capture node.
type node struct {
	dev           device
	path          string
	stream        camera.Stream
	format        camera.Format
	width, height int
}

// Source streams depth, and optionally color, from V4L2 nodes.
type Source struct {
	conf   Config
	open   openFunc
	clk    clock.Clock
	logger logging.Logger

	mu      sync.Mutex
	nodes   []*node
	started bool
	closed  bool
	number  uint64
	last    *camera.FrameSet
}

// NewSource returns an unstarted v4l2 source. No device is touched until Start.
func NewSource(conf *Config, logger logging.Logger) (*Source, error) {
	return newSource(conf, openWebcam, clock.New(), logger)
}

func newSource(conf *Config, open openFunc, clk clock.Clock, logger logging.Logger) (*Source, error) {
	if err := conf.Validate(Model); err != nil {
		return nil, err
	}
	return &Source{conf: *conf, open: open, clk: clk, logger: logger}, nil
}

// openWebcam opens path and streams format at the node's first advertised frame size.
func openWebcam(path string, format webcam.PixelFormat) (_ device, _, _ uint32, err error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, 0, 0, camera.NewDeviceError("open", path, err)
	}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, cam.Close())
		}
	}()

	formats := cam.GetSupportedFormats()
	if _, ok := formats[format]; !ok {
		return nil, 0, 0, camera.NewDeviceError("get_supported_formats", path,
			errors.Errorf("format %s not supported, supported ones: %v", fourcc(format), formats))
	}
	sizes := cam.GetSupportedFrameSizes(format)
	if len(sizes) == 0 {
		return nil, 0, 0, camera.NewDeviceError("get_supported_frame_sizes", path, errors.New("no frame sizes"))
	}
	got, w, h, err := cam.SetImageFormat(format, sizes[0].MaxWidth, sizes[0].MaxHeight)
	if err != nil {
		return nil, 0, 0, camera.NewDeviceError("set_image_format", path+", "+fourcc(format), err)
	}
	if got != format {
		return nil, 0, 0, camera.NewDeviceError("set_image_format", path+", "+fourcc(format),
			errors.Errorf("device selected %s instead", fourcc(got)))
	}
	if err := cam.SetBufferCount(bufferCount); err != nil {
		return nil, 0, 0, camera.NewDeviceError("set_buffer_count", path, err)
	}
	if err := cam.StartStreaming(); err != nil {
		return nil, 0, 0, camera.NewDeviceError("start_streaming", path, err)
	}
	return cam, w, h, nil
}

func fourcc(f webcam.PixelFormat) string {
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

// Start opens the configured nodes and begins streaming.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return camera.ErrClosed
	}
	if s.started {
		return nil
	}

	depth, err := s.openDepth(ctx)
	if err != nil {
		return err
	}
	s.nodes = []*node{depth}
	if s.conf.ColorPath != "" {
		color, err := s.openNode(s.conf.ColorPath, camera.StreamColor, camera.FormatYUYV, pixFmtYUYV)
		if err != nil {
			return multierr.Combine(err, closeNode(depth))
		}
		s.nodes = append(s.nodes, color)
	}
	s.started = true
	for _, n := range s.nodes {
		s.logger.CDebugw(ctx, "streaming", "path", n.path, "stream", n.stream, "format", n.format,
			"width", n.width, "height", n.height)
	}
	return nil
}

func (s *Source) openDepth(ctx context.Context) (*node, error) {
	if s.conf.DepthPath != "" {
		return s.openNode(s.conf.DepthPath, camera.StreamDepth, camera.FormatZ16, pixFmtZ16)
	}
	var errs error
	for i := 0; i <= probeNodes; i++ {
		path := fmt.Sprintf("/dev/video%d", i)
		n, err := s.openNode(path, camera.StreamDepth, camera.FormatZ16, pixFmtZ16)
		if err == nil {
			s.logger.CDebugf(ctx, "found depth node %s", path)
			return n, nil
		}
		errs = multierr.Append(errs, err)
	}
	s.logger.Debugw("no depth node found", "error", errs)
	return nil, camera.NewDeviceError("open", "/dev/video*", errors.New("no device connected"))
}

func (s *Source) openNode(path string, stream camera.Stream, format camera.Format, pixFmt webcam.PixelFormat) (*node, error) {
	dev, w, h, err := s.open(path, pixFmt)
	if err != nil {
		return nil, err
	}
	return &node{dev: dev, path: path, stream: stream, format: format, width: int(w), height: int(h)}, nil
}

func closeNode(n *node) error {
	return multierr.Combine(n.dev.StopStreaming(), n.dev.Close())
}

// WaitForFrames dequeues one buffer from every node. The buffers go back to the driver's queue
// when the set is released.
func (s *Source) WaitForFrames(ctx context.Context) (*camera.FrameSet, error) {
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
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.number++
	now := s.clk.Now()
	var frames []camera.Frame
	var queued []func()
	releaseAll := func() {
		for _, release := range queued {
			release()
		}
	}
	for _, n := range s.nodes {
		frame, release, err := s.dequeue(n, now)
		if err != nil {
			releaseAll()
			return nil, err
		}
		frames = append(frames, frame)
		queued = append(queued, release)
	}

	set := camera.NewFrameSet(releaseAll, frames...)
	s.last = set
	return set, nil
}

func (s *Source) dequeue(n *node, now time.Time) (camera.Frame, func(), error) {
	if err := n.dev.WaitForFrame(frameTimeout); err != nil {
		var timeout *webcam.Timeout
		if errors.As(err, &timeout) {
			err = errors.Errorf("Frame didn't arrive within %d", frameTimeout*1000)
		}
		return nil, nil, camera.NewDeviceError("wait_for_frames", n.path, err)
	}
	buf, index, err := n.dev.GetFrame()
	if err != nil {
		return nil, nil, camera.NewDeviceError("get_frame", n.path, err)
	}
	release := func() {
		if err := n.dev.ReleaseFrame(index); err != nil {
			s.logger.Warnw("failed to requeue buffer", "path", n.path, "index", index, "error", err)
		}
	}
	if len(buf) == 0 || len(buf)%n.height != 0 {
		release()
		return nil, nil, camera.NewDeviceError("get_frame", n.path,
			errors.Errorf("buffer of %d bytes does not hold %d rows", len(buf), n.height))
	}
	frame, err := camera.NewVideoFrame(camera.VideoFrameConfig{
		Stream:    n.stream,
		Format:    n.format,
		Width:     n.width,
		Height:    n.height,
		Stride:    len(buf) / n.height,
		Number:    s.number,
		Timestamp: now,
	}, buf)
	if err != nil {
		release()
		return nil, nil, camera.NewDeviceError("get_frame", n.path+", "+strconv.Itoa(int(index)), err)
	}
	return frame, release, nil
}

// Close stops streaming and closes every node. Frame sets must be released before Close.
func (s *Source) Close(ctx context.Context) error {
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
		return nil
	}
	s.closed = true
	var err error
	for _, n := range s.nodes {
		err = multierr.Append(err, closeNode(n))
	}
	s.nodes = nil
	return err
}

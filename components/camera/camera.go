// Package camera defines depth/color frame sources and the frames they produce.
//
// A FrameSource is started once and then yields a FrameSet per call to WaitForFrames. The
// frames of a set (and the memory behind them) are only valid until the set is released or the
// next set is requested, so consumers must finish with them synchronously.
package camera

import (
	"context"
	"sync"
	"time"
)

// Format describes how the pixels of a frame buffer are encoded.
type Format int

const (
	// FormatUnknown is an unrecognized encoding.
	FormatUnknown Format = iota
	// FormatZ16 is 16-bit little-endian depth, one sample per pixel.
	FormatZ16
	// FormatRGB8 is 8-bit packed RGB.
	FormatRGB8
	// FormatYUYV is 4:2:2 packed YUV.
	FormatYUYV
	// FormatMotionXYZ32F is three float32 axes of an IMU sample.
	FormatMotionXYZ32F
)

// BytesPerPixel returns the number of bytes a single pixel occupies in the format. It is zero
// for non-image formats.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatZ16, FormatYUYV:
		return 2
	case FormatRGB8:
		return 3
	case FormatUnknown, FormatMotionXYZ32F:
		return 0
	default:
		return 0
	}
}

func (f Format) String() string {
	switch f {
	case FormatZ16:
		return "Z16"
	case FormatRGB8:
		return "RGB8"
	case FormatYUYV:
		return "YUYV"
	case FormatMotionXYZ32F:
		return "MOTION_XYZ32F"
	case FormatUnknown:
		return "UNKNOWN"
	default:
		return "UNKNOWN"
	}
}

// Stream identifies which sensor a frame came from.
type Stream int

const (
	// StreamAny matches any stream.
	StreamAny Stream = iota
	// StreamDepth is the depth sensor.
	StreamDepth
	// StreamColor is the color sensor.
	StreamColor
	// StreamMotion is an inertial sensor.
	StreamMotion
)

func (s Stream) String() string {
	switch s {
	case StreamDepth:
		return "depth"
	case StreamColor:
		return "color"
	case StreamMotion:
		return "motion"
	case StreamAny:
		return "any"
	default:
		return "unknown"
	}
}

// A Frame is a single sensor sample backed by a buffer owned by its FrameSet.
type Frame interface {
	Stream() Stream
	Format() Format
	// Number is the frame counter of the stream.
	Number() uint64
	Timestamp() time.Time
	// Data is a read-only view of the frame's buffer.
	Data() []byte
}

// A VideoFrame is a Frame exposing a 2-D pixel buffer.
type VideoFrame interface {
	Frame
	Width() int
	Height() int
	// Stride is the number of bytes per row, which may exceed Width*BytesPerPixel.
	Stride() int
	BytesPerPixel() int
}

// AsVideoFrame returns the frame as a VideoFrame if it can be viewed as one.
func AsVideoFrame(f Frame) (VideoFrame, bool) {
	if f == nil {
		return nil, false
	}
	vf, ok := f.(VideoFrame)
	return vf, ok
}

// A FrameSource is a streaming pipeline yielding time-aligned frame sets.
type FrameSource interface {
	// Start begins streaming with the source's default configuration.
	Start(ctx context.Context) error

	// WaitForFrames blocks until the next frame set is available. Requesting a new set releases
	// the previous one if the caller has not already done so. A finite source returns an error
	// wrapping io.EOF once it has no more sets.
	WaitForFrames(ctx context.Context) (*FrameSet, error)

	// Close stops streaming and releases the device.
	Close(ctx context.Context) error
}

// A FrameSet is a bundle of frames produced together by a FrameSource.
type FrameSet struct {
	frames []Frame

	releaseOnce sync.Once
	release     func()
}

// NewFrameSet returns a frame set over the given frames. release, if non-nil, is called exactly
// once when the set is released.
func NewFrameSet(release func(), frames ...Frame) *FrameSet {
	return &FrameSet{frames: frames, release: release}
}

// Frames returns all frames of the set.
func (fs *FrameSet) Frames() []Frame {
	return fs.frames
}

// Frame returns the first frame of the given stream, or nil.
func (fs *FrameSet) Frame(stream Stream) Frame {
	for _, f := range fs.frames {
		if stream == StreamAny || f.Stream() == stream {
			return f
		}
	}
	return nil
}

// Depth returns the depth frame of the set, or nil.
func (fs *FrameSet) Depth() Frame {
	return fs.Frame(StreamDepth)
}

// Color returns the color frame of the set, or nil.
func (fs *FrameSet) Color() Frame {
	return fs.Frame(StreamColor)
}

// Release gives the set's buffers back to the source. After Release the frames must not be
// read. It is safe to call more than once.
func (fs *FrameSet) Release() {
	fs.releaseOnce.Do(func() {
		if fs.release != nil {
			fs.release()
		}
	})
}

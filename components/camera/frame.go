package camera

import (
	"time"

	"github.com/pkg/errors"
)

type frameHeader struct {
	stream    Stream
	format    Format
	number    uint64
	timestamp time.Time
	data      []byte
}

func (h *frameHeader) Stream() Stream       { return h.stream }
func (h *frameHeader) Format() Format       { return h.format }
func (h *frameHeader) Number() uint64       { return h.number }
func (h *frameHeader) Timestamp() time.Time { return h.timestamp }
func (h *frameHeader) Data() []byte         { return h.data }

type videoFrame struct {
	frameHeader
	width, height, stride int
}

func (f *videoFrame) Width() int         { return f.width }
func (f *videoFrame) Height() int        { return f.height }
func (f *videoFrame) Stride() int        { return f.stride }
func (f *videoFrame) BytesPerPixel() int { return f.format.BytesPerPixel() }

// VideoFrameConfig describes the geometry of a video frame buffer.
type VideoFrameConfig struct {
	Stream    Stream
	Format    Format
	Width     int
	Height    int
	Stride    int
	Number    uint64
	Timestamp time.Time
}

// NewVideoFrame wraps data as a VideoFrame without copying it. The buffer must hold at least
// Height*Stride bytes.
func NewVideoFrame(cfg VideoFrameConfig, data []byte) (VideoFrame, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.Errorf("invalid video frame size %dx%d", cfg.Width, cfg.Height)
	}
	if minStride := cfg.Width * cfg.Format.BytesPerPixel(); cfg.Stride < minStride {
		return nil, errors.Errorf("stride %d is smaller than a %s row of width %d (%d bytes)",
			cfg.Stride, cfg.Format, cfg.Width, minStride)
	}
	if len(data) < cfg.Height*cfg.Stride {
		return nil, errors.Errorf("buffer of %d bytes is too small for %d rows of stride %d",
			len(data), cfg.Height, cfg.Stride)
	}
	return &videoFrame{
		frameHeader: frameHeader{
			stream:    cfg.Stream,
			format:    cfg.Format,
			number:    cfg.Number,
			timestamp: cfg.Timestamp,
			data:      data,
		},
		width:  cfg.Width,
		height: cfg.Height,
		stride: cfg.Stride,
	}, nil
}

// MotionFrame is a non-image frame holding a single inertial sample.
type MotionFrame struct {
	frameHeader
}

// NewMotionFrame wraps an encoded motion sample.
func NewMotionFrame(number uint64, timestamp time.Time, data []byte) *MotionFrame {
	return &MotionFrame{frameHeader{
		stream:    StreamMotion,
		format:    FormatMotionXYZ32F,
		number:    number,
		timestamp: timestamp,
		data:      data,
	}}
}

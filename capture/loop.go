// Package capture implements the capture, display and save loop: every iteration waits for a
// frame set, colorizes its depth frame for display, and persists the raw depth both as a flat
// binary dump and as a 16-bit PNG.
package capture

import (
	"context"
	"image"
	"image/png"
	"io"

	"github.com/pkg/errors"

	"go.viam.com/depthsave/components/camera"
	"go.viam.com/depthsave/display"
	"go.viam.com/depthsave/logging"
	"go.viam.com/depthsave/rimage"
)

// Default output files, relative to the working directory.
const (
	DefaultRawPath = "depth.bin"
	DefaultPNGPath = "depth.png"
)

// Config holds where and how each iteration persists the depth frame.
type Config struct {
	RawPath string
	PNGPath string
	// Compression of the PNG. The zero value is png.DefaultCompression, so use
	// NewDefaultConfig for the uncompressed default.
	Compression png.CompressionLevel
}

// NewDefaultConfig writes depth.bin and an uncompressed depth.png in the working directory.
func NewDefaultConfig() Config {
	return Config{
		RawPath:     DefaultRawPath,
		PNGPath:     DefaultPNGPath,
		Compression: png.NoCompression,
	}
}

// Stats counts what a loop has done so far.
type Stats struct {
	Frames        uint64
	DumpsSkipped  uint64
	LastFrameSeen uint64
}

// Loop ties a frame source, a colorizer and a window together.
type Loop struct {
	source    camera.FrameSource
	colorizer *rimage.Colorizer
	window    display.Window
	cfg       Config
	logger    logging.Logger

	stats Stats
}

// NewLoop returns a loop over an unstarted source. Empty paths in cfg take the defaults.
func NewLoop(
	source camera.FrameSource,
	colorizer *rimage.Colorizer,
	window display.Window,
	cfg Config,
	logger logging.Logger,
) *Loop {
	if cfg.RawPath == "" {
		cfg.RawPath = DefaultRawPath
	}
	if cfg.PNGPath == "" {
		cfg.PNGPath = DefaultPNGPath
	}
	return &Loop{
		source:    source,
		colorizer: colorizer,
		window:    window,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run starts the source and hands Step to the window until the window is done. A source that
// runs out of frame sets ends the run normally. The caller owns the source and closes it.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.source.Start(ctx); err != nil {
		return err
	}
	l.logger.CDebugw(ctx, "capture started", "raw_path", l.cfg.RawPath, "png_path", l.cfg.PNGPath)
	if err := l.window.Run(ctx, l.Step); err != nil {
		if !errors.Is(err, io.EOF) {
			return err
		}
		l.logger.Infow("source has no more frames", "reason", err)
	}
	l.logger.Infow("capture finished", "frames", l.stats.Frames, "skipped_dumps", l.stats.DumpsSkipped)
	return nil
}

// Step runs one iteration and returns the colorized depth image to show. It colorizes, then
// writes the raw dump and the PNG, so the window shows the frame only after both files are
// complete. Nothing is written when no frame set arrives. The frame set is released before
// Step returns.
func (l *Loop) Step(ctx context.Context) (image.Image, error) {
	fs, err := l.source.WaitForFrames(ctx)
	if err != nil {
		return nil, err
	}
	defer fs.Release()

	depth := fs.Depth()
	if depth == nil {
		return nil, errors.New("frame set has no depth frame")
	}
	l.stats.Frames++
	l.stats.LastFrameSeen = depth.Number()

	// the depth map is a copy, so nothing below aliases the frame buffer
	var dm *rimage.DepthMap
	var colorized image.Image
	if vf, ok := camera.AsVideoFrame(depth); ok && vf.Format() == camera.FormatZ16 {
		if dm, err = rimage.NewDepthMapFromRaw(vf.Data(), vf.Width(), vf.Height(), vf.Stride()); err != nil {
			return nil, errors.Wrapf(err, "cannot read depth frame %d", depth.Number())
		}
		colorized = l.colorizer.Colorize(dm)
	}

	if err := camera.SaveFrameRawData(l.cfg.RawPath, depth); err != nil {
		if !camera.IsIoError(err) {
			return nil, err
		}
		l.stats.DumpsSkipped++
		l.logger.Warnw("failed to dump raw depth, continuing", "frame", depth.Number(), "error", err)
	}

	if dm == nil {
		return nil, errors.Errorf("cannot encode depth frame %d: format %s is not %s",
			depth.Number(), depth.Format(), camera.FormatZ16)
	}
	if err := rimage.WriteDepthPNG(l.cfg.PNGPath, dm, l.cfg.Compression); err != nil {
		return nil, errors.Wrapf(err, "cannot write %s", l.cfg.PNGPath)
	}
	l.logger.CDebugw(ctx, "saved depth frame", "frame", depth.Number(), "width", dm.Width(), "height", dm.Height())
	return colorized, nil
}

// Stats returns the loop's counters.
func (l *Loop) Stats() Stats {
	return l.stats
}

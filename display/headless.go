package display

import (
	"context"

	"go.viam.com/depthsave/logging"
)

// Headless is a Window without a screen. It steps as fast as step returns and discards the
// images.
type Headless struct {
	frames int
	logger logging.Logger
}

// NewHeadless returns a headless window which stops after frames steps, or runs until ctx is
// done when frames is zero.
func NewHeadless(frames int, logger logging.Logger) *Headless {
	return &Headless{frames: frames, logger: logger}
}

// Run calls step until the frame limit is reached, ctx is done, or step fails.
func (h *Headless) Run(ctx context.Context, step StepFunc) error {
	for count := 0; h.frames == 0 || count < h.frames; count++ {
		if ctx.Err() != nil {
			h.logger.CDebugw(ctx, "headless window stopped", "frames", count)
			return nil
		}
		img, err := step(ctx)
		if err != nil {
			if IsShutdown(ctx, err) {
				return nil
			}
			return err
		}
		if img != nil {
			h.logger.CDebugw(ctx, "frame", "number", count+1, "bounds", img.Bounds())
		}
	}
	h.logger.Debugw("frame limit reached", "frames", h.frames)
	return nil
}

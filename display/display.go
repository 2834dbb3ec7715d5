// Package display shows the images produced by a capture loop.
//
// A Window owns the loop: it calls the step function once per tick and renders the image it
// returns, until the user or the caller ends the session.
package display

import (
	"context"
	"image"
	"image/draw"
	"math"

	"github.com/pkg/errors"
)

// DefaultTitle is the title of the display window.
const DefaultTitle = "Display Image"

// StepFunc produces the next image to show.
type StepFunc func(ctx context.Context) (image.Image, error)

// A Window drives step until it is closed, a key is pressed, ctx is done, or step fails. A
// normal end returns nil.
type Window interface {
	Run(ctx context.Context, step StepFunc) error
}

// IsShutdown reports whether err only reflects ctx ending.
func IsShutdown(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// ToRGBA returns img as a tightly packed RGBA image whose bounds start at the origin, copying
// only when needed.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == 4*b.Dx() {
		return rgba
	}
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// AspectFit returns the scale and offsets that fit a frame into a view with letterboxing.
func AspectFit(viewW, viewH, frameW, frameH float64) (scale, offsetX, offsetY float64) {
	scale = math.Min(viewW/frameW, viewH/frameH)
	offsetX = (viewW - frameW*scale) / 2
	offsetY = (viewH - frameH*scale) / 2
	return
}

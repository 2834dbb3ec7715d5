// Package screen implements a display.Window as an OS window drawn with Ebitengine.
package screen

import (
	"context"
	"image"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"go.viam.com/depthsave/display"
	"go.viam.com/depthsave/logging"
)

const (
	initialWidth  = 640
	initialHeight = 480
)

// Window is an OS window. Run must be called from the main goroutine.
type Window struct {
	title  string
	logger logging.Logger

	// set for the duration of Run
	ctx   context.Context
	step  display.StepFunc
	err   error
	frame *image.RGBA
	image *ebiten.Image
	sized bool
}

// NewWindow returns a window with the given title, or display.DefaultTitle when empty.
func NewWindow(title string, logger logging.Logger) *Window {
	if title == "" {
		title = display.DefaultTitle
	}
	return &Window{title: title, logger: logger}
}

// Run opens the window and steps once per tick. It returns nil once the window is closed, any
// key is pressed, or ctx is done, and the step error if step fails.
func (w *Window) Run(ctx context.Context, step display.StepFunc) error {
	w.ctx = ctx
	w.step = step
	w.err = nil
	defer func() {
		w.ctx = nil
		w.step = nil
	}()

	ebiten.SetWindowSize(initialWidth, initialHeight)
	ebiten.SetWindowTitle(w.title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if err := ebiten.RunGame(w); err != nil {
		return err
	}
	return w.err
}

// Update is called once per tick by the game loop.
func (w *Window) Update() error {
	if w.ctx.Err() != nil {
		w.logger.CDebug(w.ctx, "window context done")
		return ebiten.Termination
	}
	if keys := inpututil.AppendJustPressedKeys(nil); len(keys) > 0 {
		w.logger.Debugw("key pressed, closing window", "key", keys[0].String())
		return ebiten.Termination
	}

	img, err := w.step(w.ctx)
	if err != nil {
		if !display.IsShutdown(w.ctx, err) {
			w.err = err
		}
		return ebiten.Termination
	}
	if img == nil {
		return nil
	}
	w.frame = display.ToRGBA(img)
	if !w.sized {
		ebiten.SetWindowSize(w.frame.Bounds().Dx(), w.frame.Bounds().Dy())
		w.sized = true
	}
	return nil
}

// Draw renders the latest frame letterboxed into the window.
func (w *Window) Draw(screen *ebiten.Image) {
	frame := w.frame
	if frame == nil {
		return
	}
	fw, fh := frame.Bounds().Dx(), frame.Bounds().Dy()
	if w.image == nil || w.image.Bounds().Dx() != fw || w.image.Bounds().Dy() != fh {
		w.image = ebiten.NewImage(fw, fh)
	}
	w.image.WritePixels(frame.Pix)

	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	scale, offsetX, offsetY := display.AspectFit(float64(sw), float64(sh), float64(fw), float64(fh))
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(offsetX, offsetY)
	screen.DrawImage(w.image, op)
}

// Layout uses the window's size as the screen size.
func (w *Window) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// Package cli contains the imwrite command line application.
package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"go.viam.com/depthsave/capture"
	"go.viam.com/depthsave/components/camera"
	"go.viam.com/depthsave/config"
	"go.viam.com/depthsave/display"
	"go.viam.com/depthsave/logging"
	"go.viam.com/depthsave/rimage"
)

const (
	flagConfig   = "config"
	flagSource   = "source"
	flagHeadless = "headless"
	flagFrames   = "frames"
	flagDebug    = "debug"
)

// WindowFactory opens the on-screen window with the given title.
type WindowFactory func(title string, logger logging.Logger) display.Window

// NewApp returns the imwrite app with Writer set to out and ErrWriter set to errOut. Logs go
// to out. newWindow is used unless the session is headless.
func NewApp(out, errOut io.Writer, newWindow WindowFactory) *cli.App {
	ac := &appContext{newWindow: newWindow}
	return &cli.App{
		Name:            "imwrite",
		Usage:           "capture depth frames, display them colorized, and save the latest as depth.bin and depth.png",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		// errors are reported by Run
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagSource,
				Usage: "frame source `TYPE` (fake, replay, v4l2)",
			},
			&cli.BoolFlag{
				Name:  flagHeadless,
				Usage: "run without a window",
			},
			&cli.IntFlag{
				Name:  flagFrames,
				Usage: "stop a headless run after `N` frames",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Action: ac.captureAction,
	}
}

// Run runs app and returns the process exit code, reporting any failure on the app's ErrWriter.
func Run(app *cli.App, args []string) int {
	if err := app.Run(args); err != nil {
		printError(app.ErrWriter, err)
		return 1
	}
	return 0
}

func printError(w io.Writer, err error) {
	if devErr, ok := camera.AsDeviceError(err); ok {
		fmt.Fprintf(w, "device error calling %s(%s):\n    %v\n", devErr.Func, devErr.Args, devErr.Err)
		return
	}
	fmt.Fprintln(w, err)
}

type appContext struct {
	newWindow WindowFactory
}

func (ac *appContext) loadConfig(c *cli.Context, logger logging.Logger) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path, logger); err != nil {
			return nil, errors.Wrapf(err, "cannot read config %s", path)
		}
	}

	if c.IsSet(flagSource) && c.String(flagSource) != cfg.Source.Type {
		cfg.Source = config.Source{Type: c.String(flagSource)}
	}
	if c.IsSet(flagHeadless) {
		cfg.Display.Headless = c.Bool(flagHeadless)
	}
	if c.IsSet(flagFrames) {
		cfg.Display.Frames = c.Int(flagFrames)
	}
	if c.Bool(flagDebug) {
		cfg.Debug = true
	}
	if err := cfg.Ensure(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (ac *appContext) captureAction(c *cli.Context) error {
	logger := logging.NewBlankLogger("imwrite")
	logger.AddAppender(logging.NewWriterAppender(c.App.Writer))
	logger.SetLevel(logging.INFO)
	defer utils.UncheckedErrorFunc(logger.Sync)

	cfg, err := ac.loadConfig(c, logger)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.Debug {
		ctx = logging.EnableDebugMode(ctx, "")
	}

	colorizer, err := rimage.NewColorizer(cfg.Colorizer)
	if err != nil {
		return err
	}
	source, err := camera.NewSource(ctx, cfg.Source.Type, cfg.Source.Attributes, logger.Sublogger(cfg.Source.Type))
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(func() error {
		return source.Close(context.Background())
	})

	var window display.Window
	if cfg.Display.Headless || ac.newWindow == nil {
		window = display.NewHeadless(cfg.Display.Frames, logger.Sublogger("display"))
	} else {
		window = ac.newWindow(cfg.Display.Title, logger.Sublogger("display"))
	}

	loop := capture.NewLoop(source, colorizer, window, cfg.CaptureConfig(), logger.Sublogger("capture"))
	return loop.Run(ctx)
}

// Package main captures depth frames from a camera, shows them colorized, and saves the latest
// frame as depth.bin and depth.png in the working directory.
package main

import (
	"os"

	"go.viam.com/depthsave/cli"
	_ "go.viam.com/depthsave/components/camera/fake"
	_ "go.viam.com/depthsave/components/camera/replay"
	_ "go.viam.com/depthsave/components/camera/v4l2"
	"go.viam.com/depthsave/display"
	"go.viam.com/depthsave/display/screen"
	"go.viam.com/depthsave/logging"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr, func(title string, logger logging.Logger) display.Window {
		return screen.NewWindow(title, logger)
	})
	os.Exit(cli.Run(app, os.Args))
}

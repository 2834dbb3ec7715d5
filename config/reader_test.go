package config

import (
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	_ "go.viam.com/depthsave/components/camera/fake"
	"go.viam.com/depthsave/logging"
	"go.viam.com/depthsave/rimage"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	fn := filepath.Join(t.TempDir(), "config.json")
	test.That(t, os.WriteFile(fn, []byte(contents), 0o600), test.ShouldBeNil)
	return fn
}

func TestDefault(t *testing.T) {
	cfg := Default()
	test.That(t, cfg.Source.Type, test.ShouldEqual, "v4l2")
	test.That(t, cfg.Output.RawPath, test.ShouldEqual, "depth.bin")
	test.That(t, cfg.Output.PNGPath, test.ShouldEqual, "depth.png")
	test.That(t, cfg.Display.Title, test.ShouldEqual, "Display Image")
	test.That(t, cfg.Display.Headless, test.ShouldBeFalse)
	test.That(t, cfg.Level(), test.ShouldEqual, logging.INFO)

	capCfg := cfg.CaptureConfig()
	test.That(t, capCfg.Compression, test.ShouldEqual, png.NoCompression)
	test.That(t, capCfg.RawPath, test.ShouldEqual, "depth.bin")
}

func TestReadWithEnvironment(t *testing.T) {
	t.Setenv("DEPTHSAVE_OUT", "/tmp/out")
	t.Setenv("DEPTHSAVE_WIDTH", "320")
	fn := writeConfig(t, `{
		"source": {"type": "fake", "attributes": {"width": ${DEPTHSAVE_WIDTH}, "mode": "constant", "value": 900}},
		"colorizer": {"scheme": "white-to-black", "disable_histogram_equalization": true},
		"output": {"raw_path": "${DEPTHSAVE_OUT}/d.bin", "png_path": "${DEPTHSAVE_OUT}/d.png", "png_compression": "best_speed"},
		"display": {"headless": true, "frames": 5},
		"log_level": "warn"
	}`)

	cfg, err := Read(fn, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, fn)
	test.That(t, cfg.Source.Type, test.ShouldEqual, "fake")
	test.That(t, cfg.Source.Attributes["width"], test.ShouldEqual, 320.0)
	test.That(t, cfg.Colorizer.Scheme, test.ShouldEqual, rimage.SchemeWhiteToBlack)
	test.That(t, cfg.Colorizer.DisableHistogramEqualization, test.ShouldBeTrue)
	test.That(t, cfg.Output.RawPath, test.ShouldEqual, "/tmp/out/d.bin")
	test.That(t, cfg.Display.Frames, test.ShouldEqual, 5)
	test.That(t, cfg.Display.Title, test.ShouldEqual, "Display Image")
	test.That(t, cfg.Level(), test.ShouldEqual, logging.WARN)
	test.That(t, cfg.CaptureConfig().Compression, test.ShouldEqual, png.BestSpeed)

	cfg.Debug = true
	test.That(t, cfg.Level(), test.ShouldEqual, logging.DEBUG)
}

func TestReadErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)

	_, err := Read(filepath.Join(t.TempDir(), "missing.json"), logger)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)

	for _, tc := range []struct {
		name     string
		contents string
		err      string
	}{
		{"bad json", `{"source": `, "failed to decode Config from json"},
		{"unknown source", `{"source": {"type": "kinect"}}`, "kinect"},
		{"bad attributes", `{"source": {"type": "fake", "attributes": {"mode": "noise"}}}`, `unknown mode "noise"`},
		{"unused attribute", `{"source": {"type": "fake", "attributes": {"colour": 1}}}`, "colour"},
		{"colorizer", `{"source": {"type": "fake"}, "colorizer": {"scheme": "rainbow"}}`, "rainbow"},
		{"compression", `{"source": {"type": "fake"}, "output": {"png_compression": "max"}}`, "png_compression"},
		{"same outputs", `{"source": {"type": "fake"}, "output": {"raw_path": "a", "png_path": "a"}}`, "cannot both be"},
		{"frames", `{"source": {"type": "fake"}, "display": {"frames": -1}}`, "frames cannot be negative"},
		{"log level", `{"source": {"type": "fake"}, "log_level": "loud"}`, "log_level"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromReader("config.json", strings.NewReader(tc.contents), logger)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.err)
		})
	}
}

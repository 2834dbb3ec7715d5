// Package config defines the structures that configure a capture session.
package config

import (
	"image/png"

	"github.com/pkg/errors"

	"go.viam.com/depthsave/capture"
	"go.viam.com/depthsave/components/camera"
	"go.viam.com/depthsave/display"
	"go.viam.com/depthsave/logging"
	"go.viam.com/depthsave/rimage"
)

// DefaultSourceType is the source used when none is configured.
const DefaultSourceType = "v4l2"

// PNG compression names.
const (
	CompressionNone    = "none"
	CompressionDefault = "default"
	CompressionSpeed   = "best_speed"
	CompressionBest    = "best_compression"
)

var compressionLevels = map[string]png.CompressionLevel{
	CompressionNone:    png.NoCompression,
	CompressionDefault: png.DefaultCompression,
	CompressionSpeed:   png.BestSpeed,
	CompressionBest:    png.BestCompression,
}

// Config describes a capture session.
type Config struct {
	ConfigFilePath string `json:"-"`

	Source    Source                 `json:"source"`
	Colorizer rimage.ColorizerConfig `json:"colorizer"`
	Output    Output                 `json:"output"`
	Display   Display                `json:"display"`
	LogLevel  string                 `json:"log_level,omitempty"`
	Debug     bool                   `json:"debug,omitempty"`
}

// Source selects a registered frame source and its attributes.
type Source struct {
	Type       string                 `json:"type,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Output names the files every iteration overwrites.
type Output struct {
	RawPath        string `json:"raw_path,omitempty"`
	PNGPath        string `json:"png_path,omitempty"`
	PNGCompression string `json:"png_compression,omitempty"`
}

// Display configures the window.
type Display struct {
	Headless bool   `json:"headless,omitempty"`
	Frames   int    `json:"frames,omitempty"`
	Title    string `json:"title,omitempty"`
}

// Default returns the configuration used without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Source.Type == "" {
		c.Source.Type = DefaultSourceType
	}
	if c.Output.RawPath == "" {
		c.Output.RawPath = capture.DefaultRawPath
	}
	if c.Output.PNGPath == "" {
		c.Output.PNGPath = capture.DefaultPNGPath
	}
	if c.Output.PNGCompression == "" {
		c.Output.PNGCompression = CompressionNone
	}
	if c.Display.Title == "" {
		c.Display.Title = display.DefaultTitle
	}
	if c.LogLevel == "" {
		c.LogLevel = logging.INFO.String()
	}
}

// Ensure fills in defaults and validates the config.
func (c *Config) Ensure() error {
	c.applyDefaults()

	if err := camera.ValidateSource("source", c.Source.Type, c.Source.Attributes); err != nil {
		return err
	}
	if err := c.Colorizer.Validate("colorizer"); err != nil {
		return err
	}
	if _, ok := compressionLevels[c.Output.PNGCompression]; !ok {
		return errors.Errorf("output: unknown png_compression %q", c.Output.PNGCompression)
	}
	if c.Output.RawPath == c.Output.PNGPath {
		return errors.Errorf("output: raw_path and png_path cannot both be %q", c.Output.RawPath)
	}
	if c.Display.Frames < 0 {
		return errors.New("display: frames cannot be negative")
	}
	if _, err := logging.LevelFromString(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	return nil
}

// CaptureConfig returns the loop's output settings. The config must have been ensured.
func (c *Config) CaptureConfig() capture.Config {
	return capture.Config{
		RawPath:     c.Output.RawPath,
		PNGPath:     c.Output.PNGPath,
		Compression: compressionLevels[c.Output.PNGCompression],
	}
}

// Level returns the configured log level, or DEBUG in debug mode.
func (c *Config) Level() logging.Level {
	if c.Debug {
		return logging.DEBUG
	}
	level, err := logging.LevelFromString(c.LogLevel)
	if err != nil {
		return logging.INFO
	}
	return level
}

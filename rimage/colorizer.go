package rimage

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
)

// Supported color schemes.
const (
	SchemeJet          = "jet"
	SchemeClassic      = "classic"
	SchemeWhiteToBlack = "white-to-black"
	SchemeBlackToWhite = "black-to-white"
	SchemeHue          = "hue"
)

var colorMaps = map[string]*ColorMap{
	SchemeJet:          jetColorMap,
	SchemeClassic:      classicColorMap,
	SchemeWhiteToBlack: whiteToBlackColorMap,
	SchemeBlackToWhite: blackToWhiteColorMap,
	SchemeHue:          hueColorMap,
}

// Colorizer defaults.
const (
	DefaultMinDistance = 0.3
	DefaultMaxDistance = 4.0
	DefaultDepthUnits  = 0.001
)

// ColorizerConfig configures a Colorizer. The zero value is the default colorizer: jet colors
// with histogram equalization.
type ColorizerConfig struct {
	Scheme string `json:"scheme,omitempty"`
	// DisableHistogramEqualization switches to linear mapping between the min and max distances.
	DisableHistogramEqualization bool `json:"disable_histogram_equalization,omitempty"`
	// MinDistance and MaxDistance are in meters.
	MinDistance float64 `json:"min_distance_m,omitempty"`
	MaxDistance float64 `json:"max_distance_m,omitempty"`
	// DepthUnits is the number of meters per depth unit.
	DepthUnits float64 `json:"depth_units_m,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *ColorizerConfig) Validate(path string) error {
	if cfg.Scheme != "" {
		if _, ok := colorMaps[cfg.Scheme]; !ok {
			return errors.Errorf("%s: unknown color scheme %q", path, cfg.Scheme)
		}
	}
	if cfg.MinDistance < 0 || cfg.MaxDistance < 0 || cfg.DepthUnits < 0 {
		return errors.Errorf("%s: distances and depth units cannot be negative", path)
	}
	if cfg.MaxDistance != 0 && cfg.MinDistance >= cfg.MaxDistance {
		return errors.Errorf("%s: min distance %v must be below max distance %v", path, cfg.MinDistance, cfg.MaxDistance)
	}
	return nil
}

// Colorizer maps depth maps to color images. It holds no per-frame state.
type Colorizer struct {
	colorMap *ColorMap
	equalize bool
	// bounds used without equalization, in depth units
	min, max Depth
}

// NewColorizer returns a colorizer for the given config.
func NewColorizer(cfg ColorizerConfig) (*Colorizer, error) {
	if err := cfg.Validate("colorizer"); err != nil {
		return nil, err
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = SchemeJet
	}
	units := cfg.DepthUnits
	if units == 0 {
		units = DefaultDepthUnits
	}
	minDist, maxDist := cfg.MinDistance, cfg.MaxDistance
	if minDist == 0 {
		minDist = DefaultMinDistance
	}
	if maxDist == 0 {
		maxDist = DefaultMaxDistance
	}
	if minDist >= maxDist {
		return nil, errors.Errorf("colorizer: min distance %v must be below max distance %v", minDist, maxDist)
	}
	return &Colorizer{
		colorMap: colorMaps[scheme],
		equalize: !cfg.DisableHistogramEqualization,
		min:      toDepthUnits(minDist, units),
		max:      toDepthUnits(maxDist, units),
	}, nil
}

func toDepthUnits(meters, units float64) Depth {
	v := math.Round(meters / units)
	if v > float64(MaxDepth) {
		return MaxDepth
	}
	return Depth(v)
}

// NewDefaultColorizer returns the jet, histogram equalized colorizer.
func NewDefaultColorizer() *Colorizer {
	c, err := NewColorizer(ColorizerConfig{})
	if err != nil {
		panic(err)
	}
	return c
}

// Colorize returns an image of the same size as dm. Pixels without depth are black.
func (c *Colorizer) Colorize(dm *DepthMap) *image.RGBA {
	img := image.NewRGBA(dm.Bounds())
	if c.equalize {
		c.colorizeEqualized(dm, img)
	} else {
		c.colorizeLinear(dm, img)
	}
	return img
}

func (c *Colorizer) colorizeLinear(dm *DepthMap, img *image.RGBA) {
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			img.SetRGBA(x, y, c.ColorAt(dm.GetDepth(x, y)))
		}
	}
}

// colorizeEqualized spreads colors by the cumulative histogram of the frame's depths so that
// every color is used roughly equally.
func (c *Colorizer) colorizeEqualized(dm *DepthMap, img *image.RGBA) {
	var hist [int(MaxDepth) + 1]uint32
	for _, z := range dm.data {
		if z != 0 {
			hist[z]++
		}
	}
	for i := 1; i < len(hist); i++ {
		hist[i] += hist[i-1]
	}
	total := hist[len(hist)-1]

	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			z := dm.GetDepth(x, y)
			if z == 0 {
				img.SetRGBA(x, y, Black)
				continue
			}
			img.SetRGBA(x, y, c.colorMap.At(float64(hist[z])/float64(total)))
		}
	}
}

// ColorAt returns the color for a single depth without equalization.
func (c *Colorizer) ColorAt(z Depth) color.RGBA {
	if z == 0 {
		return Black
	}
	var ratio float64
	if span := float64(c.max) - float64(c.min); span > 0 {
		ratio = (float64(z) - float64(c.min)) / span
	}
	return c.colorMap.At(ratio)
}

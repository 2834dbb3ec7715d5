package rimage

import (
	"image/color"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
)

// Some colors used by colorization and tests.
var (
	Black = color.RGBA{0, 0, 0, 255}
	White = color.RGBA{255, 255, 255, 255}
	Red   = color.RGBA{255, 0, 0, 255}
	Blue  = color.RGBA{0, 0, 255, 255}
)

// NewColorFromHSV returns the opaque color for a hue in degrees and saturation/value in [0, 1].
func NewColorFromHSV(h, s, v float64) color.RGBA {
	r, g, b := colorful.Hsv(h, s, v).RGB255()
	return color.RGBA{r, g, b, 255}
}

func toColorful(c color.RGBA) colorful.Color {
	return colorful.Color{
		R: float64(c.R) / 255.0,
		G: float64(c.G) / 255.0,
		B: float64(c.B) / 255.0,
	}
}

// colorMapSize is the number of entries precomputed per color map.
const colorMapSize = 4096

// ColorMap maps a ratio in [0, 1] to a color.
type ColorMap struct {
	lut []color.RGBA
}

type colorStop struct {
	at float64
	c  color.RGBA
}

// newGradientColorMap builds a color map blending between evenly spaced stops in Lab space.
func newGradientColorMap(stops ...color.RGBA) *ColorMap {
	positioned := make([]colorStop, 0, len(stops))
	for i, c := range stops {
		positioned = append(positioned, colorStop{float64(i) / float64(len(stops)-1), c})
	}
	return newColorMapFromStops(positioned)
}

func newColorMapFromStops(stops []colorStop) *ColorMap {
	sort.Slice(stops, func(i, j int) bool { return stops[i].at < stops[j].at })
	cm := &ColorMap{lut: make([]color.RGBA, colorMapSize)}
	for i := range cm.lut {
		t := float64(i) / float64(colorMapSize-1)
		cm.lut[i] = blendStops(stops, t)
	}
	return cm
}

func blendStops(stops []colorStop, t float64) color.RGBA {
	if t <= stops[0].at {
		return stops[0].c
	}
	for i := 1; i < len(stops); i++ {
		lo, hi := stops[i-1], stops[i]
		if t > hi.at {
			continue
		}
		if t == hi.at {
			return hi.c
		}
		local := (t - lo.at) / (hi.at - lo.at)
		r, g, b := toColorful(lo.c).BlendLab(toColorful(hi.c), local).Clamped().RGB255()
		return color.RGBA{r, g, b, 255}
	}
	return stops[len(stops)-1].c
}

// newHueColorMap ramps hue from 30 to 230 degrees at full saturation and value.
func newHueColorMap() *ColorMap {
	cm := &ColorMap{lut: make([]color.RGBA, colorMapSize)}
	for i := range cm.lut {
		ratio := float64(i) / float64(colorMapSize-1)
		cm.lut[i] = NewColorFromHSV(30+(200.0*ratio), 1.0, 1.0)
	}
	return cm
}

// At returns the color for ratio, clamped to [0, 1].
func (cm *ColorMap) At(ratio float64) color.RGBA {
	if ratio <= 0 {
		return cm.lut[0]
	}
	if ratio >= 1 {
		return cm.lut[len(cm.lut)-1]
	}
	return cm.lut[int(ratio*float64(len(cm.lut)-1)+0.5)]
}

var (
	jetColorMap = newColorMapFromStops([]colorStop{
		{0, color.RGBA{0, 0, 255, 255}},
		{0.25, color.RGBA{0, 255, 255, 255}},
		{0.5, color.RGBA{255, 255, 0, 255}},
		{0.75, color.RGBA{255, 0, 0, 255}},
		{1, color.RGBA{50, 0, 0, 255}},
	})
	classicColorMap = newGradientColorMap(
		color.RGBA{30, 77, 203, 255},
		color.RGBA{25, 60, 192, 255},
		color.RGBA{45, 117, 220, 255},
		color.RGBA{204, 108, 191, 255},
		color.RGBA{196, 57, 178, 255},
		color.RGBA{198, 33, 24, 255},
	)
	whiteToBlackColorMap = newGradientColorMap(White, Black)
	blackToWhiteColorMap = newGradientColorMap(Black, White)
	hueColorMap          = newHueColorMap()
)

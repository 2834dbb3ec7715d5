package rimage

import (
	"image/color"
	"testing"

	"go.viam.com/test"
)

func TestColorMapEndpoints(t *testing.T) {
	test.That(t, jetColorMap.At(0), test.ShouldResemble, Blue)
	test.That(t, jetColorMap.At(-3), test.ShouldResemble, Blue)
	test.That(t, jetColorMap.At(1), test.ShouldResemble, color.RGBA{50, 0, 0, 255})
	mid := jetColorMap.At(0.75)
	test.That(t, int(mid.R), test.ShouldBeGreaterThanOrEqualTo, 250)
	test.That(t, int(mid.G), test.ShouldBeLessThanOrEqualTo, 10)
	test.That(t, int(mid.B), test.ShouldBeLessThanOrEqualTo, 10)

	test.That(t, whiteToBlackColorMap.At(0), test.ShouldResemble, White)
	test.That(t, whiteToBlackColorMap.At(1), test.ShouldResemble, Black)
	test.That(t, blackToWhiteColorMap.At(0), test.ShouldResemble, Black)
	test.That(t, blackToWhiteColorMap.At(2), test.ShouldResemble, White)

	test.That(t, classicColorMap.At(0), test.ShouldResemble, color.RGBA{30, 77, 203, 255})
	test.That(t, hueColorMap.At(0), test.ShouldResemble, NewColorFromHSV(30, 1, 1))
}

func TestGradientIsMonotonicInGray(t *testing.T) {
	prev := -1
	for i := 0; i <= 100; i++ {
		c := blackToWhiteColorMap.At(float64(i) / 100)
		test.That(t, absDiff(c.R, c.G), test.ShouldBeLessThanOrEqualTo, 1)
		test.That(t, absDiff(c.G, c.B), test.ShouldBeLessThanOrEqualTo, 1)
		test.That(t, int(c.R), test.ShouldBeGreaterThanOrEqualTo, prev)
		prev = int(c.R)
	}
}

func TestNewColorFromHSV(t *testing.T) {
	test.That(t, NewColorFromHSV(0, 1, 1), test.ShouldResemble, Red)
	test.That(t, NewColorFromHSV(240, 1, 1), test.ShouldResemble, Blue)
	test.That(t, NewColorFromHSV(0, 0, 0), test.ShouldResemble, Black)
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

package rimage

import (
	"encoding/binary"
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// Depth is the depth of a pixel in device units (typically millimeters). Zero means no data.
type Depth uint16

// MaxDepth is the largest representable depth.
const MaxDepth = Depth(65535)

// DepthMap is a row-major grid of depth samples.
type DepthMap struct {
	width  int
	height int

	data []Depth
}

// NewEmptyDepthMap returns a zeroed depth map.
func NewEmptyDepthMap(width, height int) *DepthMap {
	return &DepthMap{
		width:  width,
		height: height,
		data:   make([]Depth, width*height),
	}
}

// NewDepthMapFromRaw copies a buffer of 16-bit little-endian samples with the given row stride
// (in bytes) into a new DepthMap.
func NewDepthMapFromRaw(raw []byte, width, height, stride int) (*DepthMap, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("bad width or height for depth map %v %v", width, height)
	}
	if stride < 2*width {
		return nil, errors.Errorf("stride %d too small for %d 16-bit samples", stride, width)
	}
	if len(raw) < (height-1)*stride+2*width {
		return nil, errors.Errorf("raw depth buffer has %d bytes, need %d rows of stride %d", len(raw), height, stride)
	}

	dm := NewEmptyDepthMap(width, height)
	for y := 0; y < height; y++ {
		row := raw[y*stride:]
		for x := 0; x < width; x++ {
			dm.data[y*width+x] = Depth(binary.LittleEndian.Uint16(row[2*x:]))
		}
	}
	return dm, nil
}

// Width returns the width of the map.
func (dm *DepthMap) Width() int {
	return dm.width
}

// Height returns the height of the map.
func (dm *DepthMap) Height() int {
	return dm.height
}

// Bounds returns the rectangle the map covers.
func (dm *DepthMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, dm.width, dm.height)
}

func (dm *DepthMap) kxy(x, y int) int {
	return (y * dm.width) + x
}

// GetDepth returns the depth at x, y.
func (dm *DepthMap) GetDepth(x, y int) Depth {
	return dm.data[dm.kxy(x, y)]
}

// Set sets the depth at x, y.
func (dm *DepthMap) Set(x, y int, val Depth) {
	dm.data[dm.kxy(x, y)] = val
}

// ToGray16Picture converts the map to a 16-bit grayscale image.
func (dm *DepthMap) ToGray16Picture() *image.Gray16 {
	img := image.NewGray16(dm.Bounds())
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			img.SetGray16(x, y, color.Gray16{uint16(dm.GetDepth(x, y))})
		}
	}
	return img
}

// ConvertToDepthMap converts an image to a depth map by reading its 16-bit gray value.
func ConvertToDepthMap(img image.Image) *DepthMap {
	if gray, ok := img.(*image.Gray16); ok {
		return gray16ToDepthMap(gray)
	}
	bounds := img.Bounds()
	dm := NewEmptyDepthMap(bounds.Dx(), bounds.Dy())
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			dm.Set(x, y, Depth(g.Y))
		}
	}
	return dm
}

func gray16ToDepthMap(img *image.Gray16) *DepthMap {
	bounds := img.Bounds()
	dm := NewEmptyDepthMap(bounds.Dx(), bounds.Dy())
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			dm.Set(x, y, Depth(img.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y))
		}
	}
	return dm
}

package rimage

import (
	"bufio"
	"image/png"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// EncodeDepthPNG writes dm as a single channel 16-bit PNG.
func EncodeDepthPNG(out io.Writer, dm *DepthMap, level png.CompressionLevel) error {
	enc := png.Encoder{CompressionLevel: level}
	return enc.Encode(out, dm.ToGray16Picture())
}

// WriteDepthPNG writes dm to fn as a single channel 16-bit PNG, truncating any existing file.
func WriteDepthPNG(fn string, dm *DepthMap, level png.CompressionLevel) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	w := bufio.NewWriter(f)
	if err := EncodeDepthPNG(w, dm, level); err != nil {
		return errors.Wrapf(err, "cannot encode %q", fn)
	}
	return w.Flush()
}

// DecodeDepthPNG reads a PNG into a depth map. 16-bit grayscale images are read exactly; other
// color models are converted to 16-bit gray.
func DecodeDepthPNG(in io.Reader) (*DepthMap, error) {
	img, err := png.Decode(in)
	if err != nil {
		return nil, err
	}
	if img.Bounds().Empty() {
		return nil, errors.New("png has no pixels")
	}
	return ConvertToDepthMap(img), nil
}

// ReadDepthPNG reads a depth map from a PNG file.
func ReadDepthPNG(fn string) (*DepthMap, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	dm, err := DecodeDepthPNG(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode %q", fn)
	}
	return dm, nil
}

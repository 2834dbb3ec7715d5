package camera

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// DumpErrorKind classifies a SaveFrameRawData failure.
type DumpErrorKind int

const (
	// NotAVideoFrame means the frame has no pixel buffer to dump. No I/O was performed.
	NotAVideoFrame DumpErrorKind = iota + 1
	// IoError means creating or writing the destination failed.
	IoError
)

func (k DumpErrorKind) String() string {
	switch k {
	case NotAVideoFrame:
		return "not a video frame"
	case IoError:
		return "i/o error"
	default:
		return "unknown"
	}
}

// DumpError is returned by SaveFrameRawData.
type DumpError struct {
	Kind DumpErrorKind
	Path string
	Err  error
}

func (e *DumpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cannot dump to %q: %s", e.Path, e.Kind)
	}
	return fmt.Sprintf("cannot dump to %q: %s: %v", e.Path, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *DumpError) Unwrap() error {
	return e.Err
}

func dumpErrorKind(err error) DumpErrorKind {
	var dumpErr *DumpError
	if errors.As(err, &dumpErr) {
		return dumpErr.Kind
	}
	return 0
}

// IsNotAVideoFrame reports whether err is a dump failure caused by a non-video frame.
func IsNotAVideoFrame(err error) bool {
	return dumpErrorKind(err) == NotAVideoFrame
}

// IsIoError reports whether err is a dump failure caused by the filesystem.
func IsIoError(err error) bool {
	return dumpErrorKind(err) == IoError
}

// SaveFrameRawData writes the pixel buffer of f verbatim to path, truncating any existing file.
// Exactly Height*Stride bytes are written with no header and no byte order conversion.
func SaveFrameRawData(path string, f Frame) (err error) {
	vf, ok := AsVideoFrame(f)
	if !ok {
		return &DumpError{Kind: NotAVideoFrame, Path: path}
	}

	size := vf.Height() * vf.Stride()
	data := vf.Data()
	if len(data) < size {
		return &DumpError{
			Kind: IoError,
			Path: path,
			Err:  errors.Wrapf(io.ErrShortBuffer, "frame holds %d of %d bytes", len(data), size),
		}
	}

	//nolint:gosec
	outFile, err := os.Create(path)
	if err != nil {
		return &DumpError{Kind: IoError, Path: path, Err: err}
	}
	defer func() {
		if closeErr := outFile.Close(); closeErr != nil {
			err = multierr.Combine(err, &DumpError{Kind: IoError, Path: path, Err: closeErr})
		}
	}()

	if _, err := outFile.Write(data[:size]); err != nil {
		return &DumpError{Kind: IoError, Path: path, Err: err}
	}
	return nil
}

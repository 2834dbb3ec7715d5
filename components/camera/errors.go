package camera

import (
	"fmt"

	"github.com/pkg/errors"
)

// DeviceError is returned when a call into the capture device fails. It records the failing
// operation and its arguments.
type DeviceError struct {
	Func string
	Args string
	Err  error
}

// NewDeviceError wraps err as a failure of the device call fn(args).
func NewDeviceError(fn, args string, err error) error {
	return &DeviceError{Func: fn, Args: args, Err: err}
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device error calling %s(%s): %v", e.Func, e.Args, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// AsDeviceError reports whether err is, or wraps, a DeviceError.
func AsDeviceError(err error) (*DeviceError, bool) {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr, true
	}
	return nil, false
}

// ErrNotStarted is returned when frames are requested from a source that was never started.
var ErrNotStarted = errors.New("frame source has not been started")

// ErrClosed is returned when a closed source is used.
var ErrClosed = errors.New("frame source has been closed")

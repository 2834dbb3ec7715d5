package fake

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"go.viam.com/depthsave/components/camera"
	"go.viam.com/depthsave/logging"
)

func newStartedSource(t *testing.T, conf *Config, clk clock.Clock) *Source {
	t.Helper()
	src, err := NewSource(conf, clk, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, src.Start(context.Background()), test.ShouldBeNil)
	return src
}

func TestFakeValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  Config
		err  string
	}{
		{"defaults", Config{}, ""},
		{"explicit", Config{Width: 4, Height: 2, Stride: 16, Mode: ModeConstant, Value: 7}, ""},
		{"negative size", Config{Width: -1}, "cannot be negative"},
		{"small stride", Config{Width: 4, Stride: 6}, "stride 6 is too small"},
		{"small default width stride", Config{Stride: 100}, "too small for width 640"},
		{"max value", Config{Mode: ModeConstant, Value: 65535}, ""},
		{"value too large", Config{Mode: ModeConstant, Value: 70000}, "value 70000 is outside"},
		{"negative value", Config{Value: -1}, "value -1 is outside"},
		{"mode", Config{Mode: "noise"}, `unknown mode "noise"`},
		{"frame rate", Config{FrameRate: -1}, "frame rate"},
		{"fail at", Config{FailAt: -2}, "fail_at"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate("path")
			if tc.err == "" {
				test.That(t, err, test.ShouldBeNil)
				return
			}
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.err)
		})
	}
}

func TestFakeDefaults(t *testing.T) {
	src := newStartedSource(t, &Config{}, clock.NewMock())
	fs, err := src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeNil)
	defer fs.Release()

	depth, ok := camera.AsVideoFrame(fs.Depth())
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, depth.Format(), test.ShouldEqual, camera.FormatZ16)
	test.That(t, depth.Width(), test.ShouldEqual, 640)
	test.That(t, depth.Height(), test.ShouldEqual, 480)
	test.That(t, depth.Stride(), test.ShouldEqual, 1280)
	test.That(t, depth.BytesPerPixel(), test.ShouldEqual, 2)
	test.That(t, len(depth.Data()), test.ShouldEqual, 480*1280)

	// gradient runs from the near depth at the origin toward the far depth
	test.That(t, binary.LittleEndian.Uint16(depth.Data()), test.ShouldEqual, nearDepth)
	last := binary.LittleEndian.Uint16(depth.Data()[479*1280+2*639:])
	test.That(t, last, test.ShouldBeGreaterThan, 3900)
	test.That(t, last, test.ShouldBeLessThanOrEqualTo, farDepth)

	color, ok := camera.AsVideoFrame(fs.Color())
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, color.Format(), test.ShouldEqual, camera.FormatRGB8)
	test.That(t, color.Data()[:3], test.ShouldResemble, []byte{255, 255, 0})
	test.That(t, fs.Frame(camera.StreamMotion), test.ShouldBeNil)
}

func TestFakeConstantWithPadding(t *testing.T) {
	src := newStartedSource(t, &Config{Width: 3, Height: 2, Stride: 8, Mode: ModeConstant, Value: 1234}, clock.NewMock())
	fs, err := src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeNil)
	defer fs.Release()

	data := fs.Depth().Data()
	test.That(t, len(data), test.ShouldEqual, 16)
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			test.That(t, binary.LittleEndian.Uint16(data[y*8+2*x:]), test.ShouldEqual, 1234)
		}
		// padding stays zero
		test.That(t, data[y*8+6:y*8+8], test.ShouldResemble, []byte{0, 0})
	}
}

func TestFakeMotion(t *testing.T) {
	src := newStartedSource(t, &Config{Width: 2, Height: 2, Motion: true}, clock.NewMock())
	fs, err := src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeNil)
	defer fs.Release()

	motion := fs.Frame(camera.StreamMotion)
	test.That(t, motion, test.ShouldNotBeNil)
	_, ok := camera.AsVideoFrame(motion)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, len(fs.Frames()), test.ShouldEqual, 3)
}

func TestFakeNumberingAndTimestamps(t *testing.T) {
	mock := clock.NewMock()
	src := newStartedSource(t, &Config{Width: 2, Height: 2}, mock)

	first, err := src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeNil)
	firstNumber := first.Depth().Number()
	firstTime := first.Depth().Timestamp()
	first.Release()

	mock.Add(time.Second)
	second, err := src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeNil)
	defer second.Release()
	test.That(t, second.Depth().Number(), test.ShouldEqual, firstNumber+1)
	test.That(t, second.Depth().Timestamp().Sub(firstTime), test.ShouldEqual, time.Second)
	test.That(t, second.Color().Number(), test.ShouldEqual, second.Depth().Number())
}

func TestFakeReleasePoisonsBuffers(t *testing.T) {
	src := newStartedSource(t, &Config{Width: 2, Height: 1, Mode: ModeConstant, Value: 1}, clock.NewMock())

	fs, err := src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeNil)
	data := fs.Depth().Data()
	test.That(t, data, test.ShouldResemble, []byte{1, 0, 1, 0})

	fs.Release()
	test.That(t, data, test.ShouldResemble, []byte{0xAB, 0xAB, 0xAB, 0xAB})
	fs.Release()

	// the recycled buffer is refilled for the next set
	next, err := src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, next.Depth().Data(), test.ShouldResemble, []byte{1, 0, 1, 0})

	// asking for another set releases the outstanding one, so its buffer is reused
	held := next.Depth().Data()
	after, err := src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeNil)
	defer after.Release()
	test.That(t, &after.Depth().Data()[0] == &held[0], test.ShouldBeTrue)
}

func TestFakeFailAt(t *testing.T) {
	src := newStartedSource(t, &Config{Width: 2, Height: 2, FailAt: 2}, clock.NewMock())

	_, err := src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeNil)

	_, err = src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	devErr, ok := camera.AsDeviceError(err)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, devErr.Func, test.ShouldEqual, "wait_for_frames")
	test.That(t, devErr.Args, test.ShouldEqual, "fake:2")
	test.That(t, devErr.Err.Error(), test.ShouldContainSubstring, "didn't arrive")

	_, err = src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeNil)
}

func TestFakeLifecycle(t *testing.T) {
	src, err := NewSource(&Config{Width: 2, Height: 2}, clock.NewMock(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	_, err = src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeError, camera.ErrNotStarted)

	test.That(t, src.Start(context.Background()), test.ShouldBeNil)
	fs, err := src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeNil)

	test.That(t, src.Close(context.Background()), test.ShouldBeNil)
	// frames outlive close until released
	test.That(t, len(fs.Depth().Data()), test.ShouldEqual, 8)
	fs.Release()

	_, err = src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeError, camera.ErrClosed)
	test.That(t, src.Start(context.Background()), test.ShouldBeError, camera.ErrClosed)
}

func TestFakePacing(t *testing.T) {
	mock := clock.NewMock()
	src := newStartedSource(t, &Config{Width: 2, Height: 2, FrameRate: 10}, mock)

	// the first set is never delayed
	_, err := src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeNil)

	done := make(chan error, 1)
	go func() {
		_, err := src.WaitForFrames(context.Background())
		done <- err
	}()
	for {
		select {
		case err := <-done:
			test.That(t, err, test.ShouldBeNil)
			test.That(t, mock.Now().Sub(time.Unix(0, 0)), test.ShouldBeGreaterThanOrEqualTo, 100*time.Millisecond)
			return
		default:
			mock.Add(10 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestFakePacingCanceled(t *testing.T) {
	mock := clock.NewMock()
	src := newStartedSource(t, &Config{Width: 2, Height: 2, FrameRate: 1}, mock)
	_, err := src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.WaitForFrames(ctx)
	test.That(t, err, test.ShouldBeError, context.Canceled)
}

func TestFakeRegistered(t *testing.T) {
	test.That(t, camera.RegisteredSources(), test.ShouldContain, Model)

	err := camera.ValidateSource("source", Model, map[string]interface{}{"mode": "noise"})
	test.That(t, err, test.ShouldNotBeNil)
	err = camera.ValidateSource("source", Model, map[string]interface{}{"bogus": 1})
	test.That(t, err, test.ShouldNotBeNil)
	// json numbers decode as float64 and must not wrap into the 16-bit range
	err = camera.ValidateSource("source", Model, map[string]interface{}{"mode": ModeConstant, "value": 70000.0})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "outside the 16-bit depth range")

	src, err := camera.NewSource(context.Background(), Model, map[string]interface{}{
		"width":  "4",
		"height": 3,
		"mode":   ModeConstant,
		"value":  42,
	}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, src.Start(context.Background()), test.ShouldBeNil)
	fs, err := src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeNil)
	depth, ok := camera.AsVideoFrame(fs.Depth())
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, depth.Width(), test.ShouldEqual, 4)
	test.That(t, depth.Height(), test.ShouldEqual, 3)
	test.That(t, binary.LittleEndian.Uint16(depth.Data()), test.ShouldEqual, 42)
	fs.Release()
	test.That(t, src.Close(context.Background()), test.ShouldBeNil)
}

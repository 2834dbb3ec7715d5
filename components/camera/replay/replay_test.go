package replay

import (
	"context"
	"encoding/binary"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/depthsave/components/camera"
	"go.viam.com/depthsave/logging"
	"go.viam.com/depthsave/rimage"
)

func writeDataset(t *testing.T, values ...rimage.Depth) string {
	t.Helper()
	dir := t.TempDir()
	for i, v := range values {
		dm := rimage.NewEmptyDepthMap(3, 2)
		for y := 0; y < 2; y++ {
			for x := 0; x < 3; x++ {
				dm.Set(x, y, v+rimage.Depth(x))
			}
		}
		fn := filepath.Join(dir, "frame_"+string(rune('0'+i))+".png")
		test.That(t, rimage.WriteDepthPNG(fn, dm, png.BestSpeed), test.ShouldBeNil)
	}
	test.That(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o600), test.ShouldBeNil)
	test.That(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o700), test.ShouldBeNil)
	return dir
}

func TestReplayValidate(t *testing.T) {
	test.That(t, (&Config{Directory: "d"}).Validate("source"), test.ShouldBeNil)
	test.That(t, (&Config{Directory: "d", Interval: "33ms"}).Validate("source"), test.ShouldBeNil)

	err := (&Config{}).Validate("source")
	test.That(t, err.Error(), test.ShouldContainSubstring, "directory is required")
	err = (&Config{Directory: "d", Interval: "soon"}).Validate("source")
	test.That(t, err.Error(), test.ShouldContainSubstring, "invalid interval")
	err = (&Config{Directory: "d", Interval: "-1s"}).Validate("source")
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot be negative")
}

func firstDepth(t *testing.T, fs *camera.FrameSet) uint16 {
	t.Helper()
	depth, ok := camera.AsVideoFrame(fs.Depth())
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, depth.Format(), test.ShouldEqual, camera.FormatZ16)
	test.That(t, depth.Width(), test.ShouldEqual, 3)
	test.That(t, depth.Height(), test.ShouldEqual, 2)
	test.That(t, depth.Stride(), test.ShouldEqual, 6)
	return binary.LittleEndian.Uint16(depth.Data())
}

func TestReplayInOrderThenEOF(t *testing.T) {
	dir := writeDataset(t, 100, 200, 300)
	src, err := NewSource(&Config{Directory: dir}, clock.NewMock(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, src.Start(context.Background()), test.ShouldBeNil)

	for _, want := range []uint16{100, 200, 300} {
		fs, err := src.WaitForFrames(context.Background())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, firstDepth(t, fs), test.ShouldEqual, want)
		// second column carries the x offset
		test.That(t, binary.LittleEndian.Uint16(fs.Depth().Data()[2:]), test.ShouldEqual, want+1)
	}

	_, err = src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	devErr, ok := camera.AsDeviceError(err)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, devErr.Func, test.ShouldEqual, "wait_for_frames")
	test.That(t, devErr.Args, test.ShouldEqual, dir)
	test.That(t, errors.Is(err, io.EOF), test.ShouldBeTrue)

	test.That(t, src.Close(context.Background()), test.ShouldBeNil)
	_, err = src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeError, camera.ErrClosed)
}

func TestReplayLoop(t *testing.T) {
	dir := writeDataset(t, 10, 20)
	src, err := NewSource(&Config{Directory: dir, Loop: true}, clock.NewMock(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, src.Start(context.Background()), test.ShouldBeNil)

	var got []uint16
	var numbers []uint64
	for i := 0; i < 5; i++ {
		fs, err := src.WaitForFrames(context.Background())
		test.That(t, err, test.ShouldBeNil)
		got = append(got, firstDepth(t, fs))
		numbers = append(numbers, fs.Depth().Number())
	}
	test.That(t, got, test.ShouldResemble, []uint16{10, 20, 10, 20, 10})
	test.That(t, numbers, test.ShouldResemble, []uint64{1, 2, 3, 4, 5})
}

func TestReplayStartErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)

	src, err := NewSource(&Config{Directory: t.TempDir()}, clock.NewMock(), logger)
	test.That(t, err, test.ShouldBeNil)
	err = src.Start(context.Background())
	test.That(t, err.Error(), test.ShouldContainSubstring, "no png images found")

	src, err = NewSource(&Config{Directory: filepath.Join(t.TempDir(), "missing")}, clock.NewMock(), logger)
	test.That(t, err, test.ShouldBeNil)
	err = src.Start(context.Background())
	_, ok := camera.AsDeviceError(err)
	test.That(t, ok, test.ShouldBeTrue)

	_, err = src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeError, camera.ErrNotStarted)
}

func TestReplayCorruptImage(t *testing.T) {
	dir := t.TempDir()
	test.That(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("garbage"), 0o600), test.ShouldBeNil)
	src, err := NewSource(&Config{Directory: dir}, clock.NewMock(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, src.Start(context.Background()), test.ShouldBeNil)

	_, err = src.WaitForFrames(context.Background())
	devErr, ok := camera.AsDeviceError(err)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, devErr.Args, test.ShouldEqual, filepath.Join(dir, "a.png"))
}

func TestReplayInterval(t *testing.T) {
	dir := writeDataset(t, 1, 2)
	mock := clock.NewMock()
	src, err := NewSource(&Config{Directory: dir, Interval: "1s"}, mock, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, src.Start(context.Background()), test.ShouldBeNil)

	first, err := src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeNil)
	start := first.Depth().Timestamp()

	done := make(chan time.Time, 1)
	go func() {
		fs, err := src.WaitForFrames(context.Background())
		if err != nil {
			done <- time.Time{}
			return
		}
		done <- fs.Depth().Timestamp()
	}()
	for {
		select {
		case ts := <-done:
			test.That(t, ts.Sub(start), test.ShouldBeGreaterThanOrEqualTo, time.Second)
			return
		default:
			mock.Add(100 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestReplayRegistered(t *testing.T) {
	test.That(t, camera.RegisteredSources(), test.ShouldContain, Model)
	err := camera.ValidateSource("source", Model, map[string]interface{}{})
	test.That(t, err.Error(), test.ShouldContainSubstring, "directory is required")

	src, err := camera.NewSource(context.Background(), Model, map[string]interface{}{
		"directory": writeDataset(t, 5),
	}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, src.Start(context.Background()), test.ShouldBeNil)
	fs, err := src.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, firstDepth(t, fs), test.ShouldEqual, 5)
	test.That(t, src.Close(context.Background()), test.ShouldBeNil)
}

func TestReplayFollow(t *testing.T) {
	err := (&Config{Directory: "d", Loop: true, Follow: true}).Validate("source")
	test.That(t, err.Error(), test.ShouldContainSubstring, "exclusive")

	dir := t.TempDir()
	src, err := NewSource(&Config{Directory: dir, Follow: true}, clock.NewMock(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	// an empty directory is fine when following
	test.That(t, src.Start(context.Background()), test.ShouldBeNil)
	defer func() {
		test.That(t, src.Close(context.Background()), test.ShouldBeNil)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	got := make(chan uint16, 1)
	go func() {
		fs, err := src.WaitForFrames(ctx)
		if err != nil {
			got <- 0
			return
		}
		got <- binary.LittleEndian.Uint16(fs.Depth().Data())
	}()

	// written elsewhere, then renamed into place
	dm := rimage.NewEmptyDepthMap(3, 2)
	dm.Set(0, 0, 777)
	staging := filepath.Join(t.TempDir(), "frame.png")
	test.That(t, rimage.WriteDepthPNG(staging, dm, png.BestSpeed), test.ShouldBeNil)
	test.That(t, os.Rename(staging, filepath.Join(dir, "frame.png")), test.ShouldBeNil)
	test.That(t, <-got, test.ShouldEqual, 777)

	// nothing new arrives before the deadline
	short, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	_, err = src.WaitForFrames(short)
	test.That(t, err, test.ShouldBeError, context.DeadlineExceeded)
}

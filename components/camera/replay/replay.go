// Package replay implements a frame source which plays back 16-bit depth PNGs from a directory.
package replay

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/depthsave/components/camera"
	"go.viam.com/depthsave/logging"
	"go.viam.com/depthsave/rimage"
)

// Model is the registered name of the replay source.
const Model = "replay"

var errEndOfDataset = errors.Wrap(io.EOF, "reached end of dataset")

func init() {
	camera.RegisterSource(Model, camera.Registration[*Config]{
		Constructor: func(ctx context.Context, conf *Config, logger logging.Logger) (camera.FrameSource, error) {
			return NewSource(conf, clock.New(), logger)
		},
	})
}

// Config describes where to find the recorded depth images.
type Config struct {
	Directory string `json:"directory"`
	// Loop restarts from the first image instead of ending the dataset.
	Loop bool `json:"loop,omitempty"`
	// Follow waits for new images to be created or renamed into the directory instead of ending
	// the dataset. Writers should rename complete files into place.
	Follow bool `json:"follow,omitempty"`
	// Interval is the time between frames, as a duration string. Empty plays back unpaced.
	Interval string `json:"interval,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Directory == "" {
		return errors.Errorf("%s: directory is required", path)
	}
	if cfg.Loop && cfg.Follow {
		return errors.Errorf("%s: loop and follow are exclusive", path)
	}
	if cfg.Interval != "" {
		d, err := time.ParseDuration(cfg.Interval)
		if err != nil {
			return errors.Wrapf(err, "%s: invalid interval", path)
		}
		if d < 0 {
			return errors.Errorf("%s: interval cannot be negative", path)
		}
	}
	return nil
}

// Source replays depth images. Each set holds a single Z16 depth frame decoded from the next
// file.
type Source struct {
	dir      string
	loop     bool
	follow   bool
	interval time.Duration

	clk    clock.Clock
	logger logging.Logger

	mu      sync.Mutex
	files   []string
	seen    map[string]bool
	watcher *fsnotify.Watcher
	pos     int
	number  uint64
	started bool
	closed  bool
	last    *camera.FrameSet
	next    time.Time
}

// NewSource returns an unstarted replay source.
func NewSource(conf *Config, clk clock.Clock, logger logging.Logger) (*Source, error) {
	if err := conf.Validate(Model); err != nil {
		return nil, err
	}
	var interval time.Duration
	if conf.Interval != "" {
		var err error
		if interval, err = time.ParseDuration(conf.Interval); err != nil {
			return nil, err
		}
	}
	return &Source{
		dir:      conf.Directory,
		loop:     conf.Loop,
		follow:   conf.Follow,
		interval: interval,
		clk:      clk,
		logger:   logger,
	}, nil
}

// Start lists the dataset. Unless following, it fails if the directory holds no PNG files.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return camera.ErrClosed
	}
	files, err := listImages(s.dir)
	if err != nil {
		return camera.NewDeviceError("start", s.dir, err)
	}
	if len(files) == 0 && !s.follow {
		return camera.NewDeviceError("start", s.dir, errors.New("no png images found"))
	}
	if s.follow && s.watcher == nil {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return camera.NewDeviceError("start", s.dir, err)
		}
		if err := watcher.Add(s.dir); err != nil {
			return camera.NewDeviceError("start", s.dir, multierr.Combine(err, watcher.Close()))
		}
		s.watcher = watcher
	}
	s.files = files
	s.seen = make(map[string]bool, len(files))
	for _, fn := range files {
		s.seen[fn] = true
	}
	s.pos = 0
	s.started = true
	s.logger.CDebugw(ctx, "replay source started", "directory", s.dir, "images", len(files), "loop", s.loop)
	return nil
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// WaitForFrames decodes the next image of the dataset.
func (s *Source) WaitForFrames(ctx context.Context) (*camera.FrameSet, error) {
	s.mu.Lock()
	last := s.last
	s.last = nil
	s.mu.Unlock()
	if last != nil {
		last.Release()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, camera.ErrClosed
	}
	if !s.started {
		return nil, camera.ErrNotStarted
	}
	if s.pos >= len(s.files) {
		switch {
		case s.loop:
			s.pos = 0
		case s.follow:
			if err := s.waitForImages(ctx); err != nil {
				return nil, err
			}
		default:
			return nil, camera.NewDeviceError("wait_for_frames", s.dir, errEndOfDataset)
		}
	}
	if err := s.pace(ctx); err != nil {
		return nil, err
	}

	fn := s.files[s.pos]
	s.pos++
	dm, err := rimage.ReadDepthPNG(fn)
	if err != nil {
		return nil, camera.NewDeviceError("wait_for_frames", fn, err)
	}

	s.number++
	depth, err := camera.NewVideoFrame(camera.VideoFrameConfig{
		Stream:    camera.StreamDepth,
		Format:    camera.FormatZ16,
		Width:     dm.Width(),
		Height:    dm.Height(),
		Stride:    2 * dm.Width(),
		Number:    s.number,
		Timestamp: s.clk.Now(),
	}, encodeZ16(dm))
	if err != nil {
		return nil, err
	}
	s.logger.Debugw("replaying image", "file", fn, "number", s.number)

	set := camera.NewFrameSet(nil, depth)
	s.last = set
	return set, nil
}

// waitForImages blocks until unseen images appear in the directory. Called with mu held.
func (s *Source) waitForImages(ctx context.Context) error {
	for {
		files, err := listImages(s.dir)
		if err != nil {
			return camera.NewDeviceError("wait_for_frames", s.dir, err)
		}
		for _, fn := range files {
			if !s.seen[fn] {
				s.seen[fn] = true
				s.files = append(s.files, fn)
			}
		}
		if s.pos < len(s.files) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-s.watcher.Events:
			if !ok {
				return camera.NewDeviceError("wait_for_frames", s.dir, errors.New("watcher closed"))
			}
			s.logger.Debugw("directory changed", "event", event.String())
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return camera.NewDeviceError("wait_for_frames", s.dir, errors.New("watcher closed"))
			}
			return camera.NewDeviceError("wait_for_frames", s.dir, err)
		}
	}
}

// pace waits for the next frame slot. Called with mu held.
func (s *Source) pace(ctx context.Context) error {
	if s.interval == 0 {
		return nil
	}
	now := s.clk.Now()
	if wait := s.next.Sub(now); !s.next.IsZero() && wait > 0 {
		timer := s.clk.Timer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		now = s.clk.Now()
	}
	s.next = now.Add(s.interval)
	return nil
}

// encodeZ16 lays the depth map out as packed little-endian rows.
func encodeZ16(dm *rimage.DepthMap) []byte {
	out := make([]byte, 2*dm.Width()*dm.Height())
	i := 0
	for y := 0; y < dm.Height(); y++ {
		for x := 0; x < dm.Width(); x++ {
			binary.LittleEndian.PutUint16(out[i:], uint16(dm.GetDepth(x, y)))
			i += 2
		}
	}
	return out
}

// Close stops the replay.
func (s *Source) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.files = nil
	if s.watcher != nil {
		err := s.watcher.Close()
		s.watcher = nil
		return err
	}
	return nil
}

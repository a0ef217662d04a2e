package scheduler

import (
	"errors"
	"time"

	"github.com/smazurov/camunit/internal/capture"
)

// fpsWindow is the span over which the delivery rate is averaged.
const fpsWindow = time.Second

// statsSink counts delivered frames and payload bytes.
type statsSink struct {
	now func() time.Time

	frames uint64
	bytes  uint64
	fps    float64

	windowStart  time.Time
	windowFrames uint64
}

func newStatsSink() *statsSink {
	return &statsSink{now: time.Now}
}

func (s *statsSink) OnFrame(f *capture.Frame) error {
	s.frames++
	s.bytes += uint64(f.Length)

	t := s.now()
	if s.windowStart.IsZero() {
		s.windowStart = t
		return nil
	}
	s.windowFrames++
	if elapsed := t.Sub(s.windowStart); elapsed >= fpsWindow {
		s.fps = float64(s.windowFrames) / elapsed.Seconds()
		s.windowStart = t
		s.windowFrames = 0
	}
	return nil
}

// OnFormatChanged restarts the rate window; a new format usually means a
// new frame rate.
func (s *statsSink) OnFormatChanged(*capture.FormatDescriptor) {
	s.windowStart = time.Time{}
	s.windowFrames = 0
	s.fps = 0
}

// ErrNoFrame is returned by Snapshot before the first frame of a format.
var ErrNoFrame = errors.New("no frame captured yet")

// snapshotSink keeps a copy of the most recent frame.
type snapshotSink struct {
	data  []byte
	frame capture.Frame
	valid bool
}

func (s *snapshotSink) OnFrame(f *capture.Frame) error {
	s.data = append(s.data[:0], f.Data...)
	s.frame = *f
	s.frame.Data = s.data
	s.valid = true
	return nil
}

func (s *snapshotSink) OnFormatChanged(*capture.FormatDescriptor) {
	s.valid = false
}

// latest returns a copy the caller owns.
func (s *snapshotSink) latest() (*capture.Frame, error) {
	if !s.valid {
		return nil, ErrNoFrame
	}
	return s.frame.Clone(), nil
}

// fanout delivers to every handler in order. All handlers see each frame
// even when an earlier one fails.
type fanout []capture.FrameHandler

func (h fanout) OnFrame(f *capture.Frame) error {
	var errs []error
	for _, next := range h {
		if err := next.OnFrame(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h fanout) OnFormatChanged(f *capture.FormatDescriptor) {
	for _, next := range h {
		next.OnFormatChanged(f)
	}
}

// Package replay plays back recorded pose detections from a JSON-lines
// file, one frame per line. A Source is both the frame source and the
// detector, so the pipeline runs without a camera or a model.
package replay

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/teslashibe/go-jellyfish/internal/log"
	"github.com/teslashibe/go-jellyfish/pkg/pipeline"
	"github.com/teslashibe/go-jellyfish/pkg/tracking/detection"
)

// ErrExhausted is returned by Next once every recorded frame has been read.
// It wraps io.EOF.
var ErrExhausted = fmt.Errorf("replay: recording exhausted: %w", io.EOF)

// ErrStopped is returned by Next after Stop or Close. It wraps io.EOF.
var ErrStopped = fmt.Errorf("replay: stopped: %w", io.EOF)

// maxLineSize bounds one recorded frame.
const maxLineSize = 1 << 20

// Record is one line of a recording.
type Record struct {
	Frame  uint64       `json:"frame"`
	Width  int          `json:"width"`
	Height int          `json:"height"`
	Poses  []PoseRecord `json:"poses"`
}

// PoseRecord is one person. Keypoints are [x, y, confidence] triples in
// COCO-17 order, normalised to the frame.
type PoseRecord struct {
	Score     float64      `json:"score,omitempty"`
	Keypoints [][3]float64 `json:"keypoints"`
}

// FromPoses converts detector output to a record.
func FromPoses(frame uint64, width, height int, poses []detection.Pose) Record {
	rec := Record{Frame: frame, Width: width, Height: height, Poses: make([]PoseRecord, len(poses))}
	for i, p := range poses {
		kps := make([][3]float64, len(p.Keypoints))
		for k, kp := range p.Keypoints {
			kps[k] = [3]float64{kp.X, kp.Y, kp.Confidence}
		}
		rec.Poses[i] = PoseRecord{Score: p.Score, Keypoints: kps}
	}
	return rec
}

// ToPoses converts a record back to detector output.
func (r Record) ToPoses() []detection.Pose {
	poses := make([]detection.Pose, len(r.Poses))
	for i, pr := range r.Poses {
		kps := make([]detection.Keypoint, len(pr.Keypoints))
		for k, v := range pr.Keypoints {
			kps[k] = detection.Keypoint{X: v[0], Y: v[1], Confidence: v[2]}
		}
		poses[i] = detection.Pose{
			Keypoints:   kps,
			Score:       pr.Score,
			FrameWidth:  r.Width,
			FrameHeight: r.Height,
		}
	}
	return poses
}

// Frame is one replayed frame. It carries its poses instead of pixels.
type Frame struct {
	Record Record
}

// Dimensions returns the recorded frame size.
func (f *Frame) Dimensions() (int, int) {
	return f.Record.Width, f.Record.Height
}

// Poses returns the recorded poses.
func (f *Frame) Poses() []detection.Pose {
	return f.Record.ToPoses()
}

// Release is a no-op.
func (f *Frame) Release() {}

// Option configures a Source.
type Option func(*Source)

// WithLoop restarts the recording from the top when it runs out.
func WithLoop() Option {
	return func(s *Source) {
		s.loop = true
	}
}

// WithPace spaces frames fps per second. Without it frames are returned as
// fast as they are read.
func WithPace(fps float64) Option {
	return func(s *Source) {
		if fps > 0 {
			s.interval = time.Duration(float64(time.Second) / fps)
		}
	}
}

// Source reads a recording.
type Source struct {
	r        io.Reader
	closer   io.Closer
	scanner  *bufio.Scanner
	name     string
	line     int
	frames   int
	loop     bool
	interval time.Duration
	last     time.Time

	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

var (
	_ pipeline.FrameSource = (*Source)(nil)
	_ detection.Detector   = (*Source)(nil)
)

// Open opens the recording at path.
func Open(path string, opts ...Option) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: open recording: %w", err)
	}
	s, err := NewSource(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.name = path
	s.closer = f

	log.Component("replay").Info("recording opened", "path", path, "loop", s.loop)
	return s, nil
}

// NewSource reads a recording from r. Looping requires r to be an
// io.Seeker.
func NewSource(r io.Reader, opts ...Option) (*Source, error) {
	s := &Source{r: r, name: "reader", stop: make(chan struct{})}
	for _, opt := range opts {
		opt(s)
	}
	if _, ok := r.(io.Seeker); s.loop && !ok {
		return nil, errors.New("replay: looping needs a seekable reader")
	}
	s.resetScanner()
	return s, nil
}

func (s *Source) resetScanner() {
	s.scanner = bufio.NewScanner(s.r)
	s.scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	s.line = 0
}

// Next returns the next recorded frame. A malformed line returns an error
// for that frame only; the following call moves on. A read error, such as
// a line longer than maxLineSize, ends the recording.
func (s *Source) Next() (pipeline.Frame, error) {
	if !s.pace() {
		return nil, ErrStopped
	}

	for {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, fmt.Errorf("replay: %s line %d: %w: %w", s.name, s.line+1, err, ErrExhausted)
			}
			if !s.loop || s.frames == 0 {
				return nil, ErrExhausted
			}
			if err := s.rewind(); err != nil {
				return nil, err
			}
			continue
		}
		s.line++

		data := s.scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("replay: %s line %d: %w", s.name, s.line, err)
		}
		s.frames++
		return &Frame{Record: rec}, nil
	}
}

func (s *Source) rewind() error {
	seeker := s.r.(io.Seeker)
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("replay: rewind: %w", err)
	}
	s.frames = 0
	s.resetScanner()
	return nil
}

// pace waits out the frame interval. It reports false once the Source is
// stopped.
func (s *Source) pace() bool {
	select {
	case <-s.stop:
		return false
	default:
	}
	if s.interval <= 0 {
		return true
	}
	if !s.last.IsZero() {
		if wait := s.interval - time.Since(s.last); wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-s.stop:
				return false
			case <-t.C:
			}
		}
	}
	s.last = time.Now()
	return true
}

// Stop interrupts a paced wait and makes every later Next return
// ErrStopped. It may be called from any goroutine.
func (s *Source) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Detect returns the poses carried by a replayed frame.
func (s *Source) Detect(frame detection.Frame) ([]detection.Pose, error) {
	f, ok := frame.(*Frame)
	if !ok {
		return nil, fmt.Errorf("replay: cannot detect on %T", frame)
	}
	return f.Poses(), nil
}

// Close closes the underlying file. The Source is both source and detector
// of a pipeline, so Close is safe to call twice.
func (s *Source) Close() error {
	s.Stop()
	s.closeOnce.Do(func() {
		if s.closer != nil {
			s.closeErr = s.closer.Close()
		}
	})
	return s.closeErr
}

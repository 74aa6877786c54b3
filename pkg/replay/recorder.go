package replay

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/teslashibe/go-jellyfish/internal/log"
	"github.com/teslashibe/go-jellyfish/pkg/tracking/detection"
)

// Recorder wraps a detector and appends every frame's poses to a
// recording that a Source can play back.
type Recorder struct {
	det   detection.Detector
	out   io.WriteCloser
	w     *bufio.Writer
	enc   *json.Encoder
	frame uint64

	mu sync.Mutex
}

var _ detection.Detector = (*Recorder)(nil)

// NewRecorder records the output of det to out.
func NewRecorder(det detection.Detector, out io.WriteCloser) *Recorder {
	w := bufio.NewWriter(out)
	return &Recorder{det: det, out: out, w: w, enc: json.NewEncoder(w)}
}

// Detect runs the wrapped detector and records its result. Frames the
// detector fails on are not recorded, and a failed write is only logged.
func (r *Recorder) Detect(frame detection.Frame) ([]detection.Pose, error) {
	poses, err := r.det.Detect(frame)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.frame++
	w, h := frame.Dimensions()
	if err := r.enc.Encode(FromPoses(r.frame, w, h, poses)); err != nil {
		// Tracking carries on without the recording.
		log.Component("replay").Warn("record frame failed", "frame", r.frame, "error", err)
	}
	return poses, nil
}

// Frames returns the number of frames recorded.
func (r *Recorder) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame
}

// Close flushes the recording and closes the wrapped detector.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.w.Flush(), r.out.Close(), r.det.Close())
}

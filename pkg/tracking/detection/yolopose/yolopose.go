// Package yolopose runs a YOLOv8-pose ONNX model through the gocv DNN module.
package yolopose

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-jellyfish/internal/config"
	"github.com/teslashibe/go-jellyfish/internal/log"
	"github.com/teslashibe/go-jellyfish/pkg/tracking/detection"
)

var (
	// ErrModelNotFound is returned when the model file does not exist.
	ErrModelNotFound = errors.New("yolopose: model file not found")

	// ErrUnsupportedFrame is returned for frames that carry no gocv image.
	ErrUnsupportedFrame = errors.New("yolopose: frame has no image")
)

// YOLOv8-pose output layout per candidate: cx, cy, w, h, score, then
// x, y, visibility for each of the 17 keypoints.
const (
	boxFields      = 5
	keypointFields = 3
	outputChannels = boxFields + keypointFields*detection.NumKeypoints
)

// Config holds detector configuration
type Config struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
	MaxPoses         int // 0 = unlimited
}

// DefaultConfig returns production defaults for yolov8n-pose
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/yolov8n-pose.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
		MaxPoses:         8,
	}
}

// Validate checks the thresholds and input size.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return config.Invalid("ModelPath", "must not be empty")
	}
	if !(c.ConfidenceThresh > 0 && c.ConfidenceThresh < 1) {
		return config.Invalid("ConfidenceThresh", "must be in (0, 1), got %g", c.ConfidenceThresh)
	}
	if !(c.NMSThresh > 0 && c.NMSThresh < 1) {
		return config.Invalid("NMSThresh", "must be in (0, 1), got %g", c.NMSThresh)
	}
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		return config.Invalid("InputWidth", "input size must be positive, got %dx%d", c.InputWidth, c.InputHeight)
	}
	if c.MaxPoses < 0 {
		return config.Invalid("MaxPoses", "must not be negative, got %d", c.MaxPoses)
	}
	return nil
}

// matFrame is a frame that exposes a gocv image.
type matFrame interface {
	Mat() gocv.Mat
}

// Detector implements detection.Detector for YOLOv8-pose models.
type Detector struct {
	net       gocv.Net
	config    Config
	mu        sync.Mutex
	inputSize image.Point
}

var _ detection.Detector = (*Detector)(nil)

// New loads the model in cfg.ModelPath.
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("yolopose: %w", err)
	}
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("yolopose: failed to load model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	log.Component("yolopose").Info("model loaded",
		"path", cfg.ModelPath,
		"input", fmt.Sprintf("%dx%d", cfg.InputWidth, cfg.InputHeight))

	return &Detector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Detect finds people in the frame. Keypoint coordinates are normalised
// to [0,1] of the frame.
func (d *Detector) Detect(frame detection.Frame) ([]detection.Pose, error) {
	mf, ok := frame.(matFrame)
	if !ok {
		return nil, ErrUnsupportedFrame
	}
	img := mf.Mat()
	if img.Empty() {
		return nil, errors.New("yolopose: empty image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	// Output shape: [1, 56, N]
	sizes := output.Size()
	if len(sizes) != 3 || sizes[1] != outputChannels {
		return nil, fmt.Errorf("yolopose: unexpected output shape %v", sizes)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("yolopose: read output: %w", err)
	}

	cands := decode(data, sizes[2], d.config)
	if len(cands) == 0 {
		return nil, nil
	}

	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = c.box
		scores[i] = c.score
	}
	keep := gocv.NMSBoxes(boxes, scores, d.config.ConfidenceThresh, d.config.NMSThresh)

	w, h := frame.Dimensions()
	poses := make([]detection.Pose, 0, len(keep))
	for _, idx := range keep {
		if d.config.MaxPoses > 0 && len(poses) >= d.config.MaxPoses {
			break
		}
		c := cands[idx]
		poses = append(poses, detection.Pose{
			Keypoints:   c.keypoints,
			Score:       float64(c.score),
			FrameWidth:  w,
			FrameHeight: h,
		})
	}
	return poses, nil
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

type candidate struct {
	box       image.Rectangle // Input pixel space
	score     float32
	keypoints []detection.Keypoint
}

// decode reads channel-major YOLOv8-pose output of n candidates and keeps
// those above the confidence threshold. Keypoints are normalised by the
// model input size, which maps them onto the stretched source frame.
func decode(data []float32, n int, cfg Config) []candidate {
	if len(data) < outputChannels*n {
		return nil
	}
	at := func(ch, i int) float32 { return data[ch*n+i] }
	inW, inH := float64(cfg.InputWidth), float64(cfg.InputHeight)

	var out []candidate
	for i := 0; i < n; i++ {
		score := at(4, i)
		if score < cfg.ConfidenceThresh {
			continue
		}

		cx, cy, bw, bh := at(0, i), at(1, i), at(2, i), at(3, i)
		box := image.Rect(int(cx-bw/2), int(cy-bh/2), int(cx+bw/2), int(cy+bh/2))

		kps := make([]detection.Keypoint, detection.NumKeypoints)
		for k := range kps {
			base := boxFields + keypointFields*k
			kps[k] = detection.Keypoint{
				X:          float64(at(base, i)) / inW,
				Y:          float64(at(base+1, i)) / inH,
				Confidence: float64(at(base+2, i)),
			}
		}

		out = append(out, candidate{box: box, score: score, keypoints: kps})
	}
	return out
}

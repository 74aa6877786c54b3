// Package detection turns raw body keypoints into gated, normalized presence detections.
package detection

import "math"

// COCO-17 keypoint indices used by the normalizer.
const (
	Nose          = 0
	LeftShoulder  = 5
	RightShoulder = 6
	LeftElbow     = 7
	RightElbow    = 8
	LeftWrist     = 9
	RightWrist    = 10
	LeftHip       = 11
	RightHip      = 12

	NumKeypoints = 17
)

// Point is a 2D position in normalized image coordinates.
type Point struct {
	X, Y float64
}

// Add returns p+q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p-q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// DistSq returns the squared Euclidean distance between p and q.
func (p Point) DistSq(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// InUnit reports whether p lies inside [0,1]².
func (p Point) InUnit() bool {
	return p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1
}

// Clamp returns p clamped into [0,1]².
func (p Point) Clamp() Point {
	return Point{X: clamp01(p.X), Y: clamp01(p.Y)}
}

// Midpoint returns the point halfway between p and q.
func Midpoint(p, q Point) Point {
	return Point{X: (p.X + q.X) * 0.5, Y: (p.Y + q.Y) * 0.5}
}

// Keypoint is one body joint in normalized image coordinates.
type Keypoint struct {
	X, Y       float64 // Position (0-1 normalized)
	Confidence float64 // Joint confidence (0-1)
}

// Point returns the keypoint position.
func (k Keypoint) Point() Point {
	return Point{X: k.X, Y: k.Y}
}

// Pose is one person's keypoints as reported by a detector for a single frame.
type Pose struct {
	Keypoints   []Keypoint // COCO-17 order
	Score       float64    // Person score, 0 when the detector has none
	FrameWidth  int        // Source frame width in pixels
	FrameHeight int        // Source frame height in pixels
}

// Detection is a single frame's gated observation of one person.
type Detection struct {
	Position   Point   // Anchor position (0-1 normalized)
	Size       float64 // Vertical extent proxy (0-1)
	Energy     float64 // Mean limb segment length in pixels
	Confidence float64 // Aggregate confidence (0-1)
}

// Frame is an image handed to a Detector.
type Frame interface {
	// Dimensions returns the frame size in pixels.
	Dimensions() (width, height int)
}

// Detector is the interface for pose detection backends
type Detector interface {
	// Detect finds people in the frame and returns their keypoints
	Detect(frame Frame) ([]Pose, error)

	// Close releases resources
	Close() error
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

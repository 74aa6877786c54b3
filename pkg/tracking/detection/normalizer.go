package detection

import (
	"math"
	"sort"
)

// limbSegments are the joint pairs averaged into the energy proxy.
var limbSegments = [4][2]int{
	{LeftShoulder, LeftElbow},
	{LeftElbow, LeftWrist},
	{RightShoulder, RightElbow},
	{RightElbow, RightWrist},
}

// anchorJoints are the joints whose confidence gates a pose.
var anchorJoints = [4]int{LeftShoulder, RightShoulder, LeftWrist, RightWrist}

// Normalizer reduces raw poses to gated Detections.
// It holds no per-frame state and is safe for concurrent use.
type Normalizer struct {
	cfg Config
}

// NewNormalizer creates a normalizer with the given config.
func NewNormalizer(cfg Config) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// Config returns the normalizer's configuration.
func (n *Normalizer) Config() Config {
	return n.cfg
}

// Normalize gates poses and returns their detections ordered left to right.
func (n *Normalizer) Normalize(poses []Pose) []Detection {
	dets, _ := n.NormalizePoses(poses)
	return dets
}

// NormalizePoses is Normalize that also returns the accepted poses,
// mirrored when configured, in the same order as the detections.
func (n *Normalizer) NormalizePoses(poses []Pose) ([]Detection, []Pose) {
	type candidate struct {
		det  Detection
		pose Pose
	}

	candidates := make([]candidate, 0, len(poses))
	for _, p := range poses {
		if len(p.Keypoints) <= RightWrist {
			continue
		}
		if n.cfg.Mirror {
			p = mirror(p)
		}

		conf := aggregateConfidence(p)
		if conf < n.cfg.ConfidenceMin {
			continue
		}

		size := n.size(p)
		if size < n.cfg.MinSize {
			continue
		}

		candidates = append(candidates, candidate{
			det: Detection{
				Position:   n.anchor(p),
				Size:       size,
				Energy:     limbEnergy(p),
				Confidence: conf,
			},
			pose: p,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].det.Position.X < candidates[j].det.Position.X
	})

	dets := make([]Detection, len(candidates))
	accepted := make([]Pose, len(candidates))
	for i, c := range candidates {
		dets[i] = c.det
		accepted[i] = c.pose
	}
	return dets, accepted
}

func (n *Normalizer) anchor(p Pose) Point {
	shoulders := Midpoint(p.Keypoints[LeftShoulder].Point(), p.Keypoints[RightShoulder].Point())
	if n.cfg.Anchor == AnchorShoulders {
		return shoulders
	}

	wrists := Midpoint(p.Keypoints[LeftWrist].Point(), p.Keypoints[RightWrist].Point())
	if !wrists.InUnit() {
		return shoulders
	}
	return wrists
}

func (n *Normalizer) size(p Pose) float64 {
	minY, maxY := math.Inf(1), math.Inf(-1)
	span := func(k Keypoint) {
		minY = math.Min(minY, k.Y)
		maxY = math.Max(maxY, k.Y)
	}

	if n.cfg.SizeMode == SizeUpperLimbs {
		for _, idx := range anchorJoints {
			span(p.Keypoints[idx])
		}
	} else {
		for _, k := range p.Keypoints {
			span(k)
		}
	}
	return clamp01(maxY - minY)
}

// aggregateConfidence is the weakest of the anchor joints and the person score.
func aggregateConfidence(p Pose) float64 {
	conf := 1.0
	for _, idx := range anchorJoints {
		conf = math.Min(conf, p.Keypoints[idx].Confidence)
	}
	if p.Score > 0 {
		conf = math.Min(conf, p.Score)
	}
	return conf
}

// limbEnergy is the mean pixel length of the four arm segments.
// Poses without frame dimensions are measured in normalized units.
func limbEnergy(p Pose) float64 {
	w, h := float64(p.FrameWidth), float64(p.FrameHeight)
	if w <= 0 || h <= 0 {
		w, h = 1, 1
	}

	total := 0.0
	for _, seg := range limbSegments {
		a, b := p.Keypoints[seg[0]], p.Keypoints[seg[1]]
		total += math.Hypot((a.X-b.X)*w, (a.Y-b.Y)*h)
	}
	return total / float64(len(limbSegments))
}

func mirror(p Pose) Pose {
	kps := make([]Keypoint, len(p.Keypoints))
	for i, k := range p.Keypoints {
		kps[i] = Keypoint{X: 1 - k.X, Y: k.Y, Confidence: k.Confidence}
	}
	p.Keypoints = kps
	return p
}

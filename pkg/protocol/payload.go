package protocol

import (
	"time"

	"github.com/teslashibe/go-jellyfish/pkg/tracking"
	"github.com/teslashibe/go-jellyfish/pkg/tracking/detection"
)

// OSC addresses understood by the installation sketch.
const (
	AddrHands     = "/hands"      // [present, x, y, z] per slot
	AddrHandSize  = "/hand_size"  // size per slot
	AddrArmEnergy = "/arm_energy" // energy per slot
	AddrHand      = "/hand"       // legacy flat keypoint list
)

// HandFields is the number of /hands values per slot.
const HandFields = 4

// DefaultLegacyKeypoints are the joints sent on the legacy /hand channel.
var DefaultLegacyKeypoints = []int{detection.LeftWrist, detection.RightWrist}

// Payload is one frame's outbound arrays.
// Hands, HandSize and ArmEnergy always cover every slot.
type Payload struct {
	Timestamp time.Time
	Hands     []float32 // HandFields per slot
	HandSize  []float32 // one per slot
	ArmEnergy []float32 // one per slot
	Hand      []float32 // legacy channel, nil when disabled
}

// Build serializes slots in index order. Inactive slots emit zeros.
func Build(slots []tracking.Slot) Payload {
	p := Payload{
		Hands:     make([]float32, HandFields*len(slots)),
		HandSize:  make([]float32, len(slots)),
		ArmEnergy: make([]float32, len(slots)),
	}

	for i, s := range slots {
		if !s.Active {
			continue
		}
		base := i * HandFields
		p.Hands[base] = 1
		p.Hands[base+1] = float32(s.Position.X)
		p.Hands[base+2] = float32(s.Position.Y)
		p.Hands[base+3] = float32(s.Depth())
		p.HandSize[i] = float32(s.Size)
		p.ArmEnergy[i] = float32(s.Energy)
	}
	return p
}

// Slots returns the number of slots the payload covers.
func (p Payload) Slots() int {
	return len(p.HandSize)
}

// Present reports whether slot i is marked present.
func (p Payload) Present(i int) bool {
	return p.Hands[i*HandFields] == 1
}

// LegacyHand flattens x,y of the listed keypoints for each pose, in the
// order given. Poses should already be mirrored and ordered left to right,
// as returned by Normalizer.NormalizePoses. Missing keypoints emit zeros.
func LegacyHand(poses []detection.Pose, keypoints []int) []float32 {
	out := make([]float32, 0, 2*len(keypoints)*len(poses))
	for _, p := range poses {
		for _, idx := range keypoints {
			if idx < 0 || idx >= len(p.Keypoints) {
				out = append(out, 0, 0)
				continue
			}
			k := p.Keypoints[idx]
			out = append(out, float32(k.X), float32(k.Y))
		}
	}
	return out
}

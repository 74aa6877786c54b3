package tracking

import (
	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/go-jellyfish/pkg/tracking/detection"
)

// Slot is one persistent presence identity.
// Position, Size, Energy and Velocity are meaningful only while Active.
type Slot struct {
	Active    bool
	Position  detection.Point // Smoothed anchor (0-1 normalized)
	Size      float64         // Smoothed size proxy
	Energy    float64         // Smoothed energy proxy
	Velocity  detection.Point // Last raw delta, used for dead reckoning
	MissCount int             // Consecutive frames without a match

	energyHistory []float64 // Raw energy FIFO, window policy only
}

// Depth returns the depth proxy: larger apparent size is nearer, so more negative.
func (s Slot) Depth() float64 {
	return -s.Size
}

// admit initializes the slot from a raw detection with no smoothing.
func (s *Slot) admit(d detection.Detection, cfg Config) {
	s.Active = true
	s.Position = d.Position
	s.Size = d.Size
	s.Energy = d.Energy
	s.Velocity = detection.Point{}
	s.MissCount = 0
	s.energyHistory = s.energyHistory[:0]
	if cfg.EnergyPolicy == EnergyWindow {
		s.energyHistory = append(s.energyHistory, d.Energy)
	}
}

// observe smooths the slot toward a matched detection.
func (s *Slot) observe(d detection.Detection, cfg Config) {
	alpha := cfg.alphaFor(d.Size)

	s.Velocity = d.Position.Sub(s.Position)
	s.Position = detection.Point{
		X: Smooth(s.Position.X, d.Position.X, alpha),
		Y: Smooth(s.Position.Y, d.Position.Y, alpha),
	}
	s.Size = Smooth(s.Size, d.Size, alpha)
	s.Energy = s.smoothEnergy(d.Energy, alpha, cfg)
	s.MissCount = 0
}

func (s *Slot) smoothEnergy(raw, alpha float64, cfg Config) float64 {
	if cfg.EnergyPolicy != EnergyWindow {
		return Smooth(s.Energy, raw, alpha)
	}

	s.energyHistory = append(s.energyHistory, raw)
	if over := len(s.energyHistory) - cfg.EnergyWindow; over > 0 {
		s.energyHistory = append(s.energyHistory[:0], s.energyHistory[over:]...)
	}
	return stat.Mean(s.energyHistory, nil)
}

// predict advances a missed slot by its last velocity, staying inside the frame.
func (s *Slot) predict() {
	s.Position = s.Position.Add(s.Velocity).Clamp()
}

// reset deactivates the slot and clears its history and velocity.
func (s *Slot) reset() {
	hist := s.energyHistory[:0]
	*s = Slot{energyHistory: hist}
}

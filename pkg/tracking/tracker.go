// Package tracking keeps a fixed set of presence slots bound to the people in view.
package tracking

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/teslashibe/go-jellyfish/internal/log"
	"github.com/teslashibe/go-jellyfish/pkg/debug"
	"github.com/teslashibe/go-jellyfish/pkg/tracking/detection"
)

// FrameResult summarizes one Update call.
type FrameResult struct {
	Frame       uint64 // 1-based frame counter
	Assignments []int  // Detection index per slot this frame, -1 when none
	Matched     int    // Active slots that matched a detection
	Admitted    int    // Detections admitted into free slots
	Expired     int    // Slots deactivated this frame
	Dropped     int    // Detections left over once every slot was taken
}

// Tracker owns the slot array and advances it one frame at a time.
// It is not safe for concurrent use; the frame loop is its only caller.
type Tracker struct {
	cfg   Config
	slots []Slot
	frame uint64
	log   *slog.Logger
}

// NewTracker creates a tracker with cfg.MaxSlots inactive slots.
func NewTracker(cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tracking: %w", err)
	}
	return &Tracker{
		cfg:   cfg,
		slots: make([]Slot, cfg.MaxSlots),
		log:   log.Component("tracker"),
	}, nil
}

// Config returns the tracker configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}

// Frame returns the number of frames processed so far.
func (t *Tracker) Frame() uint64 {
	return t.frame
}

// Slots returns a copy of the slot array in index order.
func (t *Tracker) Slots() []Slot {
	out := make([]Slot, len(t.slots))
	for i, s := range t.slots {
		s.energyHistory = nil
		out[i] = s
	}
	return out
}

// ActiveCount returns the number of active slots.
func (t *Tracker) ActiveCount() int {
	n := 0
	for _, s := range t.slots {
		if s.Active {
			n++
		}
	}
	return n
}

// Reset deactivates every slot and restarts the frame counter.
func (t *Tracker) Reset() {
	for i := range t.slots {
		t.slots[i].reset()
	}
	t.frame = 0
}

// Update advances the tracker by one frame.
// dets must be ordered left to right, as returned by the normalizer.
func (t *Tracker) Update(dets []detection.Detection) FrameResult {
	t.frame++
	res := FrameResult{
		Frame:       t.frame,
		Assignments: make([]int, len(t.slots)),
	}
	for i := range res.Assignments {
		res.Assignments[i] = -1
	}

	if t.cfg.Matching == MatchOrderedIndex {
		t.updateOrdered(dets, &res)
	} else {
		t.updateNearest(dets, &res)
	}

	if res.Admitted > 0 || res.Expired > 0 || res.Dropped > 0 {
		debug.TrackLog("slots changed",
			"frame", res.Frame,
			"admitted", res.Admitted,
			"expired", res.Expired,
			"dropped", res.Dropped,
			"active", t.ActiveCount())
	}
	return res
}

// updateNearest runs predict, match, admit and age for the nearest-neighbour policies.
func (t *Tracker) updateNearest(dets []detection.Detection, res *FrameResult) {
	consumed := make([]bool, len(dets))
	matched := make([]bool, len(t.slots))

	if t.cfg.DeadReckoning {
		for i := range t.slots {
			if t.slots[i].Active && t.slots[i].MissCount > 0 {
				t.slots[i].predict()
			}
		}
	}

	gate := math.Inf(1)
	if t.cfg.Matching == MatchThresholdedNearest {
		gate = t.cfg.DistThreshold * t.cfg.DistThreshold
	}

	for i := range t.slots {
		s := &t.slots[i]
		if !s.Active {
			continue
		}

		best, bestDist := -1, math.Inf(1)
		for j, d := range dets {
			if consumed[j] {
				continue
			}
			// Strict less-than keeps the leftmost detection on ties.
			if dist := s.Position.DistSq(d.Position); dist < bestDist {
				best, bestDist = j, dist
			}
		}
		if best < 0 || bestDist > gate {
			continue
		}

		s.observe(dets[best], t.cfg)
		consumed[best] = true
		matched[i] = true
		res.Assignments[i] = best
		res.Matched++
	}

	for j, d := range dets {
		if consumed[j] {
			continue
		}
		free := t.firstFree()
		if free < 0 {
			res.Dropped++
			continue
		}
		t.slots[free].admit(d, t.cfg)
		t.log.Debug("slot admitted", "slot", free, "frame", t.frame, "x", d.Position.X, "y", d.Position.Y)
		consumed[j] = true
		matched[free] = true
		res.Assignments[free] = j
		res.Admitted++
	}

	for i := range t.slots {
		s := &t.slots[i]
		if !s.Active || matched[i] {
			continue
		}
		s.MissCount++
		if s.MissCount > t.cfg.MissForget {
			s.reset()
			t.log.Debug("slot expired", "slot", i, "frame", t.frame)
			res.Expired++
		}
	}
}

// updateOrdered binds the i-th detection to slot i; slots past the end go inactive.
func (t *Tracker) updateOrdered(dets []detection.Detection, res *FrameResult) {
	for i := range t.slots {
		s := &t.slots[i]
		if i >= len(dets) {
			if s.Active {
				res.Expired++
			}
			s.reset()
			continue
		}

		if s.Active {
			s.observe(dets[i], t.cfg)
			res.Matched++
		} else {
			s.admit(dets[i], t.cfg)
			res.Admitted++
		}
		res.Assignments[i] = i
	}

	if over := len(dets) - len(t.slots); over > 0 {
		res.Dropped = over
	}
}

// firstFree returns the lowest inactive slot index, or -1.
func (t *Tracker) firstFree() int {
	for i := range t.slots {
		if !t.slots[i].Active {
			return i
		}
	}
	return -1
}

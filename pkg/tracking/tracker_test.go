package tracking

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-jellyfish/pkg/tracking/detection"
)

func det(x, y, size, energy float64) detection.Detection {
	return detection.Detection{
		Position:   detection.Point{X: x, Y: y},
		Size:       size,
		Energy:     energy,
		Confidence: 1,
	}
}

// fixedConfig is a plain EMA configuration with no adaptive alpha.
func fixedConfig(alpha float64, missForget int) Config {
	cfg := DefaultConfig()
	cfg.Alpha = alpha
	cfg.AlphaPolicy = AlphaFixed
	cfg.MissForget = missForget
	return cfg
}

func newTracker(t *testing.T, cfg Config) *Tracker {
	t.Helper()
	tr, err := NewTracker(cfg)
	require.NoError(t, err)
	return tr
}

func TestNewTracker_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxSlots = 0
	_, err := NewTracker(cfg)
	assert.Error(t, err)
}

func TestTracker_FreshAdmissionHasNoLag(t *testing.T) {
	t.Parallel()

	tr := newTracker(t, fixedConfig(0.3, 5))
	res := tr.Update([]detection.Detection{det(0.7, 0.4, 0.25, 42)})

	assert.Equal(t, 1, res.Admitted)
	assert.Equal(t, []int{0, -1, -1, -1}, res.Assignments)

	s := tr.Slots()[0]
	assert.True(t, s.Active)
	assert.Equal(t, 0.7, s.Position.X)
	assert.Equal(t, 0.4, s.Position.Y)
	assert.Equal(t, 0.25, s.Size)
	assert.Equal(t, 42.0, s.Energy)
	assert.Equal(t, detection.Point{}, s.Velocity)
	assert.Zero(t, s.MissCount)
}

func TestTracker_SmoothingConvergence(t *testing.T) {
	t.Parallel()

	tr := newTracker(t, fixedConfig(0.3, 5))
	tr.Update([]detection.Detection{det(0, 0.5, 0.1, 0)})

	want := map[int]float64{1: 0.30, 2: 0.51, 5: 0.83193}
	for k := 1; k <= 5; k++ {
		tr.Update([]detection.Detection{det(1, 0.5, 0.1, 0)})
		x := tr.Slots()[0].Position.X
		assert.InDelta(t, 1-math.Pow(0.7, float64(k)), x, 1e-9, "frame %d", k)
		if w, ok := want[k]; ok {
			assert.InDelta(t, w, x, 1e-4, "frame %d", k)
		}
	}
}

func TestTracker_PresenceScenario(t *testing.T) {
	t.Parallel()

	tr := newTracker(t, fixedConfig(0.3, 5))
	target := det(0.5, 0.5, 0.1, 12)

	for frame := 1; frame <= 10; frame++ {
		tr.Update([]detection.Detection{target})
		slots := tr.Slots()

		require.True(t, slots[0].Active, "frame %d", frame)
		assert.InDelta(t, 0.5, slots[0].Position.X, 1e-9)
		assert.InDelta(t, 0.5, slots[0].Position.Y, 1e-9)
		assert.InDelta(t, 0.1, slots[0].Size, 1e-9)
		for i := 1; i < 4; i++ {
			assert.Equal(t, Slot{}, slots[i], "slot %d frame %d", i, frame)
		}
	}
}

func TestTracker_DisappearanceScenario(t *testing.T) {
	t.Parallel()

	tr := newTracker(t, fixedConfig(0.3, 5))
	for i := 0; i < 10; i++ {
		tr.Update([]detection.Detection{det(0.5, 0.5, 0.1, 12)})
	}

	for gap := 1; gap <= 5; gap++ {
		res := tr.Update(nil)
		s := tr.Slots()[0]
		require.True(t, s.Active, "gap frame %d", gap)
		assert.Equal(t, gap, s.MissCount)
		assert.Zero(t, res.Expired)
		assert.InDelta(t, 0.5, s.Position.X, 1e-9, "frozen without dead reckoning")
	}

	res := tr.Update(nil)
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, Slot{}, tr.Slots()[0])
	assert.Zero(t, tr.ActiveCount())
}

func TestTracker_ExpiryClearsHistory(t *testing.T) {
	t.Parallel()

	cfg := fixedConfig(1, 1)
	cfg.EnergyPolicy = EnergyWindow
	tr := newTracker(t, cfg)

	tr.Update([]detection.Detection{det(0.2, 0.5, 0.1, 10)})
	tr.Update([]detection.Detection{det(0.3, 0.5, 0.1, 20)})
	require.Len(t, tr.slots[0].energyHistory, 2)

	tr.Update(nil)
	tr.Update(nil)
	assert.False(t, tr.slots[0].Active)
	assert.Empty(t, tr.slots[0].energyHistory)
	assert.Equal(t, detection.Point{}, tr.slots[0].Velocity)

	// Readmission starts a fresh window.
	tr.Update([]detection.Detection{det(0.3, 0.5, 0.1, 90)})
	assert.Equal(t, 90.0, tr.Slots()[0].Energy)
}

func TestTracker_SlotBound(t *testing.T) {
	t.Parallel()

	tr := newTracker(t, fixedConfig(0.3, 5))
	dets := []detection.Detection{
		det(0.1, 0.5, 0.1, 1), det(0.2, 0.5, 0.1, 1), det(0.3, 0.5, 0.1, 1),
		det(0.4, 0.5, 0.1, 1), det(0.5, 0.5, 0.1, 1), det(0.6, 0.5, 0.1, 1),
	}
	res := tr.Update(dets)

	assert.Equal(t, 4, tr.ActiveCount())
	assert.Equal(t, 4, res.Admitted)
	assert.Equal(t, 2, res.Dropped)
	assert.Equal(t, []int{0, 1, 2, 3}, res.Assignments, "leftmost detections fill the lowest slots")
}

func TestTracker_RandomStreamInvariants(t *testing.T) {
	t.Parallel()

	policies := []MatchingPolicy{MatchUnconditionalNearest, MatchThresholdedNearest, MatchOrderedIndex}
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			cfg.Matching = policy
			cfg.DeadReckoning = true
			cfg.MissForget = 3
			tr := newTracker(t, cfg)

			rng := rand.New(rand.NewSource(7))
			for frame := 0; frame < 500; frame++ {
				n := rng.Intn(8)
				dets := make([]detection.Detection, n)
				for i := range dets {
					dets[i] = det(rng.Float64(), rng.Float64(), rng.Float64()*0.5, rng.Float64()*100)
				}
				sort.SliceStable(dets, func(i, j int) bool { return dets[i].Position.X < dets[j].Position.X })

				res := tr.Update(dets)
				require.Len(t, tr.Slots(), cfg.MaxSlots)
				require.LessOrEqual(t, tr.ActiveCount(), cfg.MaxSlots)

				seen := make(map[int]bool)
				for slot, j := range res.Assignments {
					if j < 0 {
						continue
					}
					require.Less(t, j, n)
					require.False(t, seen[j], "detection %d claimed twice in frame %d", j, frame)
					seen[j] = true
					require.True(t, tr.Slots()[slot].Active)
				}
				assert.Equal(t, len(seen), res.Matched+res.Admitted)
				assert.Equal(t, n, len(seen)+res.Dropped, "every detection is assigned or dropped")

				for _, s := range tr.Slots() {
					if s.Active {
						require.True(t, s.Position.InUnit())
						require.LessOrEqual(t, s.MissCount, cfg.MissForget)
					} else {
						require.Equal(t, Slot{}, s)
					}
				}
			}
		})
	}
}

func TestTracker_TieGoesToLeftmost(t *testing.T) {
	t.Parallel()

	tr := newTracker(t, fixedConfig(1, 5))
	tr.Update([]detection.Detection{det(0.5, 0.5, 0.1, 0)})

	res := tr.Update([]detection.Detection{det(0.25, 0.5, 0.1, 0), det(0.75, 0.5, 0.1, 0)})
	assert.Equal(t, 0, res.Assignments[0])
	assert.Equal(t, 1, res.Assignments[1], "right detection is admitted as a new slot")
	assert.Equal(t, 0.25, tr.Slots()[0].Position.X)
}

func TestTracker_NearestMatchingOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cfg   func() Config
		want  []int
		moved int
	}{
		{
			// Slot 0 is visited first and takes the only detection, however far.
			name:  "unconditional",
			cfg:   func() Config { return fixedConfig(1, 5) },
			want:  []int{0, -1, -1, -1},
			moved: 0,
		},
		{
			name: "thresholded keeps identity",
			cfg: func() Config {
				cfg := fixedConfig(1, 5)
				cfg.Matching = MatchThresholdedNearest
				cfg.DistThreshold = 0.1
				return cfg
			},
			want:  []int{-1, 0, -1, -1},
			moved: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr := newTracker(t, tt.cfg())
			tr.Update([]detection.Detection{det(0.2, 0.5, 0.1, 0), det(0.8, 0.5, 0.1, 0)})

			// The left person vanishes.
			res := tr.Update([]detection.Detection{det(0.78, 0.5, 0.1, 0)})
			assert.Equal(t, tt.want, res.Assignments)
			assert.InDelta(t, 0.78, tr.Slots()[tt.moved].Position.X, 1e-9)
			assert.Equal(t, 1, tr.Slots()[1-tt.moved].MissCount)
		})
	}
}

func TestTracker_ThresholdGate(t *testing.T) {
	t.Parallel()

	cfg := fixedConfig(1, 5)
	cfg.Matching = MatchThresholdedNearest
	cfg.DistThreshold = 0.1
	tr := newTracker(t, cfg)

	tr.Update([]detection.Detection{det(0.2, 0.5, 0.1, 0)})
	res := tr.Update([]detection.Detection{det(0.6, 0.5, 0.1, 0)})

	assert.Zero(t, res.Matched)
	assert.Equal(t, 1, res.Admitted)
	slots := tr.Slots()
	assert.Equal(t, 1, slots[0].MissCount)
	assert.Equal(t, 0.2, slots[0].Position.X)
	assert.True(t, slots[1].Active)
	assert.Equal(t, 0.6, slots[1].Position.X)

	res = tr.Update([]detection.Detection{det(0.25, 0.5, 0.1, 0)})
	assert.Equal(t, 0, res.Assignments[0], "within the gate")
}

func TestTracker_DeadReckoning(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		deadReckoning bool
		want          []float64
	}{
		{"advances by velocity", true, []float64{0.3, 0.4, 0.5}},
		{"frozen when disabled", false, []float64{0.3, 0.3, 0.3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := fixedConfig(1, 10)
			cfg.DeadReckoning = tt.deadReckoning
			tr := newTracker(t, cfg)

			tr.Update([]detection.Detection{det(0.2, 0.5, 0.1, 0)})
			tr.Update([]detection.Detection{det(0.3, 0.5, 0.1, 0)})
			assert.InDelta(t, 0.1, tr.Slots()[0].Velocity.X, 1e-9)

			for i, want := range tt.want {
				tr.Update(nil)
				assert.InDelta(t, want, tr.Slots()[0].Position.X, 1e-9, "miss %d", i+1)
			}
		})
	}
}

func TestTracker_DeadReckoningStaysInFrame(t *testing.T) {
	t.Parallel()

	cfg := fixedConfig(1, 10)
	cfg.DeadReckoning = true
	tr := newTracker(t, cfg)

	tr.Update([]detection.Detection{det(0.5, 0.5, 0.1, 0)})
	tr.Update([]detection.Detection{det(0.9, 0.5, 0.1, 0)})
	for i := 0; i < 4; i++ {
		tr.Update(nil)
	}
	assert.Equal(t, 1.0, tr.Slots()[0].Position.X)
}

func TestTracker_OrderedIndex(t *testing.T) {
	t.Parallel()

	cfg := KinectConfig()
	cfg.Alpha = 0.5
	tr := newTracker(t, cfg)

	res := tr.Update([]detection.Detection{det(0.2, 0.5, 0.1, 10), det(0.8, 0.5, 0.1, 20)})
	assert.Equal(t, 2, res.Admitted)
	assert.Equal(t, 0.2, tr.Slots()[0].Position.X)
	assert.Equal(t, 0.8, tr.Slots()[1].Position.X)

	// The two people cross. Rank decides identity, so slot 0 now blends
	// toward the person who came from the right.
	res = tr.Update([]detection.Detection{det(0.3, 0.5, 0.1, 30), det(0.7, 0.5, 0.1, 40)})
	assert.Equal(t, 2, res.Matched)
	assert.InDelta(t, 0.25, tr.Slots()[0].Position.X, 1e-9)
	assert.InDelta(t, 0.75, tr.Slots()[1].Position.X, 1e-9)
	assert.InDelta(t, 20, tr.Slots()[0].Energy, 1e-9, "window mean of 10 and 30")

	// One body left: slot 1 drops out on this frame with no grace period.
	res = tr.Update([]detection.Detection{det(0.4, 0.5, 0.1, 50)})
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, Slot{}, tr.Slots()[1])
	assert.True(t, tr.Slots()[0].Active)
}

func TestTracker_OrderedIndexDropsOverflow(t *testing.T) {
	t.Parallel()

	cfg := KinectConfig()
	cfg.MaxSlots = 2
	tr := newTracker(t, cfg)

	res := tr.Update([]detection.Detection{det(0.1, 0.5, 0.1, 0), det(0.5, 0.5, 0.1, 0), det(0.9, 0.5, 0.1, 0)})
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, []int{0, 1}, res.Assignments)
}

func TestTracker_EnergyWindow(t *testing.T) {
	t.Parallel()

	cfg := fixedConfig(0.3, 5)
	cfg.EnergyPolicy = EnergyWindow
	cfg.EnergyWindow = 3
	tr := newTracker(t, cfg)

	want := []float64{10, 15, 20, 30}
	for i, e := range []float64{10, 20, 30, 40} {
		tr.Update([]detection.Detection{det(0.5, 0.5, 0.1, e)})
		assert.InDelta(t, want[i], tr.Slots()[0].Energy, 1e-9, "sample %d", i+1)
	}
}

func TestTracker_EnergyExponential(t *testing.T) {
	t.Parallel()

	tr := newTracker(t, fixedConfig(0.5, 5))
	tr.Update([]detection.Detection{det(0.5, 0.5, 0.1, 10)})
	tr.Update([]detection.Detection{det(0.5, 0.5, 0.1, 30)})
	assert.InDelta(t, 20, tr.Slots()[0].Energy, 1e-9)
}

func TestTracker_AdaptiveAlpha(t *testing.T) {
	t.Parallel()

	tr := newTracker(t, DefaultConfig())
	tr.Update([]detection.Detection{det(0, 0.5, 0.5, 0)})
	tr.Update([]detection.Detection{det(1, 0.5, 0.5, 0)})

	// det alpha = 0.18 + 0.72*0.3 = 0.396, blended = 0.3 + 0.096*0.396
	assert.InDelta(t, 0.338016, tr.Slots()[0].Position.X, 1e-9)
}

func TestTracker_Reset(t *testing.T) {
	t.Parallel()

	tr := newTracker(t, DefaultConfig())
	tr.Update([]detection.Detection{det(0.5, 0.5, 0.1, 0)})
	require.Equal(t, 1, tr.ActiveCount())

	tr.Reset()
	assert.Zero(t, tr.ActiveCount())
	assert.Zero(t, tr.Frame())
}

func TestTracker_SlotsReturnsCopy(t *testing.T) {
	t.Parallel()

	tr := newTracker(t, DefaultConfig())
	tr.Update([]detection.Detection{det(0.5, 0.5, 0.1, 0)})

	slots := tr.Slots()
	slots[0].Active = false
	assert.True(t, tr.Slots()[0].Active)
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-jellyfish/internal/timeutil"
	"github.com/teslashibe/go-jellyfish/pkg/protocol"
	"github.com/teslashibe/go-jellyfish/pkg/tracking"
	"github.com/teslashibe/go-jellyfish/pkg/tracking/detection"
)

// personAt builds a confident pose whose wrist midpoint is (x, 0.5)
// before mirroring.
func personAt(x float64) detection.Pose {
	kps := make([]detection.Keypoint, detection.NumKeypoints)
	for i := range kps {
		kps[i] = detection.Keypoint{X: x, Y: 0.3, Confidence: 0.9}
	}
	set := func(idx int, px, py float64) {
		kps[idx] = detection.Keypoint{X: px, Y: py, Confidence: 0.9}
	}
	set(detection.LeftShoulder, x-0.1, 0.3)
	set(detection.RightShoulder, x+0.1, 0.3)
	set(detection.LeftElbow, x-0.15, 0.4)
	set(detection.RightElbow, x+0.15, 0.4)
	set(detection.LeftWrist, x-0.2, 0.5)
	set(detection.RightWrist, x+0.2, 0.5)
	return detection.Pose{Keypoints: kps, FrameWidth: 640, FrameHeight: 480}
}

type fakeFrame struct {
	poses    []detection.Pose
	released *int
}

func (f *fakeFrame) Dimensions() (int, int) { return 640, 480 }
func (f *fakeFrame) Release()               { *f.released++ }

// step is one scripted source result.
type step struct {
	poses   []detection.Pose
	readErr error
}

type fakeSource struct {
	steps    []step
	pos      int
	released int
	closed   int
}

func (s *fakeSource) Next() (Frame, error) {
	if s.pos >= len(s.steps) {
		return nil, io.EOF
	}
	st := s.steps[s.pos]
	s.pos++
	if st.readErr != nil {
		return nil, st.readErr
	}
	return &fakeFrame{poses: st.poses, released: &s.released}, nil
}

func (s *fakeSource) Close() error {
	s.closed++
	return nil
}

type fakeDetector struct {
	err    error
	closed int
}

func (d *fakeDetector) Detect(frame detection.Frame) ([]detection.Pose, error) {
	if d.err != nil {
		return nil, d.err
	}
	return frame.(*fakeFrame).poses, nil
}

func (d *fakeDetector) Close() error {
	d.closed++
	return errors.New("detector close failed")
}

type fakeSink struct {
	payloads []protocol.Payload
	sendOK   bool
	err      error
	closed   int
}

func (s *fakeSink) Send(p protocol.Payload) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.payloads = append(s.payloads, p)
	return s.sendOK, nil
}

func (s *fakeSink) Close() error {
	s.closed++
	return nil
}

func frames(n int, poses ...detection.Pose) []step {
	steps := make([]step, n)
	for i := range steps {
		steps[i] = step{poses: poses}
	}
	return steps
}

func newRunner(t *testing.T, cfg Config, src *fakeSource, det *fakeDetector, sink *fakeSink, opts ...Option) *Runner {
	t.Helper()
	opts = append([]Option{WithRetryDelay(0)}, opts...)
	r, err := New(cfg, src, det, sink, opts...)
	require.NoError(t, err)
	return r
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Tracking.MaxSlots = 0
	_, err := New(cfg, &fakeSource{}, &fakeDetector{}, &fakeSink{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MaxSlots")

	_, err = New(DefaultConfig(), nil, &fakeDetector{}, &fakeSink{})
	assert.Error(t, err)
}

func TestStep_SendsPayload(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	src := &fakeSource{steps: frames(1, personAt(0.3), personAt(0.8))}
	sink := &fakeSink{sendOK: true}
	r := newRunner(t, DefaultConfig(), src, &fakeDetector{}, sink, WithClock(clock))

	res, err := r.Step()
	require.NoError(t, err)
	assert.Equal(t, 2, res.Admitted)
	assert.True(t, res.Sent)
	require.Len(t, res.Detections, 2)
	assert.Less(t, res.Detections[0].Position.X, res.Detections[1].Position.X)

	require.Len(t, sink.payloads, 1)
	p := sink.payloads[0]
	assert.Equal(t, clock.Now(), p.Timestamp)
	assert.Len(t, p.Hands, 16)
	assert.True(t, p.Present(0))
	assert.True(t, p.Present(1))
	assert.Nil(t, p.Hand, "legacy channel off by default")
	assert.Equal(t, 1, src.released)
}

func TestStep_LegacyHand(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.LegacyHand = true
	src := &fakeSource{steps: frames(1, personAt(0.3))}
	sink := &fakeSink{sendOK: true}
	r := newRunner(t, cfg, src, &fakeDetector{}, sink)

	_, err := r.Step()
	require.NoError(t, err)
	require.Len(t, sink.payloads[0].Hand, 4, "two wrists, x and y each")
	assert.InDelta(t, 0.9, sink.payloads[0].Hand[0], 1e-6, "mirrored left wrist")
}

func TestStep_ReadErrorLeavesTrackerUntouched(t *testing.T) {
	t.Parallel()

	src := &fakeSource{steps: []step{
		{poses: []detection.Pose{personAt(0.3)}},
		{readErr: errors.New("usb hiccup")},
	}}
	sink := &fakeSink{sendOK: true}
	r := newRunner(t, DefaultConfig(), src, &fakeDetector{}, sink)

	_, err := r.Step()
	require.NoError(t, err)

	_, err = r.Step()
	require.ErrorIs(t, err, ErrFrameSkipped)
	assert.Len(t, sink.payloads, 1, "skipped frame sends nothing")
	assert.Equal(t, 0, r.tracker.Slots()[0].MissCount, "skipped frame is not a miss")
	assert.Equal(t, uint64(1), r.Stats().ReadErrors)
}

func TestStep_DetectError(t *testing.T) {
	t.Parallel()

	src := &fakeSource{steps: frames(1, personAt(0.3))}
	r := newRunner(t, DefaultConfig(), src, &fakeDetector{err: errors.New("inference failed")}, &fakeSink{})

	_, err := r.Step()
	require.ErrorIs(t, err, ErrFrameSkipped)
	assert.Equal(t, uint64(1), r.Stats().DetectErrors)
	assert.Equal(t, 1, src.released, "frame released on detect failure")
	assert.Equal(t, 0, r.tracker.ActiveCount())
}

func TestStep_ThrottledAndSendErrors(t *testing.T) {
	t.Parallel()

	src := &fakeSource{steps: frames(2, personAt(0.3))}
	sink := &fakeSink{sendOK: false}
	r := newRunner(t, DefaultConfig(), src, &fakeDetector{}, sink)

	res, err := r.Step()
	require.NoError(t, err)
	assert.False(t, res.Sent)

	sink.err = errors.New("connection refused")
	_, err = r.Step()
	require.NoError(t, err, "send failures do not skip the frame")

	st := r.Stats()
	assert.Equal(t, uint64(2), st.Frames)
	assert.Equal(t, uint64(1), st.Throttled)
	assert.Equal(t, uint64(1), st.SendErrors)
	assert.Equal(t, 1, st.Active)
}

func TestRun_UntilExhausted(t *testing.T) {
	t.Parallel()

	steps := append(frames(3, personAt(0.5)), step{readErr: errors.New("dropped")})
	steps = append(steps, frames(2)...)
	src := &fakeSource{steps: steps}
	sink := &fakeSink{sendOK: true}
	r := newRunner(t, DefaultConfig(), src, &fakeDetector{}, sink)

	require.NoError(t, r.Run(context.Background()))
	st := r.Stats()
	assert.Equal(t, uint64(5), st.Frames)
	assert.Equal(t, uint64(1), st.ReadErrors)
	assert.Len(t, sink.payloads, 5)
}

func TestRun_ObserverStop(t *testing.T) {
	t.Parallel()

	src := &fakeSource{steps: frames(10, personAt(0.5))}
	seen := 0
	stop := ObserverFunc(func(frame Frame, slots []tracking.Slot, res Result) error {
		seen++
		assert.Len(t, slots, 4)
		if res.Frame == 3 {
			return ErrStop
		}
		return nil
	})
	r := newRunner(t, DefaultConfig(), src, &fakeDetector{}, &fakeSink{sendOK: true}, WithObserver(stop))

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 3, seen)
}

func TestRun_ObserverError(t *testing.T) {
	t.Parallel()

	boom := errors.New("dashboard gone")
	src := &fakeSource{steps: frames(3)}
	fail := ObserverFunc(func(Frame, []tracking.Slot, Result) error { return boom })
	r := newRunner(t, DefaultConfig(), src, &fakeDetector{}, &fakeSink{}, WithObserver(fail))

	assert.ErrorIs(t, r.Run(context.Background()), boom)
}

func TestRun_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{steps: frames(3)}
	r := newRunner(t, DefaultConfig(), src, &fakeDetector{}, &fakeSink{})

	require.NoError(t, r.Run(ctx))
	assert.Equal(t, 0, src.pos, "no frame read after cancellation")
}

func TestClose_Once(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	det := &fakeDetector{}
	sink := &fakeSink{}
	r := newRunner(t, DefaultConfig(), src, det, sink)

	err := r.Close()
	require.Error(t, err, "detector close error is reported")
	assert.Equal(t, err, r.Close())

	assert.Equal(t, 1, src.closed)
	assert.Equal(t, 1, det.closed)
	assert.Equal(t, 1, sink.closed)
}

func TestSessionAndStatus(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := &fakeSource{steps: frames(4, personAt(0.5))}
	r := newRunner(t, DefaultConfig(), src, &fakeDetector{}, &fakeSink{sendOK: true}, WithClock(clock))

	for i := 0; i < 4; i++ {
		_, err := r.Step()
		require.NoError(t, err)
	}
	clock.Advance(2 * time.Second)

	status := r.Status("replay", "127.0.0.1:12000")
	assert.Equal(t, r.SessionID(), status.Session)
	assert.Len(t, status.Session, 36)
	assert.Equal(t, uint64(4), status.Frames)
	assert.InDelta(t, 2.0, status.FPS, 1e-9)
	assert.InDelta(t, 2.0, status.UptimeSec, 1e-9)
}

func TestConfig_Presets(t *testing.T) {
	t.Parallel()

	for name, cfg := range Presets() {
		assert.NoError(t, cfg.Validate(), name)
	}
	assert.Nil(t, GetPreset("nope"))
	require.NotNil(t, GetPreset(PresetKinect))
	assert.Equal(t, tracking.MatchOrderedIndex, GetPreset(PresetKinect).Tracking.Matching)

	cfg := DefaultConfig()
	cfg.LegacyHand = true
	cfg.LegacyKeypoints = []int{detection.NumKeypoints}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, fmt.Sprint(err), "LegacyKeypoints")
}

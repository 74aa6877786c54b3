// Package pipeline drives the per-frame loop: read a frame, detect poses,
// reduce them to detections, update the tracker and send the payload.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-jellyfish/internal/log"
	"github.com/teslashibe/go-jellyfish/internal/timeutil"
	"github.com/teslashibe/go-jellyfish/pkg/protocol"
	"github.com/teslashibe/go-jellyfish/pkg/tracking"
	"github.com/teslashibe/go-jellyfish/pkg/tracking/detection"
)

var (
	// ErrStop is returned by an Observer to end Run without error.
	ErrStop = errors.New("pipeline: stop requested")

	// ErrFrameSkipped wraps a per-frame read or detect failure. The tracker
	// is left untouched and the loop moves on to the next frame.
	ErrFrameSkipped = errors.New("pipeline: frame skipped")
)

// errorLogInterval rate-limits repeated per-frame error logs.
const errorLogInterval = 5 * time.Second

// Frame is an image moving through the loop. Release is called once the
// frame has been detected and observed.
type Frame interface {
	detection.Frame
	Release()
}

// FrameSource yields frames. Returning an error wrapping io.EOF ends Run.
type FrameSource interface {
	Next() (Frame, error)
	Close() error
}

// Sink receives one payload per processed frame and reports whether it
// was actually sent.
type Sink interface {
	Send(p protocol.Payload) (bool, error)
	Close() error
}

// Result describes one processed frame.
type Result struct {
	tracking.FrameResult
	Poses      []detection.Pose      // Accepted poses, mirrored and sorted by x
	Detections []detection.Detection // Detections fed to the tracker
	Payload    protocol.Payload
	Sent       bool
}

// Observer is called after every processed frame, before the frame is
// released. Slots is a copy. Returning ErrStop ends Run.
type Observer interface {
	OnFrame(frame Frame, slots []tracking.Slot, res Result) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(frame Frame, slots []tracking.Slot, res Result) error

// OnFrame calls f.
func (f ObserverFunc) OnFrame(frame Frame, slots []tracking.Slot, res Result) error {
	return f(frame, slots, res)
}

// Stats counts loop activity.
type Stats struct {
	Frames       uint64
	Sent         uint64
	Throttled    uint64
	ReadErrors   uint64
	DetectErrors uint64
	SendErrors   uint64
	Active       int
	FPS          float64
	Uptime       time.Duration
}

// Runner owns the tracker and the collaborators for one session.
type Runner struct {
	cfg        Config
	source     FrameSource
	detector   detection.Detector
	sink       Sink
	normalizer *detection.Normalizer
	tracker    *tracking.Tracker
	observers  []Observer
	clock      timeutil.Clock
	retryDelay time.Duration
	sessionID  string
	log        *slog.Logger

	mu      sync.Mutex
	stats   Stats
	started time.Time
	lastLog map[string]time.Time

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Runner.
type Option func(*Runner)

// WithObserver registers observers in call order.
func WithObserver(o ...Observer) Option {
	return func(r *Runner) {
		r.observers = append(r.observers, o...)
	}
}

// WithClock sets the clock used for payload timestamps and stats.
func WithClock(c timeutil.Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithRetryDelay sets how long Run waits after a skipped frame.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Runner) {
		r.retryDelay = d
	}
}

// New creates a Runner. It takes ownership of source, detector and sink
// and releases them on Close.
func New(cfg Config, source FrameSource, detector detection.Detector, sink Sink, opts ...Option) (*Runner, error) {
	if source == nil || detector == nil || sink == nil {
		return nil, errors.New("pipeline: source, detector and sink are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	tracker, err := tracking.NewTracker(cfg.Tracking)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	r := &Runner{
		cfg:        cfg,
		source:     source,
		detector:   detector,
		sink:       sink,
		normalizer: detection.NewNormalizer(cfg.Detection),
		tracker:    tracker,
		clock:      timeutil.RealClock{},
		retryDelay: 10 * time.Millisecond,
		sessionID:  uuid.NewString(),
		lastLog:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.started = r.clock.Now()
	r.log = log.Component("pipeline").With("session", r.sessionID)

	r.log.Info("pipeline ready",
		"slots", cfg.Tracking.MaxSlots,
		"matching", cfg.Tracking.Matching.String(),
		"alpha", cfg.Tracking.AlphaPolicy.String(),
		"energy", cfg.Tracking.EnergyPolicy.String(),
		"anchor", cfg.Detection.Anchor.String(),
		"legacy_hand", cfg.LegacyHand)
	return r, nil
}

// SessionID identifies this run in logs and on the dashboard.
func (r *Runner) SessionID() string {
	return r.sessionID
}

// Config returns the runner configuration.
func (r *Runner) Config() Config {
	return r.cfg
}

// Step processes one frame. Read and detect failures return an error
// wrapping ErrFrameSkipped; an exhausted source returns its io.EOF error.
// A failed send is counted and logged but the frame still counts as
// processed.
func (r *Runner) Step() (Result, error) {
	frame, err := r.source.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Result{}, err
		}
		r.count(func(s *Stats) { s.ReadErrors++ })
		r.logRateLimited("read", "frame read failed", err)
		return Result{}, fmt.Errorf("%w: read: %v", ErrFrameSkipped, err)
	}
	defer frame.Release()

	poses, err := r.detector.Detect(frame)
	if err != nil {
		r.count(func(s *Stats) { s.DetectErrors++ })
		r.logRateLimited("detect", "pose detection failed", err)
		return Result{}, fmt.Errorf("%w: detect: %v", ErrFrameSkipped, err)
	}

	dets, accepted := r.normalizer.NormalizePoses(poses)
	fr := r.tracker.Update(dets)
	slots := r.tracker.Slots()

	payload := protocol.Build(slots)
	payload.Timestamp = r.clock.Now()
	if r.cfg.LegacyHand {
		payload.Hand = protocol.LegacyHand(accepted, r.cfg.LegacyKeypoints)
	}

	sent, sendErr := r.sink.Send(payload)
	if sendErr != nil {
		r.logRateLimited("send", "payload send failed", sendErr)
	}

	active := r.tracker.ActiveCount()
	r.count(func(s *Stats) {
		s.Frames++
		s.Active = active
		switch {
		case sendErr != nil:
			s.SendErrors++
		case sent:
			s.Sent++
		default:
			s.Throttled++
		}
	})

	res := Result{
		FrameResult: fr,
		Poses:       accepted,
		Detections:  dets,
		Payload:     payload,
		Sent:        sent,
	}
	for _, o := range r.observers {
		if err := o.OnFrame(frame, slots, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Run processes frames until ctx is cancelled, the source is exhausted or
// an observer returns ErrStop. Those three cases return nil.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("frame loop started")
	defer func() {
		st := r.Stats()
		r.log.Info("frame loop stopped",
			"frames", st.Frames,
			"sent", st.Sent,
			"throttled", st.Throttled,
			"read_errors", st.ReadErrors,
			"detect_errors", st.DetectErrors)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, err := r.Step()
		switch {
		case err == nil:
		case errors.Is(err, ErrFrameSkipped):
			if !r.wait(ctx) {
				return nil
			}
		case errors.Is(err, io.EOF):
			r.log.Info("source exhausted")
			return nil
		case errors.Is(err, ErrStop):
			return nil
		default:
			return err
		}
	}
}

func (r *Runner) wait(ctx context.Context) bool {
	if r.retryDelay <= 0 {
		return true
	}
	t := time.NewTimer(r.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Stats returns a snapshot of the loop counters.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.stats
	st.Uptime = r.clock.Now().Sub(r.started)
	if secs := st.Uptime.Seconds(); secs > 0 {
		st.FPS = float64(st.Frames) / secs
	}
	return st
}

// Status returns the dashboard view of the loop counters.
func (r *Runner) Status(source, destination string) protocol.StatusData {
	st := r.Stats()
	return protocol.StatusData{
		Session:      r.sessionID,
		Source:       source,
		Destination:  destination,
		Frames:       st.Frames,
		Sent:         st.Sent,
		Throttled:    st.Throttled,
		ReadErrors:   st.ReadErrors,
		DetectErrors: st.DetectErrors,
		SendErrors:   st.SendErrors,
		Active:       st.Active,
		FPS:          st.FPS,
		UptimeSec:    st.Uptime.Seconds(),
	}
}

// Close releases the source, detector and sink. It is safe to call more
// than once.
func (r *Runner) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = errors.Join(
			r.source.Close(),
			r.detector.Close(),
			r.sink.Close(),
		)
		if r.closeErr != nil {
			r.log.Warn("close failed", "error", r.closeErr)
		}
	})
	return r.closeErr
}

func (r *Runner) count(f func(*Stats)) {
	r.mu.Lock()
	f(&r.stats)
	r.mu.Unlock()
}

func (r *Runner) logRateLimited(key, msg string, err error) {
	now := r.clock.Now()
	r.mu.Lock()
	last, seen := r.lastLog[key]
	due := !seen || now.Sub(last) >= errorLogInterval
	if due {
		r.lastLog[key] = now
	}
	r.mu.Unlock()

	if due {
		r.log.Warn(msg, "error", err)
	}
}

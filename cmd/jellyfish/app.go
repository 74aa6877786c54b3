package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/teslashibe/go-jellyfish/internal/log"
	"github.com/teslashibe/go-jellyfish/pkg/camera"
	"github.com/teslashibe/go-jellyfish/pkg/debug"
	"github.com/teslashibe/go-jellyfish/pkg/osc"
	"github.com/teslashibe/go-jellyfish/pkg/pipeline"
	"github.com/teslashibe/go-jellyfish/pkg/protocol"
	"github.com/teslashibe/go-jellyfish/pkg/replay"
	"github.com/teslashibe/go-jellyfish/pkg/tracking/detection"
	"github.com/teslashibe/go-jellyfish/pkg/tracking/detection/yolopose"
	"github.com/teslashibe/go-jellyfish/pkg/web"
)

// statusInterval is how often loop counters are pushed to the dashboard.
const statusInterval = time.Second

// App wires one tracking session: source, detector, sink and dashboard.
type App struct {
	cfg Config
	log *slog.Logger

	runner    *pipeline.Runner
	sink      *osc.Sink
	web       *web.Server
	dashboard *dashboard
	overlay   *camera.Overlay
	recorder  *replay.Recorder
	player    *replay.Source
	source    string
}

// New validates cfg and returns an App ready for Init.
func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{cfg: cfg, log: log.Component("app")}, nil
}

// Init opens every collaborator. On failure anything already opened is
// released.
func (a *App) Init() error {
	fmt.Println("🪼 Jellyfish - presence slots over OSC")
	fmt.Println("======================================")
	if a.cfg.Debug {
		fmt.Println("🐛 Debug mode enabled")
	}

	src, det, err := a.openInput()
	if err != nil {
		return err
	}

	sink, err := osc.NewSink(a.cfg.OSC)
	if err != nil {
		src.Close()
		det.Close()
		return err
	}
	a.sink = sink

	var observers []pipeline.Observer
	if a.cfg.WebPort != "" {
		a.web = web.NewServer(a.cfg.WebPort)
		a.web.SetConfigView(a.cfg.View())
		a.dashboard = &dashboard{
			web:         a.web,
			statusEvery: statusInterval,
			quality:     a.cfg.Camera.Quality,
			mirror:      a.cfg.Camera.MirrorDisplay,
			log:         log.Component("dashboard"),
		}
		if a.cfg.StreamFPS > 0 {
			a.dashboard.streamEvery = time.Duration(float64(time.Second) / a.cfg.StreamFPS)
		}
		observers = append(observers, a.dashboard)
	}
	if a.cfg.Camera.ShowOverlay {
		a.overlay = camera.NewOverlay("jellyfish", a.cfg.Camera.MirrorDisplay && !a.cfg.Replaying())
		observers = append(observers, overlayObserver{overlay: a.overlay})
	}

	runner, err := pipeline.New(a.cfg.Pipeline, src, det, sink, pipeline.WithObserver(observers...))
	if err != nil {
		if a.overlay != nil {
			a.overlay.Close()
			a.overlay = nil
		}
		src.Close()
		det.Close()
		sink.Close()
		return err
	}
	a.runner = runner

	if a.dashboard != nil {
		dest := a.cfg.OSC.Addr()
		a.dashboard.status = func() protocol.StatusData {
			return runner.Status(a.source, dest)
		}
	}

	a.log.Info("session ready",
		"session", runner.SessionID(),
		"preset", a.cfg.Preset,
		"source", a.source,
		"osc", a.cfg.OSC.Addr(),
		"slots", a.cfg.Pipeline.Tracking.MaxSlots,
		"matching", a.cfg.Pipeline.Tracking.Matching)
	return nil
}

// openInput opens the frame source and the detector that goes with it.
func (a *App) openInput() (pipeline.FrameSource, detection.Detector, error) {
	if a.cfg.Replaying() {
		opts := []replay.Option{}
		if a.cfg.ReplayLoop {
			opts = append(opts, replay.WithLoop())
		}
		if a.cfg.ReplayFPS > 0 {
			opts = append(opts, replay.WithPace(a.cfg.ReplayFPS))
		}
		src, err := replay.Open(a.cfg.ReplayPath, opts...)
		if err != nil {
			return nil, nil, err
		}
		a.player = src
		a.source = "replay " + a.cfg.ReplayPath
		fmt.Printf("📼 Replaying %s\n", a.cfg.ReplayPath)
		return src, src, nil
	}

	fmt.Print("📹 Opening camera... ")
	capture, err := camera.Open(a.cfg.Camera)
	if err != nil {
		fmt.Println("❌")
		return nil, nil, err
	}
	fmt.Println("✅")

	fmt.Print("🧍 Loading pose model... ")
	model, err := yolopose.New(a.cfg.Model)
	if err != nil {
		fmt.Println("❌")
		capture.Close()
		if errors.Is(err, yolopose.ErrModelNotFound) {
			fmt.Println("   (Export one with: yolo export model=yolov8n-pose.pt format=onnx, then pass --model)")
		}
		return nil, nil, err
	}
	fmt.Println("✅")
	a.source = fmt.Sprintf("camera %d", a.cfg.Camera.DeviceIndex)

	var det detection.Detector = model
	if a.cfg.RecordPath != "" {
		out, err := os.Create(a.cfg.RecordPath)
		if err != nil {
			capture.Close()
			model.Close()
			return nil, nil, fmt.Errorf("create recording: %w", err)
		}
		a.recorder = replay.NewRecorder(model, out)
		det = a.recorder
		fmt.Printf("⏺️  Recording poses to %s\n", a.cfg.RecordPath)
	}
	return cameraSource{capture: capture}, det, nil
}

// Run starts the dashboard and drives the frame loop until ctx is done,
// the source is exhausted or the overlay asks to quit.
func (a *App) Run(ctx context.Context) error {
	if a.web != nil {
		a.web.StartAsync()
		fmt.Printf("🌐 Dashboard: http://localhost:%s\n", a.cfg.WebPort)
	}
	fmt.Printf("🎯 Sending to %s (Ctrl+C to exit)\n", a.cfg.OSC.Addr())

	if a.player != nil {
		stop := context.AfterFunc(ctx, a.player.Stop)
		defer stop()
	}
	err := a.runner.Run(ctx)

	st := a.runner.Stats()
	a.log.Info("session finished",
		"frames", st.Frames,
		"sent", st.Sent,
		"throttled", st.Throttled,
		"read_errors", st.ReadErrors,
		"detect_errors", st.DetectErrors,
		"send_errors", st.SendErrors,
		"fps", st.FPS)
	if a.recorder != nil {
		a.log.Info("recording written", "path", a.cfg.RecordPath, "frames", a.recorder.Frames())
	}
	return err
}

// Shutdown releases everything Init opened. It is safe to call after a
// failed Init.
func (a *App) Shutdown() {
	fmt.Println("\n👋 Goodbye!")
	if a.runner != nil {
		if err := a.runner.Close(); err != nil {
			a.log.Warn("close pipeline", "error", err)
		}
	}
	if a.overlay != nil {
		a.overlay.Close()
	}
	if a.dashboard != nil {
		a.dashboard.Close()
	}
	if a.web != nil {
		if err := a.web.Shutdown(); err != nil {
			a.log.Warn("stop dashboard", "error", err)
		}
	}
	if a.sink != nil {
		sent := a.sink.Stats()
		debug.Log("osc totals", "sent", sent.Sent, "throttled", sent.Throttled, "errors", sent.Errors)
	}
}

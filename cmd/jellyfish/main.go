// Jellyfish tracks the people in front of a camera in a fixed set of
// presence slots and streams them to a sketch over OSC.
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-jellyfish/internal/config"
	"github.com/teslashibe/go-jellyfish/internal/log"
	"github.com/teslashibe/go-jellyfish/pkg/camera"
	"github.com/teslashibe/go-jellyfish/pkg/debug"
	"github.com/teslashibe/go-jellyfish/pkg/tracking"
)

func main() {
	os.Exit(run(flag.CommandLine, os.Args[1:]))
}

// run returns the exit code so deferred cleanup happens before exit.
func run(fs *flag.FlagSet, args []string) int {
	cfg, err := parseFlags(fs, args)
	if err != nil {
		stdlog.Printf("❌ %v", err)
		return 2
	}

	log.Init(cfg.LogLevel)
	debug.Enabled = cfg.Debug
	debug.Tracking = cfg.DebugTracking

	app, err := New(cfg)
	if err != nil {
		stdlog.Printf("❌ Configuration error: %v", err)
		return 1
	}

	if err := app.Init(); err != nil {
		stdlog.Printf("❌ Initialization failed: %v", err)
		app.Shutdown()
		return 1
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		return 1
	}
	return 0
}

// parseFlags builds the configuration. Explicit flags win over the tuning
// file, which wins over the preset, which wins over the defaults.
func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := DefaultConfig()
	cfg.LoadEnvConfig()

	preset := fs.String("preset", cfg.Preset, "Tracker preset: pose, kinect, predictive")
	cameraPreset := fs.String("camera-preset", "", "Camera preset: default, 480p, 1080p, bright, debug")
	tuningPath := fs.String("tuning", "", "JSON tuning file applied over the preset")

	device := fs.Int("camera", cfg.Camera.DeviceIndex, "Camera device index")
	overlay := fs.Bool("overlay", cfg.Camera.ShowOverlay, "Show the debug overlay window (press q to quit)")
	clahe := fs.Bool("clahe", cfg.Camera.CLAHE.Enabled, "Equalise dark frames")
	model := fs.String("model", cfg.Model.ModelPath, "YOLOv8-pose ONNX model (JELLYFISH_MODEL)")

	slots := fs.Int("slots", 0, "Number of presence slots")
	matching := fs.String("matching", "", "Matching policy: nearest, thresholded, ordered")
	alpha := fs.Float64("alpha", 0, "Base smoothing factor")
	forget := fs.Int("miss-forget", 0, "Missed frames before a slot is freed")
	deadReckoning := fs.Bool("dead-reckoning", false, "Extrapolate missed slots by their last velocity")
	noMirror := fs.Bool("no-mirror", false, "Do not mirror x")
	legacy := fs.Bool("legacy-hand", false, "Also send the /hand keypoint channel")

	oscHost := fs.String("osc-host", cfg.OSC.Host, "OSC destination host (OSC_HOST)")
	oscPort := fs.Int("osc-port", cfg.OSC.Port, "OSC destination port (OSC_PORT)")
	maxRate := fs.Float64("max-rate", cfg.OSC.MaxRate, "Maximum sends per second, 0 for unlimited")
	bundle := fs.Bool("bundle", cfg.OSC.Bundle, "Send each frame as one timestamped OSC bundle")

	webPort := fs.String("web-port", cfg.WebPort, "Dashboard port (JELLYFISH_WEB_PORT)")
	noWeb := fs.Bool("no-web", false, "Disable the dashboard")
	streamFPS := fs.Float64("stream-fps", cfg.StreamFPS, "Dashboard camera frames per second, 0 to disable")

	replayPath := fs.String("replay", "", "Replay a JSON-lines pose recording instead of the camera")
	replayLoop := fs.Bool("replay-loop", false, "Restart the recording when it ends")
	replayFPS := fs.Float64("replay-fps", 0, "Replay pace in frames per second, 0 for as fast as possible")
	record := fs.String("record", "", "Record detected poses to a JSON-lines file")

	logLevel := fs.String("log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	debugFlag := fs.Bool("debug", false, "Enable verbose debug logging")
	debugTracking := fs.Bool("debug-tracking", false, "Log every slot admission and expiry")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if *cameraPreset != "" {
		cam := camera.GetPreset(*cameraPreset)
		if cam == nil {
			return cfg, fmt.Errorf("unknown camera preset %q (want one of %v)", *cameraPreset, camera.PresetNames())
		}
		cam.DeviceIndex = cfg.Camera.DeviceIndex
		cfg.Camera = *cam
	}
	if err := applyPreset(&cfg, *preset); err != nil {
		return cfg, err
	}
	if *tuningPath != "" {
		t, err := config.LoadTuning(*tuningPath)
		if err != nil {
			return cfg, err
		}
		if err := applyTuning(&cfg, t); err != nil {
			return cfg, fmt.Errorf("tuning %s: %w", *tuningPath, err)
		}
	}

	tr := &cfg.Pipeline.Tracking
	if set["slots"] {
		tr.MaxSlots = *slots
	}
	if set["matching"] {
		m, err := tracking.ParseMatchingPolicy(*matching)
		if err != nil {
			return cfg, err
		}
		tr.Matching = m
	}
	if set["alpha"] {
		tr.Alpha = *alpha
	}
	if set["miss-forget"] {
		tr.MissForget = *forget
	}
	if set["dead-reckoning"] {
		tr.DeadReckoning = *deadReckoning
	}
	if set["no-mirror"] {
		cfg.Pipeline.Detection.Mirror = !*noMirror
		cfg.Camera.MirrorDisplay = !*noMirror
	}
	if set["legacy-hand"] {
		cfg.Pipeline.LegacyHand = *legacy
	}

	if set["camera"] {
		cfg.Camera.DeviceIndex = *device
	}
	if set["overlay"] {
		cfg.Camera.ShowOverlay = *overlay
	}
	if set["clahe"] {
		cfg.Camera.CLAHE.Enabled = *clahe
	}
	if set["model"] {
		cfg.Model.ModelPath = *model
	}

	if set["osc-host"] {
		cfg.OSC.Host = *oscHost
	}
	if set["osc-port"] {
		cfg.OSC.Port = *oscPort
	}
	if set["max-rate"] {
		cfg.OSC.MaxRate = *maxRate
	}
	if set["bundle"] {
		cfg.OSC.Bundle = *bundle
	}

	cfg.WebPort = *webPort
	if *noWeb {
		cfg.WebPort = ""
	}
	cfg.StreamFPS = *streamFPS
	cfg.ReplayPath, cfg.ReplayLoop, cfg.ReplayFPS = *replayPath, *replayLoop, *replayFPS
	cfg.RecordPath = *record
	cfg.LogLevel, cfg.Debug, cfg.DebugTracking = *logLevel, *debugFlag, *debugTracking
	return cfg, nil
}

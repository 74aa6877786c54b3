package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-jellyfish/internal/log"
)

// ErrSourceUnavailable is returned when the capture device cannot be opened
// or stops delivering frames.
var ErrSourceUnavailable = errors.New("camera: source unavailable")

// Frame is one captured image.
type Frame struct {
	Image gocv.Mat
	Seq   uint64
}

// Dimensions returns the frame size in pixels.
func (f *Frame) Dimensions() (int, int) {
	return f.Image.Cols(), f.Image.Rows()
}

// Mat returns the image for detectors that run on gocv.
func (f *Frame) Mat() gocv.Mat {
	return f.Image
}

// Release frees the native image memory.
func (f *Frame) Release() {
	f.Image.Close()
}

// Capture reads frames from a local camera.
type Capture struct {
	cfg  Config
	vc   *gocv.VideoCapture
	pre  *Preprocessor
	seq  uint64
	log  *slog.Logger
	once sync.Once
}

// Open opens the camera described by cfg.
func Open(cfg Config) (*Capture, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera: invalid config: %s", strings.Join(errs, "; "))
	}

	vc, err := gocv.OpenVideoCapture(cfg.DeviceIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", ErrSourceUnavailable, cfg.DeviceIndex, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: device %d not opened", ErrSourceUnavailable, cfg.DeviceIndex)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	c := &Capture{
		cfg: cfg,
		vc:  vc,
		log: log.Component("camera"),
	}
	if cfg.CLAHE.Enabled {
		c.pre = NewPreprocessor(cfg.CLAHE)
	}

	c.log.Info("camera opened",
		"device", cfg.DeviceIndex,
		"width", cfg.Width,
		"height", cfg.Height,
		"fps", cfg.Framerate,
		"clahe", cfg.CLAHE.Enabled)
	return c, nil
}

// Config returns the capture configuration.
func (c *Capture) Config() Config {
	return c.cfg
}

// Read grabs the next frame. Dark frames are equalised before they are
// returned. The caller owns the frame and must Release it.
func (c *Capture) Read() (*Frame, error) {
	img := gocv.NewMat()
	if ok := c.vc.Read(&img); !ok {
		img.Close()
		return nil, fmt.Errorf("%w: read failed", ErrSourceUnavailable)
	}
	if img.Empty() {
		img.Close()
		return nil, errors.New("camera: empty frame")
	}

	if c.pre != nil {
		c.pre.Apply(&img)
	}

	c.seq++
	return &Frame{Image: img, Seq: c.seq}, nil
}

// Close releases the device.
func (c *Capture) Close() error {
	var err error
	c.once.Do(func() {
		if c.pre != nil {
			c.pre.Close()
		}
		err = c.vc.Close()
		c.log.Info("camera closed", "frames", c.seq)
	})
	return err
}

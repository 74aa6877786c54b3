package main

import (
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-jellyfish/pkg/camera"
	"github.com/teslashibe/go-jellyfish/pkg/pipeline"
	"github.com/teslashibe/go-jellyfish/pkg/protocol"
	"github.com/teslashibe/go-jellyfish/pkg/tracking"
)

// cameraSource adapts camera.Capture to pipeline.FrameSource.
type cameraSource struct {
	capture *camera.Capture
}

func (s cameraSource) Next() (pipeline.Frame, error) {
	f, err := s.capture.Read()
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s cameraSource) Close() error {
	return s.capture.Close()
}

// matFrame is satisfied by frames that carry a camera image.
type matFrame interface {
	Mat() gocv.Mat
}

// frameImage returns the frame's image, or a black canvas of the same
// size for frames without one. The returned func frees the canvas.
func frameImage(frame pipeline.Frame) (gocv.Mat, func()) {
	if mf, ok := frame.(matFrame); ok {
		return mf.Mat(), func() {}
	}
	w, h := frame.Dimensions()
	if w <= 0 || h <= 0 {
		w, h = 640, 480
	}
	canvas := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	return canvas, func() { canvas.Close() }
}

// dashboardPublisher is the part of web.Server the dashboard observer uses.
type dashboardPublisher interface {
	PublishSlots(frame uint64, slots []tracking.Slot) error
	UpdateStatus(status protocol.StatusData) error
	SendCameraFrame(frameID uint64, width, height int, jpegData []byte) error
	CameraClients() int
}

// dashboard pushes slots every frame, status about once a second and
// JPEG frames at streamEvery while someone is watching.
type dashboard struct {
	web         dashboardPublisher
	status      func() protocol.StatusData
	statusEvery time.Duration
	streamEvery time.Duration
	quality     int
	mirror      bool
	log         *slog.Logger

	lastStatus time.Time
	lastStream time.Time
	flipped    *gocv.Mat
}

func (d *dashboard) OnFrame(frame pipeline.Frame, slots []tracking.Slot, res pipeline.Result) error {
	if err := d.web.PublishSlots(res.Frame, slots); err != nil {
		return err
	}

	now := time.Now()
	if d.status != nil && now.Sub(d.lastStatus) >= d.statusEvery {
		d.lastStatus = now
		if err := d.web.UpdateStatus(d.status()); err != nil {
			return err
		}
	}

	if d.streamEvery <= 0 || d.web.CameraClients() == 0 || now.Sub(d.lastStream) < d.streamEvery {
		return nil
	}
	mf, ok := frame.(matFrame)
	if !ok {
		return nil
	}
	d.lastStream = now

	img := mf.Mat()
	if d.mirror {
		if d.flipped == nil {
			m := gocv.NewMat()
			d.flipped = &m
		}
		gocv.Flip(img, d.flipped, 1)
		img = *d.flipped
	}
	jpeg, err := camera.EncodeJPEG(img, d.quality)
	if err != nil {
		d.log.Warn("camera frame dropped", "error", err)
		return nil
	}
	return d.web.SendCameraFrame(res.Frame, img.Cols(), img.Rows(), jpeg)
}

func (d *dashboard) Close() {
	if d.flipped != nil {
		d.flipped.Close()
		d.flipped = nil
	}
}

// overlayObserver shows the debug window and stops the run on 'q'.
type overlayObserver struct {
	overlay *camera.Overlay
}

func (o overlayObserver) OnFrame(frame pipeline.Frame, slots []tracking.Slot, _ pipeline.Result) error {
	img, release := frameImage(frame)
	defer release()
	if o.overlay.Draw(img, slots) {
		return pipeline.ErrStop
	}
	return nil
}

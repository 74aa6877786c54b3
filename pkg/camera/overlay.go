package camera

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-jellyfish/pkg/tracking"
)

// Overlay draws active slots on top of the camera image in a local window.
type Overlay struct {
	window *gocv.Window
	mirror bool
	canvas gocv.Mat
}

var slotColor = color.RGBA{R: 255, G: 200, B: 0, A: 255}

// OverlayRadius returns the circle radius for a slot with the given energy.
func OverlayRadius(energy float64) int {
	return int(12 + energy*0.04)
}

// NewOverlay opens a debug window. Slot positions are already mirrored, so
// with mirror set the image is flipped to match them.
func NewOverlay(title string, mirror bool) *Overlay {
	return &Overlay{
		window: gocv.NewWindow(title),
		mirror: mirror,
		canvas: gocv.NewMat(),
	}
}

// Draw renders the frame with one circle per active slot and reports
// whether the user asked to quit with 'q'.
func (o *Overlay) Draw(img gocv.Mat, slots []tracking.Slot) (quit bool) {
	if o.mirror {
		gocv.Flip(img, &o.canvas, 1)
	} else {
		img.CopyTo(&o.canvas)
	}

	w, h := o.canvas.Cols(), o.canvas.Rows()
	for i, s := range slots {
		if !s.Active {
			continue
		}
		center := image.Pt(int(s.Position.X*float64(w)), int(s.Position.Y*float64(h)))
		gocv.Circle(&o.canvas, center, OverlayRadius(s.Energy), slotColor, 2)
		label := fmt.Sprintf("%d  %.1f", i, s.Energy)
		gocv.PutText(&o.canvas, label, center.Add(image.Pt(10, -10)), gocv.FontHersheySimplex, 0.5, slotColor, 1)
	}

	o.window.IMShow(o.canvas)
	return o.window.WaitKey(1)&0xFF == 'q'
}

// Close destroys the window.
func (o *Overlay) Close() error {
	o.canvas.Close()
	return o.window.Close()
}

// EncodeJPEG compresses img for the dashboard camera stream.
func EncodeJPEG(img gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("camera: encode jpeg: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed on Close, so copy out.
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

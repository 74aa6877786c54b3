package camera

import (
	"image"

	"gocv.io/x/gocv"
)

// Preprocessor equalises the lightness channel of dark frames with CLAHE
// so the pose model still finds people in a dim room.
type Preprocessor struct {
	cfg   CLAHEConfig
	clahe gocv.CLAHE
}

// NewPreprocessor creates a CLAHE preprocessor.
func NewPreprocessor(cfg CLAHEConfig) *Preprocessor {
	return &Preprocessor{
		cfg:   cfg,
		clahe: gocv.NewCLAHEWithParams(cfg.ClipLimit, image.Pt(cfg.TileGrid, cfg.TileGrid)),
	}
}

// Dark reports whether the mean brightness of img is below the threshold.
func (p *Preprocessor) Dark(img gocv.Mat) bool {
	return Brightness(img) < p.cfg.BrightnessThreshold
}

// Apply equalises img in place when it is dark. It reports whether the
// frame was changed.
func (p *Preprocessor) Apply(img *gocv.Mat) bool {
	if img.Empty() || img.Channels() != 3 || !p.Dark(*img) {
		return false
	}

	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(*img, &lab, gocv.ColorBGRToLab)

	channels := gocv.Split(lab)
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()

	equalised := gocv.NewMat()
	defer equalised.Close()
	p.clahe.Apply(channels[0], &equalised)
	equalised.CopyTo(&channels[0])

	gocv.Merge(channels, &lab)
	gocv.CvtColor(lab, img, gocv.ColorLabToBGR)
	return true
}

// Close releases the CLAHE instance.
func (p *Preprocessor) Close() error {
	return p.clahe.Close()
}

// Brightness returns the mean pixel value of img over all colour channels.
func Brightness(img gocv.Mat) float64 {
	m := img.Mean()
	switch img.Channels() {
	case 1:
		return m.Val1
	case 3:
		return (m.Val1 + m.Val2 + m.Val3) / 3
	default:
		return (m.Val1 + m.Val2 + m.Val3 + m.Val4) / 4
	}
}

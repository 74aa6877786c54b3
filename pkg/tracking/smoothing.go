package tracking

import "math"

// Smooth moves old toward raw by alpha: old*(1-alpha) + raw*alpha.
func Smooth(old, raw, alpha float64) float64 {
	return old*(1-alpha) + raw*alpha
}

// DetectionAlpha maps a raw size linearly into [lo, hi].
// Larger (nearer) targets get a faster response.
func DetectionAlpha(size, lo, hi, scale float64) float64 {
	return lo + (hi-lo)*clamp01(size*scale)
}

// BlendAlpha blends the base alpha toward det, weighted by det itself.
func BlendAlpha(base, det float64) float64 {
	return base + (det-base)*det
}

// alphaFor returns the smoothing factor for a detection of the given size.
func (c Config) alphaFor(size float64) float64 {
	if c.AlphaPolicy != AlphaSizeAdaptive {
		return c.Alpha
	}
	det := DetectionAlpha(size, c.AlphaMin, c.AlphaMax, c.SizeScale)
	return BlendAlpha(c.Alpha, det)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

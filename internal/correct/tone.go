package correct

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/scanlight/filmscan/internal/raster"
	"github.com/scanlight/filmscan/internal/settings"
)

// Knee positions and slider response of the shadow/highlight recovery
// curves. The quadratic falloff keeps the adjustment local to its end of the
// range while leaving the opposite end fixed.
const (
	shadowKnee    = 0.75
	highlightKnee = 0.25
	toneQuad      = 4.15e-5
	toneLin       = 0.02185
)

// applyTone applies gamma, shadow/highlight recovery, and saturation in
// normalized [0,1] space. The neutral tone returns the input untouched.
func applyTone(r *raster.Raster, t settings.Tone) *raster.Raster {
	if t == settings.NeutralTone || t == (settings.Tone{}) {
		return r
	}

	gammaExp := math.Pow(2, -t.Gamma/100)
	shadowCoeff := toneQuad*t.Shadows*t.Shadows + toneLin*t.Shadows
	highlightCoeff := -toneQuad*t.Highlights*t.Highlights + toneLin*t.Highlights
	sat := t.Saturation / 100
	if t.Saturation == 0 {
		// Zero-valued records (pre-Tone sidecars) mean "no adjustment",
		// not fully desaturated.
		sat = 1
	}

	out := r.Clone()
	for i := 0; i < len(out.Pix); i += raster.Channels {
		var v [raster.Channels]float64
		for c := 0; c < raster.Channels; c++ {
			x := float64(out.Pix[i+c]) / raster.MaxSample

			if gammaExp != 1 {
				x = math.Pow(x, gammaExp)
			}
			if shadowCoeff != 0 {
				d := math.Min(x-shadowKnee, 0)
				x += shadowCoeff * d * d * x
			}
			if highlightCoeff != 0 {
				d := math.Max(x-highlightKnee, 0)
				x += highlightCoeff * d * d * (1 - x)
			}
			v[c] = math.Max(0, math.Min(1, x))
		}

		if sat != 1 {
			h, s, val := colorful.Color{R: v[0], G: v[1], B: v[2]}.Hsv()
			s = math.Max(0, math.Min(1, s*sat))
			c := colorful.Hsv(h, s, val)
			v[0], v[1], v[2] = c.R, c.G, c.B
		}

		for c := 0; c < raster.Channels; c++ {
			out.Pix[i+c] = clampSample(v[c] * raster.MaxSample)
		}
	}
	return out
}

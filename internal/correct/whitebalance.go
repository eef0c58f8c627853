package correct

import (
	"math"

	"github.com/scanlight/filmscan/internal/detect"
	"github.com/scanlight/filmscan/internal/raster"
	"github.com/scanlight/filmscan/internal/settings"
)

// wbScale maps the ±100 temperature/tint range onto gain coefficients.
// Larger values make the sliders gentler.
const wbScale = 200.0

// Gains converts a white-balance shift into multiplicative per-channel
// gains. Warming (positive temperature) raises red and lowers blue; positive
// tint shifts green against magenta. A zero shift yields unit gains.
func Gains(wb settings.WhiteBalance) [raster.Channels]float64 {
	t := wb.Temp / wbScale
	g := wb.Tint / wbScale
	return [raster.Channels]float64{
		1 + t + g/2,
		1 - g,
		1 - t + g/2,
	}
}

// applyGains scales each channel by its gain, clamped to the sample range.
// Unit gains return the input untouched.
func applyGains(r *raster.Raster, gains [raster.Channels]float64) *raster.Raster {
	if gains[0] == 1 && gains[1] == 1 && gains[2] == 1 {
		return r
	}
	out := r.Clone()
	for i := 0; i < len(out.Pix); i += raster.Channels {
		for c := 0; c < raster.Channels; c++ {
			out.Pix[i+c] = clampSample(float64(out.Pix[i+c]) * gains[c])
		}
	}
	return out
}

// PickWhiteBalance derives the temperature/tint shift that neutralizes a
// region of the corrected raster: the mean color of a circle of the given
// radius around (x, y) comes out gray under the returned shift.
//
// Coordinates and radius are normalized fractions of the raster dimensions,
// matching how an interactive layer reports picker clicks. Used by the UI's
// gray-point picker; the core only computes, never stores, the result.
func PickWhiteBalance(r *raster.Raster, x, y, radiusFrac float64) settings.WhiteBalance {
	mr, mg, mb := circleMean(r, x, y, radiusFrac)
	if mr <= 0 || mg <= 0 || mb <= 0 {
		return settings.WhiteBalance{}
	}

	// Invert the gain formula so that applying the returned shift maps the
	// sampled mean onto the gray axis.
	tint := (mg/mb + mg/mr - 2) / ((mb*(mg+mr) + mr*mg) / (mb * mr)) * wbScale
	tint = clampShift(tint)
	temp := ((2*mg-(2*mg+mr)*tint/wbScale)/(2*mr) - 1) * wbScale
	temp = clampShift(temp)

	return settings.WhiteBalance{Temp: temp, Tint: tint}
}

// circleMean averages the raster samples inside a normalized circle.
func circleMean(r *raster.Raster, x, y, radiusFrac float64) (float64, float64, float64) {
	cx := x * float64(r.Width)
	cy := y * float64(r.Height)
	radius := radiusFrac * math.Min(float64(r.Width), float64(r.Height))
	if radius < 1 {
		radius = 1
	}

	bounds := detect.Rect{
		X1: int(cx - radius),
		Y1: int(cy - radius),
		X2: int(cx+radius) + 1,
		Y2: int(cy+radius) + 1,
	}
	if bounds.X1 < 0 {
		bounds.X1 = 0
	}
	if bounds.Y1 < 0 {
		bounds.Y1 = 0
	}
	if bounds.X2 > r.Width {
		bounds.X2 = r.Width
	}
	if bounds.Y2 > r.Height {
		bounds.Y2 = r.Height
	}

	var sr, sg, sb float64
	n := 0
	for py := bounds.Y1; py < bounds.Y2; py++ {
		for px := bounds.X1; px < bounds.X2; px++ {
			dx := float64(px) - cx
			dy := float64(py) - cy
			if dx*dx+dy*dy > radius*radius {
				continue
			}
			cr, cg, cb := r.At(px, py)
			sr += float64(cr)
			sg += float64(cg)
			sb += float64(cb)
			n++
		}
	}
	if n == 0 {
		return 0, 0, 0
	}
	return sr / float64(n), sg / float64(n), sb / float64(n)
}

func clampShift(v float64) float64 {
	return math.Max(-100, math.Min(100, v))
}

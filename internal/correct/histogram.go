package correct

import (
	"fmt"
	"sort"

	"github.com/scanlight/filmscan/internal/detect"
	"github.com/scanlight/filmscan/internal/mask"
	"github.com/scanlight/filmscan/internal/raster"
	"gonum.org/v1/gonum/stat"
)

// Quantile cutoffs for the histogram black and white points. Percentile
// rather than min/max so isolated hot or dead pixels cannot skew the
// stretch. Package variables so a caller can tune the cutoffs.
var (
	BlackPointQuantile = 0.005
	WhitePointQuantile = 0.999
)

// DegenerateHistogramError reports channels whose white point equals their
// black point (a flat region). The correction falls back to an identity
// mapping for those channels and still produces output; the error is
// advisory so the caller can surface a warning.
type DegenerateHistogramError struct {
	// Channels lists the flat channel indices (0=R, 1=G, 2=B).
	Channels []int
}

func (e *DegenerateHistogramError) Error() string {
	return fmt.Sprintf("flat histogram on channels %v, identity mapping applied", e.Channels)
}

// channelStats computes the per-channel black and white points of the region
// statsLocal within sub, using the quantile cutoffs above.
//
// Pixels outside statsLocal (the EQ-ignore border) are excluded, which keeps
// sprocket holes and film rebate out of the statistics.
func channelStats(sub *raster.Raster, statsLocal detect.Rect) (black, white [raster.Channels]float64) {
	n := statsLocal.Width() * statsLocal.Height()
	vals := make([]float64, 0, n)

	for c := 0; c < raster.Channels; c++ {
		vals = vals[:0]
		for y := statsLocal.Y1; y < statsLocal.Y2; y++ {
			i := y*sub.Stride() + statsLocal.X1*raster.Channels + c
			for x := statsLocal.X1; x < statsLocal.X2; x++ {
				vals = append(vals, float64(sub.Pix[i]))
				i += raster.Channels
			}
		}
		sort.Float64s(vals)
		black[c] = stat.Quantile(BlackPointQuantile, stat.Empirical, vals, nil)
		white[c] = stat.Quantile(WhitePointQuantile, stat.Empirical, vals, nil)
	}
	return black, white
}

// lumaStats computes the black and white points of the scalar luminance over
// statsLocal, for black-and-white processing.
func lumaStats(sub *raster.Raster, statsLocal detect.Rect) (black, white float64) {
	vals := make([]float64, 0, statsLocal.Width()*statsLocal.Height())
	for y := statsLocal.Y1; y < statsLocal.Y2; y++ {
		for x := statsLocal.X1; x < statsLocal.X2; x++ {
			cr, cg, cb := sub.At(x, y)
			vals = append(vals, mask.Luminance(cr, cg, cb))
		}
	}
	sort.Float64s(vals)
	return stat.Quantile(BlackPointQuantile, stat.Empirical, vals, nil),
		stat.Quantile(WhitePointQuantile, stat.Empirical, vals, nil)
}

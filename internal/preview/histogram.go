package preview

import (
	"image"
	"image/color"

	"github.com/scanlight/filmscan/internal/raster"
)

// histBins is the number of luminance divisions in the histogram plot.
const histBins = 256

// Histogram renders per-channel sample histograms as an additive RGB plot
// on a dark background: pure red/green/blue where one channel dominates,
// secondary colors where channels overlap. Each channel is scaled to the
// tallest bin across all channels so relative channel balance stays visible.
func Histogram(r *raster.Raster, width, height int) image.Image {
	if width < histBins {
		width = histBins
	}
	if height < 64 {
		height = 64
	}

	var bins [raster.Channels][histBins]int
	for i := 0; i < len(r.Pix); i += raster.Channels {
		for c := 0; c < raster.Channels; c++ {
			bins[c][r.Pix[i+c]>>8]++
		}
	}

	peak := 1
	for c := 0; c < raster.Channels; c++ {
		for _, n := range bins[c] {
			if n > peak {
				peak = n
			}
		}
	}

	bg := color.NRGBA{R: 25, G: 25, B: 25, A: 255}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, bg)
		}
	}

	for x := 0; x < width; x++ {
		bin := x * histBins / width
		for c := 0; c < raster.Channels; c++ {
			barTop := height - bins[c][bin]*height/peak
			for y := barTop; y < height; y++ {
				i := img.PixOffset(x, y)
				// Additive per channel so overlaps read as mixes.
				v := uint16(img.Pix[i+c]) + 230
				if v > 255 {
					v = 255
				}
				img.Pix[i+c] = uint8(v)
			}
		}
	}
	return img
}

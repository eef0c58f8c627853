// Package preview renders the pipeline's intermediate state for an
// interactive layer: the raw scan, the threshold mask, and the detected
// frame with its EQ-ignore border. All render modes are read-only
// projections; the interactive layer re-invokes them after each parameter
// change rather than this package holding any UI state.
package preview

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/scanlight/filmscan/internal/detect"
	"github.com/scanlight/filmscan/internal/mask"
	"github.com/scanlight/filmscan/internal/raster"
)

// Overlay colors. Crop and ignore outlines must stay distinguishable at a
// glance, so they sit on opposite sides of the hue wheel.
var (
	cropColor   = mustHex("#ffd700")
	ignoreColor = mustHex("#00c853")
	maskTint    = mustHex("#2962ff")
)

func mustHex(s string) color.NRGBA {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// Raw renders the unprocessed scan, downscaled so width+height does not
// exceed maxSize (0 disables scaling).
func Raw(r *raster.Raster, maxSize int) image.Image {
	img := r.ToImage8()
	return fit(img, maxSize)
}

// Threshold renders the binary mask as an image: white where the luminance
// falls inside the threshold band, black elsewhere. This is the view shown
// when frame detection fails, so the user can see what the thresholds
// actually selected.
func Threshold(m *mask.Mask) image.Image {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, b := range m.Bits {
		if b {
			img.Pix[i] = 255
		}
	}
	return img
}

// Contours renders the scan with the mask tinted and the detection result
// outlined: the crop rectangle in the crop color, the EQ statistics region
// as a differently colored inset outline. The band between the two outlines
// is what equalization ignores.
func Contours(r *raster.Raster, m *mask.Mask, crop, stats detect.Rect) image.Image {
	img := r.ToImage8()

	// Tint masked pixels so the threshold band stays visible behind the
	// rectangles.
	for y := 0; y < r.Height && y < m.Height; y++ {
		for x := 0; x < r.Width && x < m.Width; x++ {
			if !m.At(x, y) {
				continue
			}
			i := img.PixOffset(x, y)
			img.Pix[i] = blend(img.Pix[i], maskTint.R)
			img.Pix[i+1] = blend(img.Pix[i+1], maskTint.G)
			img.Pix[i+2] = blend(img.Pix[i+2], maskTint.B)
		}
	}

	// Outline thickness proportional to image size, minimum one pixel.
	thickness := (r.Width + r.Height) / 800
	if thickness < 1 {
		thickness = 1
	}

	drawRect(img, crop, cropColor, thickness)
	drawRect(img, stats, ignoreColor, thickness)
	return img
}

// blend mixes an overlay component into a base component at fixed opacity.
func blend(base, over uint8) uint8 {
	return uint8((uint16(base)*3 + uint16(over)) / 4)
}

// drawRect strokes an axis-aligned rectangle outline with the given
// thickness, growing inward from the rectangle edge.
func drawRect(img *image.NRGBA, r detect.Rect, c color.NRGBA, thickness int) {
	set := func(x, y int) {
		if x < 0 || y < 0 || x >= img.Rect.Dx() || y >= img.Rect.Dy() {
			return
		}
		img.SetNRGBA(x, y, c)
	}
	for t := 0; t < thickness; t++ {
		for x := r.X1; x < r.X2; x++ {
			set(x, r.Y1+t)
			set(x, r.Y2-1-t)
		}
		for y := r.Y1; y < r.Y2; y++ {
			set(r.X1+t, y)
			set(r.X2-1-t, y)
		}
	}
}

// fit downscales an image so width+height does not exceed maxSize,
// preserving aspect ratio. Images already within the limit pass through.
func fit(img image.Image, maxSize int) image.Image {
	if maxSize <= 0 {
		return img
	}
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w+h <= maxSize {
		return img
	}
	scale := float64(maxSize) / float64(w+h)
	return imaging.Resize(img, int(float64(w)*scale), int(float64(h)*scale), imaging.Lanczos)
}

package preview

import (
	"image/color"
	"testing"

	"github.com/scanlight/filmscan/internal/detect"
	"github.com/scanlight/filmscan/internal/mask"
	"github.com/scanlight/filmscan/internal/raster"
)

// newFilled creates a raster with every pixel set to the same color.
func newFilled(t *testing.T, width, height int, cr, cg, cb uint16) *raster.Raster {
	t.Helper()
	r, err := raster.New(width, height)
	if err != nil {
		t.Fatalf("raster.New failed: %v", err)
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r.Set(x, y, cr, cg, cb)
		}
	}
	return r
}

func TestRaw(t *testing.T) {
	r := newFilled(t, 80, 60, 30000, 30000, 30000)

	img := Raw(r, 0)
	if img.Bounds().Dx() != 80 || img.Bounds().Dy() != 60 {
		t.Errorf("unscaled preview: got %dx%d, want 80x60", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestRaw_Downscales(t *testing.T) {
	r := newFilled(t, 800, 600, 30000, 30000, 30000)

	img := Raw(r, 140)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w+h > 140 {
		t.Errorf("preview too large: %dx%d exceeds 140 combined", w, h)
	}
	// Aspect ratio survives the resize.
	if w*3 != h*4 {
		t.Errorf("aspect ratio lost: %dx%d", w, h)
	}
}

func TestThreshold(t *testing.T) {
	m := &mask.Mask{Bits: make([]bool, 16), Width: 4, Height: 4}
	m.Bits[5] = true

	img := Threshold(m)
	if img.At(1, 1) != (color.Gray{Y: 255}) {
		t.Errorf("set bit should render white, got %v", img.At(1, 1))
	}
	if img.At(0, 0) != (color.Gray{Y: 0}) {
		t.Errorf("unset bit should render black, got %v", img.At(0, 0))
	}
}

func TestContours_Outlines(t *testing.T) {
	r := newFilled(t, 100, 100, 20000, 20000, 20000)
	m := &mask.Mask{Bits: make([]bool, 100*100), Width: 100, Height: 100}

	crop := detect.Rect{X1: 20, Y1: 20, X2: 80, Y2: 80}
	stats := detect.Rect{X1: 30, Y1: 30, X2: 70, Y2: 70}

	img := Contours(r, m, crop, stats)

	cr, cg, cb, _ := img.At(50, 20).RGBA()
	if cr>>8 != uint32(cropColor.R) || cg>>8 != uint32(cropColor.G) || cb>>8 != uint32(cropColor.B) {
		t.Errorf("crop edge not outlined: got (%d, %d, %d)", cr>>8, cg>>8, cb>>8)
	}

	ir, ig, ib, _ := img.At(50, 30).RGBA()
	if ir>>8 != uint32(ignoreColor.R) || ig>>8 != uint32(ignoreColor.G) || ib>>8 != uint32(ignoreColor.B) {
		t.Errorf("stats edge not outlined: got (%d, %d, %d)", ir>>8, ig>>8, ib>>8)
	}

	// Interior pixels keep the scan value.
	pr, _, _, _ := img.At(50, 50).RGBA()
	if pr>>8 != 20000>>8 {
		t.Errorf("interior pixel altered: got %d, want %d", pr>>8, 20000>>8)
	}
}

func TestContours_MaskTint(t *testing.T) {
	r := newFilled(t, 50, 50, 20000, 20000, 20000)
	m := &mask.Mask{Bits: make([]bool, 50*50), Width: 50, Height: 50}
	for i := range m.Bits {
		m.Bits[i] = true
	}

	img := Contours(r, m, detect.Rect{}, detect.Rect{})
	cr, _, cb, _ := img.At(25, 25).RGBA()
	if cb <= cr {
		t.Errorf("masked pixel should shift toward the tint: got r=%d b=%d", cr>>8, cb>>8)
	}
}

func TestHistogram(t *testing.T) {
	// Pure red: the red channel peaks at the top bin, green and blue at
	// the bottom bin.
	r := newFilled(t, 10, 10, raster.MaxSample, 0, 0)

	img := Histogram(r, 256, 100)
	if img.Bounds().Dx() != 256 || img.Bounds().Dy() != 100 {
		t.Fatalf("dimensions: got %dx%d, want 256x100", img.Bounds().Dx(), img.Bounds().Dy())
	}

	// The last column holds the full-height red bar.
	cr, cg, _, _ := img.At(255, 10).RGBA()
	if cr>>8 < 200 {
		t.Errorf("red bar missing at top bin: r=%d", cr>>8)
	}
	if cg>>8 > 100 {
		t.Errorf("green should not appear at the top bin: g=%d", cg>>8)
	}

	// The first column carries green and blue.
	_, bg, bb, _ := img.At(0, 10).RGBA()
	if bg>>8 < 200 || bb>>8 < 200 {
		t.Errorf("green/blue bar missing at bottom bin: g=%d b=%d", bg>>8, bb>>8)
	}
}

func TestHistogram_MinimumSize(t *testing.T) {
	r := newFilled(t, 4, 4, 100, 100, 100)

	img := Histogram(r, 10, 10)
	if img.Bounds().Dx() < histBins || img.Bounds().Dy() < 64 {
		t.Errorf("undersized request should be raised to minimums, got %dx%d",
			img.Bounds().Dx(), img.Bounds().Dy())
	}
}

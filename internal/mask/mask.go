// Package mask converts rasters into binary masks using dark/light luminance
// thresholds. The masked band is the well-exposed photo region between the
// dark film holder and blown-out highlights; the frame detector looks for the
// largest connected blob inside it.
package mask

import (
	"fmt"

	"github.com/scanlight/filmscan/internal/raster"
)

// LumaWeights are the per-channel weights used to collapse RGB to a scalar
// luminance, ITU-R BT.601 by default. Exposed as a variable because the exact
// weighting is a tuning choice, not a correctness requirement.
var LumaWeights = [3]float64{0.299, 0.587, 0.114}

// Pair holds the dark and light luminance thresholds as percentages of the
// full sample range. A pixel belongs to the mask when its luminance falls
// within [Dark, Light].
type Pair struct {
	// Dark is the lower luminance bound, 0-100.
	Dark float64 `json:"dark"`

	// Light is the upper luminance bound, 0-100.
	Light float64 `json:"light"`
}

// Validate checks the Dark < Light invariant and the percentage range.
func (p Pair) Validate() error {
	if p.Dark < 0 || p.Light > 100 {
		return fmt.Errorf("thresholds %.1f-%.1f outside 0-100", p.Dark, p.Light)
	}
	if p.Dark >= p.Light {
		return fmt.Errorf("dark threshold %.1f must be below light threshold %.1f", p.Dark, p.Light)
	}
	return nil
}

// FullRange is the threshold pair that masks every pixel.
var FullRange = Pair{Dark: 0, Light: 100}

// Mask is a per-pixel binary image derived from a raster and a threshold
// pair. It is never persisted; it can always be recomputed from its inputs.
type Mask struct {
	Bits   []bool
	Width  int
	Height int
}

// At reports whether the mask bit at (x, y) is set.
// No bounds checking is performed.
func (m *Mask) At(x, y int) bool {
	return m.Bits[y*m.Width+x]
}

// Area returns the number of set bits.
func (m *Mask) Area() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Luminance collapses one pixel to a scalar using LumaWeights.
func Luminance(cr, cg, cb uint16) float64 {
	return LumaWeights[0]*float64(cr) + LumaWeights[1]*float64(cg) + LumaWeights[2]*float64(cb)
}

// Compute builds the binary mask for a raster under the given thresholds.
//
// A bit is set when the pixel's luminance falls within [Dark, Light], both
// expressed as percent of the full sample range. The computation is a single
// linear pass with no side effects; identical inputs always produce an
// identical mask.
//
// The degenerate full-range pair yields an all-true mask, which downstream
// frame detection treats as a full-frame crop.
func Compute(r *raster.Raster, p Pair) (*Mask, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	dark := p.Dark / 100 * raster.MaxSample
	light := p.Light / 100 * raster.MaxSample

	m := &Mask{
		Bits:   make([]bool, r.Width*r.Height),
		Width:  r.Width,
		Height: r.Height,
	}

	i := 0
	for j := 0; j < len(r.Pix); j += raster.Channels {
		luma := Luminance(r.Pix[j], r.Pix[j+1], r.Pix[j+2])
		m.Bits[i] = luma >= dark && luma <= light
		i++
	}
	return m, nil
}

// Erode clears every set bit that has an unset neighbor within the given
// square radius, trimming the fuzzy edge the thresholds leave around the
// frame. Radius 0 or less returns the mask unchanged.
func (m *Mask) Erode(radius int) *Mask {
	if radius <= 0 {
		return m
	}

	out := &Mask{
		Bits:   make([]bool, len(m.Bits)),
		Width:  m.Width,
		Height: m.Height,
	}

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !m.At(x, y) {
				continue
			}
			keep := true
			for dy := -radius; dy <= radius && keep; dy++ {
				for dx := -radius; dx <= radius && keep; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= m.Width || ny < 0 || ny >= m.Height {
						keep = false
						continue
					}
					if !m.At(nx, ny) {
						keep = false
					}
				}
			}
			out.Bits[y*m.Width+x] = keep
		}
	}
	return out
}

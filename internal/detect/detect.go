// Package detect locates the photo frame inside a threshold mask: the
// largest connected blob of masked pixels, boxed, trimmed, and paired with
// the region color statistics are computed over.
package detect

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/scanlight/filmscan/internal/mask"
	"k8s.io/klog/v2"
)

// ErrNoBlobFound is reported when no connected component survives the
// minimum-area filter. Callers should fall back to showing the raw threshold
// view so the user can adjust thresholds.
var ErrNoBlobFound = errors.New("no frame found in threshold mask")

// ErrEmptyCrop is reported when the border-crop inset collapses the detected
// rectangle to zero width or height.
var ErrEmptyCrop = errors.New("border crop collapsed the frame")

// MinAreaFraction is the smallest component area, as a fraction of total
// raster area, considered a candidate frame rather than dust or noise.
// Tunable; the default discards anything under half a percent.
var MinAreaFraction = 0.005

// Rect is an axis-aligned rectangle in source-raster pixel coordinates,
// following the half-open convention: (X1,Y1) inclusive, (X2,Y2) exclusive.
type Rect struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Width returns X2-X1.
func (r Rect) Width() int { return r.X2 - r.X1 }

// Height returns Y2-Y1.
func (r Rect) Height() int { return r.Y2 - r.Y1 }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.X2 <= r.X1 || r.Y2 <= r.Y1 }

// Contains reports whether (x, y) lies inside the rectangle.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X1 && x < r.X2 && y >= r.Y1 && y < r.Y2
}

// BorderPct holds independent per-edge percentages, used for the EQ-ignore
// border insets.
type BorderPct struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

// Uniform returns a BorderPct with the same percentage on every edge.
func Uniform(pct float64) BorderPct {
	return BorderPct{Top: pct, Bottom: pct, Left: pct, Right: pct}
}

// Options control frame detection.
type Options struct {
	// BorderCropPct shrinks the detected rectangle inward on all sides by
	// this percentage of the frame's long dimension, removing the fuzzy
	// edge the threshold mask leaves. May be zero.
	BorderCropPct float64

	// IgnoreBorderPct shrinks the crop further, per edge, to produce the
	// region whose pixels feed the equalization statistics. Sprocket-hole
	// bands along the film edge fall in the excluded strip.
	IgnoreBorderPct BorderPct
}

// component is one 8-connected blob of set mask bits.
type component struct {
	area                   int
	minX, minY, maxX, maxY int
	sumX, sumY             int64
}

// Crop locates the photo frame inside a threshold mask.
//
// Returns the crop rectangle and the statistics region: an inset
// sub-rectangle of the crop whose complement (the EQ-ignore border) is
// excluded from color-correction statistics. The statistics region never
// alters the visible crop.
//
// # Algorithm
//
//  1. Label 8-connected components of the mask with iterative flood fill
//  2. Discard components below MinAreaFraction of the raster area
//  3. Keep the largest by pixel area; ties go to the component whose
//     centroid lies closest to the raster center
//  4. Take its axis-aligned bounding box and inset it by BorderCropPct,
//     clamped to raster bounds
//  5. Inset the crop per-edge by IgnoreBorderPct for the statistics region
//
// Detection is deterministic: components are found in scan order and the
// tie-break is total, so identical masks always produce identical output.
//
// # Errors
//
//   - ErrNoBlobFound if no component survives the area filter
//   - ErrEmptyCrop if the border-crop inset collapses the rectangle
func Crop(m *mask.Mask, opts Options) (Rect, Rect, error) {
	comps := findComponents(m)

	minArea := int(MinAreaFraction * float64(m.Width) * float64(m.Height))
	best, ok := selectLargest(comps, minArea, m.Width, m.Height)
	if !ok {
		return Rect{}, Rect{}, fmt.Errorf("%w (min area %d px)", ErrNoBlobFound, minArea)
	}

	crop := Rect{X1: best.minX, Y1: best.minY, X2: best.maxX + 1, Y2: best.maxY + 1}
	crop = insetProportional(crop, opts.BorderCropPct)
	crop = crop.Clamp(m.Width, m.Height)
	if crop.Empty() {
		return Rect{}, Rect{}, fmt.Errorf("%w: inset %.1f%%", ErrEmptyCrop, opts.BorderCropPct)
	}

	stats := StatsRegion(crop, opts.IgnoreBorderPct)

	klog.V(1).Infof("frame: crop=%+v stats=%+v area=%d", crop, stats, best.area)
	return crop, stats, nil
}

// findComponents labels the 8-connected components of the mask using
// iterative (stack-based) flood fill, in row-major scan order.
func findComponents(m *mask.Mask) []component {
	visited := make([]bool, len(m.Bits))
	var comps []component

	type point struct{ x, y int }
	var stack []point

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			idx := y*m.Width + x
			if !m.Bits[idx] || visited[idx] {
				continue
			}

			c := component{minX: x, minY: y, maxX: x, maxY: y}
			stack = append(stack[:0], point{x, y})
			visited[idx] = true

			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]

				c.area++
				c.sumX += int64(p.x)
				c.sumY += int64(p.y)
				if p.x < c.minX {
					c.minX = p.x
				}
				if p.x > c.maxX {
					c.maxX = p.x
				}
				if p.y < c.minY {
					c.minY = p.y
				}
				if p.y > c.maxY {
					c.maxY = p.y
				}

				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if dx == 0 && dy == 0 {
							continue
						}
						nx, ny := p.x+dx, p.y+dy
						if nx < 0 || nx >= m.Width || ny < 0 || ny >= m.Height {
							continue
						}
						nidx := ny*m.Width + nx
						if m.Bits[nidx] && !visited[nidx] {
							visited[nidx] = true
							stack = append(stack, point{nx, ny})
						}
					}
				}
			}
			comps = append(comps, c)
		}
	}
	return comps
}

// selectLargest filters components below minArea and picks the largest by
// area, breaking ties by centroid distance to the raster center.
func selectLargest(comps []component, minArea, width, height int) (component, bool) {
	kept := comps[:0]
	for _, c := range comps {
		if c.area >= minArea && c.area > 0 {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return component{}, false
	}

	cx := float64(width-1) / 2
	cy := float64(height-1) / 2
	centerDist := func(c component) float64 {
		mx := float64(c.sumX) / float64(c.area)
		my := float64(c.sumY) / float64(c.area)
		return math.Hypot(mx-cx, my-cy)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].area != kept[j].area {
			return kept[i].area > kept[j].area
		}
		return centerDist(kept[i]) < centerDist(kept[j])
	})
	return kept[0], true
}

// insetProportional shrinks the rectangle on all sides by pct of its long
// dimension, keeping the inset in pixels equal on both axes so the crop
// trims evenly regardless of orientation.
func insetProportional(r Rect, pct float64) Rect {
	if pct <= 0 {
		return r
	}
	long := r.Width()
	if r.Height() > long {
		long = r.Height()
	}
	px := int(math.Round(pct / 100 * float64(long)))
	return Rect{X1: r.X1 + px, Y1: r.Y1 + px, X2: r.X2 - px, Y2: r.Y2 - px}
}

// insetPerEdge shrinks each edge independently by a percentage of the
// rectangle's own width (left/right) or height (top/bottom).
func insetPerEdge(r Rect, b BorderPct) Rect {
	w := float64(r.Width())
	h := float64(r.Height())
	return Rect{
		X1: r.X1 + int(math.Round(b.Left/100*w)),
		Y1: r.Y1 + int(math.Round(b.Top/100*h)),
		X2: r.X2 - int(math.Round(b.Right/100*w)),
		Y2: r.Y2 - int(math.Round(b.Bottom/100*h)),
	}
}

// StatsRegion insets a crop per-edge by the EQ-ignore border percentages,
// producing the region color statistics are computed over. An ignore border
// so extreme it leaves no area degrades to the whole crop with a warning.
func StatsRegion(crop Rect, b BorderPct) Rect {
	stats := insetPerEdge(crop, b)
	if stats.Empty() {
		klog.Warningf("ignore border leaves no statistics region, using full crop")
		return crop
	}
	return stats
}

// Clamp restricts the rectangle to the given raster bounds.
func (r Rect) Clamp(width, height int) Rect {
	if r.X1 < 0 {
		r.X1 = 0
	}
	if r.Y1 < 0 {
		r.Y1 = 0
	}
	if r.X2 > width {
		r.X2 = width
	}
	if r.Y2 > height {
		r.Y2 = height
	}
	return r
}

package correct

import (
	"fmt"

	"github.com/scanlight/filmscan/internal/detect"
	"github.com/scanlight/filmscan/internal/mask"
	"github.com/scanlight/filmscan/internal/raster"
	"github.com/scanlight/filmscan/internal/settings"
	"k8s.io/klog/v2"
)

// Correct turns the detected frame of a scan into a finished positive.
//
// Parameters:
//   - r: the full source raster.
//   - crop: the visible frame rectangle in source coordinates.
//   - stats: the statistics region inside crop; pixels between crop and
//     stats (the EQ-ignore border) are excluded from histogram statistics
//     but remain in the output.
//   - s: the effective settings for this photo.
//
// Returns a new raster with crop's dimensions (mirrored when s.Flip is set,
// transposed when s.Rotation is odd).
//
// # Pipeline order
//
//  1. Extract crop sub-raster; apply horizontal flip
//  2. Per-channel black/white points over the statistics region
//  3. Film-base override: for Colour the base color is the stretch white
//     point, for Slide the black point, both in the film's native
//     (un-inverted) domain
//  4. Levels sliders nudge the stretch endpoints
//  5. Linear stretch per channel, clamped to the sample range
//  6. Film-type policy: BlackAndWhite stretches luminance, inverts, and
//     replicates it; Colour inverts after the stretch; Slide does neither
//  7. White balance as per-channel gains, after inversion
//  8. Tone: gamma, shadows/highlights, saturation
//  9. Rotation in quarter turns clockwise
//
// # Errors
//
// A *DegenerateHistogramError return is advisory: it flags channels whose
// stretch degenerated to identity, and the returned raster is still valid.
// Any other non-nil error means no output was produced.
func Correct(r *raster.Raster, crop, stats detect.Rect, s settings.PhotoSettings) (*raster.Raster, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	sub, err := r.SubRaster(crop.X1, crop.Y1, crop.X2, crop.Y2)
	if err != nil {
		return nil, fmt.Errorf("extract frame: %w", err)
	}

	statsLocal := localize(stats, crop)
	if s.Flip {
		sub = sub.FlipH()
		statsLocal = mirrorX(statsLocal, sub.Width)
	}

	var out *raster.Raster
	var degen *DegenerateHistogramError
	if s.FilmType == settings.BlackAndWhite {
		out, degen = monochrome(sub, statsLocal, s.Levels)
	} else {
		out, degen = polychrome(sub, statsLocal, s)
	}

	out = applyGains(out, Gains(s.WhiteBalance))
	out = applyTone(out, s.Tone)
	out = out.Rotate(s.Rotation)

	if degen != nil {
		klog.Warningf("degenerate histogram: %v", degen)
		return out, degen
	}
	return out, nil
}

// polychrome runs the color path: per-channel stretch with optional
// film-base override, then inversion for negatives.
func polychrome(sub *raster.Raster, statsLocal detect.Rect, s settings.PhotoSettings) (*raster.Raster, *DegenerateHistogramError) {
	black, white := channelStats(sub, statsLocal)

	// The base color is sampled from unexposed film stock, so it marks the
	// brightest transmission of a negative and the deepest of a slide.
	// Either way it pins one end of the stretch in the native domain.
	if s.BaseColor != nil {
		base := [raster.Channels]float64{
			float64(s.BaseColor.R) * 257,
			float64(s.BaseColor.G) * 257,
			float64(s.BaseColor.B) * 257,
		}
		for c := range base {
			if s.FilmType == settings.Colour {
				white[c] = base[c]
			} else {
				black[c] = base[c]
			}
		}
	}

	sBlack, sWhite := levelOffsets(s.Levels)

	var degen *DegenerateHistogramError
	var scale, sb [raster.Channels]float64
	for c := 0; c < raster.Channels; c++ {
		span := white[c] - black[c] + sBlack
		if white[c] > black[c] && span > 0 {
			scale[c] = (raster.MaxSample + sWhite) / span
			sb[c] = sBlack
			continue
		}
		// Flat channel: identity mapping, never divide by zero.
		black[c] = 0
		white[c] = raster.MaxSample
		scale[c] = 1
		if degen == nil {
			degen = &DegenerateHistogramError{}
		}
		degen.Channels = append(degen.Channels, c)
	}

	out := sub.Clone()
	invert := s.FilmType == settings.Colour
	for i := 0; i < len(out.Pix); i += raster.Channels {
		for c := 0; c < raster.Channels; c++ {
			v := float64(out.Pix[i+c])
			var d float64
			if invert {
				d = white[c] + sb[c] - v
			} else {
				d = v - black[c] + sb[c]
			}
			out.Pix[i+c] = clampSample(d * scale[c])
		}
	}
	return out, degen
}

// monochrome runs the black-and-white path: luminance stretch, inversion,
// gray replicated across all channels.
func monochrome(sub *raster.Raster, statsLocal detect.Rect, l settings.Levels) (*raster.Raster, *DegenerateHistogramError) {
	black, white := lumaStats(sub, statsLocal)
	sBlack, sWhite := levelOffsets(l)

	var degen *DegenerateHistogramError
	scale, sb := 1.0, 0.0
	span := white - black + sBlack
	if white > black && span > 0 {
		scale = (raster.MaxSample + sWhite) / span
		sb = sBlack
	} else {
		white = raster.MaxSample
		degen = &DegenerateHistogramError{Channels: []int{0, 1, 2}}
	}

	out := sub.Clone()
	for i := 0; i < len(out.Pix); i += raster.Channels {
		luma := mask.Luminance(out.Pix[i], out.Pix[i+1], out.Pix[i+2])
		g := clampSample((white + sb - luma) * scale)
		out.Pix[i] = g
		out.Pix[i+1] = g
		out.Pix[i+2] = g
	}
	return out, degen
}

// levelsSensitivity scales the black/white point sliders so full deflection
// moves a stretch endpoint by a fifth of the sample range.
const levelsSensitivity = 0.2

// levelOffsets converts the slider percentages into sample-domain offsets.
func levelOffsets(l settings.Levels) (sBlack, sWhite float64) {
	sBlack = l.BlackPoint / 100 * levelsSensitivity * raster.MaxSample
	sWhite = l.WhitePoint / 100 * levelsSensitivity * raster.MaxSample
	return sBlack, sWhite
}

// clampSample clips a float sample to the representable range. Values are
// clipped, never wrapped, so no settings combination can overflow.
func clampSample(v float64) uint16 {
	if v <= 0 {
		return 0
	}
	if v >= raster.MaxSample {
		return raster.MaxSample
	}
	return uint16(v + 0.5)
}

// localize translates a source-coordinate rectangle into crop-local
// coordinates, clamped to the crop.
func localize(r, crop detect.Rect) detect.Rect {
	out := detect.Rect{
		X1: r.X1 - crop.X1,
		Y1: r.Y1 - crop.Y1,
		X2: r.X2 - crop.X1,
		Y2: r.Y2 - crop.Y1,
	}
	if out.X1 < 0 {
		out.X1 = 0
	}
	if out.Y1 < 0 {
		out.Y1 = 0
	}
	if out.X2 > crop.Width() {
		out.X2 = crop.Width()
	}
	if out.Y2 > crop.Height() {
		out.Y2 = crop.Height()
	}
	if out.Empty() {
		return detect.Rect{X1: 0, Y1: 0, X2: crop.Width(), Y2: crop.Height()}
	}
	return out
}

// mirrorX reflects a crop-local rectangle across the vertical center line,
// keeping the statistics region aligned with a flipped frame.
func mirrorX(r detect.Rect, width int) detect.Rect {
	return detect.Rect{X1: width - r.X2, Y1: r.Y1, X2: width - r.X1, Y2: r.Y2}
}

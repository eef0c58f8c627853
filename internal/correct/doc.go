// Package correct reconstructs a positive image from a cropped film scan.
//
// The engine equalizes each color channel between histogram-derived black
// and white points, compensates for the film stock's base color, inverts
// negatives, and applies white balance and tone adjustments. All statistics
// are computed over the frame detector's statistics region, so sprocket-hole
// bands never skew the stretch.
//
// Everything here is a pure function over an immutable input raster and a
// settings record: the same inputs always produce the same output, which is
// what lets previews re-run the correction on every slider change and lets
// the batch orchestrator fan items out across workers.
//
// # Degenerate input
//
// A channel whose white point equals its black point cannot be stretched.
// Rather than divide by zero or fail the photo, the engine maps that channel
// through unchanged and reports a *DegenerateHistogramError alongside the
// finished raster.
package correct

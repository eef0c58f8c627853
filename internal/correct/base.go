package correct

import (
	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/scanlight/filmscan/internal/raster"
	"github.com/scanlight/filmscan/internal/settings"
	"k8s.io/klog/v2"
)

// PickBaseColor samples the film-base color from a region of the raw,
// un-inverted raster: the mean of a circle of the given radius around the
// normalized coordinates (x, y), typically an unexposed strip between
// frames or a separately scanned blank of the same stock.
//
// The result is reduced to 8 bits per channel, the precision the pickers
// and persisted settings work at.
func PickBaseColor(r *raster.Raster, x, y, radiusFrac float64) settings.RGB8 {
	mr, mg, mb := circleMean(r, x, y, radiusFrac)
	base := settings.RGB8{
		R: uint8(uint32(mr+0.5) >> 8),
		G: uint8(uint32(mg+0.5) >> 8),
		B: uint8(uint32(mb+0.5) >> 8),
	}

	hex := colorful.Color{
		R: mr / raster.MaxSample,
		G: mg / raster.MaxSample,
		B: mb / raster.MaxSample,
	}.Hex()
	klog.V(1).Infof("picked base color %s at (%.3f, %.3f)", hex, x, y)

	return base
}

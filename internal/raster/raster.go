package raster

import (
	"fmt"
	"image"
	"image/color"
)

// MaxSample is the largest representable sample value. The pipeline works in
// 16 bits per channel end to end; 8-bit inputs are scaled up on decode.
const MaxSample = 65535

// Channels is the number of color channels in every Raster.
const Channels = 3

// Raster is a decoded scan held as a flat slice of 16-bit linear-light RGB
// samples. Three consecutive samples (R, G, B) make one pixel; rows are
// stored top to bottom with a stride of Channels*Width.
//
// Rasters are treated as immutable once produced: every pipeline stage reads
// its input and returns a new Raster, so previews and batch renders can share
// decoded scans without copies or locks.
type Raster struct {
	// Pix holds the samples. Length is Channels * Width * Height.
	Pix []uint16

	// Width is the raster width in pixels.
	Width int

	// Height is the raster height in pixels.
	Height int
}

// New allocates a zeroed Raster of the given dimensions.
//
// Returns an error if either dimension is not positive.
func New(width, height int) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid raster dimensions %dx%d", width, height)
	}
	return &Raster{
		Pix:    make([]uint16, Channels*width*height),
		Width:  width,
		Height: height,
	}, nil
}

// Stride returns the number of samples per row.
func (r *Raster) Stride() int {
	return Channels * r.Width
}

// Bytes returns the in-memory size of the sample buffer in bytes.
func (r *Raster) Bytes() int64 {
	return int64(len(r.Pix)) * 2
}

// At returns the R, G, B samples of the pixel at (x, y).
// No bounds checking is performed; the caller must ensure coordinates are valid.
func (r *Raster) At(x, y int) (uint16, uint16, uint16) {
	i := y*r.Stride() + x*Channels
	return r.Pix[i], r.Pix[i+1], r.Pix[i+2]
}

// Set stores the R, G, B samples of the pixel at (x, y).
// No bounds checking is performed.
func (r *Raster) Set(x, y int, cr, cg, cb uint16) {
	i := y*r.Stride() + x*Channels
	r.Pix[i] = cr
	r.Pix[i+1] = cg
	r.Pix[i+2] = cb
}

// Clone returns a deep copy of the raster.
func (r *Raster) Clone() *Raster {
	out := &Raster{
		Pix:    make([]uint16, len(r.Pix)),
		Width:  r.Width,
		Height: r.Height,
	}
	copy(out.Pix, r.Pix)
	return out
}

// FromImage converts a decoded image.Image to a Raster.
//
// Samples are read through the color.Color interface, which yields
// alpha-premultiplied 16-bit components for every underlying image type, so
// both 8-bit and 16-bit sources convert without extra branching. Alpha is
// discarded; film scans are opaque.
func FromImage(img image.Image) (*Raster, error) {
	bounds := img.Bounds()
	out, err := New(bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			out.Pix[i] = uint16(cr)
			out.Pix[i+1] = uint16(cg)
			out.Pix[i+2] = uint16(cb)
			i += Channels
		}
	}
	return out, nil
}

// ToImage converts the raster to a 16-bit *image.NRGBA64, preserving the full
// sample depth. Used on the export path.
func (r *Raster) ToImage() *image.NRGBA64 {
	img := image.NewNRGBA64(image.Rect(0, 0, r.Width, r.Height))
	i := 0
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			img.SetNRGBA64(x, y, color.NRGBA64{
				R: r.Pix[i],
				G: r.Pix[i+1],
				B: r.Pix[i+2],
				A: MaxSample,
			})
			i += Channels
		}
	}
	return img
}

// ToImage8 converts the raster to an 8-bit *image.NRGBA for previews.
// Samples are truncated from 16 to 8 bits.
func (r *Raster) ToImage8() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	i := 0
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			j := img.PixOffset(x, y)
			img.Pix[j] = uint8(r.Pix[i] >> 8)
			img.Pix[j+1] = uint8(r.Pix[i+1] >> 8)
			img.Pix[j+2] = uint8(r.Pix[i+2] >> 8)
			img.Pix[j+3] = 0xff
			i += Channels
		}
	}
	return img
}

// SubRaster copies the rectangle [x0,x1)×[y0,y1) into a new Raster.
//
// Returns an error if the rectangle is empty or falls outside the raster.
func (r *Raster) SubRaster(x0, y0, x1, y1 int) (*Raster, error) {
	if x0 < 0 || y0 < 0 || x1 > r.Width || y1 > r.Height {
		return nil, fmt.Errorf("region (%d,%d)-(%d,%d) outside raster bounds %dx%d",
			x0, y0, x1, y1, r.Width, r.Height)
	}
	if x0 >= x1 || y0 >= y1 {
		return nil, fmt.Errorf("invalid region: (%d,%d)-(%d,%d)", x0, y0, x1, y1)
	}

	out, err := New(x1-x0, y1-y0)
	if err != nil {
		return nil, err
	}
	for y := y0; y < y1; y++ {
		src := y*r.Stride() + x0*Channels
		dst := (y - y0) * out.Stride()
		copy(out.Pix[dst:dst+out.Stride()], r.Pix[src:src+out.Stride()])
	}
	return out, nil
}

// FlipH returns a new raster mirrored across the vertical axis.
func (r *Raster) FlipH() *Raster {
	out := &Raster{
		Pix:    make([]uint16, len(r.Pix)),
		Width:  r.Width,
		Height: r.Height,
	}
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			cr, cg, cb := r.At(x, y)
			out.Set(r.Width-1-x, y, cr, cg, cb)
		}
	}
	return out
}

// FlipV returns a new raster mirrored across the horizontal axis.
func (r *Raster) FlipV() *Raster {
	out := &Raster{
		Pix:    make([]uint16, len(r.Pix)),
		Width:  r.Width,
		Height: r.Height,
	}
	stride := r.Stride()
	for y := 0; y < r.Height; y++ {
		src := y * stride
		dst := (r.Height - 1 - y) * stride
		copy(out.Pix[dst:dst+stride], r.Pix[src:src+stride])
	}
	return out
}

// Rotate returns the raster turned clockwise by the given number of quarter
// turns. Negative counts turn counter-clockwise; a multiple of four returns
// the receiver unchanged.
func (r *Raster) Rotate(turns int) *Raster {
	turns = ((turns % 4) + 4) % 4
	switch turns {
	case 0:
		return r
	case 2:
		return r.FlipH().FlipV()
	}
	out := &Raster{
		Pix:    make([]uint16, len(r.Pix)),
		Width:  r.Height,
		Height: r.Width,
	}
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			cr, cg, cb := r.At(x, y)
			if turns == 1 {
				out.Set(r.Height-1-y, x, cr, cg, cb)
			} else {
				out.Set(y, r.Width-1-x, cr, cg, cb)
			}
		}
	}
	return out
}

// Downsample returns a proxy raster whose width+height does not exceed
// maxSize, averaging sample blocks. Rasters already within the limit are
// returned unchanged. Previews render from proxies so interactive threshold
// changes stay cheap on large scans.
func (r *Raster) Downsample(maxSize int) *Raster {
	if maxSize <= 0 || r.Width+r.Height <= maxSize {
		return r
	}

	scale := float64(maxSize) / float64(r.Width+r.Height)
	w := int(float64(r.Width) * scale)
	h := int(float64(r.Height) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	out, _ := New(w, h)
	for y := 0; y < h; y++ {
		sy0 := y * r.Height / h
		sy1 := (y + 1) * r.Height / h
		if sy1 <= sy0 {
			sy1 = sy0 + 1
		}
		for x := 0; x < w; x++ {
			sx0 := x * r.Width / w
			sx1 := (x + 1) * r.Width / w
			if sx1 <= sx0 {
				sx1 = sx0 + 1
			}

			var sr, sg, sb, n uint64
			for sy := sy0; sy < sy1; sy++ {
				i := sy*r.Stride() + sx0*Channels
				for sx := sx0; sx < sx1; sx++ {
					sr += uint64(r.Pix[i])
					sg += uint64(r.Pix[i+1])
					sb += uint64(r.Pix[i+2])
					i += Channels
					n++
				}
			}
			out.Set(x, y, uint16(sr/n), uint16(sg/n), uint16(sb/n))
		}
	}
	return out
}

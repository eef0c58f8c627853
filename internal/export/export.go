// Package export encodes corrected rasters to disk. JPEG and PNG go through
// bild's encoders at preview depth; TIFF preserves the full 16-bit output,
// which is the format to hand to external editors.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/scanlight/filmscan/internal/raster"
	"golang.org/x/image/tiff"
	"k8s.io/klog/v2"
)

// Format selects the output encoding.
type Format string

const (
	JPEG Format = "jpg"
	PNG  Format = "png"
	TIFF Format = "tiff"
)

// ParseFormat maps a user-supplied format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "jpg", "jpeg":
		return JPEG, nil
	case "png":
		return PNG, nil
	case "tif", "tiff":
		return TIFF, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// Ext returns the file extension for the format, without the dot.
func (f Format) Ext() string {
	return string(f)
}

// Options configure an export.
type Options struct {
	// Format selects the encoder.
	Format Format

	// Quality is the JPEG quality, 1-100. Ignored by other formats.
	Quality int
}

// Save encodes a corrected raster to path, creating parent directories as
// needed. The path's extension is replaced to match the format.
func Save(path string, r *raster.Raster, opts Options) (string, error) {
	ext := filepath.Ext(path)
	path = strings.TrimSuffix(path, ext) + "." + opts.Format.Ext()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}

	switch opts.Format {
	case TIFF:
		f, err := os.Create(path)
		if err != nil {
			return "", fmt.Errorf("create %s: %w", path, err)
		}
		defer f.Close()
		err = tiff.Encode(f, r.ToImage(), &tiff.Options{Compression: tiff.Deflate})
		if err != nil {
			return "", fmt.Errorf("encode tiff: %w", err)
		}
	case PNG:
		if err := imgio.Save(path, r.ToImage8(), imgio.PNGEncoder()); err != nil {
			return "", fmt.Errorf("save png: %w", err)
		}
	case JPEG:
		quality := opts.Quality
		if quality <= 0 || quality > 100 {
			quality = 90
		}
		if err := imgio.Save(path, r.ToImage8(), imgio.JPEGEncoder(quality)); err != nil {
			return "", fmt.Errorf("save jpeg: %w", err)
		}
	default:
		return "", fmt.Errorf("unknown export format %q", opts.Format)
	}

	klog.V(1).Infof("exported %s (%dx%d)", path, r.Width, r.Height)
	return path, nil
}

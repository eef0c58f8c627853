package raster

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/imgio"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"k8s.io/klog/v2"
)

// ErrUnsupportedFormat is reported when a file's extension is not a format
// the decoder understands.
var ErrUnsupportedFormat = errors.New("unsupported scan format")

// ErrCorruptFile is reported when a file with a supported extension fails to
// decode.
var ErrCorruptFile = errors.New("corrupt scan file")

// supportedExts maps recognized scan file extensions (lower case) to true.
// Camera RAW formats are deliberately absent: RAW development happens in an
// external decoder, and this module consumes its demosaiced output.
var supportedExts = map[string]bool{
	".tif":  true,
	".tiff": true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
}

// Supported reports whether path has a file extension the decoder accepts.
func Supported(path string) bool {
	return supportedExts[strings.ToLower(filepath.Ext(path))]
}

// Decode reads a scan from disk into a Raster.
//
// TIFF files decode through golang.org/x/image/tiff, which preserves 16-bit
// sample depth; everything else goes through bild's imgio. 8-bit sources are
// scaled up to the 16-bit working range during conversion.
//
// # Errors
//
//   - ErrUnsupportedFormat (wrapped) if the extension is not supported
//   - ErrCorruptFile (wrapped) if the file exists but cannot be decoded
//   - the underlying error if the file cannot be opened
func Decode(path string) (*Raster, error) {
	if !Supported(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".tif" || ext == ".tiff" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open scan: %w", err)
		}
		defer f.Close()

		img, err := tiff.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptFile, path, err)
		}
		return FromImage(img)
	}

	img, err := imgio.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("open scan: %w", err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptFile, path, err)
	}

	klog.V(1).Infof("decoded %s: %dx%d", path, img.Bounds().Dx(), img.Bounds().Dy())
	return FromImage(img)
}

// DecodedSize reports the bytes a scan will occupy once decoded into a
// Raster, read from the file header without touching pixel data. It shares
// Decode's error contract.
func DecodedSize(path string) (int64, error) {
	if !Supported(path) {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open scan: %w", err)
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	var cfg image.Config
	if ext == ".tif" || ext == ".tiff" {
		cfg, err = tiff.DecodeConfig(f)
	} else {
		cfg, _, err = image.DecodeConfig(f)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrCorruptFile, path, err)
	}
	return int64(cfg.Width) * int64(cfg.Height) * Channels * 2, nil
}

package raster

import (
	"fmt"

	exiftool "github.com/barasher/go-exiftool"
	"k8s.io/klog/v2"
)

// Metadata holds the subset of scan EXIF fields carried through to export.
type Metadata struct {
	CameraMake       string `json:"camera_make,omitempty"`
	CameraModel      string `json:"camera_model,omitempty"`
	LensMake         string `json:"lens_make,omitempty"`
	LensModel        string `json:"lens_model,omitempty"`
	DateTimeOriginal string `json:"date_time_original,omitempty"`
}

// ReadMetadata extracts export-relevant EXIF fields from a scan using
// exiftool. Missing fields are left empty; only a failed extraction is an
// error, so scans without EXIF still process normally.
func ReadMetadata(path string) (*Metadata, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("exiftool: %w", err)
	}
	defer et.Close()

	fis := et.ExtractMetadata(path)
	if len(fis) == 0 {
		return nil, fmt.Errorf("exiftool returned nothing for %q", path)
	}
	fi := fis[0]
	if fi.Err != nil {
		return nil, fmt.Errorf("extract fail for %q: %w", path, fi.Err)
	}

	m := &Metadata{}
	m.CameraMake, _ = fi.GetString("Make")
	m.CameraModel, _ = fi.GetString("Model")
	m.LensMake, _ = fi.GetString("LensMake")
	m.LensModel, _ = fi.GetString("LensModel")
	m.DateTimeOriginal, err = fi.GetString("DateTimeOriginal")
	if err != nil {
		klog.V(1).Infof("no capture date for %s: %v", path, err)
	}
	return m, nil
}

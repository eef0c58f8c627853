// Package raster provides the in-memory representation of decoded film
// scans and the adapters that produce it.
//
// A Raster is a flat buffer of 16-bit linear-light RGB samples. The rest of
// the pipeline (masking, frame detection, color correction) reads Rasters and
// produces new ones; nothing mutates a Raster after it leaves this package,
// which is what makes batch rendering embarrassingly parallel.
//
// The package also owns the decode boundary: Decode turns supported scan
// files (16-bit TIFF preserved at full depth, common 8-bit formats scaled up)
// into Rasters, Cache memoizes decodes under a memory ceiling, and
// ReadMetadata extracts the EXIF fields worth carrying to export. Camera RAW
// development is deliberately outside this module; an external decoder is
// expected to hand over demosaiced TIFFs.
package raster

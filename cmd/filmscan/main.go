// filmscan converts flatbed or camera scans of film negatives into positive
// images. It walks an input directory, detects the exposed frame in every
// scan, applies the stored per-photo corrections and writes the results to
// the output directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/fsnotify/fsnotify"
	"github.com/scanlight/filmscan/internal/batch"
	"github.com/scanlight/filmscan/internal/export"
	"github.com/scanlight/filmscan/internal/preview"
	"github.com/scanlight/filmscan/internal/raster"
	"github.com/scanlight/filmscan/internal/settings"
)

var (
	inDir       = flag.String("in", "", "directory of scanned negatives")
	outDir      = flag.String("out", "", "directory for converted positives")
	settingsDir = flag.String("settings", "", "directory for settings sidecars (default: <in>/.filmscan)")
	workers     = flag.Int("workers", runtime.NumCPU(), "number of concurrent conversions")
	format      = flag.String("format", "jpg", "output format: jpg, png or tiff")
	quality     = flag.Int("quality", 90, "JPEG quality, 1-100")
	cacheMB     = flag.Int64("cache-mb", 4096, "decoded raster cache ceiling in megabytes")
	watchFlag   = flag.Bool("watch", false, "watch the input directory and reconvert on changes")
	dryRun      = flag.Bool("dry-run", false, "detect and correct but do not write output files")
	exifFlag    = flag.Bool("exif", false, "log camera and capture metadata for each scan")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *inDir == "" {
		klog.Exitf("--in is a required flag")
	}
	if *outDir == "" && !*dryRun {
		klog.Exitf("--out is a required flag")
	}

	fmtOut, err := export.ParseFormat(*format)
	if err != nil {
		klog.Exitf("bad --format: %v", err)
	}

	sdir := *settingsDir
	if sdir == "" {
		sdir = filepath.Join(*inDir, ".filmscan")
	}
	store, err := settings.NewStore(sdir)
	if err != nil {
		klog.Exitf("settings store: %v", err)
	}

	cache := raster.NewCache(*cacheMB << 20)
	orch := batch.New(cache, *workers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, orch, store, fmtOut); err != nil {
		klog.Exitf("conversion failed: %v", err)
	}

	if *watchFlag {
		if err := watch(ctx, orch, store, fmtOut); err != nil {
			klog.Exitf("watch failed: %v", err)
		}
	}
}

// run converts every scan under the input directory once.
func run(ctx context.Context, orch *batch.Orchestrator, store *settings.Store, f export.Format) error {
	global, err := store.LoadGlobal()
	if err != nil {
		return fmt.Errorf("load global settings: %w", err)
	}

	items, err := batch.Import(*inDir, store, settings.Defaults())
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	if len(items) == 0 {
		klog.Warningf("no supported scans found under %s", *inDir)
		return nil
	}
	klog.Infof("converting %d scans with %d workers", len(items), *workers)

	results := orch.RenderAll(ctx, items, global)

	failed, skipped := 0, 0
	for _, res := range results {
		if res.Skipped {
			skipped++
			klog.V(1).Infof("%s: rejected, not exported", res.Path)
			continue
		}
		if res.Err != nil {
			failed++
			klog.Errorf("%s: %v", res.Path, res.Err)
			continue
		}
		if res.Warning != nil {
			klog.Warningf("%s: %v", res.Path, res.Warning)
		}
		if *exifFlag {
			if md, err := raster.ReadMetadata(res.Path); err != nil {
				klog.Warningf("%s: no metadata: %v", res.Path, err)
			} else {
				klog.Infof("%s: %s %s, shot %s", res.Path, md.CameraMake, md.CameraModel, md.DateTimeOriginal)
			}
		}
		rel, err := filepath.Rel(*inDir, res.Path)
		if err != nil {
			rel = filepath.Base(res.Path)
		}
		if *dryRun {
			klog.Infof("%s: crop %+v (dry run, not written)", res.Path, res.Crop)
			if *outDir != "" {
				if err := writePreview(filepath.Join(*outDir, rel), res.Raster); err != nil {
					klog.Errorf("%s: %v", res.Path, err)
				}
			}
			continue
		}
		out, err := export.Save(filepath.Join(*outDir, rel), res.Raster, export.Options{
			Format:  f,
			Quality: *quality,
		})
		if err != nil {
			failed++
			klog.Errorf("%s: %v", res.Path, err)
			continue
		}
		klog.V(1).Infof("%s -> %s", res.Path, out)
	}

	klog.Infof("done: %d converted, %d rejected, %d failed", len(results)-failed-skipped, skipped, failed)
	if failed > 0 && failed == len(results)-skipped {
		return fmt.Errorf("all %d conversions failed", failed)
	}
	return nil
}

// writePreview saves a downscaled 8-bit rendition of a corrected frame, the
// dry-run stand-in for a full export.
func writePreview(path string, r *raster.Raster) error {
	ext := filepath.Ext(path)
	path = strings.TrimSuffix(path, ext) + ".preview.jpg"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	img := preview.Raw(r.Downsample(2000), 0)
	if err := imgio.Save(path, img, imgio.JPEGEncoder(80)); err != nil {
		return fmt.Errorf("save preview: %w", err)
	}
	return nil
}

// watch reconverts the batch whenever a file under the input directory is
// written, created, renamed or removed.
func watch(ctx context.Context, orch *batch.Orchestrator, store *settings.Store, f export.Format) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(*inDir); err != nil {
		return fmt.Errorf("watch %s: %w", *inDir, err)
	}
	klog.Infof("watching %s ...", *inDir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			klog.V(1).Infof("change detected: %s", event)
			if err := run(ctx, orch, store, f); err != nil {
				klog.Errorf("reconvert: %v", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			klog.Errorf("watcher: %v", err)
		}
	}
}

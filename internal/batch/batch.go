// Package batch drives the detection and correction pipeline across a set of
// photos.
//
// Each item renders independently from its own raster and its effective
// settings, so the orchestrator fans the batch out across a bounded worker
// pool. The raster cache's memory ceiling provides backpressure: workers
// that cannot admit another decode wait for a slot instead of exhausting
// memory. A failed item is recorded in its Result and never aborts the rest
// of the batch.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/scanlight/filmscan/internal/correct"
	"github.com/scanlight/filmscan/internal/detect"
	"github.com/scanlight/filmscan/internal/mask"
	"github.com/scanlight/filmscan/internal/raster"
	"github.com/scanlight/filmscan/internal/settings"
	"k8s.io/klog/v2"
)

// ErodeRadius is the mask cleanup radius applied before frame detection,
// trimming threshold fuzz so the frame blob separates from holder edges.
const ErodeRadius = 2

// Item is one photo in the batch: a scan on disk plus its own settings
// record. Items are created on import and removed with the photo.
type Item struct {
	// Path is the scan file location.
	Path string

	// Settings is the photo's own record; whether it is used or the
	// global record applies is resolved fresh at render time.
	Settings settings.PhotoSettings
}

// Result is the outcome of rendering one item. Exactly one of Raster or Err
// is meaningful; Warning may accompany a valid Raster (degenerate histogram
// fallback).
type Result struct {
	// Index is the item's position in the batch, preserved so callers can
	// correlate results regardless of completion order.
	Index int

	// Path is the item's scan path.
	Path string

	// Raster is the corrected output, nil on error.
	Raster *raster.Raster

	// Crop is the frame rectangle the output was cut from.
	Crop detect.Rect

	// Skipped is set when the photo is marked rejected; Raster and Err
	// are both nil.
	Skipped bool

	// Warning carries advisory conditions (identity-mapped channels).
	Warning error

	// Err is the failure that prevented output, nil on success.
	Err error
}

// Orchestrator renders batches. The zero value is not usable; construct with
// New.
type Orchestrator struct {
	cache   *raster.Cache
	workers int

	// EvictAfterRender drops each item's decoded raster from the cache
	// once its render finishes, freeing ceiling for waiting workers. On
	// by default so a bounded cache always makes progress; interactive
	// callers clear it to keep decoded scans warm for previews.
	EvictAfterRender bool
}

// New creates an Orchestrator over the given cache. workers bounds the
// render pool; values below 1 default to the CPU count.
func New(cache *raster.Cache, workers int) *Orchestrator {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Orchestrator{cache: cache, workers: workers, EvictAfterRender: true}
}

// RenderAll renders every item and returns one Result per item, in batch
// order. Items render independently across the worker pool; a per-item
// failure is captured in its Result, so one corrupt scan never blocks the
// rest.
//
// Cancelling the context stops the batch between items: in-flight renders
// finish and are reported, undispatched items return ctx.Err() in their
// Result. Already-completed results are never discarded.
func (o *Orchestrator) RenderAll(ctx context.Context, items []*Item, global settings.GlobalSettings) []Result {
	results := make([]Result, len(items))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = o.renderOne(ctx, idx, items[idx], global)
			}
		}()
	}

dispatch:
	for i := range items {
		select {
		case <-ctx.Done():
			for j := i; j < len(items); j++ {
				results[j] = Result{Index: j, Path: items[j].Path, Err: ctx.Err()}
			}
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	return results
}

// renderOne runs the full pipeline for a single item.
func (o *Orchestrator) renderOne(ctx context.Context, idx int, item *Item, global settings.GlobalSettings) Result {
	res := Result{Index: idx, Path: item.Path}

	if item.Settings.Reject {
		res.Skipped = true
		return res
	}

	eff := settings.Resolve(item.Settings, global)
	if err := eff.Validate(); err != nil {
		res.Err = fmt.Errorf("settings for %s: %w", item.Path, err)
		return res
	}

	r, err := o.cache.Load(ctx, item.Path)
	if err != nil {
		res.Err = err
		return res
	}
	if o.EvictAfterRender {
		defer o.cache.Evict(item.Path)
	}

	crop, stats, err := o.frame(r, eff)
	if err != nil {
		res.Err = fmt.Errorf("detect frame in %s: %w", item.Path, err)
		return res
	}
	res.Crop = crop

	out, err := correct.Correct(r, crop, stats, eff)
	var degen *correct.DegenerateHistogramError
	if errors.As(err, &degen) {
		res.Warning = degen
	} else if err != nil {
		res.Err = fmt.Errorf("correct %s: %w", item.Path, err)
		return res
	}

	res.Raster = out
	klog.V(1).Infof("rendered %s: crop=%+v %s", item.Path, crop, eff.FilmType)
	return res
}

// frame resolves the crop and statistics rectangles, honoring a manual crop
// override when one is set.
func (o *Orchestrator) frame(r *raster.Raster, eff settings.PhotoSettings) (detect.Rect, detect.Rect, error) {
	if eff.CropOverride != nil {
		crop := eff.CropOverride.Clamp(r.Width, r.Height)
		if crop.Empty() {
			return detect.Rect{}, detect.Rect{}, fmt.Errorf("%w: override outside raster", detect.ErrEmptyCrop)
		}
		return crop, detect.StatsRegion(crop, eff.IgnoreBorderPct), nil
	}

	m, err := mask.Compute(r, eff.Thresholds)
	if err != nil {
		return detect.Rect{}, detect.Rect{}, err
	}
	m = m.Erode(ErodeRadius)

	return detect.Crop(m, detect.Options{
		BorderCropPct:   eff.BorderCropPct,
		IgnoreBorderPct: eff.IgnoreBorderPct,
	})
}

// ApplyGlobalToAll forces a settings recomputation for every synced item and
// returns the indices that now need re-rendering. Items with SyncWithGlobal
// unset are never touched. Resolution itself happens again at render time;
// this pass exists so callers know exactly which outputs a global edit
// invalidated.
func ApplyGlobalToAll(items []*Item, global settings.GlobalSettings) []int {
	var affected []int
	for i, item := range items {
		if item.Settings.SettingsSource() != settings.UsesGlobal {
			continue
		}
		affected = append(affected, i)
	}
	klog.V(1).Infof("global settings change affects %d of %d items", len(affected), len(items))
	return affected
}

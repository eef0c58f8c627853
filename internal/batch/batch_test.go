package batch

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scanlight/filmscan/internal/correct"
	"github.com/scanlight/filmscan/internal/detect"
	"github.com/scanlight/filmscan/internal/raster"
	"github.com/scanlight/filmscan/internal/settings"
)

// writeScan writes a synthetic negative to dir: a dark field with a centered
// 60x60 frame whose gray sweeps 30% to 70%, enough contrast for detection
// and a non-degenerate histogram.
func writeScan(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	for y := 20; y < 80; y++ {
		for x := 20; x < 80; x++ {
			v := uint8(77 + (x-20)*102/59)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return path
}

// testItems writes n scans and wraps them in default-settings items.
func testItems(t *testing.T, dir string, n int) []*Item {
	t.Helper()
	items := make([]*Item, n)
	for i := range items {
		path := writeScan(t, dir, "scan"+string(rune('a'+i))+".png")
		items[i] = &Item{Path: path, Settings: settings.Defaults()}
	}
	return items
}

func TestRenderAll(t *testing.T) {
	items := testItems(t, t.TempDir(), 5)
	orch := New(raster.NewCache(0), 3)

	results := orch.RenderAll(context.Background(), items, settings.Defaults())
	if len(results) != len(items) {
		t.Fatalf("got %d results, want %d", len(results), len(items))
	}
	for i, res := range results {
		if res.Index != i {
			t.Errorf("result %d: Index = %d", i, res.Index)
		}
		if res.Path != items[i].Path {
			t.Errorf("result %d: Path = %s, want %s", i, res.Path, items[i].Path)
		}
		if res.Err != nil {
			t.Errorf("result %d: unexpected error: %v", i, res.Err)
			continue
		}
		if res.Raster == nil {
			t.Errorf("result %d: nil raster", i)
			continue
		}
		if res.Crop.Empty() {
			t.Errorf("result %d: empty crop %+v", i, res.Crop)
		}
		if res.Raster.Width != res.Crop.Width() || res.Raster.Height != res.Crop.Height() {
			t.Errorf("result %d: raster %dx%d does not match crop %+v",
				i, res.Raster.Width, res.Raster.Height, res.Crop)
		}
	}
}

func TestRenderAll_CorruptItemIsolated(t *testing.T) {
	dir := t.TempDir()
	items := testItems(t, dir, 5)

	// Replace the middle scan with garbage.
	if err := os.WriteFile(items[2].Path, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	orch := New(raster.NewCache(0), 2)
	results := orch.RenderAll(context.Background(), items, settings.Defaults())

	if !errors.Is(results[2].Err, raster.ErrCorruptFile) {
		t.Errorf("corrupt item: got %v, want ErrCorruptFile", results[2].Err)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if results[i].Err != nil {
			t.Errorf("item %d should be unaffected, got %v", i, results[i].Err)
		}
	}
}

func TestRenderAll_Cancelled(t *testing.T) {
	items := testItems(t, t.TempDir(), 6)
	orch := New(raster.NewCache(0), 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := orch.RenderAll(ctx, items, settings.Defaults())
	if len(results) != len(items) {
		t.Fatalf("got %d results, want %d", len(results), len(items))
	}
	cancelled := 0
	for i, res := range results {
		if res.Err == nil {
			// Dispatched before the cancellation was observed.
			continue
		}
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("result %d: got %v, want context.Canceled", i, res.Err)
		}
		cancelled++
	}
	if cancelled == 0 {
		t.Error("a cancelled batch should leave undispatched items unrendered")
	}
}

func TestRenderAll_GlobalAppliesToSyncedOnly(t *testing.T) {
	items := testItems(t, t.TempDir(), 5)

	// Items 1 and 3 carry their own settings; the rest follow global.
	for _, i := range []int{1, 3} {
		items[i].Settings.SyncWithGlobal = false
	}

	// A global record that cannot validate: only synced items should fail.
	global := settings.Defaults()
	global.FilmType = settings.FilmType(99)

	orch := New(raster.NewCache(0), 2)
	results := orch.RenderAll(context.Background(), items, global)

	for i, res := range results {
		synced := items[i].Settings.SyncWithGlobal
		if synced && res.Err == nil {
			t.Errorf("item %d follows global and should fail validation", i)
		}
		if !synced && res.Err != nil {
			t.Errorf("item %d overrides global, got %v", i, res.Err)
		}
	}
}

func TestApplyGlobalToAll(t *testing.T) {
	items := testItems(t, t.TempDir(), 5)
	for _, i := range []int{1, 3} {
		items[i].Settings.SyncWithGlobal = false
	}

	affected := ApplyGlobalToAll(items, settings.Defaults())
	want := []int{0, 2, 4}
	if len(affected) != len(want) {
		t.Fatalf("affected: got %v, want %v", affected, want)
	}
	for i := range want {
		if affected[i] != want[i] {
			t.Fatalf("affected: got %v, want %v", affected, want)
		}
	}
}

func TestRenderAll_Backpressure(t *testing.T) {
	items := testItems(t, t.TempDir(), 4)

	// Ceiling admits one decoded 100x100 scan at a time; workers must take
	// turns, evicting as they finish.
	ceiling := int64(100*100*raster.Channels*2 + 1)
	orch := New(raster.NewCache(ceiling), 4)

	results := orch.RenderAll(context.Background(), items, settings.Defaults())
	for i, res := range results {
		if res.Err != nil {
			t.Errorf("item %d: %v", i, res.Err)
		}
	}
}

func TestRenderAll_CeilingSmallerThanBatch(t *testing.T) {
	// Two scans against a ceiling that holds only one: a stock orchestrator
	// must still finish the whole batch instead of stalling on admission.
	items := testItems(t, t.TempDir(), 2)
	ceiling := int64(100*100*raster.Channels*2 + 1)
	orch := New(raster.NewCache(ceiling), 2)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results := orch.RenderAll(ctx, items, settings.Defaults())
	for i, res := range results {
		if res.Err != nil {
			t.Errorf("item %d: %v", i, res.Err)
		}
		if res.Raster == nil {
			t.Errorf("item %d: nil raster", i)
		}
	}
}

func TestRenderAll_RejectedSkipped(t *testing.T) {
	items := testItems(t, t.TempDir(), 3)
	items[1].Settings.Reject = true

	orch := New(raster.NewCache(0), 2)
	results := orch.RenderAll(context.Background(), items, settings.Defaults())

	res := results[1]
	if !res.Skipped {
		t.Error("rejected item should be marked skipped")
	}
	if res.Raster != nil || res.Err != nil {
		t.Errorf("rejected item: raster=%v err=%v, want neither", res.Raster, res.Err)
	}
	for _, i := range []int{0, 2} {
		if results[i].Skipped || results[i].Err != nil {
			t.Errorf("item %d should render normally: skipped=%v err=%v", i, results[i].Skipped, results[i].Err)
		}
	}
}

func TestRenderAll_ScanExceedsCeiling(t *testing.T) {
	items := testItems(t, t.TempDir(), 1)

	orch := New(raster.NewCache(100), 1)
	results := orch.RenderAll(context.Background(), items, settings.Defaults())

	if !errors.Is(results[0].Err, raster.ErrResourceExhausted) {
		t.Errorf("got %v, want ErrResourceExhausted", results[0].Err)
	}
}

func TestRenderAll_CropOverride(t *testing.T) {
	items := testItems(t, t.TempDir(), 1)
	override := detect.Rect{X1: 30, Y1: 30, X2: 70, Y2: 70}
	items[0].Settings.SyncWithGlobal = false
	items[0].Settings.CropOverride = &override

	orch := New(raster.NewCache(0), 1)
	results := orch.RenderAll(context.Background(), items, settings.Defaults())

	if results[0].Err != nil {
		t.Fatalf("render failed: %v", results[0].Err)
	}
	if results[0].Crop != override {
		t.Errorf("crop: got %+v, want %+v", results[0].Crop, override)
	}
}

func TestRenderAll_FlatFrameWarns(t *testing.T) {
	dir := t.TempDir()

	// A frame with no tonal variation: still renders, with a warning.
	img := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	for y := 20; y < 80; y++ {
		for x := 20; x < 80; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}
	path := filepath.Join(dir, "flat.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.Close()

	items := []*Item{{Path: path, Settings: settings.Defaults()}}
	orch := New(raster.NewCache(0), 1)
	results := orch.RenderAll(context.Background(), items, settings.Defaults())

	res := results[0]
	if res.Err != nil {
		t.Fatalf("flat frame should still render: %v", res.Err)
	}
	if res.Raster == nil {
		t.Fatal("flat frame produced no raster")
	}
	var degen *correct.DegenerateHistogramError
	if !errors.As(res.Warning, &degen) {
		t.Errorf("Warning: got %v, want DegenerateHistogramError", res.Warning)
	}
}

func TestRenderAll_EvictAfterRender(t *testing.T) {
	items := testItems(t, t.TempDir(), 3)
	cache := raster.NewCache(0)
	orch := New(cache, 2)

	orch.RenderAll(context.Background(), items, settings.Defaults())
	if cache.Bytes() != 0 {
		t.Errorf("cache should be empty after the batch, holds %d bytes", cache.Bytes())
	}
}

func TestRenderAll_KeepCacheWarm(t *testing.T) {
	items := testItems(t, t.TempDir(), 2)
	cache := raster.NewCache(0)
	orch := New(cache, 2)
	orch.EvictAfterRender = false

	orch.RenderAll(context.Background(), items, settings.Defaults())
	if cache.Bytes() == 0 {
		t.Error("cache should keep decoded scans when eviction is off")
	}
}

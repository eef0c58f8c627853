package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/scanlight/filmscan/internal/settings"
)

func TestImport(t *testing.T) {
	dir := t.TempDir()
	store, err := settings.NewStore(filepath.Join(dir, ".filmscan"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	writeScan(t, dir, "roll_b.png")
	writeScan(t, dir, "roll_a.png")
	sub := filepath.Join(dir, "roll2")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeScan(t, sub, "frame1.png")

	// Noise the walk must skip.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".hidden.png"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	items, err := Import(dir, store, settings.Defaults())
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i-1].Path >= items[i].Path {
			t.Errorf("items not sorted: %s before %s", items[i-1].Path, items[i].Path)
		}
	}
}

func TestImport_SidecarSettingsApplied(t *testing.T) {
	dir := t.TempDir()
	store, err := settings.NewStore(filepath.Join(dir, ".filmscan"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	path := writeScan(t, dir, "scan.png")
	saved := settings.Defaults()
	saved.FilmType = settings.Slide
	saved.SyncWithGlobal = false
	if err := store.Save(path, saved); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	items, err := Import(dir, store, settings.Defaults())
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Settings.FilmType != settings.Slide || items[0].Settings.SyncWithGlobal {
		t.Errorf("sidecar not applied: %+v", items[0].Settings)
	}
}

func TestImport_DottedRoot(t *testing.T) {
	// A dot-named scan directory is a valid root; only entries below it
	// count as hidden.
	dir := filepath.Join(t.TempDir(), ".scans")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	store, err := settings.NewStore(filepath.Join(dir, ".filmscan"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	writeScan(t, dir, "scan.png")

	items, err := Import(dir, store, settings.Defaults())
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
}

func TestImport_EmptyTree(t *testing.T) {
	dir := t.TempDir()
	store, err := settings.NewStore(filepath.Join(dir, ".filmscan"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	items, err := Import(dir, store, settings.Defaults())
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items, want 0", len(items))
	}
}

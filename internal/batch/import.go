package batch

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/karrick/godirwalk"
	"github.com/scanlight/filmscan/internal/raster"
	"github.com/scanlight/filmscan/internal/settings"
	"k8s.io/klog/v2"
)

// Import walks a directory tree and creates one Item per supported scan
// file, each loaded with its persisted sidecar settings (or the store's
// fallback for scans seen for the first time). Hidden files and directories
// are skipped. Items are returned sorted by path so batch order is stable
// across runs.
func Import(root string, store *settings.Store, fallback settings.PhotoSettings) ([]*Item, error) {
	var items []*Item

	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			// The root itself may legitimately be dot-named.
			if path != root && filepath.Base(path)[0] == '.' {
				return godirwalk.SkipThis
			}
			if de.IsDir() || !raster.Supported(path) {
				return nil
			}

			s, err := store.Load(path, fallback)
			if err != nil {
				klog.Warningf("sidecar for %s unreadable, using defaults: %v", path, err)
				s = fallback
			}

			klog.V(1).Infof("imported %s", path)
			items = append(items, &Item{Path: path, Settings: s})
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	klog.Infof("imported %d scans from %s", len(items), root)
	return items, nil
}

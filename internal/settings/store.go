package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"
)

// globalFile is the name of the batch-wide settings record inside a store
// directory.
const globalFile = "global.json"

// Store persists settings records as JSON sidecar files in a single
// directory: one file per scan, keyed by the scan's basename, plus one
// global record. The representation round-trips losslessly, so a reloaded
// project renders identically.
type Store struct {
	dir string
}

// NewStore creates the store directory if needed and returns a Store over it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("settings dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// sidecarPath maps a scan path to its settings file.
func (st *Store) sidecarPath(scanPath string) string {
	base := filepath.Base(scanPath)
	noExt := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(st.dir, noExt+".json")
}

// Save writes the settings for one scan atomically (temp file + rename), so
// an interrupted write never corrupts an existing record.
func (st *Store) Save(scanPath string, s PhotoSettings) error {
	return writeJSON(st.sidecarPath(scanPath), s)
}

// Load reads the settings for one scan. A missing sidecar is not an error:
// the fallback record is returned, matching the behavior of a fresh import.
func (st *Store) Load(scanPath string, fallback PhotoSettings) (PhotoSettings, error) {
	s, err := readJSON(st.sidecarPath(scanPath))
	if os.IsNotExist(err) {
		klog.V(1).Infof("no sidecar for %s, using defaults", scanPath)
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}
	return s, nil
}

// SaveGlobal persists the batch-wide record.
func (st *Store) SaveGlobal(g GlobalSettings) error {
	return writeJSON(filepath.Join(st.dir, globalFile), g)
}

// LoadGlobal reads the batch-wide record, falling back to Defaults when none
// has been saved yet.
func (st *Store) LoadGlobal() (GlobalSettings, error) {
	g, err := readJSON(filepath.Join(st.dir, globalFile))
	if os.IsNotExist(err) {
		return Defaults(), nil
	}
	if err != nil {
		return Defaults(), err
	}
	return g, nil
}

func writeJSON(path string, s PhotoSettings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

func readJSON(path string) (PhotoSettings, error) {
	var s PhotoSettings
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// fileBackend persists the snapshot as one JSON document, replaced atomically
// via a temp file + rename so a crash mid-write never truncates state.
type fileBackend struct {
	path string
}

func openFile(path string) (backend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileBackend{path: path}, nil
}

func (f *fileBackend) load() (*Snapshot, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return emptySnapshot(), nil
	}
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return emptySnapshot(), nil
	}

	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, err
	}
	if snap.Subscriptions == nil {
		snap.Subscriptions = map[string]*Subscription{}
	}
	if snap.Statistics == nil {
		snap.Statistics = map[string]*RepositoryStatistics{}
	}
	return &snap, nil
}

func (f *fileBackend) save(snap *Snapshot) error {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *fileBackend) close() error { return nil }

package store

import (
	"errors"
	"strings"

	"ghnotify/pkg/logx"
)

// Config selects and configures the backend.
type Config struct {
	Driver string // "file" (default) or "sqlite"
	Path   string
}

// backend is the raw snapshot persistence. DB owns all locking; backends may
// assume single-threaded access.
type backend interface {
	load() (*Snapshot, error)
	save(*Snapshot) error
	close() error
}

// Open initializes the configured backend and loads the current snapshot.
func Open(cfg Config, log logx.Logger) (*DB, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	var (
		be  backend
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		be, err = openFile(cfg.Path)
	case "sqlite", "sqlite3":
		be, err = openSQLite(cfg.Path)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	snap, err := be.load()
	if err != nil {
		_ = be.close()
		return nil, err
	}
	if snap == nil {
		snap = emptySnapshot()
	}
	return &DB{be: be, snap: snap, log: log}, nil
}

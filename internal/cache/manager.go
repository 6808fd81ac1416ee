package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/logger"
)

// Manager restores and saves the configured cache paths around an entry's
// pipeline. Cache trouble is reported but never fails a run: a cold or
// unreachable cache only costs time.
type Manager struct {
	store Store
	paths []string
	root  string
	log   *logger.Logger
}

// NewManager builds a manager for the cache spec, or nil when caching is
// not configured. Without a remote store archives land in a cache
// directory under root.
func NewManager(spec config.Cache, root string, log *logger.Logger) (*Manager, error) {
	if len(spec.Paths) == 0 {
		return nil, nil
	}

	var store Store
	var err error
	if spec.Remote != nil {
		store, err = NewS3Store(spec.Remote)
	} else {
		store, err = NewLocalStore(filepath.Join(root, ".gridci", "cache"))
	}
	if err != nil {
		return nil, err
	}

	return &Manager{store: store, paths: spec.Paths, root: root, log: log}, nil
}

// Restore fetches and unpacks the archive for key. Misses and transport
// failures are logged and swallowed.
func (m *Manager) Restore(ctx context.Context, key string) {
	if m == nil {
		return
	}

	archive, cleanup, err := m.tempArchive(key)
	if err != nil {
		m.log.Warn(fmt.Sprintf("cache restore skipped: %v", err))
		return
	}
	defer cleanup()

	if err := m.store.Restore(ctx, key, archive); err != nil {
		if errors.Is(err, ErrMiss) {
			m.log.Debugf("cache miss for %s", key)
		} else {
			m.log.Warn(fmt.Sprintf("cache restore failed for %s: %v", key, err))
		}
		return
	}

	if err := Unpack(archive, m.root); err != nil {
		m.log.Warn(fmt.Sprintf("cache unpack failed for %s: %v", key, err))
		return
	}
	m.log.Debugf("cache restored for %s", key)
}

// Save packs the cache paths and uploads them under key. Failures are
// logged and swallowed.
func (m *Manager) Save(ctx context.Context, key string) {
	if m == nil {
		return
	}

	archive, cleanup, err := m.tempArchive(key)
	if err != nil {
		m.log.Warn(fmt.Sprintf("cache save skipped: %v", err))
		return
	}
	defer cleanup()

	packed, err := Pack(archive, m.root, m.paths)
	if err != nil {
		m.log.Warn(fmt.Sprintf("cache pack failed for %s: %v", key, err))
		return
	}
	if packed == 0 {
		m.log.Debugf("nothing to cache for %s", key)
		return
	}

	if err := m.store.Save(ctx, key, archive); err != nil {
		m.log.Warn(fmt.Sprintf("cache save failed for %s: %v", key, err))
		return
	}
	m.log.Debugf("cache saved for %s (%d paths)", key, packed)
}

func (m *Manager) tempArchive(key string) (string, func(), error) {
	file, err := os.CreateTemp("", "gridci-cache-"+sanitizeKey(key)+"-*.tar.gz")
	if err != nil {
		return "", nil, err
	}
	path := file.Name()
	file.Close()
	return path, func() { os.Remove(path) }, nil
}

func sanitizeKey(key string) string {
	out := make([]rune, 0, len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

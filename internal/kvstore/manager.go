package kvstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/epcore/vbstore/internal/config"
	vbstoreerrors "github.com/epcore/vbstore/internal/errors"
)

// vbucketDirPrefix names the on-disk directory holding one vBucket's
// database: <db_name>/rocksdb.<vbid>/.
const vbucketDirPrefix = "rocksdb."

// VBucketManager owns the vbid -> *StoreHandle map ("vb_db_mutex" in the
// source this is grounded on) and is the only place that opens or destroys
// a vBucket's on-disk database. The map mutex is held across map probes and
// inserts; it is also held while a vBucket's database is opened on first
// access and while ForEachHandle walks the open handles.
type VBucketManager struct {
	cfg    config.EngineConfig
	logger *zap.Logger
	cache  *pebble.Cache

	mu      sync.Mutex
	handles map[uint16]*StoreHandle
}

// NewVBucketManager creates a manager rooted at cfg.DBName. It does not
// open any vBucket database itself; call DiscoverVBuckets to open the ones
// already on disk, or rely on lazy Open on first access.
func NewVBucketManager(cfg config.EngineConfig, logger *zap.Logger) (*VBucketManager, error) {
	if cfg.DBName == "" {
		return nil, vbstoreerrors.ErrConfigInvalid("engine.db_name is required")
	}
	if err := os.MkdirAll(cfg.DBName, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db_name directory: %w", err)
	}

	return &VBucketManager{
		cfg:     cfg,
		logger:  logger,
		cache:   sharedBlockCache(cfg),
		handles: make(map[uint16]*StoreHandle),
	}, nil
}

func (m *VBucketManager) vbucketDir(vbid uint16) string {
	return filepath.Join(m.cfg.DBName, fmt.Sprintf("%s%d", vbucketDirPrefix, vbid))
}

// Acquire returns the shared StoreHandle for vbid, opening its database
// lazily on first access (creation succeeds even if the directory does not
// yet exist). The returned handle has one outstanding reference that the
// caller must release with handle.Release() when done.
func (m *VBucketManager) Acquire(vbid uint16) (*StoreHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.handles[vbid]; ok {
		h.Acquire()
		return h, nil
	}

	db, err := pebble.Open(m.vbucketDir(vbid), buildPebbleOptions(m.cfg, m.cache))
	if err != nil {
		return nil, fmt.Errorf("failed to open vbucket %d database: %w", vbid, err)
	}

	h := newStoreHandle(vbid, db)
	m.handles[vbid] = h
	h.Acquire()

	m.logger.Info("vbucket database opened", zap.Uint16("vbid", vbid))
	return h, nil
}

// WithHandle acquires the handle for vbid, runs fn, and releases the
// handle afterwards regardless of fn's outcome.
func (m *VBucketManager) WithHandle(vbid uint16, fn func(*StoreHandle) error) error {
	h, err := m.Acquire(vbid)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn(h)
}

// OpenVBuckets returns the vbids of every vBucket database currently open.
func (m *VBucketManager) OpenVBuckets() []uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]uint16, 0, len(m.handles))
	for vbid := range m.handles {
		out = append(out, vbid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ForEachHandle calls fn for every currently open handle, holding the map
// mutex for the duration — used by Stats & Introspection queries that walk
// the open-handles map without racing a concurrent DeleteVBucket.
func (m *VBucketManager) ForEachHandle(fn func(*StoreHandle)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.handles {
		fn(h)
	}
}

// DiscoverVBuckets enumerates cfg.DBName for entries matching
// "rocksdb.<N>", keeps only those where N mod max_shards == shard_id, and
// opens each one so its state can be read into the in-memory cache by the
// caller.
func (m *VBucketManager) DiscoverVBuckets() ([]uint16, error) {
	entries, err := os.ReadDir(m.cfg.DBName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list db_name directory: %w", err)
	}

	var discovered []uint16
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), vbucketDirPrefix) {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimPrefix(entry.Name(), vbucketDirPrefix), 10, 16)
		if err != nil {
			m.logger.Warn("skipping unrecognized entry in db_name directory", zap.String("name", entry.Name()))
			continue
		}
		vbid := uint16(n)
		if m.cfg.MaxShards > 0 && int(vbid)%m.cfg.MaxShards != m.cfg.ShardID {
			continue
		}
		discovered = append(discovered, vbid)
	}

	for _, vbid := range discovered {
		h, err := m.Acquire(vbid)
		if err != nil {
			return nil, fmt.Errorf("failed to open discovered vbucket %d: %w", vbid, err)
		}
		h.Release()
	}

	return discovered, nil
}

// DeleteVBucket removes vbid from the map, drains every outstanding
// reference (readers, writers, scans holding a handle acquired before the
// swap), then destroys the on-disk directory. This is the two-phase
// protocol from the lifecycle design: once removed from the map no new
// Acquire can observe the handle, so draining after the swap is race-free.
// A vBucket that is not currently open has its directory removed directly.
func (m *VBucketManager) DeleteVBucket(vbid uint16) error {
	m.mu.Lock()
	h, ok := m.handles[vbid]
	if ok {
		delete(m.handles, vbid)
	}
	m.mu.Unlock()

	if ok {
		h.drain()

		if err := h.Close(); err != nil {
			m.logger.Warn("error closing vbucket database before delete", zap.Uint16("vbid", vbid), zap.Error(err))
		}
	}

	if err := os.RemoveAll(m.vbucketDir(vbid)); err != nil {
		return vbstoreerrors.ErrDestroyFailed(vbid, err)
	}

	m.logger.Info("vbucket destroyed", zap.Uint16("vbid", vbid))
	return nil
}

// Reset clears a vBucket's data without removing its directory entry from
// the caller's perspective: it destroys and immediately reopens the
// database empty.
func (m *VBucketManager) Reset(vbid uint16) error {
	if err := m.DeleteVBucket(vbid); err != nil {
		return err
	}
	h, err := m.Acquire(vbid)
	if err != nil {
		return err
	}
	h.Release()
	return nil
}

// Close closes every open handle, in the order returned by the map
// iteration, dropping all handles without touching their on-disk files. It
// does not wait for outstanding references to be released. Used during
// engine shutdown; calling it again is harmless.
func (m *VBucketManager) Close() error {
	m.mu.Lock()
	handles := make([]*StoreHandle, 0, len(m.handles))
	for vbid, h := range m.handles {
		delete(m.handles, vbid)
		handles = append(handles, h)
	}
	cache := m.cache
	m.cache = nil
	m.mu.Unlock()

	var firstErr error
	for _, h := range handles {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if cache != nil {
		cache.Unref()
	}
	return firstErr
}

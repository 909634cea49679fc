package kvstore

import (
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/epcore/vbstore/internal/codec"
)

// columnFamily is a zero-cost view onto one tagged slice of a vBucket's
// keyspace. Unlike RocksDB, pebble has no separate *ColumnFamilyHandle
// object backed by its own OS resource — a columnFamily only remembers
// which tag byte to prefix reads and writes with.
type columnFamily struct {
	db  *pebble.DB
	tag cfTag
}

func (cf *columnFamily) Get(key []byte) ([]byte, error) {
	v, closer, err := cf.db.Get(taggedKey(cf.tag, key))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, closer.Close()
}

// StoreHandle owns one pebble database per vBucket together with the three
// column-family views layered on top of it, plus the vbid it serves.
// Handles are shared-ownership: VBucketManager hands the same *StoreHandle
// to every caller that resolves the same vbid, and tracks outstanding
// references with a WaitGroup so DeleteVBucket can drain readers, writers,
// and scans before destroying the on-disk files. This is the idiomatic Go
// stand-in for a spin-wait-until-unique-shared_ptr pattern: Acquire is
// Add(1), Release is Done(), and draining is Wait().
type StoreHandle struct {
	Vbid uint16

	db        *pebble.DB
	DefaultCF *columnFamily
	SeqnoCF   *columnFamily
	LocalCF   *columnFamily

	refs sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

func newStoreHandle(vbid uint16, db *pebble.DB) *StoreHandle {
	h := &StoreHandle{
		Vbid: vbid,
		db:   db,
	}
	h.DefaultCF = &columnFamily{db: db, tag: cfDefault}
	h.SeqnoCF = &columnFamily{db: db, tag: cfSeqno}
	h.LocalCF = &columnFamily{db: db, tag: cfLocal}
	return h
}

// Acquire registers a new shared reference to the handle. Callers must call
// Release exactly once for every successful Acquire.
func (h *StoreHandle) Acquire() {
	h.refs.Add(1)
}

// Release drops a shared reference acquired with Acquire.
func (h *StoreHandle) Release() {
	h.refs.Done()
}

// drain blocks until every outstanding Acquire has a matching Release. It
// must only be called after the handle has been removed from the manager's
// map, so that no new Acquire can observe it.
func (h *StoreHandle) drain() {
	h.refs.Wait()
}

// DB returns the underlying pebble database. Exposed for components (write
// path, scan engine) that need direct batch/snapshot/iterator access beyond
// what the per-CF views provide.
func (h *StoreHandle) DB() *pebble.DB {
	return h.db
}

// DefaultKey, SeqnoKey, and LocalKey build the tagged keys the write and
// scan paths need to address a specific column family directly against a
// *pebble.Batch, *pebble.Snapshot, or *pebble.Iterator — surfaces that
// columnFamily's own get() does not cover.
func (h *StoreHandle) DefaultKey(key []byte) []byte {
	return taggedKey(cfDefault, key)
}

func (h *StoreHandle) SeqnoKey(seqno int64) []byte {
	enc := codec.EncodeSeqno(seqno)
	return taggedKey(cfSeqno, enc[:])
}

func (h *StoreHandle) LocalKey(key []byte) []byte {
	return taggedKey(cfLocal, key)
}

// SeqnoFromKey strips the seqno column family's tag byte and decodes the
// remaining bytes as a seqno. It does not check the tag byte, and it panics
// if key is shorter than the tag byte plus an 8-byte seqno; callers must
// only pass keys read back from an iterator bounded to SeqnoCFBounds.
func SeqnoFromKey(key []byte) int64 {
	return codec.DecodeSeqno(key[1:])
}

// SeqnoCFBounds returns the [lower, upper) key range covering the entire
// seqno column family, for constructing iterators and snapshots scoped to
// just that family.
func SeqnoCFBounds() (lower, upper []byte) {
	lower = []byte{byte(cfSeqno)}
	upper = []byte{byte(cfSeqno) + 1}
	return lower, upper
}

// Close releases the handle's resources in the mandated order: the
// column-family views are dropped first (they hold no OS resource of their
// own but this keeps the release ordering explicit and matches the
// invariant that column-family handles are released before the database),
// and the database itself is closed last.
func (h *StoreHandle) Close() error {
	h.closeOnce.Do(func() {
		h.DefaultCF = nil
		h.SeqnoCF = nil
		h.LocalCF = nil
		h.closeErr = h.db.Close()
	})
	return h.closeErr
}

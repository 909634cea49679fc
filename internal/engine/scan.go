package engine

import (
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/epcore/vbstore/internal/codec"
	vbstoreerrors "github.com/epcore/vbstore/internal/errors"
	"github.com/epcore/vbstore/internal/kvstore"
	"github.com/epcore/vbstore/internal/model"
)

// ScanResult is the outcome of one Scan call.
type ScanResult int

const (
	ScanSuccess ScanResult = iota
	ScanAgain
	ScanFailed
)

// ScanCallbacks are the caller-supplied hooks invoked per candidate record.
// CacheLookup lets the caller short-circuit records already resident in a
// hot-value cache above this package; returning outOfMemory true pauses the
// scan with ScanAgain without advancing past the current record, so a
// later Scan call retries it once memory pressure has eased. Emit receives
// the document; body is nil when the scan's value filter is KeysOnly.
type ScanCallbacks struct {
	CacheLookup func(vbid uint16, key string, meta codec.MetaData) (alreadyCached bool, outOfMemory bool)
	Emit        func(vbid uint16, key string, meta codec.MetaData, body []byte) error
}

// scanContext is the state pinned for one open scan: a snapshot and an
// iterator scoped to the seqno column family, bounded by the caller's
// start/max seqno and held across possibly many Scan/ScanAgain calls.
type scanContext struct {
	vbid uint16

	handle *kvstore.StoreHandle
	snap   *pebble.Snapshot
	iter   *pebble.Iterator

	maxSeqno      int64
	lastReadSeqno int64
	started       bool
	done          bool

	docFilter model.DocumentFilter
	valFilter model.ValueFilter
	callbacks ScanCallbacks
}

// scanRegistry assigns and tracks open scanContexts by scan id.
type scanRegistry struct {
	mu     sync.Mutex
	nextID uint64
	scans  map[uint64]*scanContext
}

func newScanRegistry() *scanRegistry {
	return &scanRegistry{scans: make(map[uint64]*scanContext)}
}

func (r *scanRegistry) put(sc *scanContext) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.scans[id] = sc
	return id
}

func (r *scanRegistry) get(id uint64) *scanContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scans[id]
}

func (r *scanRegistry) remove(id uint64) *scanContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc := r.scans[id]
	delete(r.scans, id)
	return sc
}

// InitScan pins a consistent snapshot of vbid and opens an iterator over
// the seqno column family starting at startSeqno, bounded above by
// maxSeqno (0 means unbounded). The returned scan id must eventually be
// passed to DestroyScan to release the pinned snapshot and the vBucket
// reference it holds open.
func (e *Engine) InitScan(vbid uint16, startSeqno, maxSeqno int64, docFilter model.DocumentFilter, valFilter model.ValueFilter, callbacks ScanCallbacks) (uint64, error) {
	h, err := e.manager.Acquire(vbid)
	if err != nil {
		return 0, vbstoreerrors.ErrWriteFailed(vbid, err)
	}

	snap := h.DB().NewSnapshot()
	_, upper := kvstore.SeqnoCFBounds()
	iter, err := snap.NewIter(&pebble.IterOptions{LowerBound: h.SeqnoKey(startSeqno), UpperBound: upper})
	if err != nil {
		snap.Close()
		h.Release()
		return 0, vbstoreerrors.ErrWriteFailed(vbid, err)
	}

	sc := &scanContext{
		vbid:          vbid,
		handle:        h,
		snap:          snap,
		iter:          iter,
		maxSeqno:      maxSeqno,
		lastReadSeqno: startSeqno - 1,
		docFilter:     docFilter,
		valFilter:     valFilter,
		callbacks:     callbacks,
	}
	return e.scans.put(sc), nil
}

// Scan drives scanID's iterator forward over the seqno column family,
// reconciling every seqno->key mapping against the default column family
// record it currently points to (both read from the same pinned
// snapshot), per the per-iteration contract:
//
//  1. stop (ScanSuccess) once the iterator is exhausted or passes maxSeqno
//  2. skip a mapping whose target record is missing from the default CF
//  3. skip a mapping whose record.by_seqno is newer than the mapping's
//     seqno (the key was overwritten since this mapping was written)
//  4. panic with a CorruptIndex error if record.by_seqno is older — the
//     index points at data the store never produced
//  5. skip tombstones when the document filter excludes deletes
//  6. ask the caller's cache-lookup callback; skip already-cached records,
//     and pause with ScanAgain (without advancing) on an out-of-memory
//     signal so a later call retries the same record
//  7. otherwise emit the record to the caller's callback and advance
func (e *Engine) Scan(scanID uint64) (ScanResult, error) {
	sc := e.scans.get(scanID)
	if sc == nil {
		return ScanFailed, vbstoreerrors.New(vbstoreerrors.WriteFailed, 0, "unknown scan id", nil)
	}
	if sc.done {
		return ScanSuccess, nil
	}

	if !sc.started {
		sc.started = true
		if !sc.iter.First() {
			sc.done = true
			return ScanSuccess, nil
		}
	}

	for {
		if !sc.iter.Valid() {
			sc.done = true
			return ScanSuccess, nil
		}

		seqno := kvstore.SeqnoFromKey(sc.iter.Key())
		if sc.maxSeqno > 0 && seqno > sc.maxSeqno {
			sc.done = true
			return ScanSuccess, nil
		}

		key := string(sc.iter.Value())
		raw, closer, err := sc.snap.Get(sc.handle.DefaultKey([]byte(key)))
		if err == pebble.ErrNotFound {
			e.metrics.ScanStaleSkipsTotal.Inc()
			if !sc.iter.Next() {
				sc.done = true
				return ScanSuccess, nil
			}
			continue
		}
		if err != nil {
			return ScanFailed, vbstoreerrors.ErrWriteFailed(sc.vbid, err)
		}

		meta, body, derr := codec.DecodeRecord(raw, sc.valFilter == model.KeysOnly)
		closer.Close()
		if derr != nil {
			return ScanFailed, vbstoreerrors.ErrWriteFailed(sc.vbid, derr)
		}

		if meta.BySeqno > seqno {
			e.metrics.ScanStaleSkipsTotal.Inc()
			if !sc.iter.Next() {
				sc.done = true
				return ScanSuccess, nil
			}
			continue
		}
		if meta.BySeqno < seqno {
			panic(vbstoreerrors.ErrCorruptIndex(sc.vbid, key, meta.BySeqno, seqno))
		}

		if meta.Deleted && sc.docFilter == model.NoDeletes {
			sc.lastReadSeqno = seqno
			if !sc.iter.Next() {
				sc.done = true
				return ScanSuccess, nil
			}
			continue
		}

		if sc.callbacks.CacheLookup != nil {
			alreadyCached, outOfMemory := sc.callbacks.CacheLookup(sc.vbid, key, meta)
			if outOfMemory {
				return ScanAgain, nil
			}
			if alreadyCached {
				sc.lastReadSeqno = seqno
				if !sc.iter.Next() {
					sc.done = true
					return ScanSuccess, nil
				}
				continue
			}
		}

		var emitBody []byte
		if sc.valFilter == model.MetaAndValue {
			emitBody = body
		}
		if sc.callbacks.Emit != nil {
			if err := sc.callbacks.Emit(sc.vbid, key, meta, emitBody); err != nil {
				return ScanFailed, err
			}
		}
		sc.lastReadSeqno = seqno

		if !sc.iter.Next() {
			sc.done = true
			return ScanSuccess, nil
		}
	}
}

// DestroyScan releases scanID's pinned snapshot, iterator, and vBucket
// reference. Callers that abandon a scan mid-iteration (e.g. the client
// disconnected) must still call this, since the pinned snapshot otherwise
// keeps stale SSTs alive through compaction.
func (e *Engine) DestroyScan(scanID uint64) {
	sc := e.scans.remove(scanID)
	if sc == nil {
		return
	}
	sc.iter.Close()
	sc.snap.Close()
	sc.handle.Release()
}

package engine

import (
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/epcore/vbstore/internal/codec"
	vbstoreerrors "github.com/epcore/vbstore/internal/errors"
	"github.com/epcore/vbstore/internal/model"
	"github.com/epcore/vbstore/internal/storage/diskmanager"
	"github.com/epcore/vbstore/internal/validation"
)

// Commit flushes vbid's pending buffer as one or more pebble batches and
// ends the transaction. manifest, if non-nil, is written opaquely to the
// local column family alongside the state blob in the same final batch —
// the engine never interprets its contents.
//
// The steps below follow the commit algorithm directly:
//  1. swap the pending buffer out under writeMu
//  2. acquire the vBucket's store handle
//  3. build one batch, writing each item into the default and seqno CFs
//  4. split into multiple durable sub-batches if the buffered size would
//     exceed the configured memtable budget
//  5. append the updated state blob (and manifest, if given) to the final
//     batch
//  6. commit durably
//  7. invoke each item's Done callback
//  8. read back the high-seqno and reconcile it against the batch's max,
//     logging and counting (but not failing on) any mismatch
func (e *Engine) Commit(vbid uint16, manifest []byte) error {
	start := time.Now()

	e.writeMu.Lock()
	t := e.txnFor(vbid)
	if !t.inTransaction {
		e.writeMu.Unlock()
		return vbstoreerrors.ErrNotInTransaction(vbid)
	}
	items := t.pending
	t.pending = nil
	e.writeMu.Unlock()

	if len(items) == 0 && manifest == nil {
		e.writeMu.Lock()
		t.inTransaction = false
		e.writeMu.Unlock()
		return nil
	}

	var estimated uint64
	for _, it := range items {
		estimated += validation.EstimateWriteSize(it)
	}
	if err := e.disk.CheckBeforeWrite(estimated); err != nil {
		// The transaction stays open so the caller can retry the same
		// pending writes once space frees up.
		e.writeMu.Lock()
		t.pending = items
		e.writeMu.Unlock()
		if diskmanager.IsCircuitBroken(err) {
			return vbstoreerrors.ErrBusy(vbid, err)
		}
		return vbstoreerrors.ErrWriteFailed(vbid, err)
	}

	h, err := e.manager.Acquire(vbid)
	if err != nil {
		e.restorePending(t, items)
		return vbstoreerrors.ErrWriteFailed(vbid, err)
	}
	defer h.Release()

	splitThreshold := int(e.cfg.DefaultCFMemBudget + e.cfg.SeqnoCFMemBudget)
	if splitThreshold <= 0 {
		splitThreshold = 64 << 20
	}

	batch := h.DB().NewBatch()
	totalBytes := 0
	committedBytes := 0
	split := false
	var maxSeqno int64
	var maxDeletedSeqno int64
	var maxCas uint64

	flush := func(b *pebble.Batch) error {
		if b.Empty() {
			return nil
		}
		return h.DB().Apply(b, pebble.Sync)
	}

	for _, it := range items {
		rec := codec.EncodeRecord(codec.MetaData{
			Deleted:   it.Deleted,
			Datatype:  it.Datatype,
			Flags:     it.Flags,
			Exptime:   it.Exptime,
			Cas:       it.Cas,
			RevSeqno:  it.RevSeqno,
			BySeqno:   it.BySeqno,
		}, it.Body)

		defaultKey := h.DefaultKey([]byte(it.Key))
		seqnoKey := h.SeqnoKey(it.BySeqno)

		if err := batch.Set(defaultKey, rec, nil); err != nil {
			e.restorePending(t, items)
			return vbstoreerrors.ErrWriteFailed(vbid, err)
		}
		if err := batch.Set(seqnoKey, []byte(it.Key), nil); err != nil {
			e.restorePending(t, items)
			return vbstoreerrors.ErrWriteFailed(vbid, err)
		}

		itemBytes := len(defaultKey) + len(rec) + len(seqnoKey) + len(it.Key)
		totalBytes += itemBytes
		committedBytes += itemBytes
		if it.BySeqno > maxSeqno {
			maxSeqno = it.BySeqno
		}
		if it.Deleted && it.BySeqno > maxDeletedSeqno {
			maxDeletedSeqno = it.BySeqno
		}
		if it.Cas > maxCas {
			maxCas = it.Cas
		}

		if totalBytes > splitThreshold {
			if err := flush(batch); err != nil {
				e.restorePending(t, items)
				return vbstoreerrors.ErrWriteFailed(vbid, err)
			}
			split = true
			batch = h.DB().NewBatch()
			totalBytes = 0
		}
	}

	newState := e.mergeCommitState(vbid, maxSeqno, maxDeletedSeqno, maxCas)
	stateBlob, err := codec.EncodeVBucketState(newState)
	if err != nil {
		e.restorePending(t, items)
		return vbstoreerrors.ErrWriteFailed(vbid, err)
	}
	if err := batch.Set(h.LocalKey([]byte(codec.LocalVBStateKey)), stateBlob, nil); err != nil {
		e.restorePending(t, items)
		return vbstoreerrors.ErrWriteFailed(vbid, err)
	}
	if manifest != nil {
		if err := batch.Set(h.LocalKey([]byte(codec.LocalManifestKey)), manifest, nil); err != nil {
			e.restorePending(t, items)
			return vbstoreerrors.ErrWriteFailed(vbid, err)
		}
	}

	if err := flush(batch); err != nil {
		e.restorePending(t, items)
		return vbstoreerrors.ErrWriteFailed(vbid, err)
	}

	e.writeMu.Lock()
	t.inTransaction = false
	e.writeMu.Unlock()

	// Insert-vs-update is not distinguished: every successful item is
	// reported inserted=true regardless of whether it overwrote an
	// existing key.
	for _, it := range items {
		if it.Done != nil {
			it.Done(true, nil)
		}
	}

	observedHigh, err := readHighSeqno(h, nil)
	if err != nil {
		e.logger.Warn("failed to read back high seqno after commit", zap.Uint16("vbid", vbid), zap.Error(err))
	} else if len(items) > 0 && observedHigh != maxSeqno {
		e.metrics.CommitHighSeqnoMismatchTotal.Inc()
		e.logger.Warn("high seqno mismatch after commit",
			zap.Uint16("vbid", vbid), zap.Int64("expected", maxSeqno), zap.Int64("observed", observedHigh))
	}

	e.metrics.RecordCommit(time.Since(start).Seconds(), committedBytes, split)
	return nil
}

// restorePending puts the swapped-out pending items back onto t so a
// failed commit leaves the transaction retryable, per the propagation
// rule that a failed commit keeps in_transaction true.
func (e *Engine) restorePending(t *txn, items []model.Item) {
	e.writeMu.Lock()
	t.pending = append(items, t.pending...)
	e.writeMu.Unlock()
}

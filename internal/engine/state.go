package engine

import (
	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/epcore/vbstore/internal/codec"
	"github.com/epcore/vbstore/internal/kvstore"
)

// readHighSeqno returns the current high-seqno for a vBucket by seeking to
// the last key in the seqno column family under snap (or the live database
// if snap is nil) and decoding it. A vBucket with no committed mutations
// yet has high-seqno 0.
func readHighSeqno(h *kvstore.StoreHandle, snap *pebble.Snapshot) (int64, error) {
	lower, upper := kvstore.SeqnoCFBounds()

	var iter *pebble.Iterator
	var err error
	if snap != nil {
		iter, err = snap.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	} else {
		iter, err = h.DB().NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	}
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, nil
	}
	return kvstore.SeqnoFromKey(iter.Key()), nil
}

// loadState reads vbid's state blob (or the default dead state if absent
// or corrupt) into the in-memory cache. Called once per vBucket at open /
// recovery time, per the "read once, cache forever" rule.
func (e *Engine) loadState(vbid uint16) error {
	h, err := e.manager.Acquire(vbid)
	if err != nil {
		return err
	}
	defer h.Release()

	highSeqno, err := readHighSeqno(h, nil)
	if err != nil {
		return err
	}

	raw, err := h.LocalCF.Get([]byte(codec.LocalVBStateKey))
	var st codec.VBucketState
	if err != nil {
		st = codec.DefaultVBucketState()
		st.HighSeqno = highSeqno
	} else {
		st, err = codec.DecodeVBucketState(raw, highSeqno)
		if err != nil {
			e.logger.Warn("failed to parse vbucket state blob, defaulting to dead",
				zap.Uint16("vbid", vbid), zap.Error(err))
			st = codec.DefaultVBucketState()
			st.HighSeqno = highSeqno
		}
	}

	e.stateMu.Lock()
	e.state[vbid] = st
	e.stateMu.Unlock()
	return nil
}

// getState returns the cached state for vbid, or the default dead state if
// none has been loaded yet.
func (e *Engine) getState(vbid uint16) codec.VBucketState {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if st, ok := e.state[vbid]; ok {
		return st
	}
	return codec.DefaultVBucketState()
}

// mergeCommitState applies the effects of a just-committed batch onto
// vbid's cached state and returns the new state to persist in the same
// batch: the high-seqno advances to the batch's max seqno, and
// max_deleted_seqno/max_cas advance monotonically. This is the
// compare-and-merge helper that rejects stale updates — it never lets
// high_seqno or max_cas regress.
func (e *Engine) mergeCommitState(vbid uint16, maxSeqno int64, maxDeletedSeqno int64, maxCas uint64) codec.VBucketState {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	st, ok := e.state[vbid]
	if !ok {
		st = codec.DefaultVBucketState()
		st.State = codec.VBucketActive
	}
	if maxSeqno > st.HighSeqno {
		st.HighSeqno = maxSeqno
	}
	if maxDeletedSeqno > st.MaxDeletedSeqno {
		st.MaxDeletedSeqno = maxDeletedSeqno
	}
	if maxCas > st.MaxCas {
		st.MaxCas = maxCas
	}
	e.state[vbid] = st
	return st
}

// setState installs state as vbid's cached state, rejecting the update if
// it would regress the checkpoint id — the compare-and-merge guard
// described for in-memory state updates outside of commit (e.g.
// snapshot_vbucket).
func (e *Engine) setState(vbid uint16, st codec.VBucketState) bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if cur, ok := e.state[vbid]; ok && st.CheckpointID < cur.CheckpointID {
		return false
	}
	e.state[vbid] = st
	return true
}

package engine

import (
	"go.uber.org/zap"

	"github.com/epcore/vbstore/internal/codec"
)

// VBStatePersist selects how SnapshotVBucket applies a caller-supplied
// state update.
type VBStatePersist int

const (
	// PersistCacheOnly updates the in-memory state cache without writing
	// anything to disk; the next Commit will persist it.
	PersistCacheOnly VBStatePersist = iota
	// PersistWithoutCommit writes the state blob to the local column
	// family immediately, outside of any pending transaction's batch.
	PersistWithoutCommit
)

// SnapshotVBucket installs a new VBucketState for vbid, honoring the
// compare-and-merge guard that rejects a checkpoint id older than the one
// already cached. When mode is PersistWithoutCommit the blob is also
// written to disk immediately in its own batch.
func (e *Engine) SnapshotVBucket(vbid uint16, st codec.VBucketState, mode VBStatePersist) error {
	if !e.setState(vbid, st) {
		return nil
	}
	if mode != PersistWithoutCommit {
		return nil
	}

	h, err := e.manager.Acquire(vbid)
	if err != nil {
		return err
	}
	defer h.Release()

	blob, err := codec.EncodeVBucketState(st)
	if err != nil {
		return err
	}
	batch := h.DB().NewBatch()
	if err := batch.Set(h.LocalKey([]byte(codec.LocalVBStateKey)), blob, nil); err != nil {
		return err
	}
	return h.DB().Apply(batch, nil)
}

// ListPersistedVBuckets returns the cached state of every vBucket this
// shard has opened or recovered, keyed by vbid order is not guaranteed.
func (e *Engine) ListPersistedVBuckets() map[uint16]codec.VBucketState {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	out := make(map[uint16]codec.VBucketState, len(e.state))
	for vbid, st := range e.state {
		out[vbid] = st
	}
	return out
}

// DeleteVBucket destroys vbid's on-disk database once every outstanding
// reader, writer, and scan has released it, and drops its cached state and
// transaction buffer.
func (e *Engine) DeleteVBucket(vbid uint16) error {
	if err := e.manager.DeleteVBucket(vbid); err != nil {
		return err
	}

	e.stateMu.Lock()
	delete(e.state, vbid)
	e.stateMu.Unlock()

	e.writeMu.Lock()
	delete(e.txns, vbid)
	e.writeMu.Unlock()

	e.metrics.VBucketDeletesTotal.Inc()
	e.metrics.VBucketsOpenTotal.Set(float64(len(e.manager.OpenVBuckets())))
	e.logger.Info("vbucket deleted", zap.Uint16("vbid", vbid))
	return nil
}

// Reset destroys and reopens vbid's database empty, resetting its cached
// state to the default dead state.
func (e *Engine) Reset(vbid uint16) error {
	if err := e.manager.Reset(vbid); err != nil {
		return err
	}

	e.stateMu.Lock()
	e.state[vbid] = codec.DefaultVBucketState()
	e.stateMu.Unlock()

	e.writeMu.Lock()
	delete(e.txns, vbid)
	e.writeMu.Unlock()

	return nil
}

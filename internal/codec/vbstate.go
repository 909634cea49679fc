package codec

import (
	"encoding/json"
)

// VBucketLifecycleState is the enumerated lifecycle state of a vBucket.
type VBucketLifecycleState string

const (
	VBucketActive  VBucketLifecycleState = "active"
	VBucketReplica VBucketLifecycleState = "replica"
	VBucketPending VBucketLifecycleState = "pending"
	VBucketDead    VBucketLifecycleState = "dead"
)

// HlcEpochUninitialised is the sentinel value for an HLC epoch that has
// never been set.
const HlcEpochUninitialised int64 = -1

// LocalVBStateKey is the fixed key under which the vBucket state blob is
// stored in the local column family.
const LocalVBStateKey = "vbstate"

// LocalManifestKey is the fixed key under which the opaque collections
// manifest blob is stored in the local column family.
const LocalManifestKey = "_collections"

// VBucketState is the durable per-vBucket metadata blob. Field names match
// the on-disk JSON exactly; this is a wire contract other processes and
// prior versions of the store must keep reading.
type VBucketState struct {
	State              VBucketLifecycleState `json:"state"`
	CheckpointID       uint64                 `json:"checkpoint_id"`
	MaxDeletedSeqno    int64                  `json:"max_deleted_seqno"`
	FailoverTable      json.RawMessage        `json:"failover_table,omitempty"`
	SnapStart          int64                  `json:"snap_start"`
	SnapEnd            int64                  `json:"snap_end"`
	MaxCas             uint64                 `json:"max_cas"`
	HlcEpoch           int64                  `json:"hlc_epoch"`
	MightContainXattrs bool                   `json:"might_contain_xattrs"`

	// HighSeqno and PurgeSeqno are tracked in memory alongside the
	// persisted blob and are not part of the wire format above. HighSeqno
	// is derived from the seqno column family; PurgeSeqno is not set by
	// this package and stays 0.
	HighSeqno  int64 `json:"-"`
	PurgeSeqno int64 `json:"-"`
}

// DefaultVBucketState returns the zeroed dead state used when a vBucket has
// never been written or its state blob failed to parse.
func DefaultVBucketState() VBucketState {
	return VBucketState{
		State:     VBucketDead,
		HlcEpoch:  HlcEpochUninitialised,
		SnapStart: 0,
		SnapEnd:   0,
	}
}

// EncodeVBucketState serializes a VBucketState to the JSON bytes stored
// under LocalVBStateKey.
func EncodeVBucketState(s VBucketState) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeVBucketState parses the JSON state blob, applying the decay rules
// for fields absent from an older or partial blob: snap_start/snap_end fall
// back to the supplied current high-seqno, max_cas falls back to 0, and
// hlc_epoch falls back to HlcEpochUninitialised. currentHighSeqno should be
// the high-seqno already known for the vBucket (e.g. from the seqno column
// family) at decode time.
func DecodeVBucketState(raw []byte, currentHighSeqno int64) (VBucketState, error) {
	type wire struct {
		State              VBucketLifecycleState `json:"state"`
		CheckpointID       uint64                 `json:"checkpoint_id"`
		MaxDeletedSeqno    int64                  `json:"max_deleted_seqno"`
		FailoverTable      json.RawMessage        `json:"failover_table,omitempty"`
		SnapStart          *int64                 `json:"snap_start"`
		SnapEnd            *int64                 `json:"snap_end"`
		MaxCas             *uint64                `json:"max_cas"`
		HlcEpoch           *int64                 `json:"hlc_epoch"`
		MightContainXattrs bool                   `json:"might_contain_xattrs"`
	}

	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return VBucketState{}, err
	}

	s := VBucketState{
		State:              w.State,
		CheckpointID:       w.CheckpointID,
		MaxDeletedSeqno:    w.MaxDeletedSeqno,
		FailoverTable:      w.FailoverTable,
		MightContainXattrs: w.MightContainXattrs,
		HighSeqno:          currentHighSeqno,
	}

	if w.SnapStart != nil {
		s.SnapStart = *w.SnapStart
	} else {
		s.SnapStart = currentHighSeqno
	}
	if w.SnapEnd != nil {
		s.SnapEnd = *w.SnapEnd
	} else {
		s.SnapEnd = currentHighSeqno
	}
	if w.MaxCas != nil {
		s.MaxCas = *w.MaxCas
	}
	if w.HlcEpoch != nil {
		s.HlcEpoch = *w.HlcEpoch
	} else {
		s.HlcEpoch = HlcEpochUninitialised
	}

	return s, nil
}

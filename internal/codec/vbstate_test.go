package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epcore/vbstore/internal/codec"
)

func TestVBucketStateRoundTrip(t *testing.T) {
	st := codec.VBucketState{
		State:              codec.VBucketActive,
		CheckpointID:       7,
		MaxDeletedSeqno:    3,
		SnapStart:          10,
		SnapEnd:            20,
		MaxCas:             99,
		HlcEpoch:           5,
		MightContainXattrs: true,
	}

	blob, err := codec.EncodeVBucketState(st)
	require.NoError(t, err)

	decoded, err := codec.DecodeVBucketState(blob, 20)
	require.NoError(t, err)

	assert.Equal(t, st.State, decoded.State)
	assert.Equal(t, st.CheckpointID, decoded.CheckpointID)
	assert.Equal(t, st.MaxDeletedSeqno, decoded.MaxDeletedSeqno)
	assert.Equal(t, st.SnapStart, decoded.SnapStart)
	assert.Equal(t, st.SnapEnd, decoded.SnapEnd)
	assert.Equal(t, st.MaxCas, decoded.MaxCas)
	assert.Equal(t, st.HlcEpoch, decoded.HlcEpoch)
	assert.Equal(t, st.MightContainXattrs, decoded.MightContainXattrs)
}

func TestDecodeVBucketStateAppliesDecayRulesForMissingFields(t *testing.T) {
	// An older or partial blob that omits snap_start/snap_end/max_cas/hlc_epoch.
	partial := []byte(`{"state":"active","checkpoint_id":1,"max_deleted_seqno":0,"might_contain_xattrs":false}`)

	decoded, err := codec.DecodeVBucketState(partial, 42)
	require.NoError(t, err)

	assert.Equal(t, int64(42), decoded.SnapStart)
	assert.Equal(t, int64(42), decoded.SnapEnd)
	assert.Equal(t, uint64(0), decoded.MaxCas)
	assert.Equal(t, codec.HlcEpochUninitialised, decoded.HlcEpoch)
	assert.Equal(t, int64(42), decoded.HighSeqno)
}

func TestDefaultVBucketStateIsDead(t *testing.T) {
	st := codec.DefaultVBucketState()
	assert.Equal(t, codec.VBucketDead, st.State)
	assert.Equal(t, codec.HlcEpochUninitialised, st.HlcEpoch)
}

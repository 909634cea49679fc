package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epcore/vbstore/internal/codec"
)

func TestMetaDataRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		meta codec.MetaData
	}{
		{"live document", codec.MetaData{
			Deleted: false, Datatype: 1, Flags: 0xdeadbeef, ValueSize: 5,
			Exptime: -1, Cas: 123456789, RevSeqno: 2, BySeqno: 42,
		}},
		{"tombstone", codec.MetaData{
			Deleted: true, Datatype: 0, Flags: 0, ValueSize: 0,
			Exptime: 0, Cas: 1, RevSeqno: 1, BySeqno: 7,
		}},
		{"max seqno", codec.MetaData{
			Deleted: false, BySeqno: 1<<62 + 1, Cas: ^uint64(0),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := codec.EncodeMetaData(tt.meta)
			assert.Len(t, encoded, codec.MetadataSize)

			decoded, err := codec.DecodeMetaData(encoded[:])
			require.NoError(t, err)
			assert.Equal(t, tt.meta, decoded)
		})
	}
}

func TestDecodeMetaDataTooShort(t *testing.T) {
	_, err := codec.DecodeMetaData(make([]byte, codec.MetadataSize-1))
	assert.Error(t, err)
}

func TestEncodeRecordRoundTrip(t *testing.T) {
	meta := codec.MetaData{Datatype: 1, Cas: 99, RevSeqno: 1, BySeqno: 3}
	body := []byte("hello world")

	rec := codec.EncodeRecord(meta, body)
	assert.Len(t, rec, codec.MetadataSize+len(body))

	decodedMeta, decodedBody, err := codec.DecodeRecord(rec, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(body)), decodedMeta.ValueSize)
	assert.Equal(t, body, decodedBody)

	metaOnly, noBody, err := codec.DecodeRecord(rec, true)
	require.NoError(t, err)
	assert.Nil(t, noBody)
	assert.Equal(t, decodedMeta, metaOnly)
}

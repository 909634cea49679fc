package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/epcore/vbstore/internal/codec"
)

func TestSeqnoRoundTrip(t *testing.T) {
	for _, seqno := range []int64{0, 1, 42, 1 << 40, -1} {
		enc := codec.EncodeSeqno(seqno)
		assert.Len(t, enc, codec.SeqnoKeySize)
		assert.Equal(t, seqno, codec.DecodeSeqno(enc[:]))
	}
}

func TestCompareSeqnoOrdersNumerically(t *testing.T) {
	a := codec.EncodeSeqno(3)
	b := codec.EncodeSeqno(5)
	c := codec.EncodeSeqno(7)

	assert.Equal(t, -1, codec.CompareSeqno(a[:], b[:]))
	assert.Equal(t, 1, codec.CompareSeqno(c[:], b[:]))
	assert.Equal(t, 0, codec.CompareSeqno(b[:], b[:]))
}

package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/epcore/vbstore/internal/codec"
)

func TestComparerOrdersTagsBeforeSuffixes(t *testing.T) {
	defaultKey := taggedKey(cfDefault, []byte("zzz"))
	seqnoKey := taggedKey(cfSeqno, func() []byte { e := codec.EncodeSeqno(0); return e[:] }())

	assert.Negative(t, vbucketComparer.Compare(defaultKey, seqnoKey))
}

func TestComparerOrdersSeqnoCFNumerically(t *testing.T) {
	low := func(s int64) []byte {
		e := codec.EncodeSeqno(s)
		return taggedKey(cfSeqno, e[:])
	}

	assert.Negative(t, vbucketComparer.Compare(low(3), low(5)))
	assert.Positive(t, vbucketComparer.Compare(low(100), low(5)))
	assert.Zero(t, vbucketComparer.Compare(low(5), low(5)))
}

func TestComparerFallsBackToByteOrderWithinDefaultCF(t *testing.T) {
	a := taggedKey(cfDefault, []byte("alpha"))
	b := taggedKey(cfDefault, []byte("beta"))
	assert.Negative(t, vbucketComparer.Compare(a, b))
}

func TestComparerEqualAgreesWithCompare(t *testing.T) {
	a := taggedKey(cfLocal, []byte("vbstate"))
	b := taggedKey(cfLocal, []byte("vbstate"))
	assert.True(t, vbucketComparer.Equal(a, b))
}

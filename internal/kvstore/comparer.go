package kvstore

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/pebble"

	"github.com/epcore/vbstore/internal/codec"
)

// cfTag is the single-byte column-family discriminator prefixed to every
// key stored in a vBucket's pebble database. pebble has no native notion of
// multiple independently-comparated column families within one DB, so the
// three column families named in the on-disk layout (default,
// vbid_seqno_to_key, _local) are folded into one keyspace, tagged by this
// byte, with one Comparer that dispatches on it.
type cfTag byte

const (
	cfDefault cfTag = 0x00
	cfSeqno   cfTag = 0x01
	cfLocal   cfTag = 0x02
)

// taggedKey prefixes key with the column family's tag byte.
func taggedKey(tag cfTag, key []byte) []byte {
	out := make([]byte, 1+len(key))
	out[0] = byte(tag)
	copy(out[1:], key)
	return out
}

// vbucketComparer is installed on every per-vBucket pebble.DB. It compares
// the tag byte first; ties within the seqno column family are broken
// numerically (per codec.CompareSeqno) rather than lexicographically, so
// that SeekForPrev(MAX) and forward scans from a start seqno behave
// correctly regardless of the sign of the encoded bytes. Ties within the
// default and local column families fall back to plain byte comparison.
// vbucketCompare implements the comparison logic for vbucketComparer. It is
// a standalone function (rather than an inline closure) so that both the
// Compare and Equal fields below can reference it without creating an
// initialization cycle through vbucketComparer itself.
func vbucketCompare(a, b []byte) int {
	if len(a) == 0 || len(b) == 0 {
		return bytes.Compare(a, b)
	}
	if a[0] != b[0] {
		if a[0] < b[0] {
			return -1
		}
		return 1
	}
	tag := cfTag(a[0])
	asuf, bsuf := a[1:], b[1:]
	if tag == cfSeqno && len(asuf) == codec.SeqnoKeySize && len(bsuf) == codec.SeqnoKeySize {
		return codec.CompareSeqno(asuf, bsuf)
	}
	return bytes.Compare(asuf, bsuf)
}

var vbucketComparer = &pebble.Comparer{
	Name: "vbstore.vbucket-cf-comparer.v1",

	Compare: vbucketCompare,

	Equal: func(a, b []byte) bool {
		return vbucketCompare(a, b) == 0
	},

	AbbreviatedKey: func(key []byte) uint64 {
		if len(key) == 0 {
			return 0
		}
		var buf [8]byte
		n := copy(buf[:], key)
		_ = n
		return binary.BigEndian.Uint64(buf[:])
	},

	Separator: func(dst, a, b []byte) []byte {
		// A conservative separator: always returns a copy of a unchanged.
		// This forgoes pebble's block-boundary shortening optimization for
		// the tagged keyspace in exchange for a trivially correct
		// implementation of the custom comparer contract.
		return append(dst, a...)
	},

	Successor: func(dst, a []byte) []byte {
		return append(dst, a...)
	},

	ImmediateSuccessor: func(dst, a []byte) []byte {
		return append(append(dst, a...), 0x00)
	},

	Split: func(key []byte) int {
		return len(key)
	},

	FormatKey: pebble.DefaultComparer.FormatKey,
}

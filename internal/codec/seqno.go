package codec

import "encoding/binary"

// SeqnoKeySize is the byte width of an encoded seqno key.
const SeqnoKeySize = 8

// EncodeSeqno produces the raw 8-byte representation of a by-seqno value
// used as the key in the seqno column family. The comparator installed on
// that column family reinterprets these bytes as an int64 and compares
// numerically; it never relies on the lexicographic order of this encoding.
func EncodeSeqno(seqno int64) [SeqnoKeySize]byte {
	var buf [SeqnoKeySize]byte
	binary.BigEndian.PutUint64(buf[:], uint64(seqno))
	return buf
}

// DecodeSeqno reverses EncodeSeqno.
func DecodeSeqno(raw []byte) int64 {
	return int64(binary.BigEndian.Uint64(raw))
}

// CompareSeqno decodes both a and b as signed 64-bit seqnos and returns the
// sign of their numeric difference: -1, 0, or +1. This is the comparison
// rule the seqno column family's comparator applies to its keys; it is kept
// separate from EncodeSeqno/DecodeSeqno so the numeric reinterpretation
// stays visible rather than accidentally depending on byte order.
func CompareSeqno(a, b []byte) int {
	av, bv := DecodeSeqno(a), DecodeSeqno(b)
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

// Package codec implements the fixed-layout binary and JSON encodings used
// by the persistence engine: per-document metadata records, comparable
// seqno keys, and the vBucket state blob.
package codec

import (
	"encoding/binary"
	"fmt"
)

// MetadataSize is the stable on-disk size of an encoded MetaData record,
// in bytes, independent of platform word size.
const MetadataSize = 42

const deletedBit = 0x80

// MetaData is the fixed-layout header stored ahead of every document body
// in the default column family. version occupies the low 7 bits of the
// same byte as the deleted flag; it is currently always 0 and exists so a
// future format migration has somewhere to signal itself.
type MetaData struct {
	Deleted   bool
	Version   uint8
	Datatype  uint8
	Flags     uint32
	ValueSize uint32
	Exptime   int64
	Cas       uint64
	RevSeqno  uint64
	BySeqno   int64
}

// EncodeMetaData writes the fixed 42-byte representation of m.
func EncodeMetaData(m MetaData) [MetadataSize]byte {
	var buf [MetadataSize]byte

	b := m.Version & 0x7f
	if m.Deleted {
		b |= deletedBit
	}
	buf[0] = b
	buf[1] = m.Datatype
	binary.BigEndian.PutUint32(buf[2:6], m.Flags)
	binary.BigEndian.PutUint32(buf[6:10], m.ValueSize)
	binary.BigEndian.PutUint64(buf[10:18], uint64(m.Exptime))
	binary.BigEndian.PutUint64(buf[18:26], m.Cas)
	binary.BigEndian.PutUint64(buf[26:34], m.RevSeqno)
	binary.BigEndian.PutUint64(buf[34:42], uint64(m.BySeqno))

	return buf
}

// DecodeMetaData parses a MetaData record from its fixed-layout encoding.
func DecodeMetaData(raw []byte) (MetaData, error) {
	if len(raw) < MetadataSize {
		return MetaData{}, fmt.Errorf("codec: metadata record too short: got %d bytes, need %d", len(raw), MetadataSize)
	}

	b := raw[0]
	return MetaData{
		Deleted:   b&deletedBit != 0,
		Version:   b & 0x7f,
		Datatype:  raw[1],
		Flags:     binary.BigEndian.Uint32(raw[2:6]),
		ValueSize: binary.BigEndian.Uint32(raw[6:10]),
		Exptime:   int64(binary.BigEndian.Uint64(raw[10:18])),
		Cas:       binary.BigEndian.Uint64(raw[18:26]),
		RevSeqno:  binary.BigEndian.Uint64(raw[26:34]),
		BySeqno:   int64(binary.BigEndian.Uint64(raw[34:42])),
	}, nil
}

// EncodeRecord concatenates the metadata header with the document body to
// form the value stored under the document key in the default column
// family.
func EncodeRecord(m MetaData, body []byte) []byte {
	m.ValueSize = uint32(len(body))
	header := EncodeMetaData(m)
	rec := make([]byte, 0, MetadataSize+len(body))
	rec = append(rec, header[:]...)
	rec = append(rec, body...)
	return rec
}

// DecodeRecord splits a stored record back into its metadata header and
// body. If metaOnly is true the body is not copied out.
func DecodeRecord(raw []byte, metaOnly bool) (MetaData, []byte, error) {
	meta, err := DecodeMetaData(raw)
	if err != nil {
		return MetaData{}, nil, err
	}
	if metaOnly {
		return meta, nil, nil
	}
	body := raw[MetadataSize:]
	out := make([]byte, len(body))
	copy(out, body)
	return meta, out, nil
}

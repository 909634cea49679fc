package model

// Item is a single pending mutation enqueued with Set or Delete between
// begin() and commit(). Delete leaves Body empty; the metadata fields still
// carry a real Cas/RevSeqno/Exptime/Datatype describing the tombstone.
type Item struct {
	Key      string
	Vbid     uint16
	BySeqno  int64
	RevSeqno uint64
	Cas      uint64
	Flags    uint32
	Exptime  int64
	Datatype uint8
	Deleted  bool
	Body     []byte

	// Done, if set, is invoked after the batch containing this item
	// commits successfully; a failed commit does not invoke it, and the
	// item stays pending for a retry. inserted is always true — see the
	// insert-vs-update design note.
	Done func(inserted bool, err error)
}

// DocumentFilter controls whether a scan includes tombstones.
type DocumentFilter int

const (
	NoDeletes DocumentFilter = iota
	IncludeDeletes
)

// ValueFilter controls whether a scan's callback receives document bodies
// or only keys/metadata.
type ValueFilter int

const (
	KeysOnly ValueFilter = iota
	MetaAndValue
)

// MetaOnlyMode selects whether a point read copies out the document body.
type MetaOnlyMode int

const (
	WithValue MetaOnlyMode = iota
	MetaOnly
)

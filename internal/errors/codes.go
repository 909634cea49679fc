// Package errors defines the persistence engine's error taxonomy.
package errors

import "fmt"

// ErrorCode enumerates the engine's error taxonomy, per the propagation
// rules: point lookups map not-found to KeyNotFound/DocNotFound depending
// on call site, transactional misuse maps to NotInTransaction, commit
// failures to WriteFailed, re-queueable contention to Busy, and an
// iterator observing record.by_seqno < iterator_seqno to CorruptIndex,
// which is fatal.
type ErrorCode int

const (
	OK ErrorCode = iota
	KeyNotFound
	NotInTransaction
	WriteFailed
	DocNotFound
	Busy
	DestroyFailed
	ConfigInvalid
	CorruptIndex
	UnknownStat
	OutOfMemory
)

func (c ErrorCode) String() string {
	switch c {
	case OK:
		return "ok"
	case KeyNotFound:
		return "key_not_found"
	case NotInTransaction:
		return "not_in_transaction"
	case WriteFailed:
		return "write_failed"
	case DocNotFound:
		return "doc_not_found"
	case Busy:
		return "busy"
	case DestroyFailed:
		return "destroy_failed"
	case ConfigInvalid:
		return "config_invalid"
	case CorruptIndex:
		return "corrupt_index"
	case UnknownStat:
		return "unknown_stat"
	case OutOfMemory:
		return "out_of_memory"
	default:
		return "unknown"
	}
}

// EngineError is a structured error carrying the engine's error code, the
// vbid it concerns (when applicable), a human message, and an optional
// underlying cause. Every error surfaced to a caller or logged carries the
// vbid and the underlying status text, never a raw pointer.
type EngineError struct {
	Code    ErrorCode
	Vbid    uint16
	Message string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("vbid %d: %s (%s): %v", e.Vbid, e.Message, e.Code, e.Cause)
	}
	return fmt.Sprintf("vbid %d: %s (%s)", e.Vbid, e.Message, e.Code)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, vbid uint16, message string, cause error) *EngineError {
	return &EngineError{Code: code, Vbid: vbid, Message: message, Cause: cause}
}

func ErrKeyNotFound(vbid uint16, key string) *EngineError {
	return New(KeyNotFound, vbid, fmt.Sprintf("key not found: %q", key), nil)
}

func ErrNotInTransaction(vbid uint16) *EngineError {
	return New(NotInTransaction, vbid, "set/delete called outside begin()/commit()", nil)
}

func ErrWriteFailed(vbid uint16, cause error) *EngineError {
	return New(WriteFailed, vbid, "commit failed", cause)
}

func ErrDocNotFound(vbid uint16, key string) *EngineError {
	return New(DocNotFound, vbid, fmt.Sprintf("flush of delete for missing document: %q", key), nil)
}

func ErrBusy(vbid uint16, cause error) *EngineError {
	return New(Busy, vbid, "store busy, caller should re-queue", cause)
}

func ErrDestroyFailed(vbid uint16, cause error) *EngineError {
	return New(DestroyFailed, vbid, "failed to destroy vbucket on disk", cause)
}

func ErrConfigInvalid(message string) *EngineError {
	return New(ConfigInvalid, 0, message, nil)
}

func ErrCorruptIndex(vbid uint16, key string, recordSeqno, iterSeqno int64) *EngineError {
	return New(CorruptIndex, vbid,
		fmt.Sprintf("seqno index corrupt for key %q: record.by_seqno=%d < iterator_seqno=%d", key, recordSeqno, iterSeqno),
		nil)
}

func ErrUnknownStat(name string) *EngineError {
	return New(UnknownStat, 0, fmt.Sprintf("unknown stat: %q", name), nil)
}

func ErrOutOfMemory(vbid uint16) *EngineError {
	return New(OutOfMemory, vbid, "callback reported out of memory, scan paused", nil)
}

// IsEngineError reports whether err is an *EngineError.
func IsEngineError(err error) bool {
	_, ok := err.(*EngineError)
	return ok
}

// GetCode extracts the ErrorCode from err, returning WriteFailed for any
// error that did not originate from this package.
func GetCode(err error) ErrorCode {
	if ee, ok := err.(*EngineError); ok {
		return ee.Code
	}
	return WriteFailed
}

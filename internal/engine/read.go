package engine

import (
	"time"

	"github.com/epcore/vbstore/internal/codec"
	vbstoreerrors "github.com/epcore/vbstore/internal/errors"
	"github.com/epcore/vbstore/internal/model"
)

// Get performs a point lookup of key in vbid's default column family. A
// key whose stored record is a tombstone reports KeyNotFound, the same as a
// key that was never written.
func (e *Engine) Get(vbid uint16, key string, metaOnly model.MetaOnlyMode) (codec.MetaData, []byte, error) {
	start := time.Now()

	h, err := e.manager.Acquire(vbid)
	if err != nil {
		return codec.MetaData{}, nil, vbstoreerrors.ErrWriteFailed(vbid, err)
	}
	defer h.Release()

	raw, err := h.DefaultCF.Get([]byte(key))
	if err != nil {
		e.metrics.RecordRead(time.Since(start).Seconds(), false)
		return codec.MetaData{}, nil, vbstoreerrors.ErrKeyNotFound(vbid, key)
	}

	meta, body, err := codec.DecodeRecord(raw, metaOnly == model.MetaOnly)
	if err != nil {
		return codec.MetaData{}, nil, vbstoreerrors.ErrWriteFailed(vbid, err)
	}
	if meta.Deleted {
		e.metrics.RecordRead(time.Since(start).Seconds(), false)
		return codec.MetaData{}, nil, vbstoreerrors.ErrKeyNotFound(vbid, key)
	}

	e.metrics.RecordRead(time.Since(start).Seconds(), true)
	return meta, body, nil
}

// GetResult is one entry of a GetMulti batch lookup.
type GetResult struct {
	Meta  codec.MetaData
	Body  []byte
	Found bool
}

// GetMulti performs independent point lookups for every key, each against
// the live database (not a shared snapshot) — a convenience wrapper around
// repeated Get calls for callers batching several keys in one vBucket.
func (e *Engine) GetMulti(vbid uint16, keys []string, metaOnly model.MetaOnlyMode) map[string]GetResult {
	out := make(map[string]GetResult, len(keys))
	for _, k := range keys {
		meta, body, err := e.Get(vbid, k, metaOnly)
		if err != nil {
			out[k] = GetResult{Found: false}
			continue
		}
		out[k] = GetResult{Meta: meta, Body: body, Found: true}
	}
	return out
}

package engine

import (
	"fmt"

	"github.com/epcore/vbstore/internal/errors"
	"github.com/epcore/vbstore/internal/kvstore"
)

// cfStatRange returns the [start, end) key range covering one column
// family, for feeding pebble's EstimateDiskUsage.
func cfStatRange(tag byte) (start, end []byte) {
	return []byte{tag}, []byte{tag + 1}
}

// GetStat answers the three stat families named for Stats & Introspection:
// aggregated memory usage across every open vBucket, per-column-family
// on-disk size, and block-cache hit/miss counters. Unrecognized names
// return UnknownStat.
func (e *Engine) GetStat(name string) (float64, error) {
	switch name {
	case "mem_table_total_size":
		var total float64
		e.manager.ForEachHandle(func(h *kvstore.StoreHandle) {
			total += float64(h.DB().Metrics().MemTable.Size)
		})
		e.metrics.MemTableSizeBytes.Set(total)
		return total, nil

	case "block_cache_size":
		var size float64
		e.manager.ForEachHandle(func(h *kvstore.StoreHandle) {
			size = float64(h.DB().Metrics().BlockCache.Size)
		})
		e.metrics.BlockCacheSizeBytes.Set(size)
		return size, nil

	case "block_cache_hits":
		var hits float64
		e.manager.ForEachHandle(func(h *kvstore.StoreHandle) {
			hits += float64(h.DB().Metrics().BlockCache.Hits)
		})
		return hits, nil

	case "block_cache_misses":
		var misses float64
		e.manager.ForEachHandle(func(h *kvstore.StoreHandle) {
			misses += float64(h.DB().Metrics().BlockCache.Misses)
		})
		return misses, nil

	case "default_cf_size", "seqno_cf_size", "local_cf_size":
		tag, cf := statCFTag(name)
		start, end := cfStatRange(tag)
		var total uint64
		e.manager.ForEachHandle(func(h *kvstore.StoreHandle) {
			sz, err := h.DB().EstimateDiskUsage(start, end)
			if err == nil {
				total += sz
			}
		})
		e.metrics.CFSizeBytes.WithLabelValues(cf).Set(float64(total))
		return float64(total), nil

	default:
		return 0, errors.ErrUnknownStat(name)
	}
}

func statCFTag(name string) (byte, string) {
	switch name {
	case "default_cf_size":
		return 0x00, "default"
	case "seqno_cf_size":
		return 0x01, "seqno"
	case "local_cf_size":
		return 0x02, "local"
	default:
		panic(fmt.Sprintf("unreachable stat name: %q", name))
	}
}

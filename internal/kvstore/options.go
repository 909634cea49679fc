package kvstore

import (
	"runtime"

	"github.com/cockroachdb/pebble"

	"github.com/epcore/vbstore/internal/config"
)

// buildPebbleOptions derives one vBucket database's pebble.Options from the
// engine configuration: the tag-dispatching comparer (numeric order for the
// seqno CF), the shard's shared block cache, one memtable sized at the sum
// of the default and seqno CF memory budgets, and a compaction concurrency
// equal to the low-priority background thread count. The three column
// families share one keyspace and therefore one set of options; no bloom
// filter policy and no per-column-family memtable budget are configured.
func buildPebbleOptions(cfg config.EngineConfig, shared *pebble.Cache) *pebble.Options {
	opts := &pebble.Options{
		Comparer:     vbucketComparer,
		Cache:        shared,
		MemTableSize: uint64(cfg.DefaultCFMemBudget + cfg.SeqnoCFMemBudget),
	}

	lowPri := cfg.LowPriBackgroundThreads
	if lowPri <= 0 {
		lowPri = runtime.NumCPU()
	}
	highPri := cfg.HighPriBackgroundThreads
	if highPri <= 0 {
		highPri = runtime.NumCPU()
	}
	opts.MaxConcurrentCompactions = func() int { return lowPri }

	opts.EnsureDefaults()
	return opts
}

// sharedBlockCache builds the single pebble.Cache shared by every vBucket
// database owned by this shard, sized at the configured total divided by
// the shard count — the block cache is shared across all vBuckets within a
// shard.
func sharedBlockCache(cfg config.EngineConfig) *pebble.Cache {
	perShard := cfg.BlockCacheSize
	if cfg.MaxShards > 0 {
		perShard = cfg.BlockCacheSize / int64(cfg.MaxShards)
	}
	if perShard <= 0 {
		perShard = 8 << 20
	}
	return pebble.NewCache(perShard)
}

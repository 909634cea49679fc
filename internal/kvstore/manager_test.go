package kvstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/epcore/vbstore/internal/config"
	"github.com/epcore/vbstore/internal/kvstore"
)

func newTestManager(t *testing.T) *kvstore.VBucketManager {
	t.Helper()
	cfg := config.EngineConfig{
		DBName:             t.TempDir(),
		MaxShards:          1,
		ShardID:            0,
		BlockCacheSize:     8 << 20,
		DefaultCFMemBudget: 4 << 20,
		SeqnoCFMemBudget:   1 << 20,
	}
	m, err := kvstore.NewVBucketManager(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestAcquireOpensLazilyAndSharesHandle(t *testing.T) {
	m := newTestManager(t)

	h1, err := m.Acquire(3)
	require.NoError(t, err)
	h2, err := m.Acquire(3)
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	h1.Release()
	h2.Release()
}

func TestAcquireReopensVBucketAfterDelete(t *testing.T) {
	m := newTestManager(t)

	h, err := m.Acquire(5)
	require.NoError(t, err)
	h.Release()

	require.NoError(t, m.DeleteVBucket(5))

	opened, err := m.Acquire(5)
	require.NoError(t, err)
	defer opened.Release()
	assert.Equal(t, uint16(5), opened.Vbid)
}

func TestDiscoverVBucketsFiltersByShard(t *testing.T) {
	cfg := config.EngineConfig{
		DBName:             t.TempDir(),
		MaxShards:          2,
		ShardID:            0,
		BlockCacheSize:     8 << 20,
		DefaultCFMemBudget: 4 << 20,
		SeqnoCFMemBudget:   1 << 20,
	}
	m, err := kvstore.NewVBucketManager(cfg, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	for _, vbid := range []uint16{0, 1, 2, 3} {
		h, err := m.Acquire(vbid)
		require.NoError(t, err)
		h.Release()
	}
	require.NoError(t, m.Close())

	m2, err := kvstore.NewVBucketManager(cfg, zap.NewNop())
	require.NoError(t, err)
	defer m2.Close()

	discovered, err := m2.DiscoverVBuckets()
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint16{0, 2}, discovered)
}

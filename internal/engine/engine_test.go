package engine_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/epcore/vbstore/internal/codec"
	"github.com/epcore/vbstore/internal/config"
	"github.com/epcore/vbstore/internal/engine"
	vbstoreerrors "github.com/epcore/vbstore/internal/errors"
	"github.com/epcore/vbstore/internal/metrics"
	"github.com/epcore/vbstore/internal/model"
)

var testEngineCounter int

func newTestEngine(t *testing.T) (*engine.Engine, *config.Config) {
	t.Helper()
	testEngineCounter++

	cfg := &config.Config{
		Server: config.ServerConfig{NodeID: "test-node"},
		Engine: config.EngineConfig{
			DBName:             t.TempDir(),
			MaxShards:          1,
			ShardID:            0,
			BlockCacheSize:     8 << 20,
			DefaultCFMemBudget: 4 << 20,
			SeqnoCFMemBudget:   1 << 20,
		},
		Disk: config.DiskConfig{
			CheckInterval:           time.Second,
			WarningThreshold:        80,
			ThrottleThreshold:       90,
			CircuitBreakerThreshold: 95,
		},
		Workers: config.WorkerPoolConfig{MaxWorkers: 2, QueueSize: 8},
	}

	m := metrics.NewMetrics(fmt.Sprintf("test-node-%d", testEngineCounter))
	eng, err := engine.New(cfg, zap.NewNop(), m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng, cfg
}

func setItem(key string, seqno int64, cas uint64, body string) model.Item {
	return model.Item{
		Key: key, BySeqno: seqno, RevSeqno: uint64(seqno), Cas: cas, Body: []byte(body),
	}
}

func TestInsertThenRead(t *testing.T) {
	eng, _ := newTestEngine(t)
	const vbid = uint16(0)

	require.NoError(t, eng.Begin(vbid))
	require.NoError(t, eng.Set(vbid, setItem("a", 1, 100, "hello")))
	require.NoError(t, eng.Commit(vbid, nil))

	meta, body, err := eng.Get(vbid, "a", model.WithValue)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), body)
	assert.Equal(t, int64(1), meta.BySeqno)
}

func TestInsertDeleteGetReturnsNotFound(t *testing.T) {
	eng, _ := newTestEngine(t)
	const vbid = uint16(0)

	require.NoError(t, eng.Begin(vbid))
	require.NoError(t, eng.Set(vbid, setItem("a", 1, 1, "hello")))
	require.NoError(t, eng.Commit(vbid, nil))

	require.NoError(t, eng.Begin(vbid))
	del := setItem("a", 2, 2, "")
	require.NoError(t, eng.Delete(vbid, del))
	require.NoError(t, eng.Commit(vbid, nil))

	_, _, err := eng.Get(vbid, "a", model.WithValue)
	require.Error(t, err)
	assert.Equal(t, vbstoreerrors.KeyNotFound, vbstoreerrors.GetCode(err))
}

func TestSetOutsideTransactionFails(t *testing.T) {
	eng, _ := newTestEngine(t)
	err := eng.Set(7, setItem("a", 1, 1, "x"))
	require.Error(t, err)
	assert.Equal(t, vbstoreerrors.NotInTransaction, vbstoreerrors.GetCode(err))
}

func TestScanOrdersBySeqnoAcrossOutOfOrderInserts(t *testing.T) {
	eng, _ := newTestEngine(t)
	const vbid = uint16(0)

	require.NoError(t, eng.Begin(vbid))
	require.NoError(t, eng.Set(vbid, setItem("b", 3, 1, "b-body")))
	require.NoError(t, eng.Set(vbid, setItem("a", 5, 1, "a-body")))
	require.NoError(t, eng.Set(vbid, setItem("c", 7, 1, "c-body")))
	require.NoError(t, eng.Commit(vbid, nil))

	var order []string
	scanID, err := eng.InitScan(vbid, 0, 0, model.NoDeletes, model.MetaAndValue, engine.ScanCallbacks{
		Emit: func(_ uint16, key string, _ codec.MetaData, _ []byte) error {
			order = append(order, key)
			return nil
		},
	})
	require.NoError(t, err)
	defer eng.DestroyScan(scanID)

	result, err := eng.Scan(scanID)
	require.NoError(t, err)
	assert.Equal(t, engine.ScanSuccess, result)
	assert.Equal(t, []string{"b", "a", "c"}, order)
}

func TestScanOverwriteSuppressesStaleSeqnoMapping(t *testing.T) {
	eng, _ := newTestEngine(t)
	const vbid = uint16(0)

	require.NoError(t, eng.Begin(vbid))
	require.NoError(t, eng.Set(vbid, setItem("a", 1, 1, "v1")))
	require.NoError(t, eng.Commit(vbid, nil))

	require.NoError(t, eng.Begin(vbid))
	require.NoError(t, eng.Set(vbid, setItem("a", 2, 2, "v2")))
	require.NoError(t, eng.Commit(vbid, nil))

	var bodies []string
	scanID, err := eng.InitScan(vbid, 0, 0, model.NoDeletes, model.MetaAndValue, engine.ScanCallbacks{
		Emit: func(_ uint16, _ string, _ codec.MetaData, body []byte) error {
			bodies = append(bodies, string(body))
			return nil
		},
	})
	require.NoError(t, err)
	defer eng.DestroyScan(scanID)

	result, err := eng.Scan(scanID)
	require.NoError(t, err)
	assert.Equal(t, engine.ScanSuccess, result)
	assert.Equal(t, []string{"v2"}, bodies)
}

func TestDeleteVBucketDiscardsCommittedData(t *testing.T) {
	eng, _ := newTestEngine(t)
	const vbid = uint16(9)

	require.NoError(t, eng.Begin(vbid))
	require.NoError(t, eng.Set(vbid, setItem("a", 1, 1, "v1")))
	require.NoError(t, eng.Commit(vbid, nil))

	require.NoError(t, eng.DeleteVBucket(vbid))

	_, _, err := eng.Get(vbid, "a", model.WithValue)
	require.Error(t, err)
}

func TestDeleteVBucketBlocksUntilScanIsDestroyed(t *testing.T) {
	eng, _ := newTestEngine(t)
	const vbid = uint16(11)

	require.NoError(t, eng.Begin(vbid))
	require.NoError(t, eng.Set(vbid, setItem("a", 1, 1, "v1")))
	require.NoError(t, eng.Commit(vbid, nil))

	scanID, err := eng.InitScan(vbid, 0, 0, model.NoDeletes, model.MetaAndValue, engine.ScanCallbacks{})
	require.NoError(t, err)

	deleteDone := make(chan error, 1)
	go func() {
		deleteDone <- eng.DeleteVBucket(vbid)
	}()

	select {
	case <-deleteDone:
		t.Fatal("DeleteVBucket returned before the open scan was destroyed")
	case <-time.After(100 * time.Millisecond):
	}

	eng.DestroyScan(scanID)

	select {
	case err := <-deleteDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("DeleteVBucket did not complete after the scan was destroyed")
	}
}

func TestRecoverReloadsStateAfterRestart(t *testing.T) {
	eng, cfg := newTestEngine(t)
	const vbid = uint16(2)

	require.NoError(t, eng.Begin(vbid))
	require.NoError(t, eng.Set(vbid, setItem("a", 1, 1, "v1")))
	require.NoError(t, eng.Commit(vbid, nil))
	require.NoError(t, eng.Close())

	m := metrics.NewMetrics("test-node-restart")
	eng2, err := engine.New(cfg, zap.NewNop(), m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng2.Close() })

	require.NoError(t, eng2.Recover())

	_, body, err := eng2.Get(vbid, "a", model.WithValue)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), body)
}

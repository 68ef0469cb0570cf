package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcceptCloseTracksActiveConns(t *testing.T) {
	m := New()
	m.Accept()
	m.Accept()
	m.Close()
	snap := m.Snapshot()
	require.EqualValues(t, 2, snap.Accepted)
	require.EqualValues(t, 1, snap.Closed)
	require.EqualValues(t, 1, snap.ActiveConns)
}

func TestRecordRecvSendAccumulateBytesAndLatency(t *testing.T) {
	m := New()
	m.RecordRecv(128, 5*time.Microsecond)
	m.RecordSend(64, 15*time.Millisecond)
	snap := m.Snapshot()
	require.EqualValues(t, 1, snap.RecvOps)
	require.EqualValues(t, 1, snap.SendOps)
	require.EqualValues(t, 128, snap.RecvBytes)
	require.EqualValues(t, 64, snap.SendBytes)
	require.Greater(t, snap.AvgLatencyNs, uint64(0))
}

func TestRecordErrorIncrementsCounter(t *testing.T) {
	m := New()
	m.RecordError()
	m.RecordError()
	require.EqualValues(t, 2, m.Snapshot().Errors)
}

func TestLatencyBucketsAreCumulative(t *testing.T) {
	m := New()
	m.recordLatency(5_000_000) // 5ms: misses the 1ms bucket, hits every larger one
	require.EqualValues(t, 0, m.LatencyBuckets[2].Load())
	require.EqualValues(t, 1, m.LatencyBuckets[3].Load())
	require.EqualValues(t, 1, m.LatencyBuckets[5].Load())
}

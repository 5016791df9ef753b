package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSnapshotEmptyRecorder(t *testing.T) {
	r := New()
	snap := r.Snapshot()
	require.Equal(t, int64(0), snap.Work.Count)
	require.Equal(t, int64(0), snap.Callbacks.Count)
}

func TestRecordWorkAccumulates(t *testing.T) {
	r := New()
	r.RecordWork(10 * time.Millisecond)
	r.RecordWork(20 * time.Millisecond)
	r.RecordWork(30 * time.Millisecond)

	snap := r.Snapshot()
	require.Equal(t, int64(3), snap.Work.Count)
	require.GreaterOrEqual(t, snap.Work.Max, 29*time.Millisecond)
	require.LessOrEqual(t, snap.Work.Min, 11*time.Millisecond)
}

func TestRecordCallbackIndependentOfWork(t *testing.T) {
	r := New()
	r.RecordCallback(5 * time.Millisecond)

	snap := r.Snapshot()
	require.Equal(t, int64(1), snap.Callbacks.Count)
	require.Equal(t, int64(0), snap.Work.Count)
}

package replay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-replay/internal/dataset"
	"ride-replay/internal/timeline"
)

type recordingSink struct {
	mu     sync.Mutex
	frames []Frame
}

func (s *recordingSink) PublishFrame(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSink) seqs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, len(s.frames))
	for i, f := range s.frames {
		out[i] = f.Seq
	}
	return out
}

type countingMetrics struct {
	mu        sync.Mutex
	sets      int
	resolved  int
	committed int
	stale     int
}

func (m *countingMetrics) TimeSet()                     { m.mu.Lock(); m.sets++; m.mu.Unlock() }
func (m *countingMetrics) ResolveObserve(time.Duration) { m.mu.Lock(); m.resolved++; m.mu.Unlock() }
func (m *countingMetrics) FrameCommitted(float64)       { m.mu.Lock(); m.committed++; m.mu.Unlock() }
func (m *countingMetrics) FrameStale()                  { m.mu.Lock(); m.stale++; m.mu.Unlock() }

func readyStore(t *testing.T) *dataset.Store {
	t.Helper()
	store := dataset.NewStore()
	snap := dataset.NewSnapshot(
		[]dataset.TripRecord{{VehicleID: "a", Path: []dataset.Sample{sample(0, 0, 0), sample(10, 0, 10)}}},
		nil, nil,
		[]dataset.ResultRecord{{Minute: 5, IdleVehicles: dataset.Some(2)}},
	)
	require.NoError(t, store.Publish(snap))
	return store
}

func TestEngineNotReady(t *testing.T) {
	ctrl, err := timeline.New(0, 1439, 0)
	require.NoError(t, err)
	e := NewEngine(dataset.NewStore(), ctrl, nil)

	_, err = e.SetTime(5)
	assert.ErrorIs(t, err, dataset.ErrNotReady)
	_, err = e.Latest()
	assert.ErrorIs(t, err, dataset.ErrNotReady)
}

func TestEngineSetTime(t *testing.T) {
	ctrl, _ := timeline.New(0, 1439, 0)
	sink := &recordingSink{}
	m := &countingMetrics{}
	e := NewEngine(readyStore(t), ctrl, m, sink)

	f, err := e.SetTime(5.9)
	require.NoError(t, err)
	assert.Equal(t, 5.9, f.Time)
	assert.False(t, f.Result.Empty)
	require.Len(t, f.TripSegments, 1)
	assert.InDelta(t, 5.9, f.TripSegments[0].Head.Lon, 1e-9)

	f, err = e.SetTime(6.1)
	require.NoError(t, err)
	assert.True(t, f.Result.Empty)

	f, err = e.SetTime(5000)
	require.NoError(t, err)
	assert.Equal(t, 1439.0, f.Time)
	assert.Equal(t, 1439.0, f.MaxTime)

	latest, err := e.Latest()
	require.NoError(t, err)
	assert.Equal(t, f.Seq, latest.Seq)
	assert.Equal(t, []uint64{1, 2, 3}, sink.seqs())
	assert.Equal(t, 3, m.committed)
	assert.Equal(t, 3, m.sets)
}

func TestEngineDropsStaleFrames(t *testing.T) {
	ctrl, _ := timeline.New(0, 1439, 0)
	sink := &recordingSink{}
	m := &countingMetrics{}
	e := NewEngine(readyStore(t), ctrl, m, sink)

	// a resolution for an older request that finishes late
	oldTick := ctrl.SetTime(2)
	old, err := e.Resolve(oldTick)
	require.NoError(t, err)

	newer, err := e.SetTime(8)
	require.NoError(t, err)

	assert.False(t, e.commit(old))
	assert.False(t, e.commit(newer), "recommitting the same tick is a no-op")

	latest, err := e.Latest()
	require.NoError(t, err)
	assert.Equal(t, 8.0, latest.Time)
	assert.Equal(t, []uint64{newer.Seq}, sink.seqs())
	assert.Equal(t, 1, m.stale)
}

func TestEngineLatestResolvesCurrentTick(t *testing.T) {
	ctrl, _ := timeline.New(0, 1439, 5)
	e := NewEngine(readyStore(t), ctrl, nil)

	f, err := e.Latest()
	require.NoError(t, err)
	assert.Equal(t, 5.0, f.Time)
	assert.Equal(t, uint64(0), f.Seq)
}

func TestEngineFollowsController(t *testing.T) {
	ctrl, _ := timeline.New(0, 1439, 0)
	sink := &recordingSink{}
	e := NewEngine(readyStore(t), ctrl, nil, sink)
	e.Start(context.Background())
	defer e.Stop()

	want := ctrl.SetTime(7.5)
	require.Eventually(t, func() bool {
		f, err := e.Latest()
		return err == nil && f.Seq == want.Seq
	}, time.Second, 5*time.Millisecond)

	seqs := sink.seqs()
	for i := 1; i < len(seqs); i++ {
		assert.Greater(t, seqs[i], seqs[i-1], "sinks see strictly increasing seqs")
	}
}

func TestEngineResolvesEachTickOnce(t *testing.T) {
	ctrl, _ := timeline.New(0, 1439, 0)
	sink := &recordingSink{}
	m := &countingMetrics{}
	e := NewEngine(readyStore(t), ctrl, m, sink)
	e.Start(context.Background())
	defer e.Stop()

	// the initial tick is picked up by the follow loop
	require.Eventually(t, func() bool { return len(sink.seqs()) == 1 }, time.Second, 5*time.Millisecond)

	for _, v := range []float64{1, 2, 3} {
		_, err := e.SetTime(v)
		require.NoError(t, err)
	}
	direct := ctrl.SetTime(9)
	require.Eventually(t, func() bool {
		seqs := sink.seqs()
		return seqs[len(seqs)-1] == direct.Seq
	}, time.Second, 5*time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 5, m.resolved, "one resolution per tick")
	assert.Equal(t, 5, m.committed)
	assert.Zero(t, m.stale)
}

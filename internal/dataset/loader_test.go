package dataset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapFetcher map[string]string

func (m mapFetcher) Fetch(_ context.Context, name string) ([]byte, error) {
	v, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%s: not found", name)
	}
	return []byte(v), nil
}

type recordingMetrics struct {
	mu     sync.Mutex
	loaded map[Kind]int
	failed map[Kind]string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{loaded: map[Kind]int{}, failed: map[Kind]string{}}
}

func (r *recordingMetrics) DatasetLoaded(kind Kind, records, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded[kind] = records
}

func (r *recordingMetrics) DatasetFailed(kind Kind, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[kind] = reason
}

func fullFixture() mapFetcher {
	return mapFetcher{
		"trip.json":             `[{"vehicle_id": 1, "trip": [[0,0],[1,1]], "timestamp": [0, 2]}]`,
		"vehicle_marker.json":   `[{"vehicle_id": 1, "location": [0,0], "timestamp": [3, 8]}]`,
		"passenger_marker.json": `[{"passenger_id": 9, "status": 0, "location": [1,1], "timestamp": [3, 13]}]`,
		"result.json":           `[{"time": 5, "empty_vehicle_num": 2}]`,
		"stats.csv":             "total_calls,failed_calls,failure_rate,vehicles_driven\n100,10,10.0,5\n",
	}
}

func TestLoaderLoadsAllDatasets(t *testing.T) {
	m := newRecordingMetrics()
	snap := NewLoader(fullFixture(), m, nil).Load(context.Background())

	assert.Len(t, snap.Trips, 1)
	assert.Len(t, snap.VehicleMarkers, 1)
	assert.Len(t, snap.PassengerMarkers, 1)
	assert.Len(t, snap.Results, 1)
	require.NotNil(t, snap.Summary)
	assert.Equal(t, "100", snap.Summary.TotalCalls)
	assert.False(t, snap.Summary.Default)

	require.Len(t, snap.Statuses, 4)
	for _, st := range snap.Statuses {
		assert.False(t, st.Degraded, st.Dataset)
	}
	assert.Equal(t, 1, m.loaded[KindResults])
	assert.Empty(t, m.failed)
}

func TestLoaderIsolatesFailingDataset(t *testing.T) {
	src := fullFixture()
	src["vehicle_marker.json"] = `{"vehicle_id": 1}`
	m := newRecordingMetrics()

	snap := NewLoader(src, m, nil).Load(context.Background())

	assert.Empty(t, snap.VehicleMarkers)
	assert.NotNil(t, snap.VehicleMarkers)
	assert.Len(t, snap.Trips, 1)
	assert.Len(t, snap.PassengerMarkers, 1)
	assert.Len(t, snap.Results, 1)

	st, ok := snap.Status(KindVehicleMarkers)
	require.True(t, ok)
	assert.True(t, st.Degraded)
	assert.Equal(t, "shape", st.Reason)
	assert.True(t, errors.Is(st.Err, ErrShape))
	assert.Equal(t, "shape", m.failed[KindVehicleMarkers])

	other, _ := snap.Status(KindTrips)
	assert.False(t, other.Degraded)
}

func TestLoaderParseAndFetchFailures(t *testing.T) {
	src := fullFixture()
	src["result.json"] = `[{"time": 5,`
	delete(src, "trip.json")

	snap := NewLoader(src, nil, nil).Load(context.Background())

	rs, _ := snap.Status(KindResults)
	assert.Equal(t, "parse", rs.Reason)
	ts, _ := snap.Status(KindTrips)
	assert.Equal(t, "fetch", ts.Reason)
	assert.Empty(t, snap.Results)
	assert.Empty(t, snap.Trips)
	assert.Len(t, snap.VehicleMarkers, 1)
}

func TestLoaderDefaultStats(t *testing.T) {
	src := fullFixture()
	delete(src, "stats.csv")
	def := &StatsSummary{TotalCalls: "1", FailedCalls: "0", FailureRate: "0", VehiclesDriven: "1"}

	snap := NewLoader(src, nil, def).Load(context.Background())
	require.NotNil(t, snap.Summary)
	assert.True(t, snap.Summary.Default)
	assert.Equal(t, "1", snap.Summary.TotalCalls)
	assert.False(t, def.Default, "configured default must not be mutated")

	snap = NewLoader(src, nil, nil).Load(context.Background())
	assert.Nil(t, snap.Summary)
}

func TestLoadIntoPublishesOnce(t *testing.T) {
	store := NewStore()
	_, err := store.Snapshot()
	assert.ErrorIs(t, err, ErrNotReady)
	assert.False(t, store.Ready())

	l := NewLoader(fullFixture(), nil, nil)
	require.NoError(t, l.LoadInto(context.Background(), store))
	assert.True(t, store.Ready())

	snap, err := store.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Trips, 1)

	assert.ErrorIs(t, l.LoadInto(context.Background(), store), ErrLoaded)
}

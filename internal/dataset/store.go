package dataset

import (
	"sort"
	"sync/atomic"
)

// Status describes how one dataset fared during ingestion.
type Status struct {
	Dataset  Kind   `json:"dataset"`
	Records  int    `json:"records"`
	Dropped  int    `json:"dropped"`
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"` // shape | parse | fetch
	Error    string `json:"error,omitempty"`
	Err      error  `json:"-"`
}

func newStatus(kind Kind, records, dropped int, err error) Status {
	st := Status{Dataset: kind, Records: records, Dropped: dropped}
	if err != nil {
		st.Degraded = true
		st.Reason = FailureReason(err)
		st.Error = err.Error()
		st.Err = err
	}
	return st
}

// Snapshot is the immutable, fully indexed content of the four datasets. It
// is safe for concurrent readers.
type Snapshot struct {
	Trips            []TripRecord
	VehicleMarkers   []MarkerRecord
	PassengerMarkers []MarkerRecord
	Results          []ResultRecord // sorted by minute

	Statuses []Status
	Summary  *StatsSummary

	resultByMinute    map[int]int
	vehicleByMinute   map[int][]MarkerRecord
	passengerByMinute map[int][]MarkerRecord
}

// NewSnapshot indexes the given collections. Results are expected to carry
// unique minutes; the first occurrence wins otherwise.
func NewSnapshot(trips []TripRecord, vehicles, passengers []MarkerRecord, results []ResultRecord) *Snapshot {
	s := &Snapshot{
		Trips:            nonNil(trips),
		VehicleMarkers:   nonNil(vehicles),
		PassengerMarkers: nonNil(passengers),
	}
	sorted := make([]ResultRecord, 0, len(results))
	s.resultByMinute = make(map[int]int, len(results))
	seen := make(map[int]bool, len(results))
	for _, r := range results {
		if seen[r.Minute] {
			continue
		}
		seen[r.Minute] = true
		sorted = append(sorted, r)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Minute < sorted[j].Minute })
	for i, r := range sorted {
		s.resultByMinute[r.Minute] = i
	}
	s.Results = sorted
	s.vehicleByMinute = bucketMarkers(s.VehicleMarkers)
	s.passengerByMinute = bucketMarkers(s.PassengerMarkers)
	return s
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func bucketMarkers(ms []MarkerRecord) map[int][]MarkerRecord {
	out := make(map[int][]MarkerRecord)
	for _, m := range ms {
		out[m.Minute] = append(out[m.Minute], m)
	}
	return out
}

// Result returns the record for minute, if any.
func (s *Snapshot) Result(minute int) (ResultRecord, bool) {
	i, ok := s.resultByMinute[minute]
	if !ok {
		return ResultRecord{}, false
	}
	return s.Results[i], true
}

// VehicleMarkersAt returns the vehicle markers bucketed at minute. The
// returned slice must not be modified.
func (s *Snapshot) VehicleMarkersAt(minute int) []MarkerRecord { return s.vehicleByMinute[minute] }

// PassengerMarkersAt returns the passenger markers bucketed at minute.
func (s *Snapshot) PassengerMarkersAt(minute int) []MarkerRecord { return s.passengerByMinute[minute] }

// Status returns the ingestion status of one dataset.
func (s *Snapshot) Status(kind Kind) (Status, bool) {
	for _, st := range s.Statuses {
		if st.Dataset == kind {
			return st, true
		}
	}
	return Status{}, false
}

// Store holds the loaded snapshot. Readers observe either nothing (loading)
// or all four datasets at once.
type Store struct {
	snap atomic.Pointer[Snapshot]
}

func NewStore() *Store { return &Store{} }

// Publish installs the snapshot. A store is loaded exactly once per session.
func (s *Store) Publish(snap *Snapshot) error {
	if !s.snap.CompareAndSwap(nil, snap) {
		return ErrLoaded
	}
	return nil
}

// Snapshot returns the loaded datasets or ErrNotReady.
func (s *Store) Snapshot() (*Snapshot, error) {
	snap := s.snap.Load()
	if snap == nil {
		return nil, ErrNotReady
	}
	return snap, nil
}

func (s *Store) Ready() bool { return s.snap.Load() != nil }

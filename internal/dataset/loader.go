package dataset

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"
)

// Fetcher returns the raw bytes of a named payload such as "trip.json".
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// LoadMetrics receives per-dataset ingestion outcomes. It may be nil.
type LoadMetrics interface {
	DatasetLoaded(kind Kind, records, dropped int)
	DatasetFailed(kind Kind, reason string)
}

// PayloadName maps a dataset to the name its source stores it under.
func PayloadName(kind Kind) string {
	if kind == KindStats {
		return "stats.csv"
	}
	return string(kind) + ".json"
}

type Loader struct {
	src          Fetcher
	metrics      LoadMetrics
	defaultStats *StatsSummary
}

// NewLoader builds a loader. defaultStats, when non-nil, is served if the
// stats summary cannot be loaded.
func NewLoader(src Fetcher, m LoadMetrics, defaultStats *StatsSummary) *Loader {
	return &Loader{src: src, metrics: m, defaultStats: defaultStats}
}

// Load fetches and ingests all datasets concurrently. A failing dataset
// degrades to an empty collection and never aborts the others.
func (l *Loader) Load(ctx context.Context) *Snapshot {
	var (
		trips      []TripRecord
		vehicles   []MarkerRecord
		passengers []MarkerRecord
		results    []ResultRecord
		summary    *StatsSummary
		statuses   = make([]Status, len(Kinds))
	)

	var g errgroup.Group
	g.Go(func() error {
		b, err := l.fetch(ctx, KindTrips)
		dropped := 0
		if err == nil {
			trips, dropped, err = DecodeTrips(b)
		}
		statuses[0] = l.record(KindTrips, len(trips), dropped, err)
		return nil
	})
	g.Go(func() error {
		b, err := l.fetch(ctx, KindVehicleMarkers)
		dropped := 0
		if err == nil {
			vehicles, dropped, err = DecodeMarkers(VehicleMarker, b)
		}
		statuses[1] = l.record(KindVehicleMarkers, len(vehicles), dropped, err)
		return nil
	})
	g.Go(func() error {
		b, err := l.fetch(ctx, KindPassengerMarkers)
		dropped := 0
		if err == nil {
			passengers, dropped, err = DecodeMarkers(PassengerMarker, b)
		}
		statuses[2] = l.record(KindPassengerMarkers, len(passengers), dropped, err)
		return nil
	})
	g.Go(func() error {
		b, err := l.fetch(ctx, KindResults)
		dropped := 0
		if err == nil {
			results, dropped, err = DecodeResults(b)
		}
		statuses[3] = l.record(KindResults, len(results), dropped, err)
		return nil
	})
	g.Go(func() error {
		summary = l.loadSummary(ctx)
		return nil
	})
	_ = g.Wait()

	snap := NewSnapshot(trips, vehicles, passengers, results)
	snap.Statuses = statuses
	snap.Summary = summary
	return snap
}

// LoadInto loads all datasets and publishes them to store in one step.
func (l *Loader) LoadInto(ctx context.Context, store *Store) error {
	return store.Publish(l.Load(ctx))
}

func (l *Loader) fetch(ctx context.Context, kind Kind) ([]byte, error) {
	b, err := l.src.Fetch(ctx, PayloadName(kind))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", PayloadName(kind), err)
	}
	return b, nil
}

func (l *Loader) record(kind Kind, records, dropped int, err error) Status {
	st := newStatus(kind, records, dropped, err)
	if err != nil {
		log.Printf("dataset %s degraded to empty (%s): %v", kind, st.Reason, err)
		if l.metrics != nil {
			l.metrics.DatasetFailed(kind, st.Reason)
		}
		st.Records = 0
		return st
	}
	log.Printf("loaded dataset %s: %d records (%d dropped)", kind, records, dropped)
	if l.metrics != nil {
		l.metrics.DatasetLoaded(kind, records, dropped)
	}
	return st
}

func (l *Loader) loadSummary(ctx context.Context) *StatsSummary {
	b, err := l.fetch(ctx, KindStats)
	if err == nil {
		var s StatsSummary
		if s, err = ParseStatsSummary(b); err == nil {
			return &s
		}
	}
	if l.defaultStats != nil {
		log.Printf("stats summary unavailable, serving configured default: %v", err)
		def := *l.defaultStats
		def.Default = true
		return &def
	}
	log.Printf("stats summary unavailable: %v", err)
	return nil
}

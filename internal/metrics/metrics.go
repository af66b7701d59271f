package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ride-replay/internal/dataset"
)

type Collector struct {
	reg *prometheus.Registry

	DatasetRecords  *prometheus.GaugeVec   // dataset label
	DatasetDropped  *prometheus.GaugeVec   // dataset label
	IngestFailures  *prometheus.CounterVec // dataset, reason: shape|parse|fetch
	DatasetsReady   prometheus.Gauge
	LoadDuration    prometheus.Histogram
	TimeSets        prometheus.Counter
	CurrentTime     prometheus.Gauge
	FramesCommitted prometheus.Counter
	FramesStale     prometheus.Counter
	ResolveDuration prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	MinTime prometheus.Gauge
	MaxTime prometheus.Gauge
}

func NewCollector(minTime, maxTime float64) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		DatasetRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "replay_dataset_records",
			Help: "Records ingested per dataset.",
		}, []string{"dataset"}),
		DatasetDropped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "replay_dataset_dropped_records",
			Help: "Records skipped during ingestion per dataset.",
		}, []string{"dataset"}),
		IngestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_ingest_failures_total",
			Help: "Datasets degraded to empty, by reason.",
		}, []string{"dataset", "reason"}),
		DatasetsReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_datasets_ready",
			Help: "1 once all datasets are loaded, 0 while loading.",
		}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "replay_load_duration_seconds",
			Help:    "Time to load all datasets.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		TimeSets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_time_sets_total",
			Help: "Accepted current-time changes.",
		}),
		CurrentTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_current_time_minutes",
			Help: "Time of the last committed frame.",
		}),
		FramesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_frames_committed_total",
			Help: "Frames committed and fanned out.",
		}),
		FramesStale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_frames_stale_total",
			Help: "Frames dropped because a newer time was already committed.",
		}),
		ResolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "replay_resolve_duration_seconds",
			Help:    "Duration of frame resolution.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "replay_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		MinTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_min_time_minutes",
			Help: "Lower bound of the timeline.",
		}),
		MaxTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_max_time_minutes",
			Help: "Upper bound of the timeline.",
		}),
	}

	reg.MustRegister(
		c.DatasetRecords, c.DatasetDropped, c.IngestFailures, c.DatasetsReady, c.LoadDuration,
		c.TimeSets, c.CurrentTime, c.FramesCommitted, c.FramesStale, c.ResolveDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.MinTime, c.MaxTime,
	)

	c.MinTime.Set(minTime)
	c.MaxTime.Set(maxTime)

	return c
}

func (c *Collector) DatasetLoaded(kind dataset.Kind, records, dropped int) {
	c.DatasetRecords.WithLabelValues(string(kind)).Set(float64(records))
	c.DatasetDropped.WithLabelValues(string(kind)).Set(float64(dropped))
}

func (c *Collector) DatasetFailed(kind dataset.Kind, reason string) {
	c.DatasetRecords.WithLabelValues(string(kind)).Set(0)
	c.IngestFailures.WithLabelValues(string(kind), reason).Inc()
}

func (c *Collector) TimeSet() { c.TimeSets.Inc() }

func (c *Collector) ResolveObserve(d time.Duration) { c.ResolveDuration.Observe(d.Seconds()) }

func (c *Collector) FrameCommitted(t float64) {
	c.FramesCommitted.Inc()
	c.CurrentTime.Set(t)
}

func (c *Collector) FrameStale() { c.FramesStale.Inc() }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ride-replay/internal/config"
	"ride-replay/internal/dataset"
	"ride-replay/internal/httpapi"
	"ride-replay/internal/metrics"
	"ride-replay/internal/publisher"
	"ride-replay/internal/replay"
	"ride-replay/internal/source"
	"ride-replay/internal/timeline"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(cfg *config.Config) error {
	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.MinTime, cfg.MaxTime)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer shutdown(srv)
	}

	store := dataset.NewStore()
	ctrl, err := timeline.New(cfg.MinTime, cfg.MaxTime, cfg.InitialTime)
	if err != nil {
		return err
	}

	var sinks []replay.FrameSink
	var pub *publisher.NATSPublisher
	if cfg.NATSURL != "" {
		pub, err = publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			return fmt.Errorf("nats error: %w", err)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
		log.Printf("publishing frames on %s (session %s)", pub.FrameSubject(), pub.Session())
	}

	engine := replay.NewEngine(store, ctrl, engineMetrics(mcol), sinks...)
	engine.Start(ctx)
	defer engine.Stop()

	if pub != nil {
		if err := pub.SubscribeTimeCommands(engine.SetTime); err != nil {
			return err
		}
	}

	// The API is up while datasets load and answers 503 until they are ready.
	handler := httpapi.NewHandler(engine, ctrl, store)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: handler.Router(cfg.CORSOrigins)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
			cancel()
		}
	}()
	log.Printf("api listening on %s", cfg.HTTPAddr)
	defer shutdown(srv)

	src, err := source.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("data source error: %w", err)
	}
	defer src.Close()

	go func() {
		start := time.Now()
		if err := loadStore(ctx, cfg, src, store, mcol); err != nil {
			log.Printf("load error: %v", err)
			return
		}
		if mcol != nil {
			mcol.LoadDuration.Observe(time.Since(start).Seconds())
			mcol.DatasetsReady.Set(1)
		}
		log.Printf("datasets ready in %s", time.Since(start).Round(time.Millisecond))
		if _, err := engine.Refresh(); err != nil {
			log.Printf("initial frame error: %v", err)
		}
	}()

	// Block until context cancelled
	<-ctx.Done()
	log.Println("shutting down")
	return nil
}

func loadStore(ctx context.Context, cfg *config.Config, src dataset.Fetcher, store *dataset.Store, mcol *metrics.Collector) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.LoadTimeout)
	defer cancel()
	return dataset.NewLoader(src, loadMetrics(mcol), cfg.DefaultStats).LoadInto(ctx, store)
}

// loadOnce loads every dataset for the one-shot commands.
func loadOnce(cfg *config.Config) (*dataset.Snapshot, error) {
	ctx := context.Background()
	src, err := source.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("data source error: %w", err)
	}
	defer src.Close()
	store := dataset.NewStore()
	if err := loadStore(ctx, cfg, src, store, nil); err != nil {
		return nil, err
	}
	return store.Snapshot()
}

func printFrame(cfg *config.Config, at float64) error {
	snap, err := loadOnce(cfg)
	if err != nil {
		return err
	}
	t := timeline.Clamp(at, cfg.MinTime, cfg.MaxTime)
	return printJSON(replay.Resolve(snap, timeline.Tick{Time: t}, cfg.MinTime, cfg.MaxTime))
}

func printStats(cfg *config.Config) error {
	snap, err := loadOnce(cfg)
	if err != nil {
		return err
	}
	if snap.Summary == nil {
		return errors.New("stats summary unavailable")
	}
	return printJSON(snap.Summary)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

// The collector is optional; these keep a nil *Collector from turning into
// a non-nil interface.

func engineMetrics(c *metrics.Collector) replay.Metrics {
	if c == nil {
		return nil
	}
	return c
}

func loadMetrics(c *metrics.Collector) dataset.LoadMetrics {
	if c == nil {
		return nil
	}
	return c
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}

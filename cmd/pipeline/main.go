// Command pipeline is the long-running seismic detection and cataloging
// service (spec.md's C1-C12 orchestrated end to end): it polls the catalog
// and waveform data centers, runs detection through location for every
// confirmed candidate, durably commits classified events, dispatches
// alerts, and serves the public HTTP API — the production analogue of the
// teacher's cmd/etl.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/seismonet/pipeline/internal/alert"
	"github.com/seismonet/pipeline/internal/apperr"
	"github.com/seismonet/pipeline/internal/associator"
	"github.com/seismonet/pipeline/internal/catalogclient"
	"github.com/seismonet/pipeline/internal/classifier"
	"github.com/seismonet/pipeline/internal/config"
	"github.com/seismonet/pipeline/internal/features"
	"github.com/seismonet/pipeline/internal/httpapi"
	"github.com/seismonet/pipeline/internal/kafkasink"
	"github.com/seismonet/pipeline/internal/locator"
	"github.com/seismonet/pipeline/internal/magnitude"
	"github.com/seismonet/pipeline/internal/modelartifact"
	"github.com/seismonet/pipeline/internal/observability"
	"github.com/seismonet/pipeline/internal/pipeline"
	"github.com/seismonet/pipeline/internal/resilience"
	"github.com/seismonet/pipeline/internal/store"
	"github.com/seismonet/pipeline/internal/validator"
	"github.com/seismonet/pipeline/internal/waveformclient"
)

func main() {
	if err := run(); err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			if code := apperr.ExitCode(appErr.Kind); code != 0 {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(code)
			}
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventStore, err := store.Open(cfg.Store.Dir, cfg.Features.SchemaID, store.FsyncPolicy(cfg.Store.Fsync))
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer eventStore.Close()

	stations, err := associator.LoadStations(cfg.Locator.StationsFile)
	if err != nil {
		return fmt.Errorf("load station registry: %w", err)
	}
	if len(stations) == 0 {
		return errors.New("station registry is empty")
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	catalogCaller := resilience.New(toResilienceConfig("catalog", cfg.Catalog), observability.ClientObserver{Metrics: metrics, Client: "catalog"})
	waveformCaller := resilience.New(toResilienceConfig("waveform", cfg.Waveform), observability.ClientObserver{Metrics: metrics, Client: "waveform"})
	catalogClient := catalogclient.New(cfg.Catalog.BaseURL, httpClient, catalogCaller)
	waveClient := waveformclient.New(cfg.Waveform.BaseURL, httpClient, waveformCaller)

	ingestValidator := validator.New(validator.DefaultLimits())
	processor := newProcessor(cfg.Processor)
	extractor, err := features.New(cfg.Features.SchemaID, cfg.Features.Bands, cfg.Features.WaveletLevels)
	if err != nil {
		return fmt.Errorf("build feature extractor: %w", err)
	}

	classifierArtifact, err := modelartifact.LoadClassifier(cfg.Model.Path+"/classifier.json", cfg.Model.ExpectedSchemaID)
	if err != nil {
		return fmt.Errorf("load classifier artifact: %w", err)
	}
	magnitudeArtifact, err := modelartifact.LoadMagnitude(cfg.Model.Path+"/magnitude.json", cfg.Model.ExpectedSchemaID)
	if err != nil {
		return fmt.Errorf("load magnitude artifact: %w", err)
	}

	clf := classifier.New(classifierArtifact)
	rng := rand.New(rand.NewSource(1))
	mag := magnitude.New(magnitudeArtifact, 200, 0.90, rng)
	loc := locator.New(locator.Config{
		MinStations: cfg.Locator.MinStations,
		GridStepDeg: cfg.Locator.GridStepDeg,
		MaxIter:     cfg.Locator.MaxIter,
		EpsKM:       cfg.Locator.EpsKM,
	}, rng)

	assoc := associator.New(10*time.Second, stations)

	kSink := kafkasink.New(cfg.KafkaBrokers, cfg.KafkaSinkTopic)
	defer kSink.Close()

	server := httpapi.NewServer(cfg.Auth, log, eventStore, func() bool { return true })

	dispatcher := alert.New(cfg.Alerts, clockwork.NewRealClock(), observability.AlertObserver{Metrics: metrics})
	dispatcher.Subscribe("websocket-tail", server)

	stage := buildStage(waveClient, ingestValidator, processor, cfg.Processor, extractor, clf, mag, loc, assoc, metrics)
	sink := &committingSink{store: eventStore, kafka: kSink, dispatcher: dispatcher, broadcaster: server, metrics: metrics, log: log}

	p := pipeline.New(pipeline.Config{
		QueueCapacity: cfg.Pipeline.QueueCapacity,
		WorkerCount:   cfg.Pipeline.WorkerCount,
		ReorderWindow: cfg.Pipeline.ReorderWindow,
	}, stage, sink, observability.PipelineObserver{Metrics: metrics})

	detectors := buildDetectors(stations, cfg.Detector)
	pollers := startPollers(ctx, detectors, waveClient, p, log)
	backfillDone := startCatalogBackfill(ctx, catalogClient, log)

	pipelineDone := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(pipelineDone)
	}()

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: server}
	httpDone := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpDone <- err
			return
		}
		httpDone <- nil
	}()

	log.Info("pipeline started", "addr", cfg.HTTPAddr, "detectors", len(detectors))

	select {
	case <-ctx.Done():
	case err := <-httpDone:
		if err != nil {
			log.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	<-pollers
	<-backfillDone
	<-pipelineDone
	return nil
}

func toResilienceConfig(name string, c config.ClientConfig) resilience.Config {
	return resilience.Config{
		Name:             name,
		RateLimitRPS:     c.RateLimitRPS,
		Burst:            c.Burst,
		Timeout:          c.Timeout,
		RetryMax:         c.RetryMax,
		RetryBackoff:     c.RetryBackoff,
		BreakerThreshold: c.BreakerThreshold,
		BreakerCoolDown:  c.BreakerCoolDown,
		CacheTTL:         c.CacheTTL,
		CacheMaxEntries:  c.CacheMaxEntries,
	}
}

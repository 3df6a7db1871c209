package main

import (
	"context"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/seismonet/pipeline/internal/associator"
	"github.com/seismonet/pipeline/internal/catalogclient"
	"github.com/seismonet/pipeline/internal/classifier"
	"github.com/seismonet/pipeline/internal/config"
	"github.com/seismonet/pipeline/internal/detector"
	"github.com/seismonet/pipeline/internal/domain"
	"github.com/seismonet/pipeline/internal/features"
	"github.com/seismonet/pipeline/internal/locator"
	"github.com/seismonet/pipeline/internal/magnitude"
	"github.com/seismonet/pipeline/internal/observability"
	"github.com/seismonet/pipeline/internal/pipeline"
	"github.com/seismonet/pipeline/internal/signalproc"
	"github.com/seismonet/pipeline/internal/store"
	"github.com/seismonet/pipeline/internal/validator"
	"github.com/seismonet/pipeline/internal/waveformclient"
)

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func newProcessor(c config.ProcessorConfig) *signalproc.Processor {
	return signalproc.New(signalproc.Config{
		BandpassLowHz:  c.BandpassLowHz,
		BandpassHighHz: c.BandpassHighHz,
		BandpassOrder:  c.BandpassOrder,
		TaperFraction:  c.TaperFraction,
	})
}

// buildDetectors constructs one STA/LTA Detector per registered station's
// vertical channel.
func buildDetectors(stations []associator.Station, c config.DetectorConfig) map[string]*detector.Detector {
	cfg := detector.Config{
		STA: c.STA, LTA: c.LTA, ROn: c.ROn, ROff: c.ROff,
		DMin: c.DMin, DMax: c.DMax, PreRoll: c.PreRoll, PostRoll: c.PostRoll,
		Refractory: c.Refractory,
	}
	out := make(map[string]*detector.Detector, len(stations))
	for _, s := range stations {
		out[s.Code] = detector.New(s.Code, s.Channel, cfg)
	}
	return out
}

// startPollers launches one goroutine per detector, periodically pulling
// the most recent waveform segment for its channel and feeding it through
// the STA/LTA trigger, submitting any resulting candidates to the
// pipeline. Returns a channel closed once every poller has exited.
func startPollers(ctx context.Context, detectors map[string]*detector.Detector, wc *waveformclient.Client, p *pipeline.Pipeline, log *slog.Logger) <-chan struct{} {
	const pollInterval = 10 * time.Second
	const windowLookback = 30 * time.Second

	var wg sync.WaitGroup
	for code, d := range detectors {
		wg.Add(1)
		go func(station string, det *detector.Detector) {
			defer wg.Done()
			ticker := time.NewTicker(pollInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case now := <-ticker.C:
					seg, err := wc.FetchSegment(ctx, det.Channel(), now.Add(-windowLookback), now)
					if err != nil {
						log.Warn("waveform fetch failed", "station", station, "error", err)
						continue
					}
					for _, c := range det.Feed(seg) {
						if err := p.Submit(ctx, c); err != nil {
							log.Warn("submit canceled", "station", station, "error", err)
						}
					}
				}
			}
		}(code, d)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// startCatalogBackfill periodically refreshes the reference catalog (C1)
// in the background; its events are consulted for post-hoc comparison
// against locally detected events rather than gating detection itself, so
// a failed fetch only logs and retries next tick.
func startCatalogBackfill(ctx context.Context, cc *catalogclient.Client, log *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				events, err := cc.FetchWindow(ctx, now.Add(-24*time.Hour), now)
				if err != nil {
					log.Warn("catalog backfill failed", "error", err)
					continue
				}
				log.Info("catalog backfill complete", "events", len(events))
			}
		}
	}()
	return done
}

// buildStage composes the per-candidate processing chain: fetch the full
// waveform window, validate, condition, extract features, classify,
// estimate magnitude, and — once enough stations have confirmed a nearby
// trigger — locate.
func buildStage(
	wc *waveformclient.Client,
	v *validator.Validator,
	proc *signalproc.Processor,
	procCfg config.ProcessorConfig,
	extractor *features.Extractor,
	clf *classifier.Classifier,
	mag *magnitude.Estimator,
	loc *locator.Locator,
	assoc *associator.Associator,
	metrics *observability.Metrics,
) pipeline.Stage {
	return func(ctx context.Context, c domain.Candidate) (domain.ClassifiedEvent, error) {
		seg, err := wc.FetchSegment(ctx, c.Channel, c.PreRoll.Start, c.PostRoll.End)
		if err != nil {
			return domain.ClassifiedEvent{}, err
		}
		if err := v.ValidateSegment(seg); err != nil {
			return domain.ClassifiedEvent{}, err
		}

		if procCfg.TargetRateHz > 0 && procCfg.TargetRateHz != seg.Rate {
			seg, err = signalproc.Resample(seg, procCfg.TargetRateHz, procCfg.AllowUpsample)
			if err != nil {
				return domain.ClassifiedEvent{}, err
			}
		}

		conditioned, _, err := proc.Condition(seg)
		if err != nil {
			return domain.ClassifiedEvent{}, err
		}

		fv, err := extractor.Extract(conditioned)
		if err != nil {
			return domain.ClassifiedEvent{}, err
		}

		result, err := clf.Classify(fv)
		if err != nil {
			return domain.ClassifiedEvent{}, err
		}
		metrics.ClassificationsTotal.WithLabelValues(result.Label).Inc()

		peakAmp := peakAmplitude(conditioned)
		magnitudeEstimate, err := mag.Estimate(fv, []magnitude.StationAmplitude{
			{Station: c.Channel.Station, PeakAmp: peakAmp},
		}, domain.ScaleMl)
		if err != nil {
			return domain.ClassifiedEvent{}, err
		}

		location := locateIfPossible(loc, assoc, c)

		ev := domain.ClassifiedEvent{
			ID:             c.Channel.String() + "-" + c.TriggerInstant.UTC().Format(time.RFC3339Nano),
			Candidate:      c,
			Features:       fv,
			Classification: result,
			Magnitude:      magnitudeEstimate,
			Location:       location,
			Timing: domain.PipelineTiming{
				DetectedAt:   c.TriggerInstant,
				FeaturesAt:   time.Now(),
				ClassifiedAt: time.Now(),
				LocatedAt:    time.Now(),
			},
		}
		return ev, nil
	}
}

func peakAmplitude(seg domain.Segment) float64 {
	var peak float64
	for _, s := range seg.Samples {
		v := math.Abs(s)
		if v > peak {
			peak = v
		}
	}
	return peak
}

// locateIfPossible runs the Locator over the associator's current
// multi-station arrival group, falling back to a single-station Location
// placeholder (RMSResidualS left at zero) when too few stations have
// confirmed a nearby trigger yet.
func locateIfPossible(loc *locator.Locator, assoc *associator.Associator, c domain.Candidate) domain.Location {
	arrivals := assoc.Observe(c.Channel.Station, c.TriggerInstant)
	location, err := loc.Locate(arrivals)
	if err != nil {
		if len(arrivals) > 0 {
			return domain.Location{StationsUsed: []string{c.Channel.Station}}
		}
		return domain.Location{}
	}
	return location
}

type committingSink struct {
	store       *store.Store
	kafka       interface {
		Publish(ctx context.Context, ev domain.ClassifiedEvent) error
	}
	dispatcher interface {
		Dispatch(ctx context.Context, ev domain.ClassifiedEvent) []error
	}
	broadcaster interface {
		Broadcast(ev domain.ClassifiedEvent)
	}
	metrics *observability.Metrics
	log     *slog.Logger
}

func (s *committingSink) Commit(ctx context.Context, ev domain.ClassifiedEvent) error {
	if err := s.store.Append(ev); err != nil {
		s.log.Error("event store append failed", "id", ev.ID, "error", err)
		return err
	}
	s.metrics.StoreWrites.Inc()

	if err := s.kafka.Publish(ctx, ev); err != nil {
		s.log.Warn("kafka publish failed", "id", ev.ID, "error", err)
	}

	s.broadcaster.Broadcast(ev)

	for _, err := range s.dispatcher.Dispatch(ctx, ev) {
		s.log.Warn("alert dispatch failed", "id", ev.ID, "error", err)
	}
	return nil
}

func (s *committingSink) DeadLetter(ctx context.Context, c domain.Candidate, reason string) error {
	if err := s.store.AppendDeadLetter(reason, c); err != nil {
		s.log.Error("dead-letter append failed", "reason", reason, "error", err)
		return err
	}
	s.metrics.DeadLetterWrites.Inc()
	return nil
}

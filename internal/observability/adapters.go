package observability

import (
	"time"

	"github.com/seismonet/pipeline/internal/alert"
	"github.com/seismonet/pipeline/internal/domain"
	"github.com/seismonet/pipeline/internal/pipeline"
	"github.com/seismonet/pipeline/internal/resilience"
)

// ClientObserver adapts Metrics to resilience.Observer for one named client
// (catalog or waveform), so each resilience.Caller reports into the shared
// registry under its own "client" label.
type ClientObserver struct {
	Metrics *Metrics
	Client  string
}

func (o ClientObserver) ObserveOutcome(client, outcome string) {
	o.Metrics.ClientRequests.WithLabelValues(client, outcome).Inc()
}

func (o ClientObserver) ObserveRetry(client string) {
	o.Metrics.ClientRetries.WithLabelValues(client).Inc()
}

func (o ClientObserver) ObserveCacheResult(client string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	o.Metrics.ClientCache.WithLabelValues(client, result).Inc()
}

func (o ClientObserver) ObserveBreakerState(client string, state resilience.BreakerState) {
	o.Metrics.BreakerState.WithLabelValues(client).Set(float64(state))
}

func (o ClientObserver) ObserveDuration(client string, d time.Duration) {
	o.Metrics.ClientDuration.WithLabelValues(client).Observe(d.Seconds())
}

var _ resilience.Observer = ClientObserver{}

// PipelineObserver adapts Metrics to pipeline.Observer.
type PipelineObserver struct {
	Metrics *Metrics
}

func (o PipelineObserver) ObserveQueueDepth(n int) { o.Metrics.QueueDepth.Set(float64(n)) }
func (o PipelineObserver) ObserveBlocked()          { o.Metrics.QueueBlocked.Inc() }
func (o PipelineObserver) ObserveStageDuration(stage string, d time.Duration) {
	o.Metrics.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
func (o PipelineObserver) ObserveRunning(running bool) {
	v := 0.0
	if running {
		v = 1.0
	}
	o.Metrics.PipelineRunning.Set(v)
}

var _ pipeline.Observer = PipelineObserver{}

// AlertObserver adapts Metrics to alert.Observer.
type AlertObserver struct {
	Metrics *Metrics
}

func (o AlertObserver) ObserveDispatched(level domain.AlertLevel) {
	o.Metrics.AlertsDispatched.WithLabelValues(string(level)).Inc()
}
func (o AlertObserver) ObserveDeduped()      { o.Metrics.AlertsDeduped.Inc() }
func (o AlertObserver) ObserveRateLimited()  { o.Metrics.AlertsRateLimited.Inc() }

var _ alert.Observer = AlertObserver{}

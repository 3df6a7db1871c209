// Package alert implements the rate-limited, deduplicated alert dispatcher
// (spec.md C12): a small rule engine over ClassifiedEvents, a dedup window
// keyed by each match's rendered dedup key, and a per-subscriber token
// bucket, grounded on the
// teacher's resilient-adapter pattern of composing a rate limiter around
// an outbound call — here the "call" is a Subscriber.Notify instead of an
// HTTP request.
package alert

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/seismonet/pipeline/internal/config"
	"github.com/seismonet/pipeline/internal/domain"
)

// Subscriber receives dispatched alerts, e.g. the WebSocket tail or an
// external webhook sink.
type Subscriber interface {
	Notify(ctx context.Context, a domain.Alert) error
}

// Observer receives dispatch telemetry for metrics wiring.
type Observer interface {
	ObserveDispatched(level domain.AlertLevel)
	ObserveDeduped()
	ObserveRateLimited()
}

// Dispatcher evaluates alert rules against ClassifiedEvents and notifies
// subscribers, deduplicating and rate limiting along the way.
type Dispatcher struct {
	mu          sync.Mutex
	rules       []compiledRule
	dedupWindow time.Duration
	clock       clockwork.Clock
	lastSeen    map[string]time.Time

	subscribers map[string]Subscriber
	limiters    map[string]*rate.Limiter
	perSubRPS   float64

	obs Observer
}

// New builds a Dispatcher from configuration.
func New(cfg config.AlertsConfig, clock clockwork.Clock, obs Observer) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	rules := make([]compiledRule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules = append(rules, compileRule(r.Predicate, r.Level, r.DedupTemplate))
	}
	return &Dispatcher{
		rules:       rules,
		dedupWindow: cfg.DedupWindow,
		clock:       clock,
		lastSeen:    make(map[string]time.Time),
		subscribers: make(map[string]Subscriber),
		limiters:    make(map[string]*rate.Limiter),
		perSubRPS:   cfg.PerSubscriberRPS,
		obs:         obs,
	}
}

// Subscribe registers a named subscriber to receive dispatched alerts.
func (d *Dispatcher) Subscribe(id string, sub Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[id] = sub
	d.limiters[id] = rate.NewLimiter(rate.Limit(d.perSubRPS), 1)
}

// Unsubscribe removes a previously registered subscriber.
func (d *Dispatcher) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subscribers, id)
	delete(d.limiters, id)
}

// Dispatch evaluates every rule against ev, and for each that matches and
// is not within its dedup window, builds an Alert and notifies every
// subscriber (subject to that subscriber's rate limit).
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.ClassifiedEvent) []error {
	var errs []error

	for _, rule := range d.rules {
		if !rule.matches(ev) {
			continue
		}

		dedupKey := renderDedupKey(rule.dedupTemplate, ev)
		if d.seenRecently(dedupKey) {
			if d.obs != nil {
				d.obs.ObserveDeduped()
			}
			continue
		}

		a := domain.Alert{
			EventID:  ev.ID,
			Level:    rule.level,
			IssuedAt: d.clock.Now(),
			DedupKey: dedupKey,
			Payload: map[string]any{
				"label":      ev.Classification.Label,
				"confidence": ev.Classification.Confidence,
				"magnitude":  ev.Magnitude.Value,
			},
		}

		if err := d.notifyAll(ctx, a); err != nil {
			errs = append(errs, err)
		}
		if d.obs != nil {
			d.obs.ObserveDispatched(a.Level)
		}
	}

	return errs
}

func (d *Dispatcher) seenRecently(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lastSeen[key]
	now := d.clock.Now()
	if ok && now.Sub(last) < d.dedupWindow {
		return true
	}
	d.lastSeen[key] = now
	return false
}

func (d *Dispatcher) notifyAll(ctx context.Context, a domain.Alert) error {
	d.mu.Lock()
	subs := make(map[string]Subscriber, len(d.subscribers))
	for id, s := range d.subscribers {
		subs[id] = s
	}
	d.mu.Unlock()

	var firstErr error
	for id, sub := range subs {
		d.mu.Lock()
		limiter := d.limiters[id]
		d.mu.Unlock()
		if limiter != nil && !limiter.AllowN(d.clock.Now(), 1) {
			if d.obs != nil {
				d.obs.ObserveRateLimited()
			}
			continue
		}
		if err := sub.Notify(ctx, a); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Package resilience composes rate limiting, result caching, circuit
// breaking, and retry-with-backoff around an outbound call, the way the
// teacher's adapter package layers the same four concerns around its HTTP
// client. Caller.Do applies them as cache -> breaker -> rate limiter ->
// retry -> transport.
package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/seismonet/pipeline/internal/apperr"
)

// Config parameterizes a Caller. Zero CacheTTL/CacheMaxEntries disables
// result caching.
type Config struct {
	Name              string // used as the metrics label
	RateLimitRPS      float64
	Burst             int
	Timeout           time.Duration
	RetryMax          int
	RetryBackoff      time.Duration
	BreakerThreshold  int
	BreakerCoolDown   time.Duration
	CacheTTL          time.Duration
	CacheMaxEntries   int
	Clock             clockwork.Clock
}

// Observer receives resilience events for metrics wiring; any method may be
// nil-checked away by the caller's owner.
type Observer interface {
	ObserveOutcome(client, outcome string)
	ObserveRetry(client string)
	ObserveCacheResult(client string, hit bool)
	ObserveBreakerState(client string, state BreakerState)
	ObserveDuration(client string, d time.Duration)
}

// Caller wraps a zero-argument call with rate limiting, an optional result
// cache, a circuit breaker, and bounded retries with exponential backoff.
type Caller struct {
	cfg     Config
	limiter *rate.Limiter
	breaker *breaker
	cache   *ttlLRU
	obs     Observer
}

// New builds a Caller from cfg. If obs is nil, events are discarded.
func New(cfg Config, obs Observer) *Caller {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &Caller{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.Burst),
		breaker: newBreaker(cfg.BreakerThreshold, cfg.BreakerCoolDown, clock),
		obs:     obs,
	}
	if cfg.CacheTTL > 0 && cfg.CacheMaxEntries > 0 {
		c.cache = newTTLLRU(cfg.CacheMaxEntries, cfg.CacheTTL, clock)
	}
	return c
}

// Do executes fn under the composed resilience policy. cacheKey, when
// non-empty and caching is enabled, short-circuits fn entirely on a cache
// hit. fn should return an *apperr.Error so the retry/breaker logic can
// distinguish retryable Kinds (Transient, RateLimited, Unavailable,
// DeadlineExceeded) from terminal ones.
func (c *Caller) Do(ctx context.Context, cacheKey string, fn func(context.Context) (any, error)) (any, error) {
	if c.cache != nil && cacheKey != "" {
		if v, ok := c.cache.Get(cacheKey); ok {
			c.observeCache(true)
			return v, nil
		}
		c.observeCache(false)
	}

	if !c.breaker.Allow() {
		c.observeOutcome("breaker_open")
		return nil, apperr.New(apperr.Unavailable, c.cfg.Name+": circuit breaker open")
	}

	start := time.Now()
	v, err := c.callWithRetry(ctx, fn)
	c.observeDuration(time.Since(start))

	if err != nil {
		c.breaker.RecordFailure()
		c.observeBreaker()
		c.observeOutcome(string(apperr.KindOf(err)))
		return nil, err
	}

	c.breaker.RecordSuccess()
	c.observeBreaker()
	c.observeOutcome("success")
	if c.cache != nil && cacheKey != "" {
		c.cache.Put(cacheKey, v)
	}
	return v, nil
}

func (c *Caller) callWithRetry(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	// Callers that exceed the bucket wait cooperatively, up to ctx's own
	// deadline, rather than failing fast: WaitN blocks until a token is
	// available or ctx is done.
	if err := c.limiter.WaitN(ctx, 1); err != nil {
		return nil, apperr.Wrap(apperr.RateLimited, c.cfg.Name+": local rate limit exceeded", err)
	}

	var result any
	attempt := 0
	policy := backoff.WithContext(c.retryPolicy(), ctx)

	err := backoff.Retry(func() error {
		attempt++
		if attempt > 1 {
			c.observeRetry()
		}
		callCtx := ctx
		var cancel context.CancelFunc
		if c.cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}

		v, err := fn(callCtx)
		if err == nil {
			result = v
			return nil
		}

		switch apperr.KindOf(err) {
		case apperr.Transient, apperr.RateLimited, apperr.Unavailable, apperr.DeadlineExceeded:
			return err // retryable: backoff.Retry will call again
		default:
			return backoff.Permanent(err)
		}
	}, policy)

	return result, err
}

func (c *Caller) retryPolicy() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.RetryBackoff
	return backoff.WithMaxRetries(eb, uint64(c.cfg.RetryMax))
}

func (c *Caller) observeOutcome(outcome string) {
	if c.obs != nil {
		c.obs.ObserveOutcome(c.cfg.Name, outcome)
	}
}

func (c *Caller) observeRetry() {
	if c.obs != nil {
		c.obs.ObserveRetry(c.cfg.Name)
	}
}

func (c *Caller) observeCache(hit bool) {
	if c.obs != nil {
		c.obs.ObserveCacheResult(c.cfg.Name, hit)
	}
}

func (c *Caller) observeBreaker() {
	if c.obs != nil {
		c.obs.ObserveBreakerState(c.cfg.Name, c.breaker.State())
	}
}

func (c *Caller) observeDuration(d time.Duration) {
	if c.obs != nil {
		c.obs.ObserveDuration(c.cfg.Name, d)
	}
}

package whois

import (
	"context"
	"math"
	"net/url"
	"time"

	"github.com/aau-network-security/phishdetect/domain"
	"github.com/aau-network-security/phishdetect/features"
	"github.com/aau-network-security/phishdetect/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const cacheName = "whois"

var (
	DefaultOpts = Opts{
		Policy:  domain.LastTwoLabels,
		Timeout: 5 * time.Second,
	}

	EmptyHostErr = errors.New("url has no host")
)

type Opts struct {
	Policy    domain.Policy `yaml:"policy"`
	Timeout   time.Duration `yaml:"whois-timeout"`
	Rate      float64       `yaml:"whois-rate"` // lookups per second, 0 is unlimited
	Burst     int           `yaml:"whois-burst"`
	CacheSize int           `yaml:"cache-size"` // 0 is unbounded
}

// Resolver derives registration features for the registrable domain of a URL.
// Results, including failed lookups, are cached for the lifetime of the
// process and a domain is looked up at most once at a time.
type Resolver struct {
	registry Registry
	cache    Cache
	group    singleflight.Group
	limiter  *rate.Limiter
	opts     Opts
	influx   store.InfluxService
	now      func() time.Time
}

func (r *Resolver) Resolve(ctx context.Context, u *url.URL) features.Outcome[features.Domain] {
	key := domain.Registrable(u.Hostname(), r.opts.Policy)
	if key == "" {
		return features.Degraded(features.DegradedDomain(), EmptyHostErr)
	}

	e, err := r.entry(ctx, key)
	if err != nil {
		return features.Degraded(features.DegradedDomain(), err)
	}
	if e.Failed() {
		cause := e.Err
		if cause == nil {
			cause = features.ErrSourceUnavailable
		}
		return features.Degraded(features.DegradedDomain(), cause)
	}

	return features.Ok(r.derive(e.Record))
}

func (r *Resolver) entry(ctx context.Context, key string) (Entry, error) {
	if e, ok := r.cache.Get(key); ok {
		r.influx.StoreHit("cache-hit", cacheName, 1)
		return e, nil
	}

	resc := r.group.DoChan(key, func() (interface{}, error) {
		if e, ok := r.cache.Get(key); ok {
			return e, nil
		}
		e := r.lookup(key)
		r.cache.Add(key, e)
		r.influx.StoreHit("cache-insert", cacheName, 1)
		r.influx.CacheSize(cacheName, r.cache.Len(), r.cache.Cap())
		return e, nil
	})

	select {
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	case res := <-resc:
		return res.Val.(Entry), nil
	}
}

// the lookup is detached from the caller, so an abandoned request cannot
// poison the cache with a failure it caused
func (r *Resolver) lookup(key string) Entry {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.Timeout)
	defer cancel()

	if err := r.limiter.Wait(ctx); err != nil {
		return Entry{Err: errors.Wrap(err, "wait for rate limiter")}
	}

	rec, err := r.registry.Lookup(ctx, key)
	if err != nil {
		log.Debug().Str("domain", key).Msgf("whois lookup failed: %s", err)
		return Entry{Err: errors.Wrapf(features.ErrSourceUnavailable, "whois %s: %s", key, err)}
	}
	if rec == nil {
		return Entry{Err: errors.Wrapf(features.ErrSourceUnavailable, "whois %s: empty record", key)}
	}
	return Entry{Record: rec}
}

func days(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}

func (r *Resolver) derive(rec *Record) features.Domain {
	now := r.now()
	res := features.Domain{
		Age:      features.Sentinel,
		Expiry:   features.Sentinel,
		HasWhois: rec.DomainName != "",
	}
	if len(rec.CreationDates) > 0 {
		res.Age = days(now.Sub(rec.CreationDates[0]))
	}
	if len(rec.ExpirationDates) > 0 {
		res.Expiry = days(rec.ExpirationDates[0].Sub(now))
	}
	return res
}

// Len returns the number of cached registrable domains
func (r *Resolver) Len() int {
	return r.cache.Len()
}

func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

func NewResolver(registry Registry, opts Opts, influx store.InfluxService) (*Resolver, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOpts.Timeout
	}
	if opts.Policy == "" {
		opts.Policy = DefaultOpts.Policy
	}
	if err := opts.Policy.IsValid(); err != nil {
		return nil, err
	}
	if influx == nil {
		influx = store.NewDisabledInfluxService()
	}

	cache, err := NewCache(opts.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "create whois cache")
	}

	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Resolver{
		registry: registry,
		cache:    cache,
		limiter:  rate.NewLimiter(limit, burst),
		opts:     opts,
		influx:   influx,
		now:      time.Now,
	}, nil
}

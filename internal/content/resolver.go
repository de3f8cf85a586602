package content

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"elementd/internal/negotiate"
	"elementd/pkg/types"
)

// Defaults applied when corresponding ResolverConfig fields are unset.
const (
	// Inline content is embedded and immutable.
	DefaultInlineTTL = 24 * time.Hour
	// External content may change upstream.
	DefaultExternalTTL = time.Hour
)

// ResolverConfig wires the collaborators of a Resolver.
type ResolverConfig struct {
	Selector    *negotiate.Selector
	Cache       Cache
	Strategy    LoadingStrategy
	InlineTTL   time.Duration
	ExternalTTL time.Duration
	Logger      *zerolog.Logger
}

// Resolver turns an element plus capabilities into content.
type Resolver struct {
	selector    *negotiate.Selector
	cache       Cache
	strategy    LoadingStrategy
	inlineTTL   time.Duration
	externalTTL time.Duration
	log         zerolog.Logger
	flight      singleflight.Group

	hits     atomic.Uint64
	misses   atomic.Uint64
	loads    atomic.Uint64
	failures atomic.Uint64
}

// ResolverStats are cumulative counters.
type ResolverStats struct {
	Hits, Misses, Loads, Failures uint64
	CacheEntries                  int
}

func NewResolver(cfg ResolverConfig) *Resolver {
	r := &Resolver{
		selector:    cfg.Selector,
		cache:       cfg.Cache,
		strategy:    cfg.Strategy,
		inlineTTL:   cfg.InlineTTL,
		externalTTL: cfg.ExternalTTL,
		log:         zerolog.Nop(),
	}
	if cfg.Logger != nil {
		r.log = *cfg.Logger
	}
	if r.selector == nil {
		r.selector = negotiate.New(negotiate.Weights{})
	}
	if r.cache == nil {
		r.cache = NewMemoryCache()
	}
	if r.strategy == nil {
		r.strategy = NewDefaultStrategy(nil, r.log)
	}
	if r.inlineTTL <= 0 {
		r.inlineTTL = DefaultInlineTTL
	}
	if r.externalTTL <= 0 {
		r.externalTTL = DefaultExternalTTL
	}
	return r
}

// Cache exposes the backing cache.
func (r *Resolver) Cache() Cache { return r.cache }

// Selector exposes the negotiation selector.
func (r *Resolver) Selector() *negotiate.Selector { return r.selector }

// ResolveElementContent negotiates, then serves from cache or loads. Errors
// are *ResolveError wrapping either ErrNoSuitableRepresentation,
// ErrUnsupportedSource or the strategy's *LoadError.
func (r *Resolver) ResolveElementContent(ctx context.Context, el types.Element, caps types.Capabilities, opts ResolveOptions) (types.RenderingContent, error) {
	src, ok := r.selector.SelectBest(el, caps)
	if !ok {
		r.failures.Add(1)
		return types.RenderingContent{}, &ResolveError{ElementID: el.ID, Err: ErrNoSuitableRepresentation}
	}
	key := Fingerprint(src)
	if !opts.SkipCache {
		if c, ok := r.cache.Get(key); ok {
			r.hits.Add(1)
			r.log.Debug().Str("element", el.ID).Str("key", key).Msg("cache hit")
			c.Metadata.FromCache = true
			return c, nil
		}
		r.misses.Add(1)
	}
	if !r.strategy.CanHandle(src) {
		r.failures.Add(1)
		return types.RenderingContent{}, &ResolveError{ElementID: el.ID, Err: ErrUnsupportedSource}
	}

	opts = opts.withDefaults()
	load := func(ctx context.Context) (types.RenderingContent, error) {
		r.loads.Add(1)
		c, err := r.strategy.Resolve(ctx, src, caps, opts)
		if err != nil {
			return types.RenderingContent{}, err
		}
		c.Metadata.FromCache = false
		if !opts.SkipCache {
			r.cache.Set(key, c, r.ttlFor(src))
		}
		return c, nil
	}

	var (
		c   types.RenderingContent
		err error
	)
	if opts.SkipCache {
		c, err = load(ctx)
	} else {
		c, err = r.sharedLoad(ctx, key, opts, load)
	}
	if err != nil {
		if IsCanceled(err) {
			r.log.Debug().Err(err).Str("element", el.ID).Str("key", key).Msg("resolve canceled")
		} else {
			r.failures.Add(1)
			r.log.Warn().Err(err).Str("element", el.ID).Str("key", key).Msg("resolve failed")
		}
		return types.RenderingContent{}, &ResolveError{ElementID: el.ID, Err: err}
	}
	return c, nil
}

// sharedLoad joins concurrent misses on one fingerprint into a single load.
// The load is detached from every caller and bounded only by opts.Timeout,
// which is part of the flight key; each caller stops waiting on its own ctx.
func (r *Resolver) sharedLoad(ctx context.Context, key string, opts ResolveOptions, load func(context.Context) (types.RenderingContent, error)) (types.RenderingContent, error) {
	flightKey := key + "|" + strconv.FormatInt(opts.MaxSize, 10) + "|" + opts.Timeout.String()
	detached := context.WithoutCancel(ctx)
	ch := r.flight.DoChan(flightKey, func() (any, error) { return load(detached) })
	select {
	case res := <-ch:
		if res.Err != nil {
			return types.RenderingContent{}, res.Err
		}
		return res.Val.(types.RenderingContent), nil
	case <-ctx.Done():
		return types.RenderingContent{}, contextErr(ctx)
	}
}

func (r *Resolver) ttlFor(src types.PayloadSource) time.Duration {
	if src.Type == types.SourceInline {
		return r.inlineTTL
	}
	return r.externalTTL
}

func (r *Resolver) Stats() ResolverStats {
	return ResolverStats{
		Hits:         r.hits.Load(),
		Misses:       r.misses.Load(),
		Loads:        r.loads.Load(),
		Failures:     r.failures.Load(),
		CacheEntries: r.cache.Len(),
	}
}

package service

import (
	"net/http"

	"github.com/rs/zerolog"

	"elementd/internal/config"
	"elementd/internal/content"
	"elementd/internal/events"
	"elementd/internal/lifecycle"
	"elementd/internal/negotiate"
	"elementd/internal/transport"
	"elementd/pkg/types"
)

// Config wires the managers behind a Service.
type Config struct {
	Events    events.ManagerConfig
	Resolver  content.ResolverConfig
	Fetch     content.ResolveOptions
	Transport transport.Transport
	Publisher lifecycle.EventPublisher
	Logger    *zerolog.Logger
}

// ConfigFrom maps a loaded configuration file onto package configs.
func ConfigFrom(c config.Config, logger *zerolog.Logger) Config {
	c.ApplyDefaults()

	q := events.DefaultQueueConfig()
	q.MaxQueueSize = c.Queue.MaxSize
	q.FlushInterval = c.Queue.FlushInterval.Std()
	q.DeduplicateEvents = c.Queue.DeduplicateEnabled()
	q.PriorityLevels = q.PriorityLevels[:0]
	for _, p := range c.Queue.PriorityLevels {
		q.PriorityLevels = append(q.PriorityLevels, types.Priority(p))
	}

	em := events.DefaultManagerConfig()
	em.Queue = q
	em.MaxHistorySize = c.History.MaxSize
	em.Logger = logger

	n := c.Negotiation
	sel := negotiate.New(negotiate.Weights{
		SizeWeight:             n.SizeWeight,
		NetworkWeight:          n.NetworkWeight,
		DensityWeight:          n.DensityWeight,
		MaxBytesPenalty:        n.MaxBytesPenalty,
		InlineBonus:            n.InlineBonus,
		InlineBonusConstrained: n.InlineBonusConstrained,
	})

	var lg zerolog.Logger
	if logger != nil {
		lg = *logger
	}
	return Config{
		Events: em,
		Resolver: content.ResolverConfig{
			Selector:    sel,
			Cache:       content.NewMemoryCache(),
			Strategy:    content.NewDefaultStrategy(&http.Client{}, lg),
			InlineTTL:   c.Cache.InlineTTL.Std(),
			ExternalTTL: c.Cache.ExternalTTL.Std(),
			Logger:      logger,
		},
		Fetch:  content.ResolveOptions{MaxSize: c.Fetch.MaxSize, Timeout: c.Fetch.Timeout.Std()},
		Logger: logger,
	}
}

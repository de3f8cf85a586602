package config

import (
	"fmt"
	"time"
)

// Defaults for fields left at their zero value.
const (
	DefaultAddr           = ":8080"
	DefaultLogLevel       = "info"
	DefaultMaxBodyBytes   = 1 << 20
	DefaultQueueMaxSize   = 1000
	DefaultFlushInterval  = 50 * time.Millisecond
	DefaultHistoryMaxSize = 100
	DefaultInlineTTL      = 24 * time.Hour
	DefaultExternalTTL    = time.Hour
	DefaultFetchTimeout   = 10 * time.Second
	DefaultFetchMaxSize   = 10 << 20
)

// DefaultPriorityLevels is the lane order used when none is configured.
var DefaultPriorityLevels = []string{"immediate", "high", "normal", "low"}

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	ElementsDir  string `json:"elements_dir" yaml:"elements_dir" toml:"elements_dir"`
	LogLevel     string `json:"log_level" yaml:"log_level" toml:"log_level"`
	MaxBodyBytes int64  `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`

	Queue       QueueConfig       `json:"queue" yaml:"queue" toml:"queue"`
	History     HistoryConfig     `json:"history" yaml:"history" toml:"history"`
	Cache       CacheConfig       `json:"cache" yaml:"cache" toml:"cache"`
	Fetch       FetchConfig       `json:"fetch" yaml:"fetch" toml:"fetch"`
	Negotiation NegotiationConfig `json:"negotiation" yaml:"negotiation" toml:"negotiation"`
	CORS        CORSConfig        `json:"cors" yaml:"cors" toml:"cors"`
}

type QueueConfig struct {
	MaxSize       int      `json:"max_size" yaml:"max_size" toml:"max_size"`
	FlushInterval Duration `json:"flush_interval" yaml:"flush_interval" toml:"flush_interval"`
	// Nil means enabled.
	Deduplicate    *bool    `json:"deduplicate" yaml:"deduplicate" toml:"deduplicate"`
	PriorityLevels []string `json:"priority_levels" yaml:"priority_levels" toml:"priority_levels"`
}

type HistoryConfig struct {
	MaxSize int `json:"max_size" yaml:"max_size" toml:"max_size"`
}

type CacheConfig struct {
	InlineTTL   Duration `json:"inline_ttl" yaml:"inline_ttl" toml:"inline_ttl"`
	ExternalTTL Duration `json:"external_ttl" yaml:"external_ttl" toml:"external_ttl"`
}

type FetchConfig struct {
	Timeout Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
	MaxSize int64    `json:"max_size" yaml:"max_size" toml:"max_size"`
}

// NegotiationConfig overrides scoring weights. Zero keeps the built-in value.
type NegotiationConfig struct {
	SizeWeight             float64 `json:"size_weight" yaml:"size_weight" toml:"size_weight"`
	NetworkWeight          float64 `json:"network_weight" yaml:"network_weight" toml:"network_weight"`
	DensityWeight          float64 `json:"density_weight" yaml:"density_weight" toml:"density_weight"`
	MaxBytesPenalty        float64 `json:"max_bytes_penalty" yaml:"max_bytes_penalty" toml:"max_bytes_penalty"`
	InlineBonus            float64 `json:"inline_bonus" yaml:"inline_bonus" toml:"inline_bonus"`
	InlineBonusConstrained float64 `json:"inline_bonus_constrained" yaml:"inline_bonus_constrained" toml:"inline_bonus_constrained"`
}

// CORSConfig is opt-in; nothing is mounted unless Enabled.
type CORSConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers" toml:"allowed_headers"`
}

// Default returns a fully populated configuration.
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills every zero field with its default.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Queue.MaxSize <= 0 {
		c.Queue.MaxSize = DefaultQueueMaxSize
	}
	if c.Queue.FlushInterval <= 0 {
		c.Queue.FlushInterval = Duration(DefaultFlushInterval)
	}
	if c.Queue.Deduplicate == nil {
		on := true
		c.Queue.Deduplicate = &on
	}
	if len(c.Queue.PriorityLevels) == 0 {
		c.Queue.PriorityLevels = append([]string(nil), DefaultPriorityLevels...)
	}
	if c.History.MaxSize <= 0 {
		c.History.MaxSize = DefaultHistoryMaxSize
	}
	if c.Cache.InlineTTL <= 0 {
		c.Cache.InlineTTL = Duration(DefaultInlineTTL)
	}
	if c.Cache.ExternalTTL <= 0 {
		c.Cache.ExternalTTL = Duration(DefaultExternalTTL)
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = Duration(DefaultFetchTimeout)
	}
	if c.Fetch.MaxSize <= 0 {
		c.Fetch.MaxSize = DefaultFetchMaxSize
	}
}

// Validate rejects values that no default can repair.
func (c Config) Validate() error {
	for _, p := range c.Queue.PriorityLevels {
		switch p {
		case "immediate", "high", "normal", "low":
		default:
			return fmt.Errorf("queue.priority_levels: unknown priority %q", p)
		}
	}
	n := c.Negotiation
	for name, v := range map[string]float64{
		"size_weight": n.SizeWeight, "network_weight": n.NetworkWeight, "density_weight": n.DensityWeight,
		"max_bytes_penalty": n.MaxBytesPenalty, "inline_bonus": n.InlineBonus, "inline_bonus_constrained": n.InlineBonusConstrained,
	} {
		if v < 0 {
			return fmt.Errorf("negotiation.%s: must not be negative", name)
		}
	}
	return nil
}

// DeduplicateEnabled reports the effective dedup setting.
func (q QueueConfig) DeduplicateEnabled() bool { return q.Deduplicate == nil || *q.Deduplicate }

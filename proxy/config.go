package proxy

import "time"

// Config configures the fetch proxy.
type Config struct {
	// FetchTimeout bounds an interactive (cache miss) fetch. Default: 15s.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// RefreshTimeout bounds each background refetch. Default: 10s.
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`
	// CacheTTL is the lifetime of a cached payload. Default: 1h.
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// RefreshInterval is the period of the background refresher. Default: 1h.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	// MaxTracked bounds the tracked URL set. Default: 50.
	MaxTracked int `yaml:"max_tracked"`
	// MaxBodyBytes caps upstream response bodies. Default: 10MiB.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
	UserAgent    string `yaml:"user_agent"`
	// Coalesce shares one upstream fetch between concurrent misses for
	// the same URL. Default: true.
	Coalesce *bool `yaml:"coalesce"`
	// TokenTTL is the lifetime of issued authenticity tokens. Default: 12h.
	TokenTTL time.Duration `yaml:"token_ttl"`
}

func (c *Config) defaults() {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 15 * time.Second
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = 10 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = time.Hour
	}
	if c.MaxTracked <= 0 {
		c.MaxTracked = 50
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "cardcrafter/1.0"
	}
	if c.Coalesce == nil {
		on := true
		c.Coalesce = &on
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 12 * time.Hour
	}
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	c := &Config{}
	c.defaults()
	return c
}

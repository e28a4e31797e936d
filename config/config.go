// Package config loads the cardcrafter service configuration from a YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/cardcrafter/grid"
	"github.com/hazyhaar/cardcrafter/observability"
	"github.com/hazyhaar/cardcrafter/proxy"
	"github.com/hazyhaar/cardcrafter/shield"
)

// Config is the top-level cardcrafter configuration.
type Config struct {
	Server ServerConfig            `yaml:"server"`
	Proxy  proxy.Config            `yaml:"proxy"`
	Log    observability.LogConfig `yaml:"log"`
	Grids  map[string]grid.Config  `yaml:"-"`
}

// ServerConfig controls the HTTP listener and its security settings.
type ServerConfig struct {
	Addr   string `yaml:"addr"`
	DBPath string `yaml:"db_path"`
	// Secret is a passphrase; signing keys are derived from it.
	Secret       string                 `yaml:"secret"`
	CookieSecure bool                   `yaml:"cookie_secure"`
	RateLimit    shield.RateLimitConfig `yaml:"rate_limit"`
}

type fileConfig struct {
	Server ServerConfig            `yaml:"server"`
	Proxy  proxy.Config            `yaml:"proxy"`
	Log    observability.LogConfig `yaml:"log"`
	Grids  map[string]yaml.Node    `yaml:"grids"`
}

// Load reads the YAML file at path, applies defaults and then environment
// overrides. An empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	var fc fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Server: fc.Server,
		Proxy:  fc.Proxy,
		Log:    fc.Log,
		Grids:  make(map[string]grid.Config, len(fc.Grids)),
	}
	for name, node := range fc.Grids {
		gc := grid.DefaultConfig()
		if err := node.Decode(&gc); err != nil {
			return nil, fmt.Errorf("parse config %s: grid %q: %w", path, name, err)
		}
		if gc.Selector == "" {
			gc.Selector = name
		}
		cfg.Grids[name] = gc
	}

	cfg.applyDefaults()
	cfg.applyEnv(os.Getenv)
	return cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = "cardcrafter.db"
	}
	if c.Server.RateLimit.MaxRequests == 0 {
		c.Server.RateLimit.MaxRequests = 120
	}
	if c.Server.RateLimit.Window <= 0 {
		c.Server.RateLimit.Window = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	def := proxy.DefaultConfig()
	p := &c.Proxy
	if p.FetchTimeout <= 0 {
		p.FetchTimeout = def.FetchTimeout
	}
	if p.RefreshTimeout <= 0 {
		p.RefreshTimeout = def.RefreshTimeout
	}
	if p.CacheTTL <= 0 {
		p.CacheTTL = def.CacheTTL
	}
	if p.RefreshInterval <= 0 {
		p.RefreshInterval = def.RefreshInterval
	}
	if p.MaxTracked <= 0 {
		p.MaxTracked = def.MaxTracked
	}
	if p.MaxBodyBytes <= 0 {
		p.MaxBodyBytes = def.MaxBodyBytes
	}
	if p.UserAgent == "" {
		p.UserAgent = def.UserAgent
	}
	if p.Coalesce == nil {
		p.Coalesce = def.Coalesce
	}
	if p.TokenTTL <= 0 {
		p.TokenTTL = def.TokenTTL
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("CARDCRAFTER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := getenv("CARDCRAFTER_DB"); v != "" {
		c.Server.DBPath = v
	}
	if v := getenv("CARDCRAFTER_SECRET"); v != "" {
		c.Server.Secret = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("LOG_FILE"); v != "" {
		c.Log.File = v
	}
}

// Validate checks required fields and every grid preset.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Secret == "" {
		errs = append(errs, errors.New("server.secret is required (or CARDCRAFTER_SECRET)"))
	}
	if c.Server.RateLimit.MaxRequests < 0 {
		errs = append(errs, errors.New("server.rate_limit.max_requests must be >= 0"))
	}
	for _, name := range c.GridNames() {
		gc := c.Grids[name]
		if err := gc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("grids.%s: %w", name, err))
			continue
		}
		c.Grids[name] = gc
	}
	return errors.Join(errs...)
}

// GridNames returns the preset names in sorted order.
func (c *Config) GridNames() []string {
	names := make([]string, 0, len(c.Grids))
	for name := range c.Grids {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Grid returns the named preset.
func (c *Config) Grid(name string) (grid.Config, bool) {
	gc, ok := c.Grids[name]
	return gc, ok
}

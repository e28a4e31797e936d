package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/cardcrafter/grid"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cardcrafter.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CARDCRAFTER_SECRET", "a passphrase")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.DBPath != "cardcrafter.db" {
		t.Fatalf("server defaults: %+v", cfg.Server)
	}
	if cfg.Proxy.FetchTimeout != 15*time.Second || cfg.Proxy.RefreshTimeout != 10*time.Second {
		t.Fatalf("timeouts: %+v", cfg.Proxy)
	}
	if cfg.Proxy.CacheTTL != time.Hour || cfg.Proxy.MaxTracked != 50 {
		t.Fatalf("cache: %+v", cfg.Proxy)
	}
	if cfg.Proxy.Coalesce == nil || !*cfg.Proxy.Coalesce {
		t.Fatal("coalesce should default to true")
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("log level %q", cfg.Log.Level)
	}
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("CARDCRAFTER_SECRET", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected missing secret error")
	}
}

func TestLoad_File(t *testing.T) {
	t.Setenv("CARDCRAFTER_SECRET", "")
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:9000"
  secret: "from file"
  cookie_secure: true
  rate_limit:
    max_requests: 10
    window: 30s
proxy:
  fetch_timeout: 5s
  cache_ttl: 10m
  coalesce: false
log:
  level: debug
grids:
  team:
    source: https://api.example.com/team.json
    columns: 9
    fields:
      title: name
      subtitle: role.title
  inline:
    selector: "#inline"
    search: false
    data:
      - title: A
      - title: B
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" || !cfg.Server.CookieSecure {
		t.Fatalf("server: %+v", cfg.Server)
	}
	if cfg.Server.RateLimit.MaxRequests != 10 || cfg.Server.RateLimit.Window != 30*time.Second {
		t.Fatalf("rate limit: %+v", cfg.Server.RateLimit)
	}
	if cfg.Proxy.FetchTimeout != 5*time.Second || cfg.Proxy.CacheTTL != 10*time.Minute {
		t.Fatalf("proxy: %+v", cfg.Proxy)
	}
	if *cfg.Proxy.Coalesce {
		t.Fatal("coalesce: false was ignored")
	}
	if cfg.Proxy.RefreshTimeout != 10*time.Second {
		t.Fatal("unset proxy fields keep defaults")
	}

	if got := cfg.GridNames(); len(got) != 2 || got[0] != "inline" || got[1] != "team" {
		t.Fatalf("grid names: %v", got)
	}

	team, ok := cfg.Grid("team")
	if !ok {
		t.Fatal("team preset missing")
	}
	if team.Selector != "team" {
		t.Fatalf("selector defaults to preset name: %q", team.Selector)
	}
	if team.Columns != 6 {
		t.Fatalf("columns clamped: %d", team.Columns)
	}
	if !team.Search || !team.Pagination || team.ItemsPerPage != 12 {
		t.Fatalf("preset should start from grid defaults: %+v", team)
	}
	if team.Fields.Title != "name" || team.Fields.Image != "image" {
		t.Fatalf("fields: %+v", team.Fields)
	}

	inline, _ := cfg.Grid("inline")
	if inline.Selector != "#inline" || inline.Search {
		t.Fatalf("inline: %+v", inline)
	}
	eng, err := grid.New(inline, nil)
	if err != nil {
		t.Fatalf("engine from preset: %v", err)
	}
	defer eng.Close()
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":1\"\n  secret: file\nlog:\n  level: warn\n")
	t.Setenv("CARDCRAFTER_ADDR", ":2")
	t.Setenv("CARDCRAFTER_DB", "/tmp/x.db")
	t.Setenv("CARDCRAFTER_SECRET", "env secret")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FILE", "/tmp/cardcrafter.log")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":2" || cfg.Server.DBPath != "/tmp/x.db" || cfg.Server.Secret != "env secret" {
		t.Fatalf("server: %+v", cfg.Server)
	}
	if cfg.Log.Level != "debug" || cfg.Log.File != "/tmp/cardcrafter.log" {
		t.Fatalf("log: %+v", cfg.Log)
	}
}

func TestLoad_InvalidPreset(t *testing.T) {
	t.Setenv("CARDCRAFTER_SECRET", "s")
	path := writeConfig(t, `
grids:
  broken:
    layout: carousel
    source: https://x.example/
  nosource:
    selector: x
`)
	_, err := Load(path)
	if !errors.Is(err, grid.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}

package main

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/cardcrafter/auth"
	"github.com/hazyhaar/cardcrafter/config"
	"github.com/hazyhaar/cardcrafter/dbopen"
	"github.com/hazyhaar/cardcrafter/grid"
	"github.com/hazyhaar/cardcrafter/observability"
	"github.com/hazyhaar/cardcrafter/proxy"
)

const (
	purposeToken   = "proxy-token"
	purposeSession = "session"
)

// loadConfig loads the service configuration and builds the logger.
// stderr routes logs away from stdout.
func loadConfig(f *rootFlags, stderr bool) (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	logger, closer := newLogger(cfg.Log, stderr)
	slog.SetDefault(logger)
	return cfg, logger, closer, nil
}

func newLogger(cfg observability.LogConfig, stderr bool) (*slog.Logger, io.Closer) {
	if stderr {
		return observability.NewStderrLogger(cfg)
	}
	return observability.NewLogger(cfg)
}

// openService opens the cache database and creates the proxy service with
// a token key derived from the configured secret.
func openService(cfg *config.Config, logger *slog.Logger) (*proxy.Service, *sql.DB, error) {
	key, err := auth.DeriveKey(cfg.Server.Secret, purposeToken)
	if err != nil {
		return nil, nil, err
	}
	db, err := dbopen.Open(cfg.Server.DBPath, dbopen.WithMkdirAll(), dbopen.WithMigrations(proxy.Migrations()))
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.Server.DBPath, err)
	}
	svc, err := proxy.New(db, key, &cfg.Proxy, logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return svc, db, nil
}

// gridFlags select and shape the grid for render and export.
type gridFlags struct {
	preset   string
	source   string
	dataFile string
	direct   bool
	fields   map[string]string
	query    string
	sort     string
	layout   string
	columns  int
	perPage  int
	page     int
}

func (g *gridFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&g.preset, "preset", "", "grid preset name from --config")
	fl.StringVar(&g.source, "source", "", "URL of the JSON data source")
	fl.StringVar(&g.dataFile, "data", "", "path to a JSON file with inline data ('-' for stdin)")
	fl.BoolVar(&g.direct, "direct", false, "fetch --source directly instead of through the proxy cache")
	fl.StringToStringVar(&g.fields, "fields", nil, "field mapping, e.g. title=name,image=photo.url")
	fl.StringVar(&g.query, "query", "", "search query")
	fl.StringVar(&g.sort, "sort", "default", "sort order: default, az, za")
}

// gridSession is an engine plus the resources backing its loader.
type gridSession struct {
	engine  *grid.Engine
	closers []io.Closer
}

func (s *gridSession) Close() {
	if s.engine != nil {
		s.engine.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i].Close()
	}
}

// openGrid builds and loads an engine from the flags, then applies the
// query and sort.
func openGrid(cmd *cobra.Command, rf *rootFlags, g *gridFlags) (_ *gridSession, err error) {
	gs := &gridSession{}
	defer func() {
		if err != nil {
			gs.Close()
		}
	}()
	cfg := grid.DefaultConfig()
	var svcCfg *config.Config
	var logger *slog.Logger

	if rf.configPath != "" {
		c, l, closer, err := loadConfig(rf, true)
		if err != nil {
			return nil, err
		}
		svcCfg, logger = c, l
		gs.closers = append(gs.closers, closer)
	} else {
		level := rf.logLevel
		if level == "" {
			level = "warn"
		}
		l, closer := newLogger(observability.LogConfig{Level: level}, true)
		logger = l
		gs.closers = append(gs.closers, closer)
	}

	if g.preset != "" {
		if svcCfg == nil {
			return nil, errors.New("--preset requires --config")
		}
		p, ok := svcCfg.Grid(g.preset)
		if !ok {
			return nil, fmt.Errorf("unknown preset %q", g.preset)
		}
		cfg = p
	}
	if cfg.Selector == "" {
		cfg.Selector = "cli"
	}
	if g.source != "" {
		cfg.Source = g.source
		cfg.Data = nil
	}
	if g.dataFile != "" {
		raw, err := readData(cmd, g.dataFile)
		if err != nil {
			return nil, err
		}
		cfg.Data = raw
	}
	if len(g.fields) > 0 {
		if err := applyFields(&cfg.Fields, g.fields); err != nil {
			return nil, err
		}
	}
	if g.layout != "" {
		cfg.Layout = g.layout
	}
	if g.columns > 0 {
		cfg.Columns = g.columns
	}
	if g.perPage > 0 {
		cfg.ItemsPerPage = g.perPage
	}

	var loader grid.Loader
	switch {
	case cfg.Data != nil:
	case g.direct:
		loader = grid.DirectLoader{}
	default:
		svc, db, err := cliService(svcCfg, logger)
		if err != nil {
			return nil, err
		}
		gs.closers = append(gs.closers, db)
		loader = proxy.LocalLoader{Service: svc}
	}

	eng, err := grid.New(cfg, loader, grid.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	gs.engine = eng
	if err := eng.Init(cmd.Context()); err != nil {
		logger.Debug("grid init", "error", err)
		return nil, errors.New(grid.UserMessage(err))
	}

	sortKey, err := grid.ParseSortKey(g.sort)
	if err != nil {
		return nil, err
	}
	eng.ApplyQuery(g.query)
	eng.SetSort(sortKey)
	return gs, nil
}

// cliService is the proxy service for one-shot commands: the configured
// cache when there is a config, otherwise a throwaway in-memory cache.
func cliService(cfg *config.Config, logger *slog.Logger) (*proxy.Service, io.Closer, error) {
	if cfg != nil {
		svc, db, err := openService(cfg, logger)
		return svc, db, err
	}
	secret := make([]byte, 32)
	rand.Read(secret)
	db, err := dbopen.Open(":memory:", dbopen.WithMigrations(proxy.Migrations()))
	if err != nil {
		return nil, nil, err
	}
	svc, err := proxy.New(db, secret, nil, logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return svc, db, nil
}

func readData(cmd *cobra.Command, path string) (json.RawMessage, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	return json.RawMessage(raw), nil
}

func applyFields(fm *grid.FieldMap, m map[string]string) error {
	for role, path := range m {
		switch role {
		case "image":
			fm.Image = path
		case "title":
			fm.Title = path
		case "subtitle":
			fm.Subtitle = path
		case "description":
			fm.Description = path
		case "link":
			fm.Link = path
		default:
			return fmt.Errorf("unknown field role %q (image, title, subtitle, description, link)", role)
		}
	}
	return nil
}

// Package proxy is the server side of cardcrafter: a cache-aside JSON fetch
// proxy. Requests carry an authenticity token bound to the caller's
// session; target URLs are SSRF-checked before any network access; payloads
// are cached in SQLite with a TTL and kept warm by a background refresher.
package proxy

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/hazyhaar/cardcrafter/auth"
	"github.com/hazyhaar/cardcrafter/observability"
	"github.com/hazyhaar/cardcrafter/proxy/internal/fetch"
	"github.com/hazyhaar/cardcrafter/proxy/internal/refresh"
	"github.com/hazyhaar/cardcrafter/proxy/internal/store"
	"github.com/hazyhaar/cardcrafter/safeurl"
)

// CacheKeyPrefix prefixes every cache key.
const CacheKeyPrefix = "cardcrafter_data_"

// Stats reports cache occupancy.
type Stats = store.Stats

// RefreshResult summarises one background refresh cycle.
type RefreshResult = refresh.Result

// Migrations returns the schema the Service database must be migrated to,
// for use with dbopen.WithMigrations.
func Migrations() fs.FS { return store.Migrations() }

// Service is the fetch proxy. It owns its store, its HTTP clients and its
// refresher; nothing is global.
type Service struct {
	store        *store.Store
	interactive  *fetch.Fetcher
	background   *fetch.Fetcher
	refresher    *refresh.Refresher
	group        singleflight.Group
	secret       []byte
	config       *Config
	logger       *slog.Logger
	urlValidator func(string) error
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithURLValidator overrides the SSRF check (default: safeurl.ValidateURL).
// Tests use it to reach httptest servers on loopback.
func WithURLValidator(fn func(string) error) ServiceOption {
	return func(s *Service) { s.urlValidator = fn }
}

// WithClock overrides the cache clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.store.SetClock(now) }
}

// New creates a Service on db, which must already carry Migrations().
// secret signs and verifies authenticity tokens.
func New(db *sql.DB, secret []byte, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if err := safeurl.ValidateSecret(secret); err != nil {
		return nil, fmt.Errorf("proxy: %w", err)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{
		store:        store.NewStore(db),
		secret:       secret,
		config:       cfg,
		logger:       logger,
		urlValidator: safeurl.ValidateURL,
	}
	for _, opt := range opts {
		opt(svc)
	}

	svc.interactive = fetch.New(fetch.Config{
		Timeout:      cfg.FetchTimeout,
		MaxBytes:     cfg.MaxBodyBytes,
		UserAgent:    cfg.UserAgent,
		URLValidator: svc.urlValidator,
	})
	svc.background = fetch.New(fetch.Config{
		Timeout:      cfg.RefreshTimeout,
		MaxBytes:     cfg.MaxBodyBytes,
		UserAgent:    cfg.UserAgent,
		URLValidator: svc.urlValidator,
	})

	svc.refresher = refresh.New(
		svc.store.TrackedURLs,
		svc.refreshOne,
		svc.store.DeleteExpired,
		refresh.Config{Interval: cfg.RefreshInterval, Timeout: cfg.RefreshTimeout},
		logger,
	)
	svc.refresher.OnResult = func(_ string, err error) {
		if err != nil {
			observability.RefreshResults.WithLabelValues("failed").Inc()
			return
		}
		observability.RefreshResults.WithLabelValues("ok").Inc()
	}

	return svc, nil
}

// CacheKey returns the cache key for the exact URL string.
func CacheKey(rawURL string) string {
	return CacheKeyPrefix + strconv.FormatUint(xxhash.Sum64String(rawURL), 16)
}

// IssueToken returns an authenticity token for sessionID.
func (s *Service) IssueToken(sessionID string) (string, error) {
	return auth.IssueToken(s.secret, sessionID, auth.ActionProxyFetch, s.config.TokenTTL)
}

// Fetch is the proxied fetch operation. The token is checked first; an
// invalid token fails before the URL is even looked at.
func (s *Service) Fetch(ctx context.Context, rawURL, token, sessionID string) (json.RawMessage, error) {
	if err := auth.VerifyToken(s.secret, token, sessionID, auth.ActionProxyFetch); err != nil {
		observability.ProxyRequests.WithLabelValues("unauthorized").Inc()
		return nil, ErrUnauthorized
	}
	return s.FetchTrusted(ctx, rawURL)
}

// FetchTrusted runs the proxied fetch for callers already authenticated by
// other means (in-process loaders, MCP).
func (s *Service) FetchTrusted(ctx context.Context, rawURL string) (json.RawMessage, error) {
	if err := s.urlValidator(rawURL); err != nil {
		observability.ProxyRequests.WithLabelValues("unsafe").Inc()
		return nil, ErrUnsafeURL
	}

	key := CacheKey(rawURL)
	entry, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("proxy: cache read", "key", key, "error", err)
	}
	if entry != nil {
		observability.ProxyRequests.WithLabelValues("hit").Inc()
		return json.RawMessage(entry.Payload), nil
	}

	var payload json.RawMessage
	if *s.config.Coalesce {
		// The shared fetch outlives any single caller; the fetcher's own
		// timeout still bounds it. Each caller waits on its own ctx.
		ch := s.group.DoChan(key, func() (any, error) {
			return s.fetchAndStore(context.WithoutCancel(ctx), rawURL, key)
		})
		select {
		case <-ctx.Done():
			return nil, s.countFailure(rawURL, upstreamError(ctx.Err()))
		case res := <-ch:
			if res.Err != nil {
				return nil, s.countFailure(rawURL, res.Err)
			}
			payload = res.Val.(json.RawMessage)
		}
	} else {
		payload, err = s.fetchAndStore(ctx, rawURL, key)
		if err != nil {
			return nil, s.countFailure(rawURL, err)
		}
	}
	observability.ProxyRequests.WithLabelValues("miss").Inc()
	return payload, nil
}

func (s *Service) countFailure(rawURL string, err error) error {
	outcome := "upstream_error"
	if errors.Is(err, ErrDecode) {
		outcome = "decode_error"
	}
	observability.ProxyRequests.WithLabelValues(outcome).Inc()
	s.logger.Warn("proxy: fetch failed", "url", rawURL, "error", err)
	return err
}

func (s *Service) fetchAndStore(ctx context.Context, rawURL, key string) (json.RawMessage, error) {
	res, err := s.interactive.Get(ctx, rawURL)
	if res != nil {
		observability.ProxyFetchSeconds.WithLabelValues("interactive").Observe(res.Duration.Seconds())
	}
	if err != nil {
		return nil, upstreamError(err)
	}
	payload, err := decodePayload(res.Body)
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, key, rawURL, payload, s.config.CacheTTL); err != nil {
		s.logger.Warn("proxy: cache write", "url", rawURL, "error", err)
	}
	if err := s.store.TrackURL(ctx, rawURL, s.config.MaxTracked); err != nil {
		s.logger.Warn("proxy: track url", "url", rawURL, "error", err)
	}
	return payload, nil
}

func (s *Service) refreshOne(ctx context.Context, rawURL string) error {
	if err := s.urlValidator(rawURL); err != nil {
		return ErrUnsafeURL
	}
	res, err := s.background.Get(ctx, rawURL)
	if res != nil {
		observability.ProxyFetchSeconds.WithLabelValues("refresh").Observe(res.Duration.Seconds())
	}
	if err != nil {
		return upstreamError(err)
	}
	payload, err := decodePayload(res.Body)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, CacheKey(rawURL), rawURL, payload, s.config.CacheTTL)
}

// RefreshNow runs one background refresh cycle synchronously.
func (s *Service) RefreshNow(ctx context.Context) RefreshResult {
	return s.refresher.RunOnce(ctx)
}

// RunRefresher refreshes tracked URLs every RefreshInterval until ctx is
// cancelled.
func (s *Service) RunRefresher(ctx context.Context) {
	s.logger.Info("proxy: refresher started", "interval", s.config.RefreshInterval)
	s.refresher.Run(ctx)
}

// Stats returns cache and tracked-URL counts.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("proxy: stats: %w", err)
	}
	return st, nil
}

// TrackedURLs returns the URLs the refresher will revisit, oldest first.
func (s *Service) TrackedURLs(ctx context.Context) ([]string, error) {
	return s.store.TrackedURLs(ctx)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodePayload checks that body is a JSON document other than null and
// returns it compacted.
func decodePayload(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(bytes.TrimPrefix(body, utf8BOM))
	if len(body) == 0 {
		return nil, &FetchError{Kind: ErrDecode, Err: errors.New("empty body")}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return nil, &FetchError{Kind: ErrDecode, Err: err}
	}
	if bytes.Equal(buf.Bytes(), []byte("null")) {
		return nil, &FetchError{Kind: ErrDecode, Err: errors.New("null document")}
	}
	return json.RawMessage(buf.Bytes()), nil
}

package grid

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hazyhaar/cardcrafter/safeurl"
)

// Loader retrieves the raw payload of a data source. Implementations may
// return decoded JSON values or raw JSON bytes (json.RawMessage/[]byte);
// raw bytes keep item field order for exports.
type Loader interface {
	Load(ctx context.Context, source string) (any, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, source string) (any, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, source string) (any, error) { return f(ctx, source) }

// DirectLoader GETs trusted sources without going through the fetch proxy.
// It performs no SSRF checks.
type DirectLoader struct {
	Client   *http.Client
	MaxBytes int64
}

// Load fetches source and returns its body.
func (d DirectLoader) Load(ctx context.Context, source string) (any, error) {
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	maxBytes := d.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http %d", ErrFetch, resp.StatusCode)
	}
	body, err := safeurl.LimitedReadAll(resp.Body, maxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return body, nil
}

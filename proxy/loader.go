package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/cardcrafter/auth"
	"github.com/hazyhaar/cardcrafter/grid"
	"github.com/hazyhaar/cardcrafter/safeurl"
)

// maxEnvelopeBytes caps proxy responses read by Client.
const maxEnvelopeBytes = 64 << 20

// LocalLoader loads grid sources through an in-process Service.
type LocalLoader struct {
	Service *Service
}

// Load implements grid.Loader.
func (l LocalLoader) Load(ctx context.Context, source string) (any, error) {
	payload, err := l.Service.FetchTrusted(ctx, source)
	if err != nil {
		kind := grid.ErrFetch
		if errors.Is(err, ErrDecode) {
			kind = grid.ErrParse
		}
		return nil, &grid.LoadError{Message: PublicMessage(err), Err: fmt.Errorf("%w: %w", kind, err)}
	}
	return payload, nil
}

// Client loads grid sources through a remote proxy endpoint, the way a
// browser page does: it obtains a session-bound token from /api/token and
// then calls /api/proxy.
type Client struct {
	base string
	http *http.Client

	mu    sync.Mutex
	token string
}

// NewClient creates a Client for the service at baseURL. A nil hc gets a
// client with a cookie jar; a supplied hc must carry its own jar.
func NewClient(baseURL string, hc *http.Client) (*Client, error) {
	if hc == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		hc = &http.Client{Jar: jar, Timeout: 30 * time.Second}
	}
	if hc.Jar == nil {
		return nil, errors.New("proxy: client needs a cookie jar")
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc}, nil
}

// Load implements grid.Loader.
func (c *Client) Load(ctx context.Context, source string) (any, error) {
	tok, err := c.currentToken(ctx)
	if err != nil {
		return nil, &grid.LoadError{Message: MsgNetwork, Err: fmt.Errorf("%w: %v", grid.ErrFetch, err)}
	}
	payload, status, err := c.call(ctx, source, tok)
	if status == http.StatusForbidden {
		// Token expired or session rotated: refresh once.
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		if tok, err = c.currentToken(ctx); err == nil {
			payload, _, err = c.call(ctx, source, tok)
		}
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) currentToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/token", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint: http %d", resp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("token endpoint: %w", err)
	}
	if body.Token == "" {
		return "", errors.New("token endpoint: empty token")
	}
	c.token = body.Token
	return c.token, nil
}

func (c *Client) call(ctx context.Context, source, token string) (json.RawMessage, int, error) {
	form := url.Values{
		"action": {auth.ActionProxyFetch},
		"url":    {source},
		"token":  {token},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/proxy", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, &grid.LoadError{Message: MsgUnsafeURL, Err: fmt.Errorf("%w: %v", grid.ErrFetch, err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &grid.LoadError{Message: MsgNetwork, Err: fmt.Errorf("%w: %v", grid.ErrFetch, err)}
	}
	defer resp.Body.Close()

	body, err := safeurl.LimitedReadAll(resp.Body, maxEnvelopeBytes)
	if err != nil {
		return nil, resp.StatusCode, &grid.LoadError{Message: MsgNetwork, Err: fmt.Errorf("%w: %v", grid.ErrFetch, err)}
	}
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, resp.StatusCode, &grid.LoadError{Message: MsgGeneric, Err: fmt.Errorf("%w: proxy response: %v", grid.ErrFetch, err)}
	}
	if !env.Success {
		var msg string
		if json.Unmarshal(env.Data, &msg) != nil || msg == "" {
			msg = MsgGeneric
		}
		return nil, resp.StatusCode, &grid.LoadError{Message: msg, Err: fmt.Errorf("%w: proxy status %d", grid.ErrFetch, resp.StatusCode)}
	}
	return env.Data, resp.StatusCode, nil
}

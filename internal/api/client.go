package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultRequestTimeout = 15 * time.Second

// TokenSource yields the current access token. The client reads it at send
// time, never at request-construction time, so a request dispatched after a
// token rotation always carries the fresh token.
type TokenSource interface {
	AccessToken() string
}

// Refresher exchanges the refresh credential for a new access token. The
// implementation is expected to coalesce concurrent callers into one
// in-flight attempt.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Client is an HTTP client for the monitoring backend. Every request carries
// the current access token as a bearer credential, and a 401 response is
// recovered transparently with a single refresh-and-retry.
type Client struct {
	base string
	http *http.Client

	tokens TokenSource

	mu            sync.Mutex
	refresher     Refresher
	onAuthExpired func()
}

// New creates a client for the given API base URL. A timeout of zero falls
// back to the 15 second default.
func New(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		base:   strings.TrimSuffix(baseURL, "/"),
		http:   &http.Client{Transport: transport, Timeout: timeout},
		tokens: tokens,
	}
}

// SetRefresher installs the session refresher. Set once during wiring; the
// client never retries a 401 until a refresher is present.
func (c *Client) SetRefresher(r Refresher) {
	c.mu.Lock()
	c.refresher = r
	c.mu.Unlock()
}

// SetOnAuthExpired installs a hook invoked when a refresh attempt after a
// 401 fails, i.e. when the session is beyond recovery.
func (c *Client) SetOnAuthExpired(fn func()) {
	c.mu.Lock()
	c.onAuthExpired = fn
	c.mu.Unlock()
}

// Get issues a GET for the given path relative to the API base and decodes
// the JSON response into dest.
func (c *Client) Get(ctx context.Context, path string, dest any) error {
	return c.do(ctx, http.MethodGet, path, nil, dest, false)
}

// Post issues a POST with a JSON body (nil for an empty body) and decodes
// the JSON response into dest when dest is non-nil.
func (c *Client) Post(ctx context.Context, path string, body, dest any) error {
	return c.do(ctx, http.MethodPost, path, body, dest, false)
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any, retried bool) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+"/"+strings.TrimPrefix(path, "/"), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && !retried && !isRefreshPath(path) {
		refresher := c.currentRefresher()
		if refresher == nil {
			return &StatusError{Code: resp.StatusCode}
		}
		if err := refresher.Refresh(ctx); err != nil {
			c.expireSession()
			return fmt.Errorf("refresh session: %w", err)
		}
		return c.do(ctx, method, path, body, dest, true)
	}

	if resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) currentRefresher() Refresher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refresher
}

func (c *Client) expireSession() {
	c.mu.Lock()
	fn := c.onAuthExpired
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// A 401 from the refresh endpoint itself must propagate unmodified,
// otherwise a dead refresh credential would recurse forever.
func isRefreshPath(path string) bool {
	return strings.Contains(path, "auth/refresh")
}

// Package restapi implements the service interfaces against the task REST API.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"

	"taskdeck/internal/config"
	"taskdeck/internal/tokenstore"
)

const (
	// APITimeout is the default timeout for API calls.
	APITimeout = config.DefaultTimeout

	// RequestIDHeader carries a per-request correlation id.
	RequestIDHeader = "X-Request-ID"

	userAgent = "taskdeck/1"
)

// Client sends JSON requests to the API base URL.
//
// Every outgoing request reads the token store and, when a token is held,
// carries it as a bearer credential. Every 401 response clears the stored
// token and the default Authorization header before the failure reaches
// the caller.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  tokenstore.Store
	source  oauth2.TokenSource
	timeout time.Duration
	logger  *slog.Logger
	limiter *rate.Limiter

	mu     sync.RWMutex
	header http.Header

	hooksMu        sync.Mutex
	onUnauthorized []func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Its transport is wrapped,
// never replaced.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRateLimit caps outgoing requests to perSecond with the given burst.
// A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient creates a client for baseURL that reads credentials from tokens.
func NewClient(baseURL string, tokens tokenstore.Store, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API base URL: %q", baseURL)
	}
	if tokens == nil {
		return nil, fmt.Errorf("token store required")
	}

	c := &Client{
		baseURL: u.String(),
		http:    &http.Client{},
		tokens:  tokens,
		source:  tokenstore.TokenSource(tokens),
		timeout: APITimeout,
		logger:  slog.New(slog.DiscardHandler),
		header: http.Header{
			"Content-Type": {"application/json"},
			"Accept":       {"application/json"},
			"User-Agent":   {userAgent},
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	var transport http.RoundTripper = &sessionTransport{client: c, next: base}
	if c.limiter != nil {
		transport = &rateTransport{limiter: c.limiter, next: transport}
	}

	hc := *c.http
	hc.Transport = transport
	c.http = &hc

	return c, nil
}

// SetAuthorization sets the default Authorization header sent when the
// store holds no token.
func (c *Client) SetAuthorization(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token == "" {
		c.header.Del("Authorization")
		return
	}
	c.header.Set("Authorization", "Bearer "+token)
}

// ClearAuthorization removes the default Authorization header.
func (c *Client) ClearAuthorization() {
	c.SetAuthorization("")
}

// Authorization returns the default Authorization header value.
func (c *Client) Authorization() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.header.Get("Authorization")
}

// OnUnauthorized registers fn to run after a 401 has cleared the session.
func (c *Client) OnUnauthorized(fn func()) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onUnauthorized = append(c.onUnauthorized, fn)
}

// invalidate forgets the session after the server rejected it.
func (c *Client) invalidate() {
	if err := c.tokens.Remove(); err != nil {
		c.logger.Warn("failed to remove rejected token", "error", err)
	}
	c.ClearAuthorization()
	c.logger.Debug("session token rejected, cleared")

	c.hooksMu.Lock()
	hooks := append([]func(){}, c.onUnauthorized...)
	c.hooksMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// do sends a request and decodes a JSON response into out (when non-nil).
// Non-2xx responses come back as *googleapi.Error.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", method, "path", path, "error", err)
		return err
	}
	defer googleapi.CloseBody(resp)

	c.logger.Debug("request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", req.Header.Get(RequestIDHeader),
		"elapsed", time.Since(start),
	)

	if err := googleapi.CheckResponse(resp); err != nil {
		return err
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// Empty bodies are allowed on success.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &decodeError{err: err}
	}
	return nil
}

// sessionTransport applies default headers and the bearer token to each
// request and invalidates the session on 401.
type sessionTransport struct {
	client *Client
	next   http.RoundTripper
}

func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())

	t.client.mu.RLock()
	for k, v := range t.client.header {
		if r.Header.Get(k) == "" {
			r.Header[k] = append([]string(nil), v...)
		}
	}
	t.client.mu.RUnlock()

	if r.Header.Get(RequestIDHeader) == "" {
		r.Header.Set(RequestIDHeader, uuid.NewString())
	}
	if req.Header.Get("Authorization") == "" {
		if tok, err := t.client.source.Token(); err == nil {
			tok.SetAuthHeader(r)
		}
	}

	resp, err := t.next.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		t.client.invalidate()
	}
	return resp, nil
}

// rateTransport waits on a limiter before each request.
type rateTransport struct {
	limiter *rate.Limiter
	next    http.RoundTripper
}

func (t *rateTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

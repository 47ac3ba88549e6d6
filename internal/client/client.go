package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/patientenakte/internal/logger"
	"golang.org/x/oauth2"
)

// Config holds common client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Cache enables the session scoped HTTP read cache.
	Cache bool
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8000",
		Timeout: 30 * time.Second,
		Cache:   true,
	}
}

// Sessions is the narrow view of the session store the transport needs:
// it reads the token and may clear the session.
type Sessions interface {
	oauth2.TokenSource
	Invalidator
}

// Option configures a Client.
type Option func(*options)

type options struct {
	base   http.RoundTripper
	logger zerolog.Logger
}

// WithBaseTransport replaces the underlying RoundTripper, mainly for tests.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

// WithLogger sets the logger used for request logging.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Client is the single HTTP client all backend calls go through.
// Requests pass, in order, through failure classification, credential
// injection and request id stamping before being dispatched.
type Client struct {
	baseURL  *url.URL
	pipeline Doer
	cache    *SessionCache

	mu        sync.RWMutex
	nextID    int
	listeners map[int]InvalidationFunc
}

// New creates a client for cfg.BaseURL using sessions for credentials.
func New(cfg Config, sessions Sessions, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}

	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", cfg.BaseURL)
	}

	o := &options{base: http.DefaultTransport, logger: log.Logger}
	for _, opt := range opts {
		opt(o)
	}

	c := &Client{
		baseURL:   baseURL,
		listeners: make(map[int]InvalidationFunc),
	}

	rt := http.RoundTripper(logger.NewHTTPRequests(o.logger, o.base))
	if cfg.Cache {
		c.cache = NewSessionCache()
		rt = NewCachingTransport(c.cache, rt)
	}

	hc := &http.Client{
		Transport: rt,
		Timeout:   cfg.Timeout,
	}

	c.pipeline = Chain(dispatch(hc),
		Observe(),
		ClassifyFailures(sessions, c.notifyInvalidated),
		InjectCredentials(sessions),
		RequestID(),
	)

	log.Debug().
		Str("baseURL", baseURL.String()).
		Dur("timeout", cfg.Timeout).
		Bool("cache", cfg.Cache).
		Msg("initialized api client")

	return c, nil
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// OnSessionInvalidated registers fn to run whenever a 401 cleared the
// session. The returned func removes the registration.
func (c *Client) OnSessionInvalidated(fn InvalidationFunc) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) notifyInvalidated(ctx context.Context, err *HTTPError) {
	c.mu.RLock()
	listeners := make([]InvalidationFunc, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.RUnlock()

	for _, fn := range listeners {
		fn(ctx, err)
	}
}

// ResetCache drops cached responses. Wire it to every session change.
func (c *Client) ResetCache() {
	if c.cache != nil {
		c.cache.Reset()
	}
}

// NewRequest builds a request for path relative to the base URL. Requests
// default to a JSON content type.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawQuery = ref.RawQuery

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return req, nil
}

// Do sends req through the pipeline. Failures come back as *NetworkError
// or *HTTPError; a non nil response always has a 2xx status.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.pipeline.Do(req)
}

// DoJSON sends in as a JSON body (when non nil) and decodes the response
// into out (when non nil).
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.NewRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}

	return DecodeJSON(resp, out)
}

// DecodeJSON decodes a successful response body into out and closes it.
// An empty body or a nil out is accepted.
func DecodeJSON(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

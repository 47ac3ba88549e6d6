// Package query is the data-fetching layer between views and the backend
// API: it shares in-flight requests per key, keeps results for a staleness
// window and retries transient failures once.
package query

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/patientenakte/internal/client"
	"github.com/wolfeidau/patientenakte/internal/telemetry"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultStaleTime is how long a result is served without refetching.
	DefaultStaleTime = 5 * time.Minute

	// DefaultRetries is the number of retries after the first attempt.
	DefaultRetries = 1
)

// Key identifies a query, e.g. Key{"patients", "7"}.
type Key []string

func (k Key) String() string {
	return strings.Join(k, "/")
}

type entry struct {
	value     any
	fetchedAt time.Time
}

// Client caches query results.
type Client struct {
	staleTime  time.Duration
	retries    uint
	newBackOff func() backoff.BackOff
	now        func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]entry
	// generation is bumped by Clear and Invalidate so fetches started
	// before them are neither shared nor cached.
	generation uint64
}

// Option configures a Client.
type Option func(*Client)

// WithStaleTime sets the staleness window.
func WithStaleTime(d time.Duration) Option {
	return func(c *Client) { c.staleTime = d }
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n uint) Option {
	return func(c *Client) { c.retries = n }
}

// WithBackOff sets the delay policy between retries.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = fn }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a query client with a five minute staleness window and one retry.
func New(opts ...Option) *Client {
	c := &Client{
		staleTime: DefaultStaleTime,
		retries:   DefaultRetries,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		now:     time.Now,
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the cached value for key while it is fresh, otherwise runs
// fn. Concurrent callers for the same key share one fn call. A canceled
// caller stops waiting; the shared call finishes for the others.
func Fetch[T any](ctx context.Context, c *Client, key Key, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	k := key.String()
	m := telemetry.GetMetrics()

	if v, ok := c.lookup(k); ok {
		m.QueryCacheHitsTotal.Add(ctx, 1)
		return as[T](k, v)
	}
	m.QueryCacheMissesTotal.Add(ctx, 1)

	// the generation is part of the call key so a caller never joins a
	// call started before Clear or Invalidate
	gen := c.currentGeneration()
	ch := c.group.DoChan(fmt.Sprintf("%s@%d", k, gen), func() (any, error) {
		v, err := c.run(context.WithoutCancel(ctx), k, func(ctx context.Context) (any, error) {
			return fn(ctx)
		})
		if err != nil {
			return nil, err
		}
		c.store(k, v, gen)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return as[T](k, res.Val)
	}
}

func as[T any](key string, v any) (T, error) {
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("query %s: have %T, want %T", key, v, zero)
	}
	return typed, nil
}

// Invalidate drops every entry whose key starts with prefix. Fetches in
// flight are not shared with later callers and their results are not kept.
func (c *Client) Invalidate(prefix Key) {
	p := prefix.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	for k := range c.entries {
		if k == p || strings.HasPrefix(k, p+"/") {
			delete(c.entries, k)
		}
	}
}

// Clear drops every entry, used when the session changes.
func (c *Client) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.generation++
	c.mu.Unlock()

	log.Debug().Msg("query cache cleared")
}

func (c *Client) run(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	attempt := 0
	operation := func() (any, error) {
		attempt++
		if attempt > 1 {
			telemetry.GetMetrics().QueryRetriesTotal.Add(ctx, 1)
			log.Debug().Str("key", key).Int("attempt", attempt).Msg("retrying query")
		}

		v, err := fn(ctx)
		if err != nil && !client.IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return v, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.retries+1),
	)
}

func (c *Client) lookup(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.fetchedAt) >= c.staleTime {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *Client) store(key string, v any, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return
	}
	c.entries[key] = entry{value: v, fetchedAt: c.now()}
}

func (c *Client) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

package client

import (
	"net/http"
	"sync"

	"github.com/gregjones/httpcache"
)

var _ httpcache.Cache = (*SessionCache)(nil)

// SessionCache is an in-memory httpcache.Cache scoped to one session.
// httpcache keys entries by URL alone, so Reset must be called whenever
// the credential changes to keep one user's responses from reaching another.
type SessionCache struct {
	mu    sync.RWMutex
	cache *httpcache.MemoryCache
}

// NewSessionCache creates an empty cache.
func NewSessionCache() *SessionCache {
	return &SessionCache{cache: httpcache.NewMemoryCache()}
}

func (c *SessionCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.Get(key)
}

func (c *SessionCache) Set(key string, responseBytes []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.cache.Set(key, responseBytes)
}

func (c *SessionCache) Delete(key string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.cache.Delete(key)
}

// Reset drops every cached response.
func (c *SessionCache) Reset() {
	c.mu.Lock()
	c.cache = httpcache.NewMemoryCache()
	c.mu.Unlock()
}

// NewCachingTransport wraps next with an HTTP cache that honours the
// backend's Cache-Control headers. Served-from-cache responses carry
// X-From-Cache: 1.
func NewCachingTransport(cache httpcache.Cache, next http.RoundTripper) *httpcache.Transport {
	transport := httpcache.NewTransport(cache)
	transport.Transport = next
	return transport
}

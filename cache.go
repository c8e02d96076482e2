package subwire

import (
	"bytes"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// CacheEntry is a stored network response.
type CacheEntry struct {
	Body         []byte
	StatusCode   int
	Header       http.Header
	StoredAt     time.Time
	ExpiresAt    time.Time
	ETag         string
	LastModified *time.Time
}

// Cache is the response store consulted by the client. Implementations must
// be safe for concurrent use. ExpiresAt is set by Set from ttl.
type Cache interface {
	Get(key string) (*CacheEntry, bool)
	Set(key string, entry *CacheEntry, ttl time.Duration)
	Delete(key string)
	Clear()
}

// InMemoryCache is a sharded in-memory Cache.
type InMemoryCache struct {
	shards    []*cacheShard
	numShards int
	now       func() time.Time
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
}

// NewInMemoryCache returns an empty 16-shard cache.
func NewInMemoryCache() *InMemoryCache {
	numShards := 16
	shards := make([]*cacheShard, numShards)
	for i := range shards {
		shards[i] = &cacheShard{
			store: make(map[string]*CacheEntry),
		}
	}
	return &InMemoryCache{
		shards:    shards,
		numShards: numShards,
		now:       time.Now,
	}
}

func (c *InMemoryCache) getShard(key string) *cacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return c.shards[hash.Sum32()%uint32(c.numShards)]
}

func (c *InMemoryCache) Get(key string) (*CacheEntry, bool) {
	shard := c.getShard(key)
	shard.mu.RLock()
	entry, exists := shard.store[key]
	shard.mu.RUnlock()
	if !exists {
		return nil, false
	}

	if c.now().After(entry.ExpiresAt) {
		c.deleteIfSame(shard, key, entry)
		return nil, false
	}

	return entry, true
}

// deleteIfSame removes key only while it still maps to entry, so a Set that
// raced in after the read lock was released is kept.
func (c *InMemoryCache) deleteIfSame(shard *cacheShard, key string, entry *CacheEntry) {
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if shard.store[key] == entry {
		delete(shard.store, key)
	}
}

func (c *InMemoryCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry.ExpiresAt = c.now().Add(ttl)
	shard.store[key] = entry
}

func (c *InMemoryCache) Delete(key string) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, key)
}

func (c *InMemoryCache) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*CacheEntry)
		shard.mu.Unlock()
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *InMemoryCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}

// createResponseFromEntry rebuilds a response for req from a stored entry.
func createResponseFromEntry(req *http.Request, entry *CacheEntry, status string) *http.Response {
	header := entry.Header.Clone()
	header.Set("X-Cache-Status", status)
	return &http.Response{
		Status:        http.StatusText(entry.StatusCode),
		StatusCode:    entry.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Body)),
		ContentLength: int64(len(entry.Body)),
		Request:       req,
	}
}

// credentialParams carry secrets or per-request salts.
var credentialParams = []string{ParamToken, ParamSalt, ParamPassword}

// unkeyedParams change between requests for the same resource and must not
// split the cache. The version moves when the server upgrades, and entries
// stored before that must stay reachable offline.
var unkeyedParams = []string{ParamToken, ParamSalt, ParamPassword, ParamVersion}

// DefaultCacheKeyFunc keys on method and URL with credential and version
// parameters removed, so salted requests for the same resource share an entry.
func DefaultCacheKeyFunc(req *http.Request) string {
	if req.URL == nil {
		return req.Method + ":"
	}

	u := *req.URL
	if u.RawQuery != "" {
		q := u.Query()
		for _, p := range unkeyedParams {
			q.Del(p)
		}
		u.RawQuery = q.Encode()
	}

	var buf []byte
	buf = append(buf, req.Method...)
	buf = append(buf, ':')
	buf = append(buf, (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path, RawPath: u.RawPath, RawQuery: u.RawQuery}).String()...)

	return string(buf)
}

// nopCache never stores anything.
type nopCache struct{}

func (nopCache) Get(string) (*CacheEntry, bool)        { return nil, false }
func (nopCache) Set(string, *CacheEntry, time.Duration) {}
func (nopCache) Delete(string)                          {}
func (nopCache) Clear()                                 {}

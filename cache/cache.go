// Package cache stores proof certificates across runs: a process-local
// memory tier backed by an optional persistent store. A proof is pure
// — same source, same contract, same outcome — so cache entries never
// expire and never invalidate, they are only ever superseded by a key
// change.
package cache

import (
	"sync"

	"github.com/goprove/goprove/proof"
)

// Store is the persistent tier. Implementations must tolerate
// concurrent readers and treat corrupt or unreadable entries as
// misses, never as errors that abort verification.
type Store interface {
	Get(key string) (*proof.Certificate, bool)
	Put(key string, cert *proof.Certificate)
	Close() error
}

// Cache is the two-tier certificate cache. The memory tier serves
// repeat lookups by pointer identity; the store tier survives process
// restarts.
type Cache struct {
	mu    sync.Mutex
	certs map[string]*proof.Certificate
	store Store
}

// New builds a cache over an optional persistent store; pass nil for a
// memory-only cache.
func New(store Store) *Cache {
	return &Cache{
		certs: make(map[string]*proof.Certificate),
		store: store,
	}
}

// Get returns the cached certificate for key. A hit from the
// persistent tier is promoted into memory, so two Gets for the same
// key return the same pointer.
func (c *Cache) Get(key string) (*proof.Certificate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cert, ok := c.certs[key]; ok {
		return cert, true
	}
	if c.store == nil {
		return nil, false
	}
	cert, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	c.certs[key] = cert
	return cert, true
}

// Put records a certificate in both tiers.
func (c *Cache) Put(key string, cert *proof.Certificate) {
	c.mu.Lock()
	c.certs[key] = cert
	c.mu.Unlock()
	if c.store != nil {
		c.store.Put(key, cert)
	}
}

// PutLocal records a certificate in the memory tier only. Used for
// outcomes not worth persisting, such as translation errors that a
// source edit will key away anyhow.
func (c *Cache) PutLocal(key string, cert *proof.Certificate) {
	c.mu.Lock()
	c.certs[key] = cert
	c.mu.Unlock()
}

// Clear drops the memory tier. The persistent tier is untouched.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.certs = make(map[string]*proof.Certificate)
	c.mu.Unlock()
}

// Len reports the number of certificates held in memory.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.certs)
}

// Close releases the persistent tier, if any.
func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package persist implements the best-effort disk-resident side cache
// for expensive derived values. It is a hint, never a source of truth:
// every failure class (mode disallows access, missing file, I/O error,
// schema or fingerprint mismatch, corruption) is reported as a plain
// miss, and a failed store is silently dropped. Nothing in this package
// is ever allowed to change what a query returns.
package persist

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash"
	"github.com/prometheus/client_golang/prometheus"
	bolt "go.etcd.io/bbolt"

	"github.com/stratalang/strata/logger"
)

// CacheFileName is the name of the bolt database file under the cache
// root directory.
const CacheFileName = "strata-cache.bolt"

// boltOpenTimeout bounds how long opening the database may block on a
// file lock held by another process.
const boltOpenTimeout = 1 * time.Second

// Cache is a handle to the on-disk cache. Entries are grouped into
// named caches (one bolt bucket each), typically one per derived query.
// The zero-value semantics of every method on a Cache whose underlying
// store is unavailable are "miss" and "drop", never errors.
type Cache struct {
	mode Mode
	path string
	db   *bolt.DB
	log  logger.Logger

	mu    sync.Mutex
	stats map[string]*cacheCounters

	metricHits   *prometheus.CounterVec
	metricMisses *prometheus.CounterVec
	metricStores *prometheus.CounterVec
}

type cacheCounters struct {
	hits          uint64
	misses        uint64
	stores        uint64
	storeFailures uint64
}

// CacheStats reports the counters for one named cache.
type CacheStats struct {
	Hits          uint64
	Misses        uint64
	Stores        uint64
	StoreFailures uint64
}

// CacheOption configures a Cache at open time.
type CacheOption func(*Cache)

// OptCacheLogger sets the logger used for best-effort failure reporting.
func OptCacheLogger(l logger.Logger) CacheOption {
	return func(c *Cache) { c.log = l }
}

// OptCacheMetrics registers hit/miss/store counters with the given
// prometheus registerer.
func OptCacheMetrics(reg prometheus.Registerer) CacheOption {
	return func(c *Cache) {
		c.metricHits = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strata",
			Subsystem: "persist",
			Name:      "hits_total",
			Help:      "Persistent cache hits by cache name.",
		}, []string{"cache"})
		c.metricMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strata",
			Subsystem: "persist",
			Name:      "misses_total",
			Help:      "Persistent cache misses by cache name.",
		}, []string{"cache"})
		c.metricStores = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strata",
			Subsystem: "persist",
			Name:      "stores_total",
			Help:      "Persistent cache successful stores by cache name.",
		}, []string{"cache"})
		reg.MustRegister(c.metricHits, c.metricMisses, c.metricStores)
	}
}

// Open opens the cache rooted at dir in the given mode. Open never
// fails: if the directory or database cannot be used, the returned
// Cache degrades to a pure miss/no-op handle, which callers cannot
// distinguish from a cold cache. Mode is immutable afterward.
func Open(dir string, mode Mode, opts ...CacheOption) *Cache {
	c := &Cache{
		mode:  mode,
		path:  filepath.Join(dir, CacheFileName),
		log:   logger.NopLogger,
		stats: make(map[string]*cacheCounters),
	}
	for _, opt := range opts {
		opt(c)
	}
	if mode == ModeDisabled {
		return c
	}

	boltOpts := &bolt.Options{Timeout: boltOpenTimeout}
	if mode == ModeReadOnly {
		// A read-only open of a nonexistent file can't succeed; a
		// missing cache is just cold.
		if _, err := os.Stat(c.path); err != nil {
			c.log.Debugf("cache file %s unavailable: %v", c.path, err)
			return c
		}
		boltOpts.ReadOnly = true
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			c.log.Warnf("creating cache dir %s: %v", dir, err)
			return c
		}
	}
	db, err := bolt.Open(c.path, 0o666, boltOpts)
	if err != nil {
		c.log.Warnf("opening cache %s: %v", c.path, err)
		return c
	}
	c.db = db
	return c
}

// Mode reports the access mode the cache was opened with.
func (c *Cache) Mode() Mode { return c.mode }

// Path reports the cache database path, even when the store is
// unavailable.
func (c *Cache) Path() string { return c.path }

// Close closes the underlying store. Further operations degrade to
// misses.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	db := c.db
	c.db = nil
	return db.Close()
}

// entryKey is the fixed-size bolt key for a logical entry key. The
// full key string is kept in the entry header, so a (vanishingly
// unlikely) hash collision is caught the same way any other stale
// entry is: by the header check.
func entryKey(key string) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], xxhash.Sum64String(key))
	return b[:]
}

// encodeEntry lays out an entry as:
//
//	uvarint(len(key)) | key | uvarint(schema) | fingerprint | payload
func encodeEntry(key string, schema uint32, fp Fingerprint, payload []byte) []byte {
	buf := make([]byte, 0, 2*binary.MaxVarintLen64+len(key)+FingerprintSize+len(payload))
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(key)))
	buf = append(buf, tmp[:n]...)
	buf = append(buf, key...)
	n = binary.PutUvarint(tmp[:], uint64(schema))
	buf = append(buf, tmp[:n]...)
	buf = append(buf, fp[:]...)
	buf = append(buf, payload...)
	return buf
}

// decodeEntry reverses encodeEntry, validating key, schema, and
// fingerprint. Any mismatch or truncation yields ok=false.
func decodeEntry(raw []byte, key string, schema uint32, fp Fingerprint) (payload []byte, ok bool) {
	klen, n := binary.Uvarint(raw)
	if n <= 0 || uint64(len(raw)-n) < klen {
		return nil, false
	}
	raw = raw[n:]
	if string(raw[:klen]) != key {
		return nil, false
	}
	raw = raw[klen:]
	gotSchema, n := binary.Uvarint(raw)
	if n <= 0 || gotSchema != uint64(schema) {
		return nil, false
	}
	raw = raw[n:]
	if len(raw) < FingerprintSize {
		return nil, false
	}
	var gotFP Fingerprint
	copy(gotFP[:], raw[:FingerprintSize])
	if gotFP != fp {
		return nil, false
	}
	return raw[FingerprintSize:], true
}

// EntryInfo describes a stored entry without validating it against an
// expected key, schema, or fingerprint. Used by inspection tooling.
type EntryInfo struct {
	Key          string
	Schema       uint32
	Fingerprint  Fingerprint
	PayloadBytes int
}

// DescribeEntry parses a raw stored entry. Truncated or malformed
// entries yield ok=false.
func DescribeEntry(raw []byte) (info EntryInfo, ok bool) {
	klen, n := binary.Uvarint(raw)
	if n <= 0 || uint64(len(raw)-n) < klen {
		return EntryInfo{}, false
	}
	raw = raw[n:]
	info.Key = string(raw[:klen])
	raw = raw[klen:]
	schema, n := binary.Uvarint(raw)
	if n <= 0 || len(raw[n:]) < FingerprintSize {
		return EntryInfo{}, false
	}
	info.Schema = uint32(schema)
	raw = raw[n:]
	copy(info.Fingerprint[:], raw[:FingerprintSize])
	info.PayloadBytes = len(raw) - FingerprintSize
	return info, true
}

// Load looks up an entry. It returns (nil, false) when the mode
// disallows reads, the store is unavailable, the entry is missing, or
// the entry's key, schema version, or fingerprint don't match. A
// failed load is indistinguishable from a cold cache.
func (c *Cache) Load(cache, key string, schema uint32, fp Fingerprint) ([]byte, bool) {
	if !c.mode.CanRead() || c.db == nil {
		c.count(cache, func(ct *cacheCounters) { ct.misses++ })
		return nil, false
	}
	var payload []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(cache))
		if b == nil {
			return nil
		}
		raw := b.Get(entryKey(key))
		if raw == nil {
			return nil
		}
		if p, ok := decodeEntry(raw, key, schema, fp); ok {
			// Bolt memory is only valid inside the transaction.
			payload = make([]byte, len(p))
			copy(payload, p)
		}
		return nil
	})
	if err != nil {
		c.log.Debugf("cache load %s/%s: %v", cache, key, err)
		payload = nil
	}
	if payload == nil {
		c.count(cache, func(ct *cacheCounters) { ct.misses++ })
		if c.metricMisses != nil {
			c.metricMisses.WithLabelValues(cache).Inc()
		}
		return nil, false
	}
	c.count(cache, func(ct *cacheCounters) { ct.hits++ })
	if c.metricHits != nil {
		c.metricHits.WithLabelValues(cache).Inc()
	}
	return payload, true
}

// Store writes an entry. It is a no-op when the mode disallows writes
// or the store is unavailable, and silently drops the write on error.
// Stores are idempotent overwrites of content-addressed entries, so
// concurrent writers race harmlessly.
func (c *Cache) Store(cache, key string, schema uint32, fp Fingerprint, payload []byte) {
	if !c.mode.CanWrite() || c.db == nil {
		return
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(cache))
		if err != nil {
			return err
		}
		return b.Put(entryKey(key), encodeEntry(key, schema, fp, payload))
	})
	if err != nil {
		c.log.Debugf("cache store %s/%s: %v", cache, key, err)
		c.count(cache, func(ct *cacheCounters) { ct.storeFailures++ })
		return
	}
	c.count(cache, func(ct *cacheCounters) { ct.stores++ })
	if c.metricStores != nil {
		c.metricStores.WithLabelValues(cache).Inc()
	}
}

// GetOrCompute loads the entry, computes it on a miss, and best-effort
// stores the computed bytes. The computed value is returned
// unconditionally regardless of whether the store succeeded; a compute
// error is the caller's own and is returned as-is.
func (c *Cache) GetOrCompute(cache, key string, schema uint32, fp Fingerprint, compute func() ([]byte, error)) ([]byte, error) {
	if payload, ok := c.Load(cache, key, schema, fp); ok {
		return payload, nil
	}
	payload, err := compute()
	if err != nil {
		return nil, err
	}
	c.Store(cache, key, schema, fp, payload)
	return payload, nil
}

// Stats returns a copy of the per-cache counters.
func (c *Cache) Stats() map[string]CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]CacheStats, len(c.stats))
	for name, ct := range c.stats {
		out[name] = CacheStats{
			Hits:          ct.hits,
			Misses:        ct.misses,
			Stores:        ct.stores,
			StoreFailures: ct.storeFailures,
		}
	}
	return out
}

// CacheNames returns the known cache names, sorted, for reporting.
func (c *Cache) CacheNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.stats))
	for name := range c.stats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Cache) count(cache string, fn func(*cacheCounters)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ct := c.stats[cache]
	if ct == nil {
		ct = &cacheCounters{}
		c.stats[cache] = ct
	}
	fn(ct)
}

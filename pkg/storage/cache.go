package storage

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

// QueryCache keeps the records of recently queried observables. Its capacity
// is a number of records, not of observables: a single two-point correlator
// of a long chain can hold more samples than every one-point estimator
// together.
type QueryCache struct {
	maxRecords int
	ttl        time.Duration

	mu      sync.Mutex
	entries map[string]*cacheEntry
	lru     *list.List
	records int
}

type cacheEntry struct {
	key      string
	records  []types.Record
	storedAt time.Time
	element  *list.Element
}

// NewQueryCache creates a cache holding up to maxRecords records. A zero ttl
// never expires entries.
func NewQueryCache(maxRecords int, ttl time.Duration) *QueryCache {
	return &QueryCache{
		maxRecords: maxRecords,
		ttl:        ttl,
		entries:    make(map[string]*cacheEntry),
		lru:        list.New(),
	}
}

// Get returns the cached records of an encoded observable name.
func (qc *QueryCache) Get(key string) ([]types.Record, bool) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	entry, ok := qc.entries[key]
	if !ok {
		return nil, false
	}
	if qc.expired(entry) {
		qc.removeLocked(entry)
		return nil, false
	}

	qc.lru.MoveToFront(entry.element)
	return entry.records, true
}

// Put caches records under key. A result larger than the whole cache is not
// stored.
func (qc *QueryCache) Put(key string, records []types.Record) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	if old, ok := qc.entries[key]; ok {
		qc.removeLocked(old)
	}
	if len(records) > qc.maxRecords {
		return
	}

	entry := &cacheEntry{key: key, records: records, storedAt: time.Now()}
	entry.element = qc.lru.PushFront(entry)
	qc.entries[key] = entry
	qc.records += len(records)

	for qc.records > qc.maxRecords {
		qc.removeLocked(qc.lru.Back().Value.(*cacheEntry))
	}
}

// Invalidate drops the entries of the given keys.
func (qc *QueryCache) Invalidate(keys ...string) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	for _, key := range keys {
		if entry, ok := qc.entries[key]; ok {
			qc.removeLocked(entry)
		}
	}
}

// Clear drops every entry.
func (qc *QueryCache) Clear() {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	qc.entries = make(map[string]*cacheEntry)
	qc.lru.Init()
	qc.records = 0
}

// must hold lock
func (qc *QueryCache) removeLocked(entry *cacheEntry) {
	qc.lru.Remove(entry.element)
	delete(qc.entries, entry.key)
	qc.records -= len(entry.records)
}

func (qc *QueryCache) expired(entry *cacheEntry) bool {
	return qc.ttl > 0 && time.Since(entry.storedAt) > qc.ttl
}

// Size returns the number of cached observables.
func (qc *QueryCache) Size() int {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	return len(qc.entries)
}

// Stats returns cache statistics.
func (qc *QueryCache) Stats() CacheStats {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	stats := CacheStats{
		Observables: len(qc.entries),
		Records:     qc.records,
		MaxRecords:  qc.maxRecords,
	}
	for _, entry := range qc.entries {
		if qc.expired(entry) {
			stats.Expired++
		}
	}
	return stats
}

// CacheStats describes the content of a QueryCache.
type CacheStats struct {
	Observables int
	Records     int
	MaxRecords  int
	Expired     int
}

// CachedStore wraps a Store with a QueryCache. Inserts invalidate the
// observables they write to.
type CachedStore struct {
	Store
	codec NameCodec
	cache *QueryCache

	mu     sync.Mutex
	hits   uint64
	misses uint64
}

// NewCachedStore wraps store. codec must be the one the wrapped store uses;
// nil means ColonCodec.
func NewCachedStore(store Store, codec NameCodec, maxRecords int, ttl time.Duration) *CachedStore {
	if codec == nil {
		codec = ColonCodec{}
	}
	return &CachedStore{
		Store: store,
		codec: codec,
		cache: NewQueryCache(maxRecords, ttl),
	}
}

// Insert implements Store.Insert.
func (cs *CachedStore) Insert(ctx context.Context, records []types.Record, fp types.Fingerprint) error {
	defer cs.invalidate(records)
	return cs.Store.Insert(ctx, records, fp)
}

// InsertFile implements Store.InsertFile.
func (cs *CachedStore) InsertFile(ctx context.Context, file *types.EstimatorFile) error {
	records, _ := file.Records()
	defer cs.invalidate(records)
	return cs.Store.InsertFile(ctx, file)
}

// Close drops the cached records and closes the wrapped store.
func (cs *CachedStore) Close() error {
	cs.cache.Clear()
	return cs.Store.Close()
}

func (cs *CachedStore) invalidate(records []types.Record) {
	seen := make(map[string]bool)
	var keys []string
	for _, rec := range records {
		key := cs.codec.Encode(rec.Name)
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	cs.cache.Invalidate(keys...)
}

// Query implements Store.Query. Callers get their own copy of the records.
func (cs *CachedStore) Query(ctx context.Context, name types.ObservableName) ([]types.Record, error) {
	key := cs.codec.Encode(name)

	if records, ok := cs.cache.Get(key); ok {
		cs.count(true)
		return append([]types.Record(nil), records...), nil
	}
	cs.count(false)

	records, err := cs.Store.Query(ctx, name)
	if err != nil {
		return nil, err
	}
	cs.cache.Put(key, records)

	return append([]types.Record(nil), records...), nil
}

func (cs *CachedStore) count(hit bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if hit {
		cs.hits++
		cacheRequests.WithLabelValues("hit").Inc()
	} else {
		cs.misses++
		cacheRequests.WithLabelValues("miss").Inc()
	}
}

// CacheStats returns the cache statistics and the hit and miss counts.
func (cs *CachedStore) CacheStats() (CacheStats, uint64, uint64) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.cache.Stats(), cs.hits, cs.misses
}

// CacheHitRate returns the cache hit rate as a percentage
func (cs *CachedStore) CacheHitRate() float64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	total := cs.hits + cs.misses
	if total == 0 {
		return 0.0
	}

	return float64(cs.hits) / float64(total) * 100.0
}

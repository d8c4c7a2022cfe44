// Package cache provides memoization for fixed-point map evaluations.
// A convergent run never revisits a state, so caching pays off across
// runs rather than within one: parameter sweeps that share an initial
// guess, method comparisons on the same problem, and tuners that
// revisit a configuration.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/scfkit/go-scf/field"
	"github.com/scfkit/go-scf/solver"
)

// EvalCache caches map evaluations keyed by a hash of the input state.
type EvalCache struct {
	mu        sync.RWMutex
	cache     map[string]*field.Field
	maxSize   int
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewEvalCache creates a cache with the specified maximum size.
// When the cache is full, an arbitrary entry is evicted.
// Set maxSize to 0 for an unbounded cache.
func NewEvalCache(maxSize int) *EvalCache {
	return &EvalCache{
		cache:   make(map[string]*field.Field),
		maxSize: maxSize,
	}
}

// hashField produces a deterministic digest of a state. Rank and shape
// are folded in so reshaped views of the same data do not collide.
func hashField(x *field.Field) string {
	h := sha256.New()
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(len(x.Shape)))
	h.Write(buf)
	for _, n := range x.Shape {
		binary.BigEndian.PutUint64(buf, uint64(n))
		h.Write(buf)
	}
	for _, v := range x.Data {
		binary.BigEndian.PutUint64(buf, math.Float64bits(v))
		h.Write(buf)
	}
	return string(h.Sum(nil))
}

// hashParams produces a deterministic digest of a parameter assignment.
func hashParams(params map[string]float64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	buf := make([]byte, 8)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		binary.BigEndian.PutUint64(buf, math.Float64bits(params[k]))
		h.Write(buf)
	}
	return string(h.Sum(nil))
}

// Get retrieves the cached evaluation for a state, or nil on a miss.
// The returned field is shared with the cache and must be treated as
// read-only.
func (c *EvalCache) Get(x *field.Field) *field.Field {
	key := hashField(x)

	c.mu.RLock()
	fx, ok := c.cache[key]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
		return fx
	}
	c.misses.Add(1)
	return nil
}

// Put stores an evaluation.
func (c *EvalCache) Put(x, fx *field.Field) {
	key := hashField(x)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize > 0 && len(c.cache) >= c.maxSize {
		for k := range c.cache {
			delete(c.cache, k)
			c.evictions.Add(1)
			break
		}
	}
	c.cache[key] = fx
}

// GetOrCompute retrieves from the cache or computes and caches the
// result. A compute error is returned unchanged and nothing is cached.
func (c *EvalCache) GetOrCompute(x *field.Field, compute func() (*field.Field, error)) (*field.Field, error) {
	if fx := c.Get(x); fx != nil {
		return fx, nil
	}

	fx, err := compute()
	if err != nil {
		return nil, err
	}
	c.Put(x, fx)
	return fx, nil
}

// Clear removes all entries from the cache.
func (c *EvalCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*field.Field)
}

// Size returns the current number of cached entries.
func (c *EvalCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Stats holds cache counters.
type Stats struct {
	Size      int
	MaxSize   int
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64
}

// Stats returns a snapshot of the cache counters.
func (c *EvalCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Size:      c.Size(),
		MaxSize:   c.maxSize,
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
		HitRate:   hitRate,
	}
}

// CachedMap wraps a fixed-point map with evaluation caching. The
// wrapped map must be pure: the cache replays stored outputs for
// repeated inputs.
type CachedMap struct {
	fn    solver.Map
	cache *EvalCache
}

// NewCachedMap wraps fn with a cache of the given size.
func NewCachedMap(fn solver.Map, cacheSize int) *CachedMap {
	return &CachedMap{
		fn:    fn,
		cache: NewEvalCache(cacheSize),
	}
}

// WithMaxSize replaces the cache with an empty one bounded to maxSize.
func (m *CachedMap) WithMaxSize(maxSize int) *CachedMap {
	m.cache = NewEvalCache(maxSize)
	return m
}

// Map returns the caching map, suitable for solver.NewProblem.
func (m *CachedMap) Map() solver.Map {
	return func(x *field.Field) (*field.Field, error) {
		return m.cache.GetOrCompute(x, func() (*field.Field, error) {
			return m.fn(x)
		})
	}
}

// Eval evaluates the map through the cache.
func (m *CachedMap) Eval(x *field.Field) (*field.Field, error) {
	return m.Map()(x)
}

// Cache returns the underlying cache for inspection.
func (m *CachedMap) Cache() *EvalCache {
	return m.cache
}

// ClearCache clears the cache.
func (m *CachedMap) ClearCache() {
	m.cache.Clear()
}

// ScoreCache caches scalar scores keyed by parameter assignment. It
// backs searches that revisit the same variant, where only the score is
// needed and caching whole results would waste memory.
type ScoreCache struct {
	mu      sync.RWMutex
	cache   map[string]float64
	maxSize int
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewScoreCache creates a score cache.
func NewScoreCache(maxSize int) *ScoreCache {
	return &ScoreCache{
		cache:   make(map[string]float64),
		maxSize: maxSize,
	}
}

// Get retrieves a cached score.
// Returns (score, true) if found, (0, false) if not.
func (c *ScoreCache) Get(params map[string]float64) (float64, bool) {
	key := hashParams(params)

	c.mu.RLock()
	score, ok := c.cache[key]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
		return score, true
	}
	c.misses.Add(1)
	return 0, false
}

// Put stores a score.
func (c *ScoreCache) Put(params map[string]float64, score float64) {
	key := hashParams(params)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize > 0 && len(c.cache) >= c.maxSize {
		for k := range c.cache {
			delete(c.cache, k)
			break
		}
	}
	c.cache[key] = score
}

// GetOrCompute retrieves from the cache or computes and caches.
func (c *ScoreCache) GetOrCompute(params map[string]float64, compute func() float64) float64 {
	if score, ok := c.Get(params); ok {
		return score
	}

	score := compute()
	c.Put(params, score)
	return score
}

// Size returns the current number of cached entries.
func (c *ScoreCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Clear removes all entries.
func (c *ScoreCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]float64)
}

// HitRate returns the cache hit rate.
func (c *ScoreCache) HitRate() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
